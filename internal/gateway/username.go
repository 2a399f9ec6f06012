package gateway

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var ErrInvalidUsername = errors.New("invalid username")

const MaxUsernameLen = 24

// NormalizeUsername trims and NFC-normalizes a display name so that visually
// identical names compare equal.
func NormalizeUsername(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidUsername)
	case !utf8.ValidString(name):
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidUsername)
	case utf8.RuneCountInString(name) > MaxUsernameLen:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, MaxUsernameLen)
	case strings.ContainsFunc(name, unicode.IsControl):
		return "", fmt.Errorf("%w: contains control characters", ErrInvalidUsername)
	}
	return name, nil
}
