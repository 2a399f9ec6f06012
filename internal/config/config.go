package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	Addr     string
	LogLevel string
	LogDev   bool

	// Rooms
	RoomGracePeriod   time.Duration
	MaxPlayersLimit   int
	DefaultMaxPlayers int
	BcryptCost        int
	OutboxSize        int

	// Event rate limiting, only active when RedisAddr is set
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	EventRateLimit  int
	EventRateWindow time.Duration

	AllowedOrigins []string
}

func Default() Config {
	return Config{
		Addr:              ":8080",
		LogLevel:          "info",
		RoomGracePeriod:   10 * time.Second,
		MaxPlayersLimit:   8,
		DefaultMaxPlayers: 4,
		BcryptCost:        10,
		OutboxSize:        32,
		EventRateLimit:    30,
		EventRateWindow:   10 * time.Second,
	}
}

// Load reads the environment, after applying a .env file if one exists.
// Unparseable values are reported together; the result is validated.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	var errs error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("APP_ADDR", &cfg.Addr)
	str("LOG_LEVEL", &cfg.LogLevel)
	cfg.LogDev = os.Getenv("LOG_DEV") == "true"

	dur("ROOM_GRACE_PERIOD", &cfg.RoomGracePeriod)
	num("MAX_PLAYERS_LIMIT", &cfg.MaxPlayersLimit)
	num("DEFAULT_MAX_PLAYERS", &cfg.DefaultMaxPlayers)
	num("BCRYPT_COST", &cfg.BcryptCost)
	num("OUTBOX_SIZE", &cfg.OutboxSize)

	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	num("REDIS_DB", &cfg.RedisDB)
	num("EVENT_RATE_LIMIT", &cfg.EventRateLimit)
	dur("EVENT_RATE_WINDOW", &cfg.EventRateWindow)

	// comma separated, e.g. "localhost:*,example.com"
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if errs != nil {
		return cfg, errs
	}
	return cfg, cfg.Validate()
}

// Validate returns every problem with the config, not just the first.
func (c Config) Validate() error {
	var errs error
	if c.Addr == "" {
		errs = multierr.Append(errs, fmt.Errorf("APP_ADDR must not be empty"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.RoomGracePeriod <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ROOM_GRACE_PERIOD must be positive, got %s", c.RoomGracePeriod))
	}
	if c.MaxPlayersLimit < 2 {
		errs = multierr.Append(errs, fmt.Errorf("MAX_PLAYERS_LIMIT must be at least 2, got %d", c.MaxPlayersLimit))
	}
	if c.DefaultMaxPlayers < 2 || c.DefaultMaxPlayers > c.MaxPlayersLimit {
		errs = multierr.Append(errs, fmt.Errorf("DEFAULT_MAX_PLAYERS must be in 2..%d, got %d", c.MaxPlayersLimit, c.DefaultMaxPlayers))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = multierr.Append(errs, fmt.Errorf("BCRYPT_COST must be in 4..31, got %d", c.BcryptCost))
	}
	if c.OutboxSize < 1 {
		errs = multierr.Append(errs, fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize))
	}
	if c.RedisAddr != "" {
		if c.EventRateLimit < 1 {
			errs = multierr.Append(errs, fmt.Errorf("EVENT_RATE_LIMIT must be positive, got %d", c.EventRateLimit))
		}
		if c.EventRateWindow < time.Second {
			errs = multierr.Append(errs, fmt.Errorf("EVENT_RATE_WINDOW must be at least 1s, got %s", c.EventRateWindow))
		}
	}
	return errs
}
