// Package identity maps display names to their live connection and room so a
// dropped client can reattach to its match.
package identity

import "sync"

type Session struct {
	ConnID string
	RoomID string
}

// Registry is safe for concurrent use. Entries live as long as the room they
// point at: rooms evict their sessions on destruction, and an explicit leave
// removes the leaver's entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register binds username to connID in roomID, replacing any previous binding.
func (r *Registry) Register(username, connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[username] = Session{ConnID: connID, RoomID: roomID}
}

func (r *Registry) Lookup(username string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	return s, ok
}

// Rebind points an existing session at a new connection. It reports false if
// the username has no session.
func (r *Registry) Rebind(username, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	if !ok {
		return false
	}
	s.ConnID = connID
	r.sessions[username] = s
	return true
}

// Remove drops username's session if it still points at roomID.
func (r *Registry) Remove(username, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[username]; ok && s.RoomID == roomID {
		delete(r.sessions, username)
	}
}

// RemoveRoom drops every session bound to roomID and returns how many went.
func (r *Registry) RemoveRoom(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name, s := range r.sessions {
		if s.RoomID == roomID {
			delete(r.sessions, name)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
