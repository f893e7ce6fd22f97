package chat

import (
	"sync"
)

// PresenceNotifier observes 0<->1 transitions of a user's connection count.
// Wired to the broadcaster; invoked outside the registry lock.
type PresenceNotifier func(userID string, online bool)

// Registry is the single source of truth for who is online. A user may hold
// any number of concurrent connections (multi-device); the user counts as
// online while at least one remains.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Conn // userID -> connID -> conn
	byConn map[string]*Conn            // connID -> conn

	notify PresenceNotifier
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// SetPresenceNotifier must be called before the registry starts mutating.
func (r *Registry) SetPresenceNotifier(n PresenceNotifier) { r.notify = n }

// Register records a connection. Idempotent per connID; a second connection
// for the same user is added alongside, never replacing the first.
func (r *Registry) Register(c *Conn) {
	if c == nil || c.ConnID == "" || c.UserID == "" {
		return
	}
	r.mu.Lock()
	if _, exists := r.byConn[c.ConnID]; exists {
		r.mu.Unlock()
		return
	}
	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Conn)
		r.byUser[c.UserID] = m
	}
	wasOffline := len(m) == 0
	m[c.ConnID] = c
	r.byConn[c.ConnID] = c
	notify := r.notify
	r.mu.Unlock()

	if wasOffline && notify != nil {
		notify(c.UserID, true)
	}
}

// Unregister removes exactly the given connection. Removing an already-absent
// connection is a no-op, so disconnect races are safe.
func (r *Registry) Unregister(c *Conn) {
	if c == nil {
		return
	}
	r.mu.Lock()
	if _, exists := r.byConn[c.ConnID]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.byConn, c.ConnID)
	nowOffline := false
	if m := r.byUser[c.UserID]; m != nil {
		delete(m, c.ConnID)
		if len(m) == 0 {
			delete(r.byUser, c.UserID)
			nowOffline = true
		}
	}
	notify := r.notify
	r.mu.Unlock()

	if nowOffline && notify != nil {
		notify(c.UserID, false)
	}
}

// ConnectionsFor returns all live connections of the user.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// AllOnlineUserIDs returns every user with at least one connection.
func (r *Registry) AllOnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// AllConns returns every live connection across all users.
func (r *Registry) AllConns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}
