package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrUnknownUser = errors.New("unknown user")

// Conn is a live client connection handle. Send must not block connection
// bookkeeping; implementations buffer and report failure instead.
type Conn interface {
	Send(payload []byte) error
	Close()
}

// Directory checks user ids against the user directory.
type Directory interface {
	UserExists(ctx context.Context, userID int) (bool, error)
}

// TransitionFunc is invoked exactly once per online/offline transition of a
// user, regardless of how many connections the user holds.
type TransitionFunc func(userID int, online bool)

type entry struct {
	userID int
	conn   Conn
}

// Registry tracks which user owns which live connections. A user may hold
// any number of simultaneous connections; online means at least one.
type Registry struct {
	directory    Directory
	onTransition TransitionFunc

	mu       sync.RWMutex
	sessions map[string]entry
	byUser   map[int]map[string]Conn
}

// NewRegistry constructs a Registry over the given user directory.
func NewRegistry(directory Directory) *Registry {
	return &Registry{
		directory: directory,
		sessions:  make(map[string]entry),
		byUser:    make(map[int]map[string]Conn),
	}
}

// OnTransition installs the online/offline hook. Must be called during
// wiring, before connections register.
func (r *Registry) OnTransition(hook TransitionFunc) {
	r.onTransition = hook
}

// Register binds a connection to a user and returns the session id.
// Fails with ErrUnknownUser when the user is not in the directory.
func (r *Registry) Register(ctx context.Context, userID int, conn Conn) (string, error) {
	exists, err := r.directory.UserExists(ctx, userID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrUnknownUser
	}

	sessionID := uuid.NewString()

	r.mu.Lock()
	wasOnline := len(r.byUser[userID]) > 0
	r.sessions[sessionID] = entry{userID: userID, conn: conn}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]Conn)
	}
	r.byUser[userID][sessionID] = conn
	r.mu.Unlock()

	if !wasOnline && r.onTransition != nil {
		r.onTransition(userID, true)
	}
	return sessionID, nil
}

// Remove drops a session. Unknown session ids are ignored.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	conns := r.byUser[sess.userID]
	delete(conns, sessionID)
	nowOffline := len(conns) == 0
	if nowOffline {
		delete(r.byUser, sess.userID)
	}
	r.mu.Unlock()

	if nowOffline && r.onTransition != nil {
		r.onTransition(sess.userID, false)
	}
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID int) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.byUser[userID]))
	for _, conn := range r.byUser[userID] {
		conns = append(conns, conn)
	}
	return conns
}

// IsOnline reports whether the user holds at least one live connection.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}
