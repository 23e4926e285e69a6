package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	known map[int]bool
}

func (d stubDirectory) UserExists(ctx context.Context, userID int) (bool, error) {
	return d.known[userID], nil
}

type stubConn struct{}

func (stubConn) Send(payload []byte) error { return nil }
func (stubConn) Close()                    {}

type transitionLog struct {
	mu      sync.Mutex
	entries []struct {
		userID int
		online bool
	}
}

func (l *transitionLog) record(userID int, online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, struct {
		userID int
		online bool
	}{userID, online})
}

func (l *transitionLog) snapshot() []struct {
	userID int
	online bool
} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]struct {
		userID int
		online bool
	}, len(l.entries))
	copy(out, l.entries)
	return out
}

func TestRegisterUnknownUser(t *testing.T) {
	registry := NewRegistry(stubDirectory{known: map[int]bool{}})

	_, err := registry.Register(context.Background(), 42, stubConn{})
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.False(t, registry.IsOnline(42))
}

func TestTransitionsFireOncePerEdge(t *testing.T) {
	registry := NewRegistry(stubDirectory{known: map[int]bool{7: true}})
	log := &transitionLog{}
	registry.OnTransition(log.record)

	first, err := registry.Register(context.Background(), 7, stubConn{})
	require.NoError(t, err)
	second, err := registry.Register(context.Background(), 7, stubConn{})
	require.NoError(t, err)

	assert.True(t, registry.IsOnline(7))
	assert.Len(t, registry.ConnectionsFor(7), 2)

	// Second connection of an online user does not re-fire the hook.
	require.Len(t, log.snapshot(), 1)
	assert.True(t, log.snapshot()[0].online)

	registry.Remove(first)
	assert.True(t, registry.IsOnline(7))
	require.Len(t, log.snapshot(), 1)

	registry.Remove(second)
	assert.False(t, registry.IsOnline(7))
	entries := log.snapshot()
	require.Len(t, entries, 2)
	assert.False(t, entries[1].online)
}

func TestRemoveUnknownSessionIsIgnored(t *testing.T) {
	registry := NewRegistry(stubDirectory{known: map[int]bool{1: true}})
	registry.Remove("not-a-session")
	assert.False(t, registry.IsOnline(1))
}
