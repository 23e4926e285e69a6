package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/push"
	"messaging-service/internal/repositories"
)

const (
	// DefaultTypingTTL clears a typing indicator that receives no refresh,
	// so abrupt disconnects cannot leave "typing..." stuck.
	DefaultTypingTTL = 5 * time.Second
	// DefaultDebounce coalesces online/offline flapping into the final
	// stable state.
	DefaultDebounce = 2 * time.Second

	lookupTimeout = 5 * time.Second
)

type typingKey struct {
	chatID int
	userID int
}

type pendingPresence struct {
	timer  *time.Timer
	online bool
}

// Broadcaster fans typing and online/offline events out to the affected
// users' connections, debounced and filtered by the subject's privacy
// scopes. Timers are per (chat,user) for typing and per user for presence,
// reset on new events rather than accumulated.
type Broadcaster struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	pusher   *push.Pusher
	lastSeen LastSeenStore

	typingTTL time.Duration
	debounce  time.Duration

	mu       sync.Mutex
	typing   map[typingKey]*time.Timer
	presence map[int]*pendingPresence
}

// NewBroadcaster constructs a Broadcaster. Zero durations fall back to the
// defaults.
func NewBroadcaster(users repositories.UserRepository, chats repositories.ChatRepository, pusher *push.Pusher, lastSeen LastSeenStore, typingTTL, debounce time.Duration) *Broadcaster {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Broadcaster{
		users:     users,
		chats:     chats,
		pusher:    pusher,
		lastSeen:  lastSeen,
		typingTTL: typingTTL,
		debounce:  debounce,
		typing:    make(map[typingKey]*time.Timer),
		presence:  make(map[int]*pendingPresence),
	}
}

// SetTyping starts, refreshes or clears a typing indicator. A started
// indicator auto-clears after the idle TTL without an explicit stop signal.
func (b *Broadcaster) SetTyping(chatID, userID int, isTyping bool) {
	key := typingKey{chatID: chatID, userID: userID}

	b.mu.Lock()
	timer, active := b.typing[key]
	if isTyping {
		if active {
			timer.Reset(b.typingTTL)
			b.mu.Unlock()
			return
		}
		b.typing[key] = time.AfterFunc(b.typingTTL, func() {
			b.expireTyping(key)
		})
		b.mu.Unlock()
		b.broadcastTyping(chatID, userID, true)
		return
	}

	if !active {
		b.mu.Unlock()
		return
	}
	timer.Stop()
	delete(b.typing, key)
	b.mu.Unlock()
	b.broadcastTyping(chatID, userID, false)
}

func (b *Broadcaster) expireTyping(key typingKey) {
	b.mu.Lock()
	if _, active := b.typing[key]; !active {
		b.mu.Unlock()
		return
	}
	delete(b.typing, key)
	b.mu.Unlock()
	b.broadcastTyping(key.chatID, key.userID, false)
}

func (b *Broadcaster) broadcastTyping(chatID, userID int, isTyping bool) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	participants, err := b.chats.Participants(ctx, chatID)
	if err != nil {
		log.Printf("typing broadcast failed chat_id=%d: %v", chatID, err)
		return
	}
	subject, err := b.users.GetUser(ctx, userID)
	if err != nil {
		log.Printf("typing broadcast failed user_id=%d: %v", userID, err)
		return
	}

	event := models.Event{
		Type:     models.EventTypingChanged,
		ChatID:   chatID,
		UserID:   userID,
		IsTyping: isTyping,
	}
	for _, p := range participants {
		if p.UserID == userID {
			continue
		}
		if !b.visibleTo(ctx, subject, subject.Privacy.Status, p.UserID) {
			continue
		}
		b.pusher.Send(p.UserID, event)
	}
}

// SetOnline schedules a presence broadcast after the debounce window. Rapid
// reconnects collapse to a single event carrying the final state.
func (b *Broadcaster) SetOnline(userID int, online bool) {
	b.mu.Lock()
	pending, ok := b.presence[userID]
	if !ok {
		pending = &pendingPresence{}
		b.presence[userID] = pending
	}
	pending.online = online
	if pending.timer != nil {
		pending.timer.Stop()
	}
	pending.timer = time.AfterFunc(b.debounce, func() {
		b.emitPresence(userID)
	})
	b.mu.Unlock()
}

func (b *Broadcaster) emitPresence(userID int) {
	b.mu.Lock()
	pending, ok := b.presence[userID]
	if !ok {
		b.mu.Unlock()
		return
	}
	online := pending.online
	delete(b.presence, userID)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	var lastSeen *time.Time
	if online {
		if err := b.lastSeen.Touch(ctx, userID); err != nil {
			log.Printf("presence touch failed user_id=%d: %v", userID, err)
		}
	} else {
		now := time.Now().UTC()
		lastSeen = &now
		if err := b.users.SetLastSeen(ctx, userID, now); err != nil {
			log.Printf("last seen update failed user_id=%d: %v", userID, err)
		}
		if err := b.lastSeen.MarkOffline(ctx, userID, now); err != nil {
			log.Printf("presence cache update failed user_id=%d: %v", userID, err)
		}
	}

	subject, err := b.users.GetUser(ctx, userID)
	if err != nil {
		log.Printf("presence broadcast failed user_id=%d: %v", userID, err)
		return
	}
	peers, err := b.chats.PeerIDs(ctx, userID)
	if err != nil {
		log.Printf("presence broadcast failed user_id=%d: %v", userID, err)
		return
	}

	event := models.Event{
		Type:     models.EventPresenceChanged,
		UserID:   userID,
		Online:   online,
		LastSeen: lastSeen,
	}
	for _, peerID := range peers {
		if !b.visibleTo(ctx, subject, subject.Privacy.LastSeen, peerID) {
			continue
		}
		b.pusher.Send(peerID, event)
	}
}

// visibleTo applies the subject's privacy scope and block lists to one
// observer.
func (b *Broadcaster) visibleTo(ctx context.Context, subject models.User, scope models.PrivacyScope, observerID int) bool {
	switch scope {
	case models.PrivacyNobody:
		return false
	case models.PrivacyContacts:
		contacts, err := b.chats.AreContacts(ctx, subject.ID, observerID)
		if err != nil || !contacts {
			return false
		}
	}
	if blocked, err := b.users.HasBlocked(ctx, subject.ID, observerID); err != nil || blocked {
		return false
	}
	if blocked, err := b.users.HasBlocked(ctx, observerID, subject.ID); err != nil || blocked {
		return false
	}
	return true
}

// Visible reports whether the observer may see the subject's field guarded
// by the given scope, applying the same rules the broadcasts use.
func (b *Broadcaster) Visible(ctx context.Context, subject models.User, scope models.PrivacyScope, observerID int) bool {
	return b.visibleTo(ctx, subject, scope, observerID)
}

// Heartbeat refreshes the cross-instance online marker; wired to websocket
// pong frames.
func (b *Broadcaster) Heartbeat(userID int) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	if err := b.lastSeen.Touch(ctx, userID); err != nil {
		log.Printf("presence heartbeat failed user_id=%d: %v", userID, err)
	}
}
