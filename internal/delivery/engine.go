package delivery

import (
	"context"
	"log"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/push"
	"messaging-service/internal/rabbitmq"
)

// ChatStore is the slice of the chat store the engine mutates through.
type ChatStore interface {
	MarkDelivered(ctx context.Context, chatID, userID, uptoSeq int) ([]models.StatusChange, error)
	MarkRead(ctx context.Context, chatID, readerID, uptoSeq int) ([]models.StatusChange, int, error)
	ChatsWithPending(ctx context.Context, userID int) ([]int, error)
}

// Sessions answers connectivity questions; satisfied by the session registry.
type Sessions interface {
	IsOnline(userID int) bool
}

// Notification is the payload handed to the external push-notification
// dispatcher for recipients without a live connection.
type Notification struct {
	UserID    int    `json:"user_id"`
	ChatID    int    `json:"chat_id"`
	MessageID int    `json:"message_id"`
	SenderID  int    `json:"sender_id"`
	Preview   string `json:"preview,omitempty"`
}

const notificationRoutingKey = "notifications.message"

// Engine advances messages through the delivery lifecycle: it fans appended
// messages out to live connections, turns client acknowledgments and
// reconnects into delivered receipts, turns explicit reads into read
// receipts, and echoes every aggregate advance back to the sender.
type Engine struct {
	store     ChatStore
	pusher    *push.Pusher
	sessions  Sessions
	publisher rabbitmq.Publisher
}

// NewEngine constructs an Engine.
func NewEngine(store ChatStore, pusher *push.Pusher, sessions Sessions, publisher rabbitmq.Publisher) *Engine {
	return &Engine{store: store, pusher: pusher, sessions: sessions, publisher: publisher}
}

// OnAppend pushes message.appended to every participant's connections and
// queues an external notification for each offline recipient. The message
// stays sent until recipients acknowledge; an offline recipient is pending
// delivery, never a failure.
func (e *Engine) OnAppend(ctx context.Context, chat models.Chat, msg models.Message) {
	event := models.Event{Type: models.EventMessageAppended, ChatID: chat.ID, Message: &msg}
	for _, p := range chat.Participants {
		e.pusher.Send(p.UserID, event)
	}

	for _, recipientID := range chat.OtherParticipantIDs(msg.SenderID) {
		if e.sessions.IsOnline(recipientID) {
			continue
		}
		notification := Notification{
			UserID:    recipientID,
			ChatID:    chat.ID,
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Preview:   msg.Content,
		}
		if err := e.publisher.Publish(ctx, notificationRoutingKey, notification); err != nil {
			log.Printf("notification publish failed user_id=%d message_id=%d: %v", recipientID, msg.ID, err)
		}
	}
}

// Acknowledge records push delivery from one recipient up to uptoSeq.
// Duplicate acknowledgments are no-ops.
func (e *Engine) Acknowledge(ctx context.Context, chatID, userID, uptoSeq int) error {
	changes, err := e.store.MarkDelivered(ctx, chatID, userID, uptoSeq)
	if err != nil {
		return err
	}
	e.fanOutStatuses(changes)
	return nil
}

// MarkRead applies an explicit read receipt and echoes the unread reset to
// the reader's own devices. Returns the remaining unread count.
func (e *Engine) MarkRead(ctx context.Context, chatID, readerID, uptoSeq int) (int, error) {
	changes, remaining, err := e.store.MarkRead(ctx, chatID, readerID, uptoSeq)
	if err != nil {
		return 0, err
	}
	e.fanOutStatuses(changes)
	e.pusher.Send(readerID, models.Event{
		Type:        models.EventReadReset,
		ChatID:      chatID,
		UnreadCount: &remaining,
	})
	return remaining, nil
}

// FlushOnConnect delivers everything queued for a user, chat by chat, in
// chat order. Invoked from the registry's online transition.
func (e *Engine) FlushOnConnect(userID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chatIDs, err := e.store.ChatsWithPending(ctx, userID)
	if err != nil {
		log.Printf("reconnect flush failed user_id=%d: %v", userID, err)
		return
	}
	for _, chatID := range chatIDs {
		if err := e.Acknowledge(ctx, chatID, userID, 0); err != nil {
			log.Printf("reconnect flush failed user_id=%d chat_id=%d: %v", userID, chatID, err)
		}
	}
}

// fanOutStatuses groups aggregate advances by the message sender and pushes
// message.status_changed to each.
func (e *Engine) fanOutStatuses(changes []models.StatusChange) {
	if len(changes) == 0 {
		return
	}
	bySender := make(map[int][]models.StatusChange)
	for _, change := range changes {
		bySender[change.SenderID] = append(bySender[change.SenderID], change)
		observability.IncDeliveryTransition(string(change.Status))
	}
	for senderID, senderChanges := range bySender {
		e.pusher.Send(senderID, models.Event{
			Type:     models.EventStatusChanged,
			ChatID:   senderChanges[0].ChatID,
			Statuses: senderChanges,
		})
	}
}
