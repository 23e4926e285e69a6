package responder

import (
	"context"
	"log"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// FallbackReply is appended when reply generation fails or times out, so the
// conversation turn is never silently dropped.
const FallbackReply = "I'm having trouble connecting right now, I'll get back to you soon."

const (
	// DefaultTimeout bounds one generation round trip.
	DefaultTimeout      = 30 * time.Second
	defaultHistoryLimit = 50
	appendTimeout       = 10 * time.Second
)

// Responder produces a reply for the synthetic participant. Implementations
// talk to an external generation backend.
type Responder interface {
	GenerateReply(ctx context.Context, history []models.Message, latest models.Message) (string, error)
}

// ChatStore is the slice of the chat store the gateway reads and appends
// through; replies enter the log by the normal append path.
type ChatStore interface {
	ListMessages(ctx context.Context, chatID, requesterID, afterSeq, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, chatID, senderID int, content string, msgType models.MessageType, mediaURL string) (models.Chat, models.Message, error)
}

// Deliverer fans the appended reply out; satisfied by the delivery engine.
type Deliverer interface {
	OnAppend(ctx context.Context, chat models.Chat, msg models.Message)
}

// TypingSetter flags the synthetic participant as typing while a reply is in
// flight; satisfied by the presence broadcaster.
type TypingSetter interface {
	SetTyping(chatID, userID int, isTyping bool)
}

// Gateway invokes the responder for chats containing a synthetic
// participant. The call runs detached from the append path: the sender's
// request never waits on, and never sees errors from, the generation
// backend.
type Gateway struct {
	responder Responder
	store     ChatStore
	deliverer Deliverer
	typing    TypingSetter
	timeout   time.Duration
}

// NewGateway constructs a Gateway. A non-positive timeout falls back to the
// default.
func NewGateway(responder Responder, store ChatStore, deliverer Deliverer, typing TypingSetter, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		responder: responder,
		store:     store,
		deliverer: deliverer,
		typing:    typing,
		timeout:   timeout,
	}
}

// Trigger starts a detached reply task when the chat has a synthetic
// participant other than the message sender. Messages sent by synthetic
// users never trigger, so two responders cannot loop.
func (g *Gateway) Trigger(chat models.Chat, latest models.Message) {
	synthetic, ok := chat.SyntheticParticipant()
	if !ok || synthetic.UserID == latest.SenderID {
		return
	}
	go g.reply(chat.ID, synthetic.UserID, latest)
}

func (g *Gateway) reply(chatID, syntheticID int, latest models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	g.typing.SetTyping(chatID, syntheticID, true)
	defer g.typing.SetTyping(chatID, syntheticID, false)

	text := g.generate(ctx, chatID, syntheticID, latest)

	// The append gets its own deadline: a generation timeout must not also
	// starve the fallback append.
	appendCtx, cancelAppend := context.WithTimeout(context.Background(), appendTimeout)
	defer cancelAppend()

	chat, msg, err := g.store.AppendMessage(appendCtx, chatID, syntheticID, text, models.MessageText, "")
	if err != nil {
		log.Printf("responder append failed chat_id=%d user_id=%d: %v", chatID, syntheticID, err)
		return
	}
	g.deliverer.OnAppend(appendCtx, chat, msg)
}

func (g *Gateway) generate(ctx context.Context, chatID, syntheticID int, latest models.Message) string {
	history, err := g.store.ListMessages(ctx, chatID, syntheticID, 0, defaultHistoryLimit)
	if err != nil {
		log.Printf("responder history load failed chat_id=%d: %v", chatID, err)
		observability.IncResponderFallback()
		return FallbackReply
	}

	text, err := g.responder.GenerateReply(ctx, history, latest)
	if err != nil || text == "" {
		log.Printf("responder generation degraded chat_id=%d: %v", chatID, err)
		observability.IncResponderFallback()
		return FallbackReply
	}
	return text
}
