package responder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/store"
)

type recordingDeliverer struct {
	appended chan models.Message
}

func (d *recordingDeliverer) OnAppend(ctx context.Context, chat models.Chat, msg models.Message) {
	d.appended <- msg
}

type recordingTyping struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingTyping) SetTyping(chatID, userID int, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, isTyping)
}

func (r *recordingTyping) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.calls))
	copy(out, r.calls)
	return out
}

type gatewayFixture struct {
	store     *store.Store
	deliverer *recordingDeliverer
	typing    *recordingTyping
	chat      models.Chat
	humanID   int
	botID     int
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	users := mocks.NewMemoryUserRepo()
	human := users.Seed(models.User{ID: 1, Name: "ana", Privacy: models.DefaultPrivacy()})
	bot := users.Seed(models.User{ID: 2, Name: "assistant", IsSynthetic: true, Privacy: models.DefaultPrivacy()})
	chats := mocks.NewMemoryChatRepo(users)
	chatStore := store.New(users, chats, mocks.NewMemoryMessageRepo())

	chat, err := chatStore.CreateChat(context.Background(), human.ID, []int{bot.ID}, models.ChatIndividual, "")
	require.NoError(t, err)

	return &gatewayFixture{
		store:     chatStore,
		deliverer: &recordingDeliverer{appended: make(chan models.Message, 1)},
		typing:    &recordingTyping{},
		chat:      chat,
		humanID:   human.ID,
		botID:     bot.ID,
	}
}

func (f *gatewayFixture) send(t *testing.T, content string) (models.Chat, models.Message) {
	t.Helper()
	chat, msg, err := f.store.AppendMessage(context.Background(), f.chat.ID, f.humanID, content, models.MessageText, "")
	require.NoError(t, err)
	return chat, msg
}

func awaitReply(t *testing.T, d *recordingDeliverer) models.Message {
	t.Helper()
	select {
	case msg := <-d.appended:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no reply appended")
		return models.Message{}
	}
}

func TestTriggerAppendsGeneratedReply(t *testing.T) {
	f := newGatewayFixture(t)
	gateway := NewGateway(StaticResponder{Reply: "hello back"}, f.store, f.deliverer, f.typing, time.Second)

	chat, msg := f.send(t, "hello")
	gateway.Trigger(chat, msg)

	reply := awaitReply(t, f.deliverer)
	assert.Equal(t, f.botID, reply.SenderID)
	assert.Equal(t, "hello back", reply.Content)
	assert.Equal(t, msg.Seq+1, reply.Seq)
	assert.Equal(t, models.StatusSent, reply.Status)

	calls := f.typing.snapshot()
	require.Len(t, calls, 2)
	assert.True(t, calls[0])
	assert.False(t, calls[1])
}

func TestTriggerFallsBackOnGenerationError(t *testing.T) {
	f := newGatewayFixture(t)
	gateway := NewGateway(StaticResponder{Err: ErrNoBackend}, f.store, f.deliverer, f.typing, time.Second)

	chat, msg := f.send(t, "hello")
	gateway.Trigger(chat, msg)

	reply := awaitReply(t, f.deliverer)
	assert.Equal(t, FallbackReply, reply.Content)
	assert.Equal(t, f.botID, reply.SenderID)
}

func TestTriggerFallsBackOnEmptyReply(t *testing.T) {
	f := newGatewayFixture(t)
	gateway := NewGateway(StaticResponder{Reply: ""}, f.store, f.deliverer, f.typing, time.Second)

	chat, msg := f.send(t, "hello")
	gateway.Trigger(chat, msg)

	reply := awaitReply(t, f.deliverer)
	assert.Equal(t, FallbackReply, reply.Content)
}

func TestTriggerIgnoresSyntheticSender(t *testing.T) {
	f := newGatewayFixture(t)
	gateway := NewGateway(StaticResponder{Reply: "loop"}, f.store, f.deliverer, f.typing, time.Second)

	chat, msg, err := f.store.AppendMessage(context.Background(), f.chat.ID, f.botID, "I replied", models.MessageText, "")
	require.NoError(t, err)
	gateway.Trigger(chat, msg)

	select {
	case <-f.deliverer.appended:
		t.Fatal("synthetic sender must not trigger a reply")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTriggerIgnoresChatsWithoutSyntheticParticipant(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	a := users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	b := users.Seed(models.User{ID: 2, Privacy: models.DefaultPrivacy()})
	chats := mocks.NewMemoryChatRepo(users)
	chatStore := store.New(users, chats, mocks.NewMemoryMessageRepo())

	chat, err := chatStore.CreateChat(context.Background(), a.ID, []int{b.ID}, models.ChatIndividual, "")
	require.NoError(t, err)
	chat, msg, err := chatStore.AppendMessage(context.Background(), chat.ID, a.ID, "hi", models.MessageText, "")
	require.NoError(t, err)

	deliverer := &recordingDeliverer{appended: make(chan models.Message, 1)}
	gateway := NewGateway(StaticResponder{Reply: "x"}, chatStore, deliverer, &recordingTyping{}, time.Second)
	gateway.Trigger(chat, msg)

	select {
	case <-deliverer.appended:
		t.Fatal("human-only chat must not trigger a reply")
	case <-time.After(100 * time.Millisecond):
	}
}
