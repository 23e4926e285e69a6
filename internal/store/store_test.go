package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

type fixture struct {
	store    *Store
	users    *mocks.MemoryUserRepo
	chats    *mocks.MemoryChatRepo
	messages *mocks.MemoryMessageRepo
}

func newFixture(t *testing.T, userIDs ...int) *fixture {
	t.Helper()
	users := mocks.NewMemoryUserRepo()
	for _, id := range userIDs {
		users.Seed(models.User{ID: id, Name: fmt.Sprintf("user-%d", id), Privacy: models.DefaultPrivacy()})
	}
	chats := mocks.NewMemoryChatRepo(users)
	messages := mocks.NewMemoryMessageRepo()
	return &fixture{
		store:    New(users, chats, messages),
		users:    users,
		chats:    chats,
		messages: messages,
	}
}

func TestCreateChatDeduplicatesIndividual(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()

	first, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	second, err := f.store.CreateChat(ctx, 2, []int{1}, models.ChatIndividual, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateGroupChatMarksCreatorAdmin(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	ctx := context.Background()

	chat, err := f.store.CreateChat(ctx, 2, []int{1, 3}, models.ChatGroup, "weekend plans")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, chat.AdminIDs())

	individual, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)
	assert.Empty(t, individual.AdminIDs())
}

func TestCreateChatRejectsUnknownUser(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.store.CreateChat(context.Background(), 1, []int{99}, models.ChatIndividual, "")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestCreateChatRejectsSelfChat(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.store.CreateChat(context.Background(), 1, []int{1}, models.ChatIndividual, "")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestAppendMessageAssignsContiguousSequence(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, msg, err := f.store.AppendMessage(ctx, chat.ID, 1, fmt.Sprintf("msg %d", i), models.MessageText, "")
		require.NoError(t, err)
		assert.Equal(t, i, msg.Seq)
		assert.Equal(t, models.StatusSent, msg.Status)
	}
}

func TestAppendMessageConcurrentSendersKeepUniqueSeqs(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sender := 1 + i%2
		go func(sender int) {
			defer wg.Done()
			_, _, err := f.store.AppendMessage(ctx, chat.ID, sender, "hello", models.MessageText, "")
			assert.NoError(t, err)
		}(sender)
	}
	wg.Wait()

	msgs, err := f.store.ListMessages(ctx, chat.ID, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	_, _, err = f.store.AppendMessage(ctx, chat.ID, 1, "   ", models.MessageText, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, _, err = f.store.AppendMessage(ctx, 999, 1, "hi", models.MessageText, "")
	assert.ErrorIs(t, err, ErrUnknownChat)

	_, _, err = f.store.AppendMessage(ctx, chat.ID, 3, "hi", models.MessageText, "")
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestAppendMessageBlockedPair(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	require.NoError(t, f.users.Block(ctx, 2, 1))
	_, _, err = f.store.AppendMessage(ctx, chat.ID, 1, "hi", models.MessageText, "")
	assert.ErrorIs(t, err, ErrBlockedByRecipient)

	require.NoError(t, f.users.Unblock(ctx, 2, 1))
	require.NoError(t, f.users.Block(ctx, 1, 2))
	_, _, err = f.store.AppendMessage(ctx, chat.ID, 1, "hi", models.MessageText, "")
	assert.ErrorIs(t, err, ErrBlockedBySender)
}

func TestDeliveryLifecycleIndividual(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	_, msg, err := f.store.AppendMessage(ctx, chat.ID, 1, "hello", models.MessageText, "")
	require.NoError(t, err)

	changes, err := f.store.MarkDelivered(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.StatusDelivered, changes[0].Status)
	assert.Equal(t, 1, changes[0].SenderID)

	// Duplicate ack is a no-op.
	changes, err = f.store.MarkDelivered(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	assert.Empty(t, changes)

	changes, unread, err := f.store.MarkRead(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.StatusRead, changes[0].Status)
	assert.Zero(t, unread)

	// A late delivered ack cannot downgrade read.
	changes, err = f.store.MarkDelivered(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	assert.Empty(t, changes)

	stored, err := f.messages.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, stored.Status)
}

func TestReadWithoutDeliveredStillAdvances(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	_, msg, err := f.store.AppendMessage(ctx, chat.ID, 1, "hello", models.MessageText, "")
	require.NoError(t, err)

	changes, _, err := f.store.MarkRead(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.StatusRead, changes[0].Status)
}

func TestGroupAggregateIsMinimumAcrossRecipients(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2, 3}, models.ChatGroup, "trio")
	require.NoError(t, err)

	_, msg, err := f.store.AppendMessage(ctx, chat.ID, 1, "hello all", models.MessageText, "")
	require.NoError(t, err)

	// Only one of two recipients delivered: aggregate stays sent.
	changes, err := f.store.MarkDelivered(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	assert.Empty(t, changes)
	stored, err := f.messages.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, stored.Status)

	// Second recipient delivers: aggregate advances to delivered.
	changes, err = f.store.MarkDelivered(ctx, chat.ID, 3, msg.Seq)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.StatusDelivered, changes[0].Status)

	// One reads, the other stays delivered: aggregate stays delivered.
	changes, _, err = f.store.MarkRead(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)
	assert.Empty(t, changes)

	changes, _, err = f.store.MarkRead(ctx, chat.ID, 3, msg.Seq)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.StatusRead, changes[0].Status)
}

func TestMarkDeliveredUptoSeqCoversEarlierMessages(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := f.store.AppendMessage(ctx, chat.ID, 1, "m", models.MessageText, "")
		require.NoError(t, err)
	}

	changes, err := f.store.MarkDelivered(ctx, chat.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, 1, changes[0].Seq)
	assert.Equal(t, 2, changes[1].Seq)

	// Zero means everything pending.
	changes, err = f.store.MarkDelivered(ctx, chat.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 3, changes[0].Seq)
}

func TestUnreadCounters(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := f.store.AppendMessage(ctx, chat.ID, 1, "m", models.MessageText, "")
		require.NoError(t, err)
	}

	summaries, err := f.store.ListChats(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].UnreadCount)

	_, unread, err := f.store.MarkRead(ctx, chat.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	summaries, err = f.store.ListChats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, summaries[0].UnreadCount)
}

func TestMarkReadZeroUptoSeqClearsUnread(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := f.store.AppendMessage(ctx, chat.ID, 1, "m", models.MessageText, "")
		require.NoError(t, err)
	}

	changes, unread, err := f.store.MarkRead(ctx, chat.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
	assert.Equal(t, 0, unread)

	summaries, err := f.store.ListChats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, summaries[0].UnreadCount)
}

func TestChatsWithPending(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	_, msg, err := f.store.AppendMessage(ctx, chat.ID, 1, "hello", models.MessageText, "")
	require.NoError(t, err)

	pending, err := f.store.ChatsWithPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{chat.ID}, pending)

	_, err = f.store.MarkDelivered(ctx, chat.ID, 2, msg.Seq)
	require.NoError(t, err)

	pending, err = f.store.ChatsWithPending(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListMessagesRequiresMembership(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	ctx := context.Background()
	chat, err := f.store.CreateChat(ctx, 1, []int{2}, models.ChatIndividual, "")
	require.NoError(t, err)

	_, err = f.store.ListMessages(ctx, chat.ID, 3, 0, 0)
	assert.ErrorIs(t, err, ErrNotAParticipant)
}
