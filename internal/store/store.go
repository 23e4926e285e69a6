package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownChat         = errors.New("unknown chat")
	ErrNotAParticipant     = errors.New("not a chat participant")
	ErrBlockedBySender     = errors.New("sender has blocked the recipient")
	ErrBlockedByRecipient  = errors.New("recipient has blocked the sender")
	ErrInvalidParticipants = errors.New("invalid participant set")
	ErrEmptyMessage        = errors.New("message has no content")
)

// Store is the authoritative chat state: participants, message logs,
// sequence numbers, receipts and unread counters. Every mutation on one chat
// runs under that chat's lock, so sequence numbers and status monotonicity
// hold under concurrent senders; different chats proceed in parallel.
type Store struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository

	mu        sync.Mutex
	chatLocks map[int]*sync.Mutex
}

// New constructs a Store.
func New(users repositories.UserRepository, chats repositories.ChatRepository, messages repositories.MessageRepository) *Store {
	return &Store{
		users:     users,
		chats:     chats,
		messages:  messages,
		chatLocks: make(map[int]*sync.Mutex),
	}
}

func (s *Store) lockChat(chatID int) func() {
	s.mu.Lock()
	lock, ok := s.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.chatLocks[chatID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// CreateChat creates a chat. Individual chats hold exactly two users and are
// deduplicated by their unordered pair: creating the same 1:1 chat twice
// returns the existing one.
func (s *Store) CreateChat(ctx context.Context, creatorID int, participantIDs []int, chatType models.ChatType, name string) (models.Chat, error) {
	members := dedupeWith(creatorID, participantIDs)
	for _, id := range members {
		exists, err := s.users.UserExists(ctx, id)
		if err != nil {
			return models.Chat{}, err
		}
		if !exists {
			return models.Chat{}, ErrUnknownUser
		}
	}

	switch chatType {
	case models.ChatIndividual:
		if len(members) != 2 {
			return models.Chat{}, ErrInvalidParticipants
		}
		other := members[0]
		if other == creatorID {
			other = members[1]
		}
		return s.chats.CreateOrGetIndividualChat(ctx, creatorID, other)
	case models.ChatGroup:
		if len(members) < 2 {
			return models.Chat{}, ErrInvalidParticipants
		}
		return s.chats.CreateGroupChat(ctx, name, creatorID, members)
	default:
		return models.Chat{}, ErrInvalidParticipants
	}
}

// AppendMessage validates and appends a message with status sent and the
// chat's next sequence number, creating pending receipts for every other
// participant and bumping their unread counters. Rejected appends leave no
// state behind.
func (s *Store) AppendMessage(ctx context.Context, chatID, senderID int, content string, msgType models.MessageType, mediaURL string) (models.Chat, models.Message, error) {
	if strings.TrimSpace(content) == "" && mediaURL == "" {
		return models.Chat{}, models.Message{}, ErrEmptyMessage
	}
	if msgType == "" {
		msgType = models.MessageText
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			return models.Chat{}, models.Message{}, ErrUnknownChat
		}
		return models.Chat{}, models.Message{}, err
	}
	if !chat.HasParticipant(senderID) {
		return models.Chat{}, models.Message{}, ErrNotAParticipant
	}

	if chat.Type == models.ChatIndividual {
		others := chat.OtherParticipantIDs(senderID)
		if len(others) == 1 {
			if err := s.checkBlocking(ctx, senderID, others[0]); err != nil {
				return models.Chat{}, models.Message{}, err
			}
		}
	}

	maxSeq, err := s.messages.MaxSeq(ctx, chatID)
	if err != nil {
		return models.Chat{}, models.Message{}, err
	}

	msg := models.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Seq:      maxSeq + 1,
		Content:  content,
		MediaURL: mediaURL,
		Type:     msgType,
		Status:   models.StatusSent,
	}
	msg, err = s.messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Chat{}, models.Message{}, err
	}

	receipts := make([]models.Receipt, 0, len(chat.Participants)-1)
	for _, id := range chat.OtherParticipantIDs(senderID) {
		receipts = append(receipts, models.Receipt{
			MessageID: msg.ID,
			ChatID:    chatID,
			UserID:    id,
			Seq:       msg.Seq,
			Status:    models.ReceiptPending,
		})
	}
	if err := s.messages.CreateReceipts(ctx, receipts); err != nil {
		return models.Chat{}, models.Message{}, err
	}
	if err := s.chats.SetLastMessage(ctx, chatID, msg.ID); err != nil {
		return models.Chat{}, models.Message{}, err
	}
	if err := s.chats.IncrementUnread(ctx, chatID, senderID); err != nil {
		return models.Chat{}, models.Message{}, err
	}
	return chat, msg, nil
}

func (s *Store) checkBlocking(ctx context.Context, senderID, otherID int) error {
	blocked, err := s.users.HasBlocked(ctx, senderID, otherID)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedBySender
	}
	blocked, err = s.users.HasBlocked(ctx, otherID, senderID)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedByRecipient
	}
	return nil
}

// MarkDelivered acknowledges push delivery for one recipient up to uptoSeq
// (uptoSeq <= 0 means everything pending). Duplicate acknowledgments are
// no-ops. Returns the messages whose aggregate status advanced.
func (s *Store) MarkDelivered(ctx context.Context, chatID, userID, uptoSeq int) ([]models.StatusChange, error) {
	unlock := s.lockChat(chatID)
	defer unlock()
	return s.advanceReceipts(ctx, chatID, userID, uptoSeq, models.ReceiptDelivered)
}

// MarkRead marks one reader's receipts read up to uptoSeq and resets their
// unread counter to the number of newer messages from other senders.
// Already-read receipts are never downgraded. Returns advanced aggregates
// and the remaining unread count.
func (s *Store) MarkRead(ctx context.Context, chatID, readerID, uptoSeq int) ([]models.StatusChange, int, error) {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			return nil, 0, ErrUnknownChat
		}
		return nil, 0, err
	}
	if !chat.HasParticipant(readerID) {
		return nil, 0, ErrNotAParticipant
	}

	// An omitted or zero uptoSeq means "everything so far". Pin it to the
	// current max seq so the unread recount below agrees with the receipts.
	if uptoSeq <= 0 {
		uptoSeq, err = s.messages.MaxSeq(ctx, chatID)
		if err != nil {
			return nil, 0, err
		}
	}

	changes, err := s.advanceReceipts(ctx, chatID, readerID, uptoSeq, models.ReceiptRead)
	if err != nil {
		return nil, 0, err
	}

	remaining, err := s.messages.CountAfter(ctx, chatID, uptoSeq, readerID)
	if err != nil {
		return nil, 0, err
	}
	if err := s.chats.SetUnread(ctx, chatID, readerID, remaining); err != nil {
		return nil, 0, err
	}
	return changes, remaining, nil
}

// advanceReceipts upgrades one recipient's receipts to target rank and
// recomputes the aggregate status of each touched message. Receipts already
// at or beyond the target are skipped, which makes duplicate acks idempotent
// and forbids regressions. Caller holds the chat lock.
func (s *Store) advanceReceipts(ctx context.Context, chatID, userID, uptoSeq int, target models.ReceiptStatus) ([]models.StatusChange, error) {
	receipts, err := s.messages.RecipientReceipts(ctx, chatID, userID, uptoSeq)
	if err != nil {
		return nil, err
	}

	var changes []models.StatusChange
	for _, receipt := range receipts {
		if models.ReceiptRank(receipt.Status) >= models.ReceiptRank(target) {
			continue
		}
		if err := s.messages.SetReceiptStatus(ctx, receipt.MessageID, userID, target); err != nil {
			return changes, err
		}

		all, err := s.messages.MessageReceipts(ctx, receipt.MessageID)
		if err != nil {
			return changes, err
		}
		minRank := models.ReceiptRank(models.ReceiptRead)
		for _, other := range all {
			if rank := models.ReceiptRank(other.Status); rank < minRank {
				minRank = rank
			}
		}
		aggregate := models.AggregateStatus(minRank)

		msg, err := s.messages.GetMessage(ctx, receipt.MessageID)
		if err != nil {
			return changes, err
		}
		if models.StatusRank(aggregate) <= models.StatusRank(msg.Status) {
			continue
		}
		if err := s.messages.UpdateStatus(ctx, receipt.MessageID, aggregate); err != nil {
			return changes, err
		}
		changes = append(changes, models.StatusChange{
			MessageID: receipt.MessageID,
			ChatID:    chatID,
			Seq:       receipt.Seq,
			Status:    aggregate,
			SenderID:  msg.SenderID,
		})
	}
	return changes, nil
}

// ChatsWithPending lists chats still holding undelivered receipts for the
// user, for the reconnect flush.
func (s *Store) ChatsWithPending(ctx context.Context, userID int) ([]int, error) {
	return s.messages.PendingChatIDs(ctx, userID)
}

// ListMessages returns the chat log for a participant.
func (s *Store) ListMessages(ctx context.Context, chatID, requesterID, afterSeq, limit int) ([]models.Message, error) {
	member, err := s.chats.IsParticipant(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAParticipant
	}
	return s.messages.ListMessages(ctx, chatID, afterSeq, limit)
}

// ListChats returns the user's chat summaries.
func (s *Store) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	return s.chats.ListChats(ctx, userID)
}

// GetChat resolves a chat with its participants.
func (s *Store) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, ErrUnknownChat
	}
	return chat, err
}

func dedupeWith(first int, rest []int) []int {
	seen := map[int]struct{}{first: {}}
	result := []int{first}
	for _, id := range rest {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
