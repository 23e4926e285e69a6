package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	CreateOrGetIndividualChat(ctx context.Context, userID, otherID int) (models.Chat, error)
	CreateGroupChat(ctx context.Context, name string, creatorID int, participantIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	Participants(ctx context.Context, chatID int) ([]models.Participant, error)
	ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
	PeerIDs(ctx context.Context, userID int) ([]int, error)
	AreContacts(ctx context.Context, userID, otherID int) (bool, error)
	SetLastMessage(ctx context.Context, chatID, messageID int) error
	IncrementUnread(ctx context.Context, chatID, exceptUserID int) error
	SetUnread(ctx context.Context, chatID, userID, count int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func pairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateOrGetIndividualChat creates a 1:1 chat or returns the existing one
// for the unordered pair.
func (r *ChatRepo) CreateOrGetIndividualChat(ctx context.Context, userID, otherID int) (models.Chat, error) {
	if userID == otherID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	key := pairKey(userID, otherID)

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, type, name, last_message_id, created_at FROM chats WHERE pair_key=$1`, key)
	if err == nil {
		return r.attachParticipants(ctx, chat)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `INSERT INTO chats (type, pair_key) VALUES ($1, $2)
        RETURNING id, type, name, last_message_id, created_at`, models.ChatIndividual, key).
		StructScan(&chat)
	if err != nil {
		return models.Chat{}, err
	}
	for _, id := range []int{userID, otherID} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.attachParticipants(ctx, chat)
}

// CreateGroupChat creates a group with the given members. The creator is
// flagged as the group's first admin.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, name string, creatorID int, participantIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var chat models.Chat
	err = tx.QueryRowxContext(ctx, `INSERT INTO chats (type, name) VALUES ($1, $2)
        RETURNING id, type, name, last_message_id, created_at`, models.ChatGroup, name).
		StructScan(&chat)
	if err != nil {
		return models.Chat{}, err
	}
	for _, id := range participantIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id, is_admin) VALUES ($1, $2, $3)
            ON CONFLICT DO NOTHING`, chat.ID, id, id == creatorID); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.attachParticipants(ctx, chat)
}

// GetChat fetches a chat with its participants.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, type, name, last_message_id, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return r.attachParticipants(ctx, chat)
}

func (r *ChatRepo) attachParticipants(ctx context.Context, chat models.Chat) (models.Chat, error) {
	participants, err := r.Participants(ctx, chat.ID)
	if err != nil {
		return models.Chat{}, err
	}
	chat.Participants = participants
	return chat, nil
}

// IsParticipant checks whether the user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// Participants returns chat members with their unread counters.
func (r *ChatRepo) Participants(ctx context.Context, chatID int) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, `SELECT cp.user_id, cp.unread_count, cp.is_admin, u.is_synthetic
        FROM chat_participants cp JOIN users u ON u.id = cp.user_id
        WHERE cp.chat_id=$1 ORDER BY cp.user_id`, chatID)
	return participants, err
}

// ListChats returns chat summaries for the user, most recent first.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT c.id, c.type, c.name, cp.unread_count, c.created_at,
        m.id AS msg_id, m.chat_id AS msg_chat_id, m.sender_id, m.seq, m.content, m.media_url, m.msg_type, m.status, m.msg_created_at
        FROM chats c
        JOIN chat_participants cp ON cp.chat_id = c.id AND cp.user_id = $1
        LEFT JOIN LATERAL (
            SELECT id, chat_id, sender_id, seq, content, media_url, type AS msg_type, status, created_at AS msg_created_at
            FROM messages WHERE messages.id = c.last_message_id
        ) m ON TRUE
        ORDER BY COALESCE(m.msg_created_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ChatSummary
	for rows.Next() {
		var (
			summary    models.ChatSummary
			msgID      sql.NullInt64
			msgChatID  sql.NullInt64
			senderID   sql.NullInt64
			seq        sql.NullInt64
			content    sql.NullString
			mediaURL   sql.NullString
			msgType    sql.NullString
			status     sql.NullString
			msgCreated sql.NullTime
		)
		if err := rows.Scan(&summary.ChatID, &summary.Type, &summary.Name, &summary.UnreadCount, &summary.CreatedAt,
			&msgID, &msgChatID, &senderID, &seq, &content, &mediaURL, &msgType, &status, &msgCreated); err != nil {
			return nil, err
		}
		if msgID.Valid {
			summary.LastMessage = &models.Message{
				ID:        int(msgID.Int64),
				ChatID:    int(msgChatID.Int64),
				SenderID:  int(senderID.Int64),
				Seq:       int(seq.Int64),
				Content:   content.String,
				MediaURL:  mediaURL.String,
				Type:      models.MessageType(msgType.String),
				Status:    models.MessageStatus(status.String),
				CreatedAt: msgCreated.Time,
			}
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

// PeerIDs returns the distinct users sharing at least one chat with userID.
func (r *ChatRepo) PeerIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT other.user_id
        FROM chat_participants mine
        JOIN chat_participants other ON other.chat_id = mine.chat_id AND other.user_id <> mine.user_id
        WHERE mine.user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	sort.Ints(ids)
	return ids, nil
}

// AreContacts reports whether the two users share an individual chat.
func (r *ChatRepo) AreContacts(ctx context.Context, userID, otherID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE type=$1 AND pair_key=$2)`,
		models.ChatIndividual, pairKey(userID, otherID))
	return exists, err
}

// SetLastMessage updates the denormalized latest-message pointer.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID, messageID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET last_message_id=$2 WHERE id=$1`, chatID, messageID)
	return err
}

// IncrementUnread bumps unread counters for every member except the sender.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID, exceptUserID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_participants SET unread_count = unread_count + 1
        WHERE chat_id=$1 AND user_id <> $2`, chatID, exceptUserID)
	return err
}

// SetUnread replaces one member's unread counter.
func (r *ChatRepo) SetUnread(ctx context.Context, chatID, userID, count int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_participants SET unread_count=$3 WHERE chat_id=$1 AND user_id=$2`, chatID, userID, count)
	return err
}
