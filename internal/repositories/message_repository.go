package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines persistence for messages and delivery receipts.
type MessageRepository interface {
	MaxSeq(ctx context.Context, chatID int) (int, error)
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, chatID, afterSeq, limit int) ([]models.Message, error)
	CountAfter(ctx context.Context, chatID, seq, excludeSenderID int) (int, error)
	UpdateStatus(ctx context.Context, messageID int, status models.MessageStatus) error

	CreateReceipts(ctx context.Context, receipts []models.Receipt) error
	RecipientReceipts(ctx context.Context, chatID, userID, uptoSeq int) ([]models.Receipt, error)
	SetReceiptStatus(ctx context.Context, messageID, userID int, status models.ReceiptStatus) error
	MessageReceipts(ctx context.Context, messageID int) ([]models.Receipt, error)
	PendingChatIDs(ctx context.Context, userID int) ([]int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// MaxSeq returns the highest sequence number in the chat, 0 when empty.
// Callers serialize per chat, so max+1 is safe to assign.
func (r *MessageRepo) MaxSeq(ctx context.Context, chatID int) (int, error) {
	var max int
	err := r.db.GetContext(ctx, &max, `SELECT COALESCE(MAX(seq), 0) FROM messages WHERE chat_id=$1`, chatID)
	return max, err
}

// CreateMessage appends a message to the chat log.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, seq, content, media_url, type, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`,
		msg.ChatID, msg.SenderID, msg.Seq, msg.Content, msg.MediaURL, msg.Type, msg.Status).
		Scan(&msg.ID, &msg.CreatedAt)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, chat_id, sender_id, seq, content, media_url, type, status, created_at
        FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns messages in sequence order, starting after afterSeq.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID, afterSeq, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, chat_id, sender_id, seq, content, media_url, type, status, created_at
        FROM messages WHERE chat_id=$1 AND seq > $2 ORDER BY seq ASC LIMIT $3`, chatID, afterSeq, limit)
	return msgs, err
}

// CountAfter counts messages from other senders with seq beyond the given
// point; used to reset a reader's unread counter.
func (r *MessageRepo) CountAfter(ctx context.Context, chatID, seq, excludeSenderID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE chat_id=$1 AND seq > $2 AND sender_id <> $3`, chatID, seq, excludeSenderID)
	return count, err
}

// UpdateStatus sets the aggregate status of a message.
func (r *MessageRepo) UpdateStatus(ctx context.Context, messageID int, status models.MessageStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET status=$2 WHERE id=$1`, messageID, status)
	return err
}

// CreateReceipts inserts pending receipts for the message's recipients.
func (r *MessageRepo) CreateReceipts(ctx context.Context, receipts []models.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO message_receipts (message_id, chat_id, user_id, seq, status)
        VALUES (:message_id, :chat_id, :user_id, :seq, :status)`, receipts)
	return err
}

// RecipientReceipts returns one recipient's receipts in a chat up to and
// including uptoSeq, in sequence order. uptoSeq <= 0 means no upper bound.
func (r *MessageRepo) RecipientReceipts(ctx context.Context, chatID, userID, uptoSeq int) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.SelectContext(ctx, &receipts, `SELECT message_id, chat_id, user_id, seq, status
        FROM message_receipts
        WHERE chat_id=$1 AND user_id=$2 AND ($3 <= 0 OR seq <= $3)
        ORDER BY seq ASC`, chatID, userID, uptoSeq)
	return receipts, err
}

// SetReceiptStatus updates one recipient's receipt.
func (r *MessageRepo) SetReceiptStatus(ctx context.Context, messageID, userID int, status models.ReceiptStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE message_receipts SET status=$3 WHERE message_id=$1 AND user_id=$2`, messageID, userID, status)
	return err
}

// MessageReceipts returns all recipients' receipts for one message.
func (r *MessageRepo) MessageReceipts(ctx context.Context, messageID int) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.SelectContext(ctx, &receipts, `SELECT message_id, chat_id, user_id, seq, status
        FROM message_receipts WHERE message_id=$1`, messageID)
	return receipts, err
}

// PendingChatIDs lists chats holding undelivered receipts for the user,
// used to flush deliveries on reconnect.
func (r *MessageRepo) PendingChatIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT chat_id FROM message_receipts
        WHERE user_id=$1 AND status=$2 ORDER BY chat_id`, userID, models.ReceiptPending)
	return ids, err
}
