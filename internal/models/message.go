package models

import "time"

// MessageStatus is the sender-visible aggregate delivery state of a message.
// It only ever moves forward: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// ReceiptStatus is the per-recipient delivery state backing the aggregate.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptDelivered ReceiptStatus = "delivered"
	ReceiptRead      ReceiptStatus = "read"
)

// StatusRank orders message statuses so monotonicity checks are a comparison.
func StatusRank(s MessageStatus) int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// ReceiptRank orders receipt statuses the same way.
func ReceiptRank(s ReceiptStatus) int {
	switch s {
	case ReceiptDelivered:
		return 1
	case ReceiptRead:
		return 2
	default:
		return 0
	}
}

// AggregateStatus maps the minimum receipt rank across recipients to the
// sender-visible message status.
func AggregateStatus(minRank int) MessageStatus {
	switch minRank {
	case 1:
		return StatusDelivered
	case 2:
		return StatusRead
	default:
		return StatusSent
	}
}

// MessageType tags the content kind.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVoice MessageType = "voice"
	MessageDoc   MessageType = "doc"
)

// Message is one entry in a chat's append-only log. Seq is strictly
// increasing within the chat and establishes the total order.
type Message struct {
	ID        int           `db:"id" json:"id"`
	ChatID    int           `db:"chat_id" json:"chat_id"`
	SenderID  int           `db:"sender_id" json:"sender_id"`
	Seq       int           `db:"seq" json:"seq"`
	Content   string        `db:"content" json:"content,omitempty"`
	MediaURL  string        `db:"media_url" json:"media_url,omitempty"`
	Type      MessageType   `db:"type" json:"type"`
	Status    MessageStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Receipt tracks one recipient's delivery state for one message.
type Receipt struct {
	MessageID int           `db:"message_id" json:"message_id"`
	ChatID    int           `db:"chat_id" json:"chat_id"`
	UserID    int           `db:"user_id" json:"user_id"`
	Seq       int           `db:"seq" json:"seq"`
	Status    ReceiptStatus `db:"status" json:"status"`
}

// StatusChange records an aggregate status advancing, for receipt fan-out to
// the sender.
type StatusChange struct {
	MessageID int           `json:"message_id"`
	ChatID    int           `json:"chat_id"`
	Seq       int           `json:"seq"`
	Status    MessageStatus `json:"status"`
	SenderID  int           `json:"-"`
}
