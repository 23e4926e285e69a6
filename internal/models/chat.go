package models

import "time"

// ChatType distinguishes 1:1 chats from groups.
type ChatType string

const (
	ChatIndividual ChatType = "individual"
	ChatGroup      ChatType = "group"
)

// Chat is the room a message log belongs to. Individual chats are unique per
// unordered participant pair.
type Chat struct {
	ID            int       `db:"id" json:"id"`
	Type          ChatType  `db:"type" json:"type"`
	Name          string    `db:"name" json:"name,omitempty"`
	LastMessageID *int      `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	Participants []Participant `db:"-" json:"participants,omitempty"`
}

// Participant is a chat member with the member-scoped unread counter. Group
// creators carry the admin flag; individual chats have no admins.
type Participant struct {
	UserID      int  `db:"user_id" json:"user_id"`
	UnreadCount int  `db:"unread_count" json:"unread_count"`
	IsSynthetic bool `db:"is_synthetic" json:"is_synthetic,omitempty"`
	IsAdmin     bool `db:"is_admin" json:"is_admin,omitempty"`
}

// HasParticipant reports whether userID is a member of the chat.
func (c Chat) HasParticipant(userID int) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// OtherParticipantIDs returns every member id except the given one.
func (c Chat) OtherParticipantIDs(userID int) []int {
	others := make([]int, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID != userID {
			others = append(others, p.UserID)
		}
	}
	return others
}

// AdminIDs returns the ids of members holding the admin flag.
func (c Chat) AdminIDs() []int {
	var admins []int
	for _, p := range c.Participants {
		if p.IsAdmin {
			admins = append(admins, p.UserID)
		}
	}
	return admins
}

// SyntheticParticipant returns the responder-backed member, if any.
func (c Chat) SyntheticParticipant() (Participant, bool) {
	for _, p := range c.Participants {
		if p.IsSynthetic {
			return p, true
		}
	}
	return Participant{}, false
}

// ChatSummary provides the API-friendly view of a chat for one user.
type ChatSummary struct {
	ChatID      int       `db:"id" json:"chat_id"`
	Type        ChatType  `db:"type" json:"type"`
	Name        string    `db:"name" json:"name,omitempty"`
	UnreadCount int       `db:"unread_count" json:"unread_count"`
	LastMessage *Message  `db:"-" json:"last_message,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
