package models

import "time"

// PrivacyScope controls who may see a piece of profile or activity data.
type PrivacyScope string

const (
	PrivacyEveryone PrivacyScope = "everyone"
	PrivacyContacts PrivacyScope = "contacts"
	PrivacyNobody   PrivacyScope = "nobody"
)

// Privacy holds the four independent visibility scopes of a user.
type Privacy struct {
	LastSeen     PrivacyScope `db:"privacy_last_seen" json:"privacy_last_seen"`
	ProfilePhoto PrivacyScope `db:"privacy_profile_photo" json:"privacy_profile_photo"`
	About        PrivacyScope `db:"privacy_about" json:"privacy_about"`
	Status       PrivacyScope `db:"privacy_status" json:"privacy_status"`
}

// DefaultPrivacy is applied at registration.
func DefaultPrivacy() Privacy {
	return Privacy{
		LastSeen:     PrivacyEveryone,
		ProfilePhoto: PrivacyEveryone,
		About:        PrivacyEveryone,
		Status:       PrivacyEveryone,
	}
}

// User is a registered account. Synthetic users are backed by the responder
// gateway instead of a human client.
type User struct {
	ID          int        `db:"id" json:"id"`
	Phone       string     `db:"phone" json:"phone"`
	Name        string     `db:"name" json:"name"`
	AvatarURL   string     `db:"avatar_url" json:"avatar_url"`
	About       string     `db:"about" json:"about"`
	IsSynthetic bool       `db:"is_synthetic" json:"is_synthetic"`
	LastSeen    *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	Privacy
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserView is the privacy-filtered representation returned to other users.
type UserView struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	About       string     `json:"about,omitempty"`
	IsSynthetic bool       `json:"is_synthetic"`
	Online      bool       `json:"online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}
