package models

import "time"

// StoryType tags the story media kind.
type StoryType string

const (
	StoryImage StoryType = "image"
	StoryVideo StoryType = "video"
)

// StoryTTL is how long a story stays in the feed after posting.
const StoryTTL = 24 * time.Hour

// Story is an ephemeral media post, visible to contacts until it expires.
type Story struct {
	ID        int       `db:"id" json:"id"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	MediaURL  string    `db:"media_url" json:"media_url"`
	Type      StoryType `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
