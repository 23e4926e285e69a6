package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// StoryRepository persists ephemeral stories.
type StoryRepository interface {
	CreateStory(ctx context.Context, story models.Story) (models.Story, error)
	FeedForUser(ctx context.Context, userID int, now time.Time) ([]models.Story, error)
}

// StoryRepo is a sqlx implementation of StoryRepository.
type StoryRepo struct {
	db *sqlx.DB
}

// NewStoryRepo constructs a StoryRepo.
func NewStoryRepo(db *sqlx.DB) *StoryRepo {
	return &StoryRepo{db: db}
}

// CreateStory stores a story with its expiry.
func (r *StoryRepo) CreateStory(ctx context.Context, story models.Story) (models.Story, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO stories (owner_id, media_url, type, expires_at)
        VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		story.OwnerID, story.MediaURL, story.Type, story.ExpiresAt).
		Scan(&story.ID, &story.CreatedAt)
	return story, err
}

// FeedForUser returns unexpired stories from the viewer's contacts,
// honoring the owners' status privacy scope and block lists.
func (r *StoryRepo) FeedForUser(ctx context.Context, userID int, now time.Time) ([]models.Story, error) {
	var stories []models.Story
	err := r.db.SelectContext(ctx, &stories, `SELECT s.id, s.owner_id, s.media_url, s.type, s.created_at, s.expires_at
        FROM stories s
        JOIN users u ON u.id = s.owner_id
        WHERE s.expires_at > $2
        AND s.owner_id <> $1
        AND u.privacy_status <> 'nobody'
        AND EXISTS (
            SELECT 1 FROM chats c
            JOIN chat_participants a ON a.chat_id = c.id AND a.user_id = $1
            JOIN chat_participants b ON b.chat_id = c.id AND b.user_id = s.owner_id
            WHERE c.type = 'individual'
        )
        AND NOT EXISTS (SELECT 1 FROM blocked_users WHERE user_id = s.owner_id AND blocked_id = $1)
        AND NOT EXISTS (SELECT 1 FROM blocked_users WHERE user_id = $1 AND blocked_id = s.owner_id)
        ORDER BY s.created_at DESC`, userID, now)
	return stories, err
}
