package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts the user directory.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	UserExists(ctx context.Context, userID int) (bool, error)
	SetLastSeen(ctx context.Context, userID int, at time.Time) error
	UpdatePrivacy(ctx context.Context, userID int, privacy models.Privacy) error
	Block(ctx context.Context, userID, targetID int) error
	Unblock(ctx context.Context, userID, targetID int) error
	HasBlocked(ctx context.Context, userID, targetID int) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser registers a new user. User ids are immutable after creation.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.Privacy == (models.Privacy{}) {
		user.Privacy = models.DefaultPrivacy()
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users
        (phone, name, avatar_url, about, is_synthetic, privacy_last_seen, privacy_profile_photo, privacy_about, privacy_status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at`,
		user.Phone, user.Name, user.AvatarURL, user.About, user.IsSynthetic,
		user.Privacy.LastSeen, user.Privacy.ProfilePhoto, user.Privacy.About, user.Privacy.Status).
		Scan(&user.ID, &user.CreatedAt)
	return user, err
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, phone, name, avatar_url, about, is_synthetic, last_seen,
        privacy_last_seen, privacy_profile_photo, privacy_about, privacy_status, created_at
        FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UserExists checks a user id against the directory.
func (r *UserRepo) UserExists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	return exists, err
}

// SetLastSeen persists the last-seen timestamp, written on offline transition.
func (r *UserRepo) SetLastSeen(ctx context.Context, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen=$2 WHERE id=$1`, userID, at)
	return err
}

// UpdatePrivacy replaces the four visibility scopes.
func (r *UserRepo) UpdatePrivacy(ctx context.Context, userID int, privacy models.Privacy) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET
        privacy_last_seen=$2, privacy_profile_photo=$3, privacy_about=$4, privacy_status=$5
        WHERE id=$1`,
		userID, privacy.LastSeen, privacy.ProfilePhoto, privacy.About, privacy.Status)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Block adds targetID to userID's blocked set. Idempotent.
func (r *UserRepo) Block(ctx context.Context, userID, targetID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO blocked_users (user_id, blocked_id) VALUES ($1, $2)
        ON CONFLICT (user_id, blocked_id) DO NOTHING`, userID, targetID)
	return err
}

// Unblock removes targetID from userID's blocked set.
func (r *UserRepo) Unblock(ctx context.Context, userID, targetID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocked_users WHERE user_id=$1 AND blocked_id=$2`, userID, targetID)
	return err
}

// HasBlocked reports whether userID has blocked targetID.
func (r *UserRepo) HasBlocked(ctx context.Context, userID, targetID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM blocked_users WHERE user_id=$1 AND blocked_id=$2)`, userID, targetID)
	return exists, err
}
