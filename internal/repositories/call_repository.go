package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// CallRepository persists finished calls for history.
type CallRepository interface {
	SaveCall(ctx context.Context, call models.Call) error
	ListCallsForUser(ctx context.Context, userID int) ([]models.Call, error)
}

// CallRepo is a sqlx implementation of CallRepository.
type CallRepo struct {
	db *sqlx.DB
}

// NewCallRepo constructs a CallRepo.
func NewCallRepo(db *sqlx.DB) *CallRepo {
	return &CallRepo{db: db}
}

// SaveCall writes the terminal call record and its participant set.
func (r *CallRepo) SaveCall(ctx context.Context, call models.Call) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO calls (id, type, caller_id, status, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, ended_at = EXCLUDED.ended_at`,
		call.ID, call.Type, call.CallerID, call.Status, call.StartedAt, call.EndedAt)
	if err != nil {
		return err
	}
	for _, userID := range call.ParticipantIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO call_participants (call_id, user_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, call.ID, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListCallsForUser returns the user's call history, newest first.
func (r *CallRepo) ListCallsForUser(ctx context.Context, userID int) ([]models.Call, error) {
	var calls []models.Call
	err := r.db.SelectContext(ctx, &calls, `SELECT c.id, c.type, c.caller_id, c.status, c.started_at, c.ended_at
        FROM calls c JOIN call_participants cp ON cp.call_id = c.id
        WHERE cp.user_id=$1 ORDER BY c.started_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	for i := range calls {
		var ids []int
		if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM call_participants WHERE call_id=$1 ORDER BY user_id`, calls[i].ID); err != nil {
			return nil, err
		}
		calls[i].ParticipantIDs = ids
	}
	return calls, err
}
