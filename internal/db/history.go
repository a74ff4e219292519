package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/civicdesk/backend/internal/models"
)

func insertHistory(ctx context.Context, tx pgx.Tx, e models.StatusHistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO complaint_status_history (id, complaint_id, new_status, notes, actor_role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.ComplaintID, string(e.NewStatus), e.Notes, string(e.ActorRole), e.CreatedAt)
	return err
}

func (s *Store) ListHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, complaint_id, new_status, notes, actor_role, created_at
		FROM complaint_status_history
		WHERE complaint_id = $1
		ORDER BY created_at ASC, id ASC
	`, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.StatusHistoryEntry{}
	for rows.Next() {
		var (
			e      models.StatusHistoryEntry
			status string
			actor  string
		)
		if err := rows.Scan(&e.ID, &e.ComplaintID, &status, &e.Notes, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.NewStatus = models.Status(status)
		e.ActorRole = models.ActorRole(actor)
		out = append(out, e)
	}
	return out, rows.Err()
}
