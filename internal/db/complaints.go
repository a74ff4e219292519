package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

const complaintColumns = `id, title, description, category, priority, status, location, latitude, longitude, upvotes,
	assigned_department_id, assigned_to_user_id, admin_notes, resolution_notes,
	estimated_completion_date, actual_completion_date, date_submitted, created_at, updated_at`

func scanComplaint(row pgx.Row) (models.Complaint, error) {
	var (
		c        models.Complaint
		category string
		priority string
		status   string
	)
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &category, &priority, &status, &c.Location, &c.Latitude, &c.Longitude, &c.Upvotes,
		&c.AssignedDepartmentID, &c.AssignedToUserID, &c.AdminNotes, &c.ResolutionNotes,
		&c.EstimatedCompletionDate, &c.ActualCompletionDate, &c.DateSubmitted, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return models.Complaint{}, err
	}
	c.Category = models.Category(category)
	c.Priority = models.Priority(priority)
	c.Status = models.Status(status)
	return c, nil
}

func collectComplaints(rows pgx.Rows) ([]models.Complaint, error) {
	defer rows.Close()
	out := []models.Complaint{}
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateComplaint(ctx context.Context, c models.Complaint) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO complaints (`+complaintColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, c.ID, c.Title, c.Description, string(c.Category), string(c.Priority), string(c.Status), c.Location, c.Latitude, c.Longitude, c.Upvotes,
		c.AssignedDepartmentID, c.AssignedToUserID, c.AdminNotes, c.ResolutionNotes,
		c.EstimatedCompletionDate, c.ActualCompletionDate, c.DateSubmitted, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) GetComplaint(ctx context.Context, id string) (models.Complaint, error) {
	c, err := scanComplaint(s.Pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Complaint{}, apperr.NotFound("complaint", id)
		}
		return models.Complaint{}, err
	}
	return c, nil
}

func (s *Store) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	f = f.Normalize()

	query := `SELECT ` + complaintColumns + ` FROM complaints`
	var args []any
	var wheres []string
	if f.Category != "" {
		args = append(args, string(f.Category))
		wheres = append(wheres, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, string(f.Priority))
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.DepartmentID != "" {
		args = append(args, f.DepartmentID)
		wheres = append(wheres, fmt.Sprintf("assigned_department_id = $%d", len(args)))
	}
	if f.Unassigned {
		wheres = append(wheres, "assigned_department_id IS NULL AND status = 'Pending'")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		wheres = append(wheres, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY " + orderClause(f.Sort)
	query += " LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

// Snapshot returns every complaint, unpaged, for aggregation.
func (s *Store) Snapshot(ctx context.Context) ([]models.Complaint, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+complaintColumns+` FROM complaints ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

// IncrementUpvote is a single-statement increment, so concurrent calls
// serialize on the row lock and never lose an update.
func (s *Store) IncrementUpvote(ctx context.Context, id string, at time.Time) (models.Complaint, error) {
	c, err := scanComplaint(s.Pool.QueryRow(ctx, `
		UPDATE complaints SET upvotes = upvotes + 1, updated_at = $2
		WHERE id = $1
		RETURNING `+complaintColumns, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Complaint{}, apperr.NotFound("complaint", id)
		}
		return models.Complaint{}, err
	}
	return c, nil
}

// MutateComplaint locks the row, applies fn and writes the result and the
// optional history entry in one transaction.
func (s *Store) MutateComplaint(ctx context.Context, id string, fn models.Mutation) (models.Complaint, error) {
	var out models.Complaint
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := scanComplaint(tx.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("complaint", id)
			}
			return err
		}

		next := current.Clone()
		entry, err := fn(&next)
		if err != nil {
			return err
		}
		next.ID = current.ID
		if err := next.Validate(); err != nil {
			return err
		}
		if next.AssignedDepartmentID != nil {
			if _, err := getDepartment(ctx, tx, *next.AssignedDepartmentID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE complaints SET
				title = $2, description = $3, category = $4, priority = $5, status = $6, location = $7,
				latitude = $8, longitude = $9, upvotes = $10,
				assigned_department_id = $11, assigned_to_user_id = $12, admin_notes = $13, resolution_notes = $14,
				estimated_completion_date = $15, actual_completion_date = $16, updated_at = $17
			WHERE id = $1
		`, next.ID, next.Title, next.Description, string(next.Category), string(next.Priority), string(next.Status), next.Location,
			next.Latitude, next.Longitude, next.Upvotes,
			next.AssignedDepartmentID, next.AssignedToUserID, next.AdminNotes, next.ResolutionNotes,
			next.EstimatedCompletionDate, next.ActualCompletionDate, next.UpdatedAt); err != nil {
			return err
		}

		if entry != nil {
			entry.ComplaintID = next.ID
			if err := insertHistory(ctx, tx, *entry); err != nil {
				return apperr.Wrap(err, "append status history")
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return models.Complaint{}, err
	}
	return out, nil
}

func orderClause(order models.SortOrder) string {
	switch order {
	case models.SortOldest:
		return "created_at ASC, id ASC"
	case models.SortUpvotes:
		return "upvotes DESC, created_at DESC, id ASC"
	case models.SortPriority:
		return "CASE priority WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 1 ELSE 0 END DESC, created_at ASC, id ASC"
	default:
		return "created_at DESC, id ASC"
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
