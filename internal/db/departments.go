package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDepartment(ctx context.Context, q queryRower, id string) (models.Department, error) {
	var d models.Department
	err := q.QueryRow(ctx, `SELECT id, name, description, contact_email, contact_phone, created_at FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Description, &d.ContactEmail, &d.ContactPhone, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Department{}, apperr.NotFound("department", id)
		}
		return models.Department{}, err
	}
	return d, nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (models.Department, error) {
	return getDepartment(ctx, s.Pool, id)
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, description, contact_email, contact_phone, created_at FROM departments ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Department{}
	for rows.Next() {
		var d models.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.ContactEmail, &d.ContactPhone, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDepartments inserts or updates by id in a single batch transaction.
func (s *Store) UpsertDepartments(ctx context.Context, departments []models.Department) (int64, error) {
	var affected int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range departments {
			batch.Queue(`
				INSERT INTO departments (id, name, description, contact_email, contact_phone, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					contact_email = EXCLUDED.contact_email,
					contact_phone = EXCLUDED.contact_phone
			`, d.ID, d.Name, d.Description, d.ContactEmail, d.ContactPhone, d.CreatedAt)
		}
		results := tx.SendBatch(ctx, batch)
		for range departments {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return apperr.Conflict("department name already in use (%s)", pgErr.ConstraintName)
				}
				return err
			}
			affected += tag.RowsAffected()
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
