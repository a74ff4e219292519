package service

import (
	"context"
	"strings"
	"time"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

type TransitionRequest struct {
	ComplaintID string
	Status      models.Status
	Notes       *string
	Actor       models.ActorRole
}

// applyStatus moves c to status and keeps actual_completion_date in step:
// stamped with the current date on Resolved, cleared on any other status.
// Re-marking a complaint with its current status is allowed.
func applyStatus(c *models.Complaint, status models.Status, now time.Time) {
	c.Status = status
	if status == models.StatusResolved {
		d := models.Date(now)
		c.ActualCompletionDate = &d
	} else {
		c.ActualCompletionDate = nil
	}
	c.UpdatedAt = now
}

func historyEntry(status models.Status, notes *string, actor models.ActorRole, now time.Time) *models.StatusHistoryEntry {
	return &models.StatusHistoryEntry{
		ID:        newHistoryID(),
		NewStatus: status,
		Notes:     notes,
		ActorRole: actor,
		CreatedAt: now,
	}
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	v := strings.TrimSpace(*notes)
	if v == "" {
		return nil
	}
	return &v
}

// Transition is the single status-change path for admins and departments.
// The record update and its history entry commit as one unit.
func (s *ComplaintService) Transition(ctx context.Context, req TransitionRequest) (models.Complaint, error) {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(req.ComplaintID) == "" {
		v.Add("id", "required")
	}
	if !req.Status.Valid() {
		v.Add("status", "invalid status")
	}
	switch req.Actor {
	case models.ActorAdmin, models.ActorDepartment, models.ActorSystem:
	default:
		v.Add("actor_role", "must be admin or department")
	}
	if err := v.OrNil(); err != nil {
		return models.Complaint{}, err
	}

	notes := normalizeNotes(req.Notes)
	now := s.now()
	updated, err := s.Repo.MutateComplaint(ctx, req.ComplaintID, func(c *models.Complaint) (*models.StatusHistoryEntry, error) {
		applyStatus(c, req.Status, now)
		if notes != nil {
			switch req.Actor {
			case models.ActorAdmin:
				c.AdminNotes = notes
			case models.ActorDepartment:
				c.ResolutionNotes = notes
			}
		}
		return historyEntry(req.Status, notes, req.Actor, now), nil
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("complaint_id", req.ComplaintID).Str("status", string(req.Status)).Msg("status transition failed")
		return models.Complaint{}, err
	}

	s.Logger.Info().
		Str("complaint_id", updated.ID).
		Str("status", string(updated.Status)).
		Str("actor", string(req.Actor)).
		Msg("complaint status changed")
	return updated, nil
}

// History returns the ledger for an existing complaint, oldest first.
func (s *ComplaintService) History(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error) {
	if _, err := s.Repo.GetComplaint(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.Repo.ListHistory(ctx, complaintID)
}
