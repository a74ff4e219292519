package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

// categoryDepartments maps a category to the name of the department that
// usually handles it. It only drives suggestions; any department may be assigned.
var categoryDepartments = map[models.Category]string{
	models.CategoryRoads:           "Roads & Infrastructure",
	models.CategoryUtilities:       "Utilities",
	models.CategorySanitation:      "Sanitation",
	models.CategoryPublicSafety:    "Public Safety",
	models.CategoryWaterSupply:     "Utilities",
	models.CategoryPublicTransport: "Public Transport",
	models.CategoryParks:           "Parks & Recreation",
}

func SuggestedDepartmentName(category models.Category) (string, bool) {
	name, ok := categoryDepartments[category]
	return name, ok
}

type AssignRequest struct {
	ComplaintID  string
	DepartmentID string
	UserID       *string
	Actor        models.ActorRole
}

// Assign routes a complaint to a department and forces it to In Progress,
// whatever its current status.
func (s *ComplaintService) Assign(ctx context.Context, req AssignRequest) (models.Complaint, error) {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(req.ComplaintID) == "" {
		v.Add("id", "required")
	}
	if strings.TrimSpace(req.DepartmentID) == "" {
		v.Add("department_id", "required")
	}
	if err := v.OrNil(); err != nil {
		return models.Complaint{}, err
	}
	actor := req.Actor
	if actor == "" {
		actor = models.ActorAdmin
	}

	dept, err := s.Registry.Get(ctx, req.DepartmentID)
	if err != nil {
		return models.Complaint{}, err
	}

	userID := normalizeNotes(req.UserID)
	notes := fmt.Sprintf("Assigned to department: %s", dept.Name)
	now := s.now()
	updated, err := s.Repo.MutateComplaint(ctx, req.ComplaintID, func(c *models.Complaint) (*models.StatusHistoryEntry, error) {
		c.AssignedDepartmentID = models.StringPtr(dept.ID)
		c.AssignedToUserID = userID
		applyStatus(c, models.StatusInProgress, now)
		return historyEntry(models.StatusInProgress, &notes, actor, now), nil
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("complaint_id", req.ComplaintID).Str("department_id", req.DepartmentID).Msg("assignment failed")
		return models.Complaint{}, err
	}

	s.Logger.Info().
		Str("complaint_id", updated.ID).
		Str("department_id", dept.ID).
		Str("actor", string(actor)).
		Msg("complaint assigned")
	return updated, nil
}

// Unassign clears the department and staff member. The status is left as it is.
func (s *ComplaintService) Unassign(ctx context.Context, complaintID string, actor models.ActorRole) (models.Complaint, error) {
	current, err := s.Repo.GetComplaint(ctx, complaintID)
	if err != nil {
		return models.Complaint{}, err
	}
	if !current.IsAssigned() {
		return models.Complaint{}, apperr.Validation("assigned_department_id", "complaint is not assigned")
	}
	if actor == "" {
		actor = models.ActorAdmin
	}

	deptID := *current.AssignedDepartmentID
	name := deptID
	if dept, err := s.Registry.Get(ctx, deptID); err == nil {
		name = dept.Name
	}
	notes := fmt.Sprintf("Unassigned from department: %s", name)
	now := s.now()

	updated, err := s.Repo.MutateComplaint(ctx, complaintID, func(c *models.Complaint) (*models.StatusHistoryEntry, error) {
		if c.AssignedDepartmentID == nil || *c.AssignedDepartmentID != deptID {
			return nil, apperr.Conflict("complaint %q assignment changed concurrently", c.ID)
		}
		c.AssignedDepartmentID = nil
		c.AssignedToUserID = nil
		c.UpdatedAt = now
		return historyEntry(c.Status, &notes, actor, now), nil
	})
	if err != nil {
		return models.Complaint{}, err
	}
	s.Logger.Info().Str("complaint_id", updated.ID).Str("department_id", deptID).Msg("complaint unassigned")
	return updated, nil
}

// Suggest returns the department suggested for the complaint's category,
// or nil when the category has no mapping or the department is not registered.
func (s *ComplaintService) Suggest(ctx context.Context, complaintID string) (*models.Department, error) {
	c, err := s.Repo.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	return s.Registry.SuggestFor(ctx, c.Category)
}

// SetEstimate sets the estimated completion date, or clears it when date is nil.
func (s *ComplaintService) SetEstimate(ctx context.Context, complaintID string, date *time.Time) (models.Complaint, error) {
	return s.Update(ctx, complaintID, models.ComplaintPatch{
		EstimatedCompletionDate: date,
		ClearEstimatedDate:      date == nil,
	})
}
