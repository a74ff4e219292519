package service

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/geocode"
	"github.com/civicdesk/backend/internal/models"
	"github.com/civicdesk/backend/internal/utils"
)

func (s *ComplaintService) Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error) {
	v := &apperr.ValidationError{}
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	location := strings.TrimSpace(in.Location)
	if title == "" {
		v.Add("title", "required")
	}
	if description == "" {
		v.Add("description", "required")
	}

	category, ok := models.ParseCategory(in.Category)
	if strings.TrimSpace(in.Category) == "" {
		v.Add("category", "required")
	} else if !ok {
		v.Add("category", "invalid category")
	}

	priority := models.PriorityMedium
	if strings.TrimSpace(in.Priority) != "" {
		p, ok := models.ParsePriority(in.Priority)
		if !ok {
			v.Add("priority", "invalid priority")
		}
		priority = p
	}

	hasCoords := in.Latitude != nil && in.Longitude != nil
	if (in.Latitude == nil) != (in.Longitude == nil) {
		v.Add("latitude", "latitude and longitude must be set together")
	}
	// Checked here as well as in the store so a bad pair never reaches the geocoder.
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		v.Add("latitude", "out of range")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		v.Add("longitude", "out of range")
	}
	if location == "" && !hasCoords {
		v.Add("location", "required")
	}
	if err := v.OrNil(); err != nil {
		return models.Complaint{}, err
	}

	if location == "" {
		location = s.resolveAddress(ctx, *in.Latitude, *in.Longitude)
	}

	now := s.now()
	c := models.Complaint{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   description,
		Category:      category,
		Priority:      priority,
		Status:        models.StatusPending,
		Location:      location,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		DateSubmitted: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Repo.CreateComplaint(ctx, c); err != nil {
		return models.Complaint{}, err
	}
	s.Logger.Info().Str("complaint_id", c.ID).Str("category", string(c.Category)).Msg("complaint submitted")
	return c, nil
}

// resolveAddress never fails: upstream errors fall back to the coordinate string.
func (s *ComplaintService) resolveAddress(ctx context.Context, lat, lon float64) string {
	address, err := geocode.ResolveAddress(ctx, s.Geocoder, lat, lon)
	if err != nil {
		s.Logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("reverse geocoding failed, using coordinates")
	}
	return address
}

func (s *ComplaintService) Get(ctx context.Context, id string) (models.Complaint, error) {
	return s.Repo.GetComplaint(ctx, id)
}

func (s *ComplaintService) List(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	return s.Repo.ListComplaints(ctx, f.Normalize())
}

func (s *ComplaintService) Upvote(ctx context.Context, id string) (models.Complaint, error) {
	return s.Repo.IncrementUpvote(ctx, id, s.now())
}

// Update applies a field patch. Status changes are not part of a patch;
// they go through Transition so the ledger stays complete.
func (s *ComplaintService) Update(ctx context.Context, id string, patch models.ComplaintPatch) (models.Complaint, error) {
	now := s.now()
	return s.Repo.MutateComplaint(ctx, id, func(c *models.Complaint) (*models.StatusHistoryEntry, error) {
		if patch.ExpectedUpdatedAt != nil && !patch.ExpectedUpdatedAt.Equal(c.UpdatedAt) {
			return nil, apperr.Conflict("complaint %q was modified at %s", c.ID, c.UpdatedAt.Format("2006-01-02T15:04:05.999999Z07:00"))
		}
		if patch.Title != nil {
			c.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			c.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Category != nil {
			c.Category = *patch.Category
		}
		if patch.Priority != nil {
			c.Priority = *patch.Priority
		}
		if patch.Location != nil {
			c.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.AdminNotes != nil {
			c.AdminNotes = normalizeNotes(patch.AdminNotes)
		}
		if patch.ResolutionNotes != nil {
			c.ResolutionNotes = normalizeNotes(patch.ResolutionNotes)
		}
		if patch.ClearEstimatedDate {
			c.EstimatedCompletionDate = nil
		} else if patch.EstimatedCompletionDate != nil {
			d := models.Date(*patch.EstimatedCompletionDate)
			c.EstimatedCompletionDate = &d
		}
		if patch.ClearActualCompletionDate {
			c.ActualCompletionDate = nil
		} else if patch.ActualCompletionDate != nil {
			d := models.Date(*patch.ActualCompletionDate)
			c.ActualCompletionDate = &d
		}
		c.UpdatedAt = now
		return nil, nil
	})
}

type NearbyComplaint struct {
	models.Complaint
	DistanceKm float64 `json:"distance_km"`
}

// Nearby lists complaints with coordinates within radiusKm of the point,
// closest first.
func (s *ComplaintService) Nearby(ctx context.Context, lat, lon, radiusKm float64) ([]NearbyComplaint, error) {
	if radiusKm <= 0 {
		return nil, apperr.Validation("radius_km", "must be positive")
	}
	all, err := s.Repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := []NearbyComplaint{}
	for _, c := range all {
		if !c.HasCoordinates() {
			continue
		}
		if d, ok := utils.WithinRadiusKm(lat, lon, *c.Latitude, *c.Longitude, radiusKm); ok {
			out = append(out, NearbyComplaint{Complaint: c, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm == out[j].DistanceKm {
			return out[i].ID < out[j].ID
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out, nil
}
