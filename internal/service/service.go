package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/civicdesk/backend/internal/geocode"
	"github.com/civicdesk/backend/internal/models"
)

// Repository is the persistence contract. Both the PostgreSQL store and the
// in-memory store implement it.
type Repository interface {
	Ping(ctx context.Context) error
	CreateComplaint(ctx context.Context, c models.Complaint) error
	GetComplaint(ctx context.Context, id string) (models.Complaint, error)
	ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error)
	Snapshot(ctx context.Context) ([]models.Complaint, error)
	IncrementUpvote(ctx context.Context, id string, at time.Time) (models.Complaint, error)
	MutateComplaint(ctx context.Context, id string, fn models.Mutation) (models.Complaint, error)
	ListHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error)
	DepartmentSource
}

type ComplaintService struct {
	Repo     Repository
	Registry *Registry
	Geocoder geocode.ReverseGeocoder
	Logger   zerolog.Logger
	Clock    func() time.Time
}

func NewComplaintService(repo Repository, registry *Registry, geocoder geocode.ReverseGeocoder, logger zerolog.Logger) *ComplaintService {
	return &ComplaintService{
		Repo:     repo,
		Registry: registry,
		Geocoder: geocoder,
		Logger:   logger,
	}
}

// now is truncated to microseconds so values round-trip through PostgreSQL
// unchanged and can serve as version tokens.
func (s *ComplaintService) now() time.Time {
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Microsecond)
}

func newHistoryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
