// Package memstore is an in-process complaint store with the same
// transactional guarantees as the PostgreSQL store: writes to one complaint
// are serialized by a per-complaint lock and a mutation commits together
// with its history entry or not at all.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

type Store struct {
	mu          sync.RWMutex
	complaints  map[string]*entry
	departments map[string]models.Department
	history     map[string][]models.StatusHistoryEntry

	// AppendHook, when set, runs before a history entry is committed.
	// A non-nil error aborts the whole mutation.
	AppendHook func(e models.StatusHistoryEntry) error
}

type entry struct {
	mu        sync.Mutex
	complaint models.Complaint
}

func New() *Store {
	return &Store{
		complaints:  map[string]*entry{},
		departments: map[string]models.Department{},
		history:     map[string][]models.StatusHistoryEntry{},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateComplaint(ctx context.Context, c models.Complaint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.complaints[c.ID]; ok {
		return apperr.Conflict("complaint %q already exists", c.ID)
	}
	s.complaints[c.ID] = &entry{complaint: c.Clone()}
	return nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.complaints[id]
	if !ok {
		return nil, apperr.NotFound("complaint", id)
	}
	return e, nil
}

func (s *Store) GetComplaint(ctx context.Context, id string) (models.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return models.Complaint{}, err
	}
	e, err := s.lookup(id)
	if err != nil {
		return models.Complaint{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complaint.Clone(), nil
}

func (s *Store) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	f = f.Normalize()
	all, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Complaint, 0, len(all))
	for _, c := range all {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	models.SortComplaints(out, f.Sort)
	return models.Page(out, f.Offset, f.Limit), nil
}

func (s *Store) Snapshot(ctx context.Context) ([]models.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.complaints))
	for _, e := range s.complaints {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]models.Complaint, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.complaint.Clone())
		e.mu.Unlock()
	}
	models.SortComplaints(out, models.SortNewest)
	return out, nil
}

func (s *Store) IncrementUpvote(ctx context.Context, id string, at time.Time) (models.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return models.Complaint{}, err
	}
	e, err := s.lookup(id)
	if err != nil {
		return models.Complaint{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.complaint.Upvotes++
	e.complaint.UpdatedAt = at
	return e.complaint.Clone(), nil
}

func (s *Store) MutateComplaint(ctx context.Context, id string, fn models.Mutation) (models.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return models.Complaint{}, err
	}
	e, err := s.lookup(id)
	if err != nil {
		return models.Complaint{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.complaint.Clone()
	h, err := fn(&next)
	if err != nil {
		return models.Complaint{}, err
	}
	next.ID = e.complaint.ID
	if err := next.Validate(); err != nil {
		return models.Complaint{}, err
	}
	if next.AssignedDepartmentID != nil {
		if _, err := s.GetDepartment(ctx, *next.AssignedDepartmentID); err != nil {
			return models.Complaint{}, err
		}
	}

	if h != nil {
		h.ComplaintID = next.ID
		if s.AppendHook != nil {
			if err := s.AppendHook(*h); err != nil {
				return models.Complaint{}, apperr.Wrap(err, "append status history")
			}
		}
		s.mu.Lock()
		s.history[next.ID] = append(s.history[next.ID], *h)
		s.mu.Unlock()
	}
	e.complaint = next
	return next.Clone(), nil
}

func (s *Store) ListHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StatusHistoryEntry, len(s.history[complaintID]))
	copy(out, s.history[complaintID])
	return out, nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (models.Department, error) {
	if err := ctx.Err(); err != nil {
		return models.Department{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok {
		return models.Department{}, apperr.NotFound("department", id)
	}
	return d, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertDepartments(ctx context.Context, departments []models.Department) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range departments {
		for id, existing := range s.departments {
			if id != d.ID && existing.Name == d.Name {
				return 0, apperr.Conflict("department name %q already used by %q", d.Name, id)
			}
		}
	}
	for _, d := range departments {
		if existing, ok := s.departments[d.ID]; ok {
			d.CreatedAt = existing.CreatedAt
		}
		s.departments[d.ID] = d
	}
	return int64(len(departments)), nil
}
