package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

const registryKey = "departments"

type DepartmentSource interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	GetDepartment(ctx context.Context, id string) (models.Department, error)
	UpsertDepartments(ctx context.Context, departments []models.Department) (int64, error)
}

// DefaultDepartments seeds an empty registry so every category suggestion
// has a target.
var DefaultDepartments = []models.Department{
	{ID: "roads-dept", Name: "Roads & Infrastructure", Description: "Road surfaces, potholes, signage and bridges", ContactEmail: "roads@city.gov"},
	{ID: "utilities-dept", Name: "Utilities", Description: "Electricity, street lighting and water supply", ContactEmail: "utilities@city.gov"},
	{ID: "sanitation-dept", Name: "Sanitation", Description: "Waste collection and street cleaning", ContactEmail: "sanitation@city.gov"},
	{ID: "safety-dept", Name: "Public Safety", Description: "Hazards, unsafe structures and emergency follow-up", ContactEmail: "safety@city.gov"},
	{ID: "transport-dept", Name: "Public Transport", Description: "Bus stops, routes and transit facilities", ContactEmail: "transport@city.gov"},
	{ID: "parks-dept", Name: "Parks & Recreation", Description: "Parks, playgrounds and green spaces", ContactEmail: "parks@city.gov"},
}

// Registry is a read-through cache over the department table. Entries are
// reloaded after ttl or after Invalidate; concurrent reloads collapse into one.
type Registry struct {
	source DepartmentSource
	ttl    time.Duration
	logger zerolog.Logger
	clock  func() time.Time

	mu       sync.RWMutex
	items    []models.Department
	byID     map[string]models.Department
	loadedAt time.Time
	valid    bool
	// gen advances on every Invalidate; a reload started under an older
	// generation must not publish its result.
	gen uint64

	group singleflight.Group
}

func NewRegistry(source DepartmentSource, ttl time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{source: source, ttl: ttl, logger: logger, clock: time.Now}
}

func (r *Registry) fresh() bool {
	if !r.valid {
		return false
	}
	if r.ttl <= 0 {
		return false
	}
	return r.clock().Sub(r.loadedAt) < r.ttl
}

func (r *Registry) List(ctx context.Context) ([]models.Department, error) {
	r.mu.RLock()
	if r.fresh() {
		out := make([]models.Department, len(r.items))
		copy(out, r.items)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(registryKey, func() (any, error) {
		r.mu.RLock()
		gen := r.gen
		r.mu.RUnlock()

		items, err := r.source.ListDepartments(ctx)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]models.Department, len(items))
		for _, d := range items {
			byID[d.ID] = d
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen != gen {
			r.logger.Debug().Msg("department registry reload superseded by invalidation")
			return items, nil
		}
		r.items = items
		r.byID = byID
		r.loadedAt = r.clock()
		r.valid = true
		r.logger.Debug().Int("count", len(items)).Msg("department registry refreshed")
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items := v.([]models.Department)
	out := make([]models.Department, len(items))
	copy(out, items)
	return out, nil
}

// Get serves from the cache and falls through to the source on a miss.
func (r *Registry) Get(ctx context.Context, id string) (models.Department, error) {
	if _, err := r.List(ctx); err != nil {
		return models.Department{}, err
	}
	r.mu.RLock()
	d, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}
	d, err := r.source.GetDepartment(ctx, id)
	if err != nil {
		return models.Department{}, err
	}
	r.Invalidate()
	return d, nil
}

func (r *Registry) FindByName(ctx context.Context, name string) (*models.Department, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range items {
		if strings.EqualFold(d.Name, name) {
			found := d
			return &found, nil
		}
	}
	return nil, nil
}

func (r *Registry) SuggestFor(ctx context.Context, category models.Category) (*models.Department, error) {
	name, ok := SuggestedDepartmentName(category)
	if !ok {
		return nil, nil
	}
	return r.FindByName(ctx, name)
}

// Invalidate drops the cache and detaches any reload already in flight, so
// the next List reads the source again.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.gen++
	r.mu.Unlock()
	r.group.Forget(registryKey)
}

// Save validates and upserts departments, then drops the cache.
func (r *Registry) Save(ctx context.Context, departments []models.Department) (int64, error) {
	now := r.clock().UTC()
	seenNames := map[string]string{}
	for i := range departments {
		d := &departments[i]
		d.ID = strings.TrimSpace(d.ID)
		d.Name = strings.TrimSpace(d.Name)
		v := &apperr.ValidationError{}
		if d.ID == "" {
			v.Add("id", "required")
		}
		if d.Name == "" {
			v.Add("name", "required")
		}
		if err := v.OrNil(); err != nil {
			return 0, err
		}
		key := strings.ToLower(d.Name)
		if other, ok := seenNames[key]; ok && other != d.ID {
			return 0, apperr.Conflict("department name %q used by %q and %q", d.Name, other, d.ID)
		}
		seenNames[key] = d.ID
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
	}
	n, err := r.source.UpsertDepartments(ctx, departments)
	r.Invalidate()
	if err != nil {
		return 0, err
	}
	r.logger.Info().Int64("count", n).Msg("departments saved")
	return n, nil
}

// SeedDefaults installs DefaultDepartments when the registry is empty.
func (r *Registry) SeedDefaults(ctx context.Context) error {
	items, err := r.List(ctx)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return nil
	}
	seed := make([]models.Department, len(DefaultDepartments))
	copy(seed, DefaultDepartments)
	if _, err := r.Save(ctx, seed); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil
		}
		return err
	}
	return nil
}
