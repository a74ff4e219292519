package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/db/memstore"
	"github.com/civicdesk/backend/internal/models"
)

type countingSource struct {
	*memstore.Store
	lists int32
	gate  chan struct{}
}

func (c *countingSource) ListDepartments(ctx context.Context) ([]models.Department, error) {
	items, err := c.Store.ListDepartments(ctx)
	atomic.AddInt32(&c.lists, 1)
	if c.gate != nil {
		<-c.gate
	}
	return items, err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newCountingRegistry(t *testing.T, ttl time.Duration) (*Registry, *countingSource, *fakeClock) {
	t.Helper()
	src := &countingSource{Store: memstore.New()}
	if _, err := src.UpsertDepartments(context.Background(), DefaultDepartments); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clock := &fakeClock{now: testNow}
	r := NewRegistry(src, ttl, zerolog.Nop())
	r.clock = clock.Now
	return r, src, clock
}

func TestRegistryServesFromCacheUntilTTL(t *testing.T) {
	r, src, clock := newCountingRegistry(t, 30*time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := r.List(ctx); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if n := atomic.LoadInt32(&src.lists); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}
	clock.Advance(31 * time.Second)
	if _, err := r.Get(ctx, "roads-dept"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := atomic.LoadInt32(&src.lists); n != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", n)
	}
}

func TestRegistrySaveInvalidates(t *testing.T) {
	r, src, _ := newCountingRegistry(t, time.Hour)
	ctx := context.Background()
	if _, err := r.List(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := r.Save(ctx, []models.Department{{ID: "library-dept", Name: "Libraries"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	items, _ := r.List(ctx)
	if len(items) != len(DefaultDepartments)+1 {
		t.Fatalf("expected new department visible, got %d", len(items))
	}
	if n := atomic.LoadInt32(&src.lists); n != 2 {
		t.Fatalf("expected reload after save, got %d loads", n)
	}
}

func TestRegistryCollapsesConcurrentReloads(t *testing.T) {
	r, src, _ := newCountingRegistry(t, time.Hour)
	src.gate = make(chan struct{})

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := r.List(context.Background())
			return err
		})
	}
	for atomic.LoadInt32(&src.lists) == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	if err := g.Wait(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if n := atomic.LoadInt32(&src.lists); n > 2 {
		t.Fatalf("expected reloads to collapse, got %d", n)
	}
}

func TestRegistrySaveDuringReloadIsNotLost(t *testing.T) {
	r, src, _ := newCountingRegistry(t, time.Hour)
	src.gate = make(chan struct{})
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error {
		_, err := r.List(ctx)
		return err
	})
	for atomic.LoadInt32(&src.lists) == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := r.Save(ctx, []models.Department{{ID: "library-dept", Name: "Libraries"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	close(src.gate)
	if err := g.Wait(); err != nil {
		t.Fatalf("list: %v", err)
	}

	items, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != len(DefaultDepartments)+1 {
		t.Fatalf("expected saved department after in-flight reload, got %d departments", len(items))
	}
	if _, err := r.Get(ctx, "library-dept"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestRegistrySaveValidation(t *testing.T) {
	r, _, _ := newCountingRegistry(t, time.Hour)
	ctx := context.Background()
	if _, err := r.Save(ctx, []models.Department{{ID: "x"}}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err := r.Save(ctx, []models.Department{{ID: "a", Name: "Dup"}, {ID: "b", Name: "dup"}})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSeedDefaultsOnlyWhenEmpty(t *testing.T) {
	repo := memstore.New()
	r := NewRegistry(repo, time.Minute, zerolog.Nop())
	ctx := context.Background()
	if err := r.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := r.Save(ctx, []models.Department{{ID: "roads-dept", Name: "Highways"}}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := r.SeedDefaults(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	d, _ := r.Get(ctx, "roads-dept")
	if d.Name != "Highways" {
		t.Fatalf("seeding overwrote an existing registry: %+v", d)
	}
}
