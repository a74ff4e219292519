package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/civicdesk/backend/internal/apperr"
	"github.com/civicdesk/backend/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func insertFixture(t *testing.T, store *Store) (models.Complaint, models.Department) {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	dept := models.Department{ID: "dept-" + suffix, Name: "Roads " + suffix, CreatedAt: time.Now().UTC()}
	if _, err := store.UpsertDepartments(ctx, []models.Department{dept}); err != nil {
		t.Fatalf("upsert department: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := models.Complaint{
		ID: uuid.NewString(), Title: "Pothole " + suffix, Description: "Large pothole", Location: "Main St",
		Category: models.CategoryRoads, Priority: models.PriorityMedium, Status: models.StatusPending,
		DateSubmitted: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateComplaint(ctx, c); err != nil {
		t.Fatalf("create complaint: %v", err)
	}
	return c, dept
}

func TestComplaintRoundTrip(t *testing.T) {
	store := openTestStore(t)
	c, _ := insertFixture(t, store)

	got, err := store.GetComplaint(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != c.Title || !got.UpdatedAt.Equal(c.UpdatedAt) || got.Status != models.StatusPending {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if _, err := store.GetComplaint(context.Background(), uuid.NewString()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	items, err := store.ListComplaints(context.Background(), models.ComplaintFilter{Query: c.Title[8:]}.Normalize())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != c.ID {
		t.Fatalf("expected search hit, got %d items", len(items))
	}
}

func TestConcurrentUpvotes(t *testing.T) {
	store := openTestStore(t)
	c, _ := insertFixture(t, store)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := store.IncrementUpvote(context.Background(), c.ID, time.Now().UTC())
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	got, _ := store.GetComplaint(context.Background(), c.ID)
	if got.Upvotes != 20 {
		t.Fatalf("expected 20 upvotes, got %d", got.Upvotes)
	}
}

func TestMutateWritesHistoryAtomically(t *testing.T) {
	store := openTestStore(t)
	c, dept := insertFixture(t, store)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.MutateComplaint(ctx, c.ID, func(x *models.Complaint) (*models.StatusHistoryEntry, error) {
		x.AssignedDepartmentID = models.StringPtr(dept.ID)
		x.Status = models.StatusInProgress
		x.UpdatedAt = now
		return &models.StatusHistoryEntry{ID: uuid.NewString(), NewStatus: models.StatusInProgress, ActorRole: models.ActorAdmin, CreatedAt: now}, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	// An invalid history row must roll back the status change with it.
	_, err = store.MutateComplaint(ctx, c.ID, func(x *models.Complaint) (*models.StatusHistoryEntry, error) {
		x.Status = models.StatusOnHold
		return &models.StatusHistoryEntry{ID: uuid.NewString(), NewStatus: models.StatusOnHold, ActorRole: "mayor", CreatedAt: now}, nil
	})
	if err == nil {
		t.Fatalf("expected history insert failure")
	}

	got, _ := store.GetComplaint(ctx, c.ID)
	if got.Status != models.StatusInProgress {
		t.Fatalf("status should be unchanged after rollback, got %s", got.Status)
	}
	hist, err := store.ListHistory(ctx, c.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist))
	}
}
