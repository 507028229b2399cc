package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// newTestJob builds a queued job created at the given offset.
func newTestJob(id string, createdAt time.Time) domain.Job {
	return domain.Job{
		ID:          id,
		Prompt:      "a cat walks on a beach",
		Status:      domain.JobStatusQueued,
		BackendName: "veo3",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// TestMemoryStoreCreateGet checks round trip and deep-copy isolation.
func TestMemoryStoreCreateGet(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	job := newTestJob("job-1", base)
	job.Plan = []domain.SegmentSpec{{Index: 0, VideoPrompt: "p", Duration: 4}}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Plan[0].VideoPrompt = "mutated"

	again, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Plan[0].VideoPrompt != "p" {
		t.Fatal("stored job mutated through a returned copy")
	}
}

// TestMemoryStoreGetUnknown checks the not-found sentinel.
func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestMemoryStoreDuplicateCreate checks id uniqueness.
func TestMemoryStoreDuplicateCreate(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now().UTC()
	if err := store.Create(context.Background(), newTestJob("job-1", base)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(context.Background(), newTestJob("job-1", base)); err == nil {
		t.Fatal("expected duplicate id rejection")
	}
}

// TestMemoryStoreUpdateStampsTime checks the injected clock on updates.
func TestMemoryStoreUpdateStampsTime(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	store := NewMemoryStoreForTests(func() time.Time { return frozen })

	if err := store.Create(context.Background(), newTestJob("job-1", frozen.Add(-time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.Update(context.Background(), "job-1", func(j *domain.Job) error {
		j.Status = domain.JobStatusProgress
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != domain.JobStatusProgress {
		t.Fatalf("status = %s, want progress", updated.Status)
	}
	if !updated.UpdatedAt.Equal(frozen) {
		t.Fatalf("updatedAt = %v, want %v", updated.UpdatedAt, frozen)
	}
}

// TestMemoryStoreUpdateErrorLeavesJob checks mutate failure is a no-op.
func TestMemoryStoreUpdateErrorLeavesJob(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Create(context.Background(), newTestJob("job-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Update(context.Background(), "job-1", func(j *domain.Job) error {
		j.Status = domain.JobStatusFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	job, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s, want queued after rolled-back update", job.Status)
	}
}

// TestMemoryStoreListOrdering checks most-recent-first ordering.
func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"job-a", "job-b", "job-c"} {
		if err := store.Create(context.Background(), newTestJob(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	jobs, err := store.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	if jobs[0].ID != "job-c" || jobs[2].ID != "job-a" {
		t.Fatalf("order = %s,%s,%s, want newest first", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}

// TestMemoryStoreListPagination checks limit and offset over the ordering.
func TestMemoryStoreListPagination(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"job-a", "job-b", "job-c", "job-d"} {
		if err := store.Create(context.Background(), newTestJob(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	page, err := store.List(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[0].ID != "job-c" || page[1].ID != "job-b" {
		t.Fatalf("page = %v, want [job-c job-b]", ids(page))
	}

	tail, err := store.List(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("List tail: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != "job-a" {
		t.Fatalf("tail = %v, want [job-a]", ids(tail))
	}

	past, err := store.List(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("List past end: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("past end = %v, want empty", ids(past))
	}
}

// TestMemoryStoreDelete checks removal and the unknown-id sentinel.
func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Create(context.Background(), newTestJob("job-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(context.Background(), "job-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(context.Background(), "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestMemoryStoreConcurrentUpdates checks updates to one job never race.
func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	job := newTestJob("job-1", time.Now().UTC())
	job.Segments = []domain.SegmentResult{{Index: 0, Status: domain.SegmentStatusPending}}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(context.Background(), "job-1", func(j *domain.Job) error {
				j.Segments[0].AttemptCount++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Segments[0].AttemptCount != writers {
		t.Fatalf("attempts = %d, want %d", got.Segments[0].AttemptCount, writers)
	}
}
