package bootstrap

import (
	"context"
	"testing"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// TestSubmitJobDefaultsBackend checks the default backend substitution.
func TestSubmitJobDefaultsBackend(t *testing.T) {
	app, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	status, err := app.SubmitJob(context.Background(), "a cat walks on a beach", "", "")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if status.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s, want queued", status.Status)
	}
	if status.Progress != 0 {
		t.Fatalf("progress = %d, want 0", status.Progress)
	}

	details, err := app.JobDetails(context.Background(), status.ID)
	if err != nil {
		t.Fatalf("JobDetails: %v", err)
	}
	if details.BackendName != "veo3" {
		t.Fatalf("backend = %q, want default veo3", details.BackendName)
	}
	if details.Prompt != "a cat walks on a beach" {
		t.Fatalf("prompt = %q", details.Prompt)
	}
}

// TestListJobsProjection checks list returns compact paged projections.
func TestListJobsProjection(t *testing.T) {
	app, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	if _, err := app.SubmitJob(context.Background(), "first prompt", "", ""); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if _, err := app.SubmitJob(context.Background(), "second prompt", "", ""); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	list, err := app.ListJobs(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("jobs = %d, want 2", len(list))
	}

	page, err := app.ListJobs(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("ListJobs page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("page = %d, want 1", len(page))
	}
}

// TestCancelAndDeleteJob checks the cancel and delete bound methods.
func TestCancelAndDeleteJob(t *testing.T) {
	app, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	status, err := app.SubmitJob(context.Background(), "a cat walks on a beach", "", "")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	active, err := app.CancelJob(context.Background(), status.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if !active {
		t.Fatal("expected cancel to report an active job")
	}

	if err := app.DeleteJob(context.Background(), status.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := app.DeleteJob(context.Background(), status.ID); err != nil {
		t.Fatalf("DeleteJob again: %v", err)
	}

	events := app.JobEvents(status.ID, 0)
	if len(events) == 0 {
		t.Fatal("expected events for the submitted job")
	}
}

// TestSubmitJobImageBackendNeedsOpenAIKey checks an image-only backend is
// unusable without a keyframe generator, surfaced at submission time.
func TestSubmitJobImageBackendNeedsOpenAIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Veo.APIKey = ""
	cfg.Runway.APISecret = "test-secret"
	cfg.DefaultBackend = "runway"

	app, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	_, err = app.SubmitJob(context.Background(), "a cat walks on a beach", "", "")
	if err == nil {
		t.Fatal("expected rejection without an openai key")
	}
	if backend.KindOf(err) != backend.KindConfiguration {
		t.Fatalf("kind = %s, want configuration_error", backend.KindOf(err))
	}

	cfg.OpenAI.APIKey = "test-openai-key"
	app, err = NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig with openai key: %v", err)
	}
	if _, err := app.SubmitJob(context.Background(), "a cat walks on a beach", "", ""); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
}
