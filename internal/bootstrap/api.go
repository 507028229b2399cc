package bootstrap

import (
	"context"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/domain"
	"github.com/dp-pcs/ttv-pipeline/internal/jobs"
	"github.com/dp-pcs/ttv-pipeline/internal/planner"
)

// signedURLTTL bounds how long a minted video link stays valid.
const signedURLTTL = time.Hour

// SubmitJob validates and queues a generation job.
func (a *App) SubmitJob(ctx context.Context, prompt, title, backendName string) (domain.JobStatusResponse, error) {
	if backendName == "" {
		backendName = a.Config.DefaultBackend
	}
	job, err := a.Orchestrator.Enqueue(ctx, prompt, title, backendName)
	if err != nil {
		return domain.JobStatusResponse{}, err
	}
	return job.StatusResponse(), nil
}

// EstimateJob plans and prices a prompt without queueing anything.
func (a *App) EstimateJob(ctx context.Context, prompt, backendName string) (planner.Estimate, error) {
	if backendName == "" {
		backendName = a.Config.DefaultBackend
	}
	return a.Orchestrator.Estimate(ctx, prompt, backendName)
}

// ListJobs returns a page of compact projections, most recent first. A
// non-positive limit returns everything past the offset.
func (a *App) ListJobs(ctx context.Context, limit, offset int) ([]domain.JobStatusResponse, error) {
	page, err := a.Orchestrator.Jobs(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]domain.JobStatusResponse, 0, len(page))
	for _, job := range page {
		out = append(out, job.StatusResponse())
	}
	return out, nil
}

// JobStatus returns the compact projection of one job.
func (a *App) JobStatus(ctx context.Context, id string) (domain.JobStatusResponse, error) {
	job, err := a.Orchestrator.Job(ctx, id)
	if err != nil {
		return domain.JobStatusResponse{}, err
	}
	return job.StatusResponse(), nil
}

// JobDetails returns the segment-level projection of one job.
func (a *App) JobDetails(ctx context.Context, id string) (domain.JobDetailsResponse, error) {
	job, err := a.Orchestrator.Job(ctx, id)
	if err != nil {
		return domain.JobDetailsResponse{}, err
	}
	return job.DetailsResponse(time.Now().UTC()), nil
}

// JobVideoURL mints a time-limited link for a finished job's video.
func (a *App) JobVideoURL(ctx context.Context, id string) (string, error) {
	return a.Orchestrator.ArtifactURL(ctx, id, signedURLTTL)
}

// CancelJob requests cancellation and reports whether the job was active.
func (a *App) CancelJob(ctx context.Context, id string) (bool, error) {
	return a.Orchestrator.Cancel(ctx, id)
}

// DeleteJob cancels if needed and removes the job and its workspace.
func (a *App) DeleteJob(ctx context.Context, id string) error {
	return a.Orchestrator.Delete(ctx, id)
}

// JobEvents returns one job's events with sequence greater than sinceSeq.
func (a *App) JobEvents(jobID string, sinceSeq int64) []jobs.Event {
	return a.Events.ForJob(jobID, sinceSeq)
}

// AllEvents returns all events with sequence greater than sinceSeq.
func (a *App) AllEvents(sinceSeq int64) []jobs.Event {
	return a.Events.Since(sinceSeq)
}

// GetDiagnostics returns the startup diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}
