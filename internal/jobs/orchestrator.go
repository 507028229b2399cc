package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
	"github.com/dp-pcs/ttv-pipeline/internal/domain"
	"github.com/dp-pcs/ttv-pipeline/internal/planner"
	"github.com/dp-pcs/ttv-pipeline/internal/progress"
	"github.com/dp-pcs/ttv-pipeline/internal/retry"
	"github.com/dp-pcs/ttv-pipeline/internal/storage"
)

// ErrQueueFull is returned when the bounded queue cannot accept a job.
var ErrQueueFull = errors.New("job queue is full")

// errStaleJob aborts an update whose job moved on concurrently.
var errStaleJob = errors.New("job state changed concurrently")

// Assembler joins ordered segment clips into one video file.
type Assembler interface {
	Concat(ctx context.Context, clipPaths []string, outputPath string) error
}

// Keyframer turns a text prompt into a still image used to condition a
// segment on backends without a text-to-video mode.
type Keyframer interface {
	Generate(ctx context.Context, prompt, outputPath string) (string, error)
}

// FrameExtractor captures the last frame of a clip so the next segment can
// continue from it.
type FrameExtractor interface {
	ExtractLastFrame(ctx context.Context, videoPath, outputPath string) error
}

// Options wires the orchestrator's collaborators and tuning knobs.
type Options struct {
	Store     Store
	Registry  *backend.Registry
	Planner   *planner.Planner
	Assembler Assembler
	Storage   storage.Store
	Events    *EventBus
	Retrier   *retry.Coordinator
	Keyframer Keyframer
	Frames    FrameExtractor

	Workers    int
	QueueSize  int
	Workspace  string
	Resolution string
}

// Orchestrator owns the job queue and the bounded worker pool. Exactly one
// worker drives a job at a time; all shared state lives behind the store.
type Orchestrator struct {
	store      Store
	registry   *backend.Registry
	planner    *planner.Planner
	assembler  Assembler
	storage    storage.Store
	events     *EventBus
	retrier    *retry.Coordinator
	keyframer  Keyframer
	frames     FrameExtractor
	queue      chan string
	workers    int
	workspace  string
	resolution string
	now        func() time.Time
	newID      func() string
	wg         sync.WaitGroup
}

// NewOrchestrator builds an orchestrator with production clock and ids.
func NewOrchestrator(opts Options) *Orchestrator {
	return newOrchestrator(opts, time.Now, uuid.NewString)
}

// NewOrchestratorForTests builds an orchestrator with injectable clock and
// id generation.
func NewOrchestratorForTests(opts Options, now func() time.Time, newID func() string) *Orchestrator {
	return newOrchestrator(opts, now, newID)
}

func newOrchestrator(opts Options, now func() time.Time, newID func() string) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Resolution == "" {
		opts.Resolution = "720p"
	}
	return &Orchestrator{
		store:      opts.Store,
		registry:   opts.Registry,
		planner:    opts.Planner,
		assembler:  opts.Assembler,
		storage:    opts.Storage,
		events:     opts.Events,
		retrier:    opts.Retrier,
		keyframer:  opts.Keyframer,
		frames:     opts.Frames,
		queue:      make(chan string, opts.QueueSize),
		workers:    opts.Workers,
		workspace:  opts.Workspace,
		resolution: opts.Resolution,
		now:        now,
		newID:      newID,
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.workerLoop(ctx)
		}()
	}
}

// Wait blocks until every worker has exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// workerLoop consumes job ids until the context is canceled.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.queue:
			o.runJob(ctx, id)
		}
	}
}

// Enqueue validates the backend choice, persists a queued job, and hands it
// to the pool without blocking. A full queue rejects the submission and
// leaves no record behind.
func (o *Orchestrator) Enqueue(ctx context.Context, prompt, title, backendName string) (domain.Job, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.Job{}, backend.InvalidInput("prompt cannot be empty")
	}
	caps, err := o.registry.Capabilities(backendName)
	if err != nil {
		return domain.Job{}, err
	}
	if !caps.SupportsTextToVideo && o.keyframer == nil {
		return domain.Job{}, backend.ConfigError(
			"backend %s needs keyframe images but no image generator is configured", backendName)
	}

	nowUTC := o.now().UTC()
	job := domain.Job{
		ID:          o.newID(),
		Prompt:      prompt,
		Title:       title,
		Status:      domain.JobStatusQueued,
		BackendName: backendName,
		CreatedAt:   nowUTC,
		UpdatedAt:   nowUTC,
	}
	if err := o.store.Create(ctx, job); err != nil {
		return domain.Job{}, err
	}

	select {
	case o.queue <- job.ID:
	default:
		_ = o.store.Delete(ctx, job.ID)
		return domain.Job{}, ErrQueueFull
	}

	o.publish(Event{JobID: job.ID, Type: EventTypeStatus, Status: domain.JobStatusQueued})
	return job, nil
}

// Job returns one job by id.
func (o *Orchestrator) Job(ctx context.Context, id string) (domain.Job, error) {
	return o.store.Get(ctx, id)
}

// Jobs returns a page of jobs, most recent first. A non-positive limit
// returns everything past the offset.
func (o *Orchestrator) Jobs(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	return o.store.List(ctx, limit, offset)
}

// Estimate plans and prices a prompt without creating a job.
func (o *Orchestrator) Estimate(ctx context.Context, prompt, backendName string) (planner.Estimate, error) {
	gen, err := o.registry.Resolve(backendName)
	if err != nil {
		return planner.Estimate{}, err
	}

	plan, err := o.planner.Plan(ctx, prompt)
	if err != nil {
		return planner.Estimate{}, err
	}
	return planner.BuildEstimate(prompt, backendName, plan.WithCosts(gen, o.resolution)), nil
}

// Cancel requests cancellation. A queued job flips to canceled immediately;
// a running job finishes its in-flight segment and stops before the next
// dispatch. The bool reports whether the job was still active.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (bool, error) {
	wasActive := false
	job, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		switch {
		case j.Status.Terminal():
			return nil
		case j.Status == domain.JobStatusQueued:
			wasActive = true
			j.Status = domain.JobStatusCanceled
			completed := o.now().UTC()
			j.CompletedAt = &completed
		default:
			wasActive = true
			j.CancelRequested = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if wasActive && job.Status == domain.JobStatusCanceled {
		o.publish(Event{JobID: id, Type: EventTypeStatus, Status: domain.JobStatusCanceled})
	}
	return wasActive, nil
}

// Delete cancels an active job, removes its workspace, and drops the record.
// Deleting an unknown id is a successful no-op.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	job, err := o.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !job.Status.Terminal() {
		if _, err := o.Cancel(ctx, id); err != nil {
			return err
		}
	}

	if o.workspace != "" {
		if err := os.RemoveAll(o.jobDir(id)); err != nil {
			log.Printf("jobs: workspace cleanup for %s failed: %v", id, err)
		}
	}

	if err := o.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ArtifactURL mints a time-limited URL for a finished job's video.
func (o *Orchestrator) ArtifactURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusFinished || job.ArtifactURI == "" {
		return "", backend.InvalidInput("job %s has no finished video (status %s)", id, job.Status)
	}
	return o.storage.SignedURL(ctx, job.ArtifactURI, ttl)
}

// runJob drives one queued job through planning, segment generation,
// assembly, and upload. It owns every write to the job until it returns.
func (o *Orchestrator) runJob(ctx context.Context, id string) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		log.Printf("jobs: worker cannot load %s: %v", id, err)
		return
	}
	if job.Status != domain.JobStatusQueued {
		// Canceled or deleted while waiting in the queue.
		return
	}

	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobStatusQueued {
			return errStaleJob
		}
		j.Status = domain.JobStatusProgress
		return nil
	}); err != nil {
		if !errors.Is(err, errStaleJob) {
			log.Printf("jobs: cannot start %s: %v", id, err)
		}
		return
	}
	o.publish(Event{JobID: id, Type: EventTypeStatus, Status: domain.JobStatusProgress})

	gen, err := o.registry.Resolve(job.BackendName)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}

	plan, err := o.planner.Plan(ctx, job.Prompt)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}
	plan = plan.WithCosts(gen, o.resolution)

	caps, err := o.registry.Capabilities(job.BackendName)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}
	if violations := backend.ValidatePlan(caps, plan.Segments); len(violations) > 0 {
		o.fail(ctx, id, backend.InvalidInput("%s", strings.Join(violations, "; ")))
		return
	}

	segments := make([]domain.SegmentResult, len(plan.Segments))
	for i := range segments {
		segments[i] = domain.SegmentResult{Index: i, Status: domain.SegmentStatusPending}
	}
	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobStatusProgress {
			return errStaleJob
		}
		j.Plan = plan.Segments
		j.Segments = segments
		return nil
	}); err != nil {
		if !errors.Is(err, errStaleJob) {
			log.Printf("jobs: cannot record plan for %s: %v", id, err)
		}
		return
	}

	// Backends without a text-to-video mode condition every segment on an
	// image: a generated keyframe first, then the previous clip's last frame.
	needsImage := !caps.SupportsTextToVideo

	tracker := progress.NewTrackerWithClock(o.now)
	clips := make([]string, 0, len(plan.Segments))
	for _, spec := range plan.Segments {
		if o.cancelRequested(ctx, id) {
			o.finishCanceled(ctx, id)
			return
		}

		inputImage := ""
		if needsImage {
			image, err := o.segmentInput(ctx, id, spec, clips)
			if err != nil {
				o.fail(ctx, id, err)
				return
			}
			inputImage = image
		}

		if err := o.runSegment(ctx, id, gen, spec, inputImage, &clips); err != nil {
			o.fail(ctx, id, err)
			return
		}

		percent := (len(clips)) * 100 / len(plan.Segments)
		tracker.Update(percent, fmt.Sprintf("segment %d of %d done", spec.Index+1, len(plan.Segments)))
		snapPercent, snapMessage := tracker.Snapshot()
		o.publish(Event{JobID: id, Type: EventTypeProgress, Percent: snapPercent, Message: snapMessage})
	}

	if o.cancelRequested(ctx, id) {
		o.finishCanceled(ctx, id)
		return
	}

	finalPath := filepath.Join(o.jobDir(id), "final.mp4")
	if err := o.assembler.Concat(ctx, clips, finalPath); err != nil {
		o.fail(ctx, id, err)
		return
	}

	uri, err := o.upload(ctx, finalPath)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}

	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		if !domain.ValidTransition(j.Status, domain.JobStatusFinished) {
			return errStaleJob
		}
		j.Status = domain.JobStatusFinished
		j.ArtifactURI = uri
		completed := o.now().UTC()
		j.CompletedAt = &completed
		return nil
	}); err != nil {
		if !errors.Is(err, errStaleJob) {
			log.Printf("jobs: cannot finish %s: %v", id, err)
		}
		return
	}
	o.publish(Event{JobID: id, Type: EventTypeStatus, Status: domain.JobStatusFinished})
}

// segmentInput produces the conditioning image for one segment: a keyframe
// rendered from the segment's prompt for the first clip, the previous
// clip's last frame afterwards.
func (o *Orchestrator) segmentInput(ctx context.Context, id string, spec domain.SegmentSpec, clips []string) (string, error) {
	if len(clips) == 0 {
		prompt := spec.KeyframePrompt
		if strings.TrimSpace(prompt) == "" {
			prompt = spec.VideoPrompt
		}
		outPath := filepath.Join(o.jobDir(id), fmt.Sprintf("keyframe_%02d.png", spec.Index))
		return o.keyframer.Generate(ctx, prompt, outPath)
	}

	if o.frames == nil {
		return "", backend.ConfigError("frame extraction is not configured for segment chaining")
	}
	outPath := filepath.Join(o.jobDir(id), fmt.Sprintf("frame_%02d.png", spec.Index))
	if err := o.frames.ExtractLastFrame(ctx, clips[len(clips)-1], outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// upload stores one local file with retry; storage failures are transient
// per the retry classification.
func (o *Orchestrator) upload(ctx context.Context, localPath string) (string, error) {
	var uri string
	_, err := o.retrier.Do(ctx, func(ctx context.Context) error {
		u, upErr := o.storage.Upload(ctx, localPath)
		if upErr != nil {
			return upErr
		}
		uri = u
		return nil
	})
	return uri, err
}

// runSegment generates and uploads one clip with retry, recording the
// attempt count and elapsed time on the segment result.
func (o *Orchestrator) runSegment(ctx context.Context, id string, gen backend.VideoGenerator, spec domain.SegmentSpec, inputImage string, clips *[]string) error {
	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		j.Segments[spec.Index].Status = domain.SegmentStatusRunning
		return nil
	}); err != nil {
		return err
	}

	outPath := filepath.Join(o.jobDir(id), fmt.Sprintf("segment_%02d.mp4", spec.Index))
	started := o.now()

	attempts, err := o.retrier.Do(ctx, func(ctx context.Context) error {
		_, genErr := gen.GenerateVideo(ctx, backend.Request{
			Prompt:     spec.VideoPrompt,
			InputImage: inputImage,
			OutputPath: outPath,
			Duration:   spec.Duration,
			Options:    backend.Options{Resolution: o.resolution},
		})
		return genErr
	})
	elapsed := o.now().Sub(started)

	markFailed := func(cause error) {
		_, _ = o.store.Update(ctx, id, func(j *domain.Job) error {
			j.Segments[spec.Index].Status = domain.SegmentStatusFailed
			j.Segments[spec.Index].Elapsed = elapsed
			j.Segments[spec.Index].AttemptCount = attempts
			j.Segments[spec.Index].Error = cause.Error()
			return nil
		})
	}

	if err != nil {
		markFailed(err)
		return err
	}

	uri, err := o.upload(ctx, outPath)
	if err != nil {
		markFailed(err)
		return err
	}

	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		j.Segments[spec.Index].Status = domain.SegmentStatusDone
		j.Segments[spec.Index].ArtifactURI = uri
		j.Segments[spec.Index].Elapsed = elapsed
		j.Segments[spec.Index].AttemptCount = attempts
		return nil
	}); err != nil {
		return err
	}

	*clips = append(*clips, outPath)
	o.publish(Event{JobID: id, Type: EventTypeSegment, Segment: spec.Index, Attempts: attempts})
	return nil
}

// cancelRequested reloads the job and reports a pending cancellation.
func (o *Orchestrator) cancelRequested(ctx context.Context, id string) bool {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return true
	}
	return job.CancelRequested || job.Status == domain.JobStatusCanceled
}

// finishCanceled flips a running job to canceled. Already uploaded segment
// artifacts are kept for inspection.
func (o *Orchestrator) finishCanceled(ctx context.Context, id string) {
	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		if j.Status.Terminal() {
			return errStaleJob
		}
		j.Status = domain.JobStatusCanceled
		completed := o.now().UTC()
		j.CompletedAt = &completed
		return nil
	}); err != nil {
		if !errors.Is(err, errStaleJob) {
			log.Printf("jobs: cannot cancel %s: %v", id, err)
		}
		return
	}
	o.publish(Event{JobID: id, Type: EventTypeStatus, Status: domain.JobStatusCanceled})
}

// fail records the structured failure and moves the job to failed.
func (o *Orchestrator) fail(ctx context.Context, id string, cause error) {
	if _, err := o.store.Update(ctx, id, func(j *domain.Job) error {
		if j.Status.Terminal() {
			return errStaleJob
		}
		j.Status = domain.JobStatusFailed
		j.Error = &domain.JobError{
			Kind:    string(backend.KindOf(cause)),
			Message: cause.Error(),
		}
		completed := o.now().UTC()
		j.CompletedAt = &completed
		return nil
	}); err != nil {
		if !errors.Is(err, errStaleJob) {
			log.Printf("jobs: cannot fail %s: %v", id, err)
		}
		return
	}
	o.publish(Event{JobID: id, Type: EventTypeError, Status: domain.JobStatusFailed, Message: cause.Error()})
}

// jobDir is the per-job scratch directory for clips and the final video.
func (o *Orchestrator) jobDir(id string) string {
	return filepath.Join(o.workspace, id)
}

// publish emits an event when a bus is configured.
func (o *Orchestrator) publish(event Event) {
	if o.events != nil {
		o.events.Publish(event)
	}
}
