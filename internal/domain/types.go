package domain

import "time"

// JobStatus tracks the lifecycle of a single video generation job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusProgress JobStatus = "progress"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed from status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusFinished, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// ValidTransition enforces the allowed job state machine edges.
func ValidTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProgress || to == JobStatusCanceled
	case JobStatusProgress:
		return to == JobStatusFinished || to == JobStatusFailed || to == JobStatusCanceled
	default:
		return false
	}
}

// SegmentStatus tracks one segment's processing state.
type SegmentStatus string

const (
	SegmentStatusPending SegmentStatus = "pending"
	SegmentStatusRunning SegmentStatus = "running"
	SegmentStatusDone    SegmentStatus = "done"
	SegmentStatusFailed  SegmentStatus = "failed"
)

// SegmentSpec is one immutable planned segment. Produced once by the
// planner before any dispatch and never mutated afterwards.
type SegmentSpec struct {
	Index          int     `json:"index"`
	VideoPrompt    string  `json:"videoPrompt"`
	KeyframePrompt string  `json:"keyframePrompt,omitempty"`
	Duration       float64 `json:"duration"`
	EstimatedCost  float64 `json:"estimatedCost"`
}

// SegmentResult is the mutable processing record matching a SegmentSpec
// by index. Written only by the worker that owns the job.
type SegmentResult struct {
	Index        int           `json:"index"`
	Status       SegmentStatus `json:"status"`
	ArtifactURI  string        `json:"artifactUri,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
	AttemptCount int           `json:"attemptCount"`
	Error        string        `json:"error,omitempty"`
}

// JobError is the structured failure attached to a FAILED job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the persisted unit of work. ArtifactURI and Error are mutually
// exclusive; each implies its terminal status.
type Job struct {
	ID              string          `json:"id"`
	Prompt          string          `json:"prompt"`
	Title           string          `json:"title,omitempty"`
	Status          JobStatus       `json:"status"`
	BackendName     string          `json:"backendName"`
	Plan            []SegmentSpec   `json:"plan,omitempty"`
	Segments        []SegmentResult `json:"segments,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	ArtifactURI     string          `json:"artifactUri,omitempty"`
	Error           *JobError       `json:"error,omitempty"`
	CancelRequested bool            `json:"cancelRequested"`
}

// Clone returns a deep copy so callers never observe in-place mutation.
func (j Job) Clone() Job {
	out := j
	if j.Plan != nil {
		out.Plan = append([]SegmentSpec(nil), j.Plan...)
	}
	if j.Segments != nil {
		out.Segments = append([]SegmentResult(nil), j.Segments...)
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		out.CompletedAt = &completed
	}
	if j.Error != nil {
		jobErr := *j.Error
		out.Error = &jobErr
	}
	return out
}

// ProgressPercent derives overall completion from segment results.
func (j Job) ProgressPercent() int {
	switch j.Status {
	case JobStatusQueued:
		return 0
	case JobStatusFinished:
		return 100
	}
	if len(j.Segments) == 0 {
		return 0
	}

	done := 0
	for _, seg := range j.Segments {
		if seg.Status == SegmentStatusDone {
			done++
		}
	}
	return done * 100 / len(j.Segments)
}

// ProcessingTime reports elapsed wall-clock time since creation, frozen
// at completion for terminal jobs.
func (j Job) ProcessingTime(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}
