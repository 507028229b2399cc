package domain

import "time"

// JobStatusResponse is the compact read-side projection of a job.
type JobStatusResponse struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Progress    int        `json:"progress"`
	ArtifactURI string     `json:"artifactUri,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobDetailsResponse adds segment-level results and error detail for
// troubleshooting. Pure derivation of job state, no side effects.
type JobDetailsResponse struct {
	JobStatusResponse
	Prompt         string          `json:"prompt"`
	Title          string          `json:"title,omitempty"`
	BackendName    string          `json:"backendName"`
	Plan           []SegmentSpec   `json:"plan,omitempty"`
	Segments       []SegmentResult `json:"segments,omitempty"`
	Error          *JobError       `json:"error,omitempty"`
	ProcessingTime time.Duration   `json:"processingTime"`
}

// StatusResponse builds the compact projection for list and poll endpoints.
func (j Job) StatusResponse() JobStatusResponse {
	return JobStatusResponse{
		ID:          j.ID,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Progress:    j.ProgressPercent(),
		ArtifactURI: j.ArtifactURI,
		CompletedAt: j.CompletedAt,
	}
}

// DetailsResponse builds the rich projection for diagnostics views.
func (j Job) DetailsResponse(now time.Time) JobDetailsResponse {
	clone := j.Clone()
	return JobDetailsResponse{
		JobStatusResponse: clone.StatusResponse(),
		Prompt:            clone.Prompt,
		Title:             clone.Title,
		BackendName:       clone.BackendName,
		Plan:              clone.Plan,
		Segments:          clone.Segments,
		Error:             clone.Error,
		ProcessingTime:    clone.ProcessingTime(now),
	}
}
