// Package planner turns one user prompt into an ordered, immutable segment
// plan via a prompt-enhancement collaborator, and produces pre-flight cost
// estimates without dispatching any generation.
package planner

import (
	"context"
	"sort"
	"strings"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// SegmentationLogic explains how the collaborator split the prompt.
type SegmentationLogic struct {
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	NumberOfSegments     int     `json:"number_of_segments"`
	Reasoning            string  `json:"reasoning"`
}

// KeyframePrompt is a text-to-image prompt for one segment's last frame.
type KeyframePrompt struct {
	Segment int    `json:"segment"`
	Prompt  string `json:"prompt"`
}

// VideoPrompt is a text-to-video prompt for one segment.
type VideoPrompt struct {
	Segment    int    `json:"segment"`
	Prompt     string `json:"prompt"`
	FirstFrame string `json:"first_frame,omitempty"`
	LastFrame  string `json:"last_frame,omitempty"`
}

// EnhancementResult is the collaborator's parsed response.
type EnhancementResult struct {
	SegmentationLogic SegmentationLogic `json:"segmentation_logic"`
	KeyframePrompts   []KeyframePrompt  `json:"keyframe_prompts"`
	VideoPrompts      []VideoPrompt     `json:"video_prompts"`
}

// Enhancer is the external prompt-enhancement collaborator.
type Enhancer interface {
	Enhance(ctx context.Context, instructions, prompt string) (EnhancementResult, error)
}

// Plan is the immutable segment plan computed once per job, before any
// backend dispatch.
type Plan struct {
	Segments  []domain.SegmentSpec
	Reasoning string
}

// TotalDuration sums segment durations.
func (p Plan) TotalDuration() float64 {
	total := 0.0
	for _, seg := range p.Segments {
		total += seg.Duration
	}
	return total
}

// Planner computes segment plans from user prompts.
type Planner struct {
	enhancer        Enhancer
	segmentDuration float64
	instructions    string
}

// New builds a planner with the given default per-segment duration.
func New(enhancer Enhancer, segmentDuration float64) *Planner {
	if segmentDuration <= 0 {
		segmentDuration = 5
	}
	return &Planner{
		enhancer:        enhancer,
		segmentDuration: segmentDuration,
		instructions:    EnhancementInstructions,
	}
}

// Plan asks the collaborator to split the prompt and builds ordered
// segment specifications. Cost fields are zero until WithCosts is applied.
func (p *Planner) Plan(ctx context.Context, prompt string) (Plan, error) {
	if strings.TrimSpace(prompt) == "" {
		return Plan{}, backend.InvalidInput("prompt cannot be empty")
	}

	result, err := p.enhancer.Enhance(ctx, p.instructions, prompt)
	if err != nil {
		return Plan{}, err
	}

	prompts := append([]VideoPrompt(nil), result.VideoPrompts...)
	if len(prompts) == 0 {
		// Degenerate enhancement: fall back to a single segment carrying
		// the original prompt.
		prompts = []VideoPrompt{{Segment: 1, Prompt: prompt}}
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].Segment < prompts[j].Segment })

	keyframes := make(map[int]string, len(result.KeyframePrompts))
	for _, kf := range result.KeyframePrompts {
		keyframes[kf.Segment] = kf.Prompt
	}

	duration := p.segmentDuration
	if logic := result.SegmentationLogic; logic.NumberOfSegments > 0 && logic.TotalDurationSeconds > 0 {
		duration = logic.TotalDurationSeconds / float64(logic.NumberOfSegments)
	}

	segments := make([]domain.SegmentSpec, 0, len(prompts))
	for i, vp := range prompts {
		segments = append(segments, domain.SegmentSpec{
			Index:          i,
			VideoPrompt:    vp.Prompt,
			KeyframePrompt: keyframes[vp.Segment],
			Duration:       duration,
		})
	}

	return Plan{Segments: segments, Reasoning: result.SegmentationLogic.Reasoning}, nil
}

// WithCosts returns a copy of the plan with per-segment cost estimates from
// the selected backend.
func (p Plan) WithCosts(gen backend.VideoGenerator, resolution string) Plan {
	out := Plan{Reasoning: p.Reasoning, Segments: append([]domain.SegmentSpec(nil), p.Segments...)}
	for i := range out.Segments {
		out.Segments[i].EstimatedCost = gen.EstimateCost(out.Segments[i].Duration, resolution)
	}
	return out
}

// Estimate is the dry-run projection surfaced to callers: planning and
// costing only, never a generation dispatch.
type Estimate struct {
	Prompt          string  `json:"prompt"`
	Backend         string  `json:"backend"`
	SegmentCount    int     `json:"segmentCount"`
	SegmentDuration float64 `json:"segmentDuration"`
	TotalDuration   float64 `json:"totalDuration"`
	CostPerSegment  float64 `json:"costPerSegment"`
	TotalCost       float64 `json:"totalCost"`
	Reasoning       string  `json:"reasoning"`
}

// BuildEstimate derives the pre-flight quote from a costed plan.
func BuildEstimate(prompt, backendName string, plan Plan) Estimate {
	est := Estimate{
		Prompt:        prompt,
		Backend:       backendName,
		SegmentCount:  len(plan.Segments),
		TotalDuration: plan.TotalDuration(),
		Reasoning:     plan.Reasoning,
	}
	if len(plan.Segments) > 0 {
		est.SegmentDuration = plan.Segments[0].Duration
		est.CostPerSegment = plan.Segments[0].EstimatedCost
	}
	for _, seg := range plan.Segments {
		est.TotalCost += seg.EstimatedCost
	}
	return est
}
