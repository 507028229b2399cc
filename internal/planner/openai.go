package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// EnhancementInstructions is the system prompt sent to the collaborator.
// The model must answer with a single JSON object matching EnhancementResult.
const EnhancementInstructions = `Split and enhance an input text-to-video prompt into detailed, standalone prompts for short video segments.
Divide the story into segments of roughly equal duration, each with distinct start and end actions, and balance the narrative flow across segments.
Include complete character and scene descriptions in every segment so each prompt stands alone.
For each segment also write a text-to-image prompt describing its last frame; that frame becomes the first frame of the next segment for visual continuity.
Return ONLY a JSON object with these keys:
  "segmentation_logic": {"total_duration_seconds": number, "number_of_segments": number, "reasoning": string}
  "keyframe_prompts": [{"segment": number, "prompt": string}]
  "video_prompts": [{"segment": number, "prompt": string, "first_frame": string, "last_frame": string}]
No markdown. No code blocks. No other text.`

// OpenAIEnhancer calls an OpenAI-compatible chat completions endpoint and
// parses the strict-JSON enhancement response.
type OpenAIEnhancer struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// NewOpenAIEnhancer builds a client with sane defaults.
func NewOpenAIEnhancer(apiKey, baseURL, model string) *OpenAIEnhancer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEnhancer{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Enhance sends instructions and the user prompt, expecting a JSON object
// describing segmentation, keyframe prompts, and video prompts.
func (c *OpenAIEnhancer) Enhance(ctx context.Context, instructions, prompt string) (EnhancementResult, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return EnhancementResult{}, fmt.Errorf("marshal enhancement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewBuffer(data))
	if err != nil {
		return EnhancementResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return EnhancementResult{}, backend.APIError(0, "prompt enhancement request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return EnhancementResult{}, backend.QuotaExceeded("prompt enhancement rate limited: %s", strings.TrimSpace(string(body)))
		}
		return EnhancementResult{}, backend.APIError(resp.StatusCode, "prompt enhancement failed: %s", strings.TrimSpace(string(body)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return EnhancementResult{}, backend.APIError(0, "decode enhancement response: %v", err)
	}
	if len(chat.Choices) == 0 {
		return EnhancementResult{}, backend.APIError(0, "prompt enhancement returned no choices")
	}

	var result EnhancementResult
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return EnhancementResult{}, backend.APIError(0, "enhancement response is not valid JSON: %v", err)
	}
	return result, nil
}
