// Package stubllm provides a deterministic, no-network LLM client
// intended for tests and local development.
package stubllm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"camera-analyze-service/llm"
)

// MatchMode values for Client.
const (
	MatchHash = "hash"
	MatchAll  = "all"
	MatchNone = "none"
)

// Client implements llm.Client without making network calls. Responses
// are derived from a hash of the input so repeated runs agree.
type Client struct {
	// MatchMode selects how AnalyzeImage decides detections:
	// "hash" (default), "all", or "none".
	MatchMode string
}

func NewClient() *Client {
	return &Client{MatchMode: MatchHash}
}

func (c *Client) SourceName() string {
	return "Stub"
}

func (c *Client) AnalyzeImage(ctx context.Context, image llm.Image, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(image.URL + prompt))
	match := sum[0]%2 == 0
	switch c.MatchMode {
	case MatchAll:
		match = true
	case MatchNone:
		match = false
	}
	if !match {
		return `{"match": false, "count": 0, "description": "No matching objects visible", "confidence": "high", "details": "", "additional_observations": ""}`, nil
	}
	count := int(sum[1]%5) + 1
	return fmt.Sprintf(`{"match": true, "count": %d, "description": "Detected %d matching objects", "confidence": "high", "details": "stub detection", "additional_observations": ""}`, count, count), nil
}

func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(prompt, "search_objective") {
		return `{"search_objective": "find stub objects", "count_required": true, "entity_type": "objects", "detection_criteria": "any stub object", "data_to_collect": ["count"], "response_format": "structured"}`, nil
	}
	return `{"result": "ok"}`, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("Stub summary %x", sum[:4]), nil
}
