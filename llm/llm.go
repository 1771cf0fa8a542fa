package llm

import "context"

// Image is a single image handed to a vision model: either a fetchable URL
// (the provider downloads it directly) or raw bytes (sent inline).
type Image struct {
	URL  string
	Data []byte
}

// Client abstracts an LLM provider used by the analyzer.
// Implementations must be concurrency-safe: one analysis run issues many
// AnalyzeImage calls from parallel workers.
type Client interface {
	// AnalyzeImage sends one image plus a prompt to the vision model and
	// returns the model's raw text output (expected to be a JSON object).
	AnalyzeImage(ctx context.Context, image Image, prompt string) (string, error)
	// Complete returns a free-text completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteJSON returns a completion constrained to a JSON object.
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	// SourceName returns a short provider label (e.g., "ChatGPT", "Gemini").
	SourceName() string
}
