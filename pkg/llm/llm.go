// Package llm provides the text generation client used by the workflow
// execution job.
package llm

import (
	"context"
)

// GenerateRequest carries a single prompt for the model.
type GenerateRequest struct {
	System string
	Prompt string
}

// GenerateResponse is the model output for one request.
type GenerateResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator produces text from a prompt. The execution job depends on this
// interface, not on a concrete provider.
type Generator interface {
	GenerateText(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
