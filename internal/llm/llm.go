// Package llm wraps the completion service the translation engine calls.
package llm

import (
	"context"
	"time"
)

// CompletionRequest is a single prompt-contract request.
type CompletionRequest struct {
	Instructions string
	Input        string
}

// CompletionResponse carries the raw generated text.
type CompletionResponse struct {
	OutputText string
}

// Completer is the pipeline's view of the LLM collaborator: an opaque
// request/response text generator with no purity guarantee.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Config configures the completion client.
type Config struct {
	Model     string
	BaseURL   string
	APIKey    string
	APIKeyEnv string
	Timeout   time.Duration
}

const (
	defaultAPIKeyEnv = "VDIP_LLM_API_KEY"
	defaultTimeout   = 60 * time.Second
)
