// Package vision wraps multimodal inference endpoints behind a single-call interface.
package vision

import "context"

// Request is one multimodal completion: a text prompt followed by an inline image.
type Request struct {
	Prompt string
	// ImageURL is normally a data: URI carrying the base64 payload.
	ImageURL  string
	MaxTokens int
}

// Client submits a request and returns the first choice's text verbatim.
// Implementations hold no per-call state and are safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}
