// Package provider talks to OpenAI-compatible chat completion endpoints.
package provider

import "context"

type ChatPayload struct {
	System     string
	User       string
	ExpectJSON bool
	MaxTokens  int
}

// ModelProvider is one configured chat model.
type ModelProvider interface {
	ID() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}
