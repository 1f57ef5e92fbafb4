// Package llm executes prompts against the model chosen by a router.
//
// Providers are reached through an OpenAI-compatible endpoint via
// langchaingo. CachedClient adds response caching and rate limiting in
// front of any Client.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// Client completes a single prompt with the named model.
type Client interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, model, prompt string) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}
