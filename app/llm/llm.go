// Package llm is the generative-model collaborator used by the AI endpoints.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every transport, status and decoding failure of a model call.
var ErrUnavailable = errors.New("model unavailable")

// Request is one completion call. MaxTokens and Temperature vary per attempt.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
