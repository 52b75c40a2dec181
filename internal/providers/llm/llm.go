package llm

import (
	"context"
	"fmt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"` // user|assistant
	Content string `json:"content"`
}

type Request struct {
	SystemPrompt string
	History      []Message
	Temperature  float32
	MaxTokens    int
	// JSON asks the backend for a JSON object reply when it supports it.
	JSON bool
}

type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Close() error
}

// Error carries an HTTP-style status and a readable detail from the backend.
type Error struct {
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference failed (%d): %s", e.Status, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }
