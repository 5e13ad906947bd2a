package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed query or session id. Surfaced to
	// the caller verbatim; bad input is the caller's responsibility.
	ErrValidation = errors.New("invalid input")
	// ErrProviderUnavailable signals that every LLM credential is
	// exhausted or the provider is down.
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	// ErrRetrievalUnavailable signals a missing or corrupt embedding index.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrTimeoutExceeded signals that a per-call or wall-clock budget ran out.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrToolExecution signals a per-tool failure. Non-fatal: the agent
	// records it as an observation and keeps going.
	ErrToolExecution = errors.New("tool execution failed")
	// ErrInsufficientKnowledge is the confidence-gated result state when
	// retrieval finds nothing relevant enough to answer from.
	ErrInsufficientKnowledge = errors.New("insufficient knowledge")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// ToolError wraps ErrToolExecution with the failing tool's name.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return ErrToolExecution }

// NewToolError creates a tool execution error.
func NewToolError(tool string, err error) error {
	return &ToolError{Tool: tool, Err: err}
}
