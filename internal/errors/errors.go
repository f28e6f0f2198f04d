// Package errors provides the structured error taxonomy for Lentra.
//
// Three error families cover the core:
//   - RAGError: retrieval, indexing, and storage faults, tagged with the
//     operation that failed so callers can map the phase without depending
//     on storage internals.
//   - EvaluationError: scoring strategy faults.
//   - BackendError: embedding or generation backend faults (model missing,
//     endpoint unreachable).
package errors

import (
	"errors"
	"fmt"
)

// RAG operation tags. Callers switch on these rather than on error strings.
const (
	OpInitialize = "initialize"
	OpRetrieve   = "retrieve"
	OpIndex      = "index"
	OpSave       = "save"
)

// RAGError is raised when a retrieval/indexing/storage operation cannot make
// forward progress. Component-internal faults with a documented fallback are
// recovered locally and never surface as RAGError.
type RAGError struct {
	// Op is the operation tag (initialize, retrieve, index, save).
	Op string

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *RAGError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rag %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("rag operation %q failed", e.Op)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RAGError) Unwrap() error {
	return e.Cause
}

// Is matches RAGErrors by operation tag.
func (e *RAGError) Is(target error) bool {
	if t, ok := target.(*RAGError); ok {
		return e.Op == t.Op
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *RAGError) WithDetail(key string, value any) *RAGError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewRAGError creates a RAGError with the given operation tag.
func NewRAGError(op, message string, cause error) *RAGError {
	return &RAGError{Op: op, Message: message, Cause: cause}
}

// WrapRAG wraps an existing error under an operation tag. Returns nil when
// err is nil so call sites can wrap unconditionally. An error that is already
// a RAGError keeps its original tag.
func WrapRAG(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RAGError
	if errors.As(err, &re) {
		return err
	}
	return &RAGError{Op: op, Message: err.Error(), Cause: err}
}

// RAGOp extracts the operation tag from an error chain. Returns "" if the
// chain contains no RAGError.
func RAGOp(err error) string {
	var re *RAGError
	if errors.As(err, &re) {
		return re.Op
	}
	return ""
}

// EvaluationError is raised when a scoring strategy fails as a whole.
// Per-response faults (one judge call failing, unparseable judge output) are
// recovered with neutral fallback scores instead.
type EvaluationError struct {
	// Strategy is the strategy name (heuristic, embedding_similarity,
	// llm_judge, ensemble).
	Strategy string

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("evaluation %s: %s", e.Strategy, e.Message)
	}
	return fmt.Sprintf("evaluation with strategy %q failed", e.Strategy)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates an EvaluationError for the given strategy.
func NewEvaluationError(strategy, message string, cause error) *EvaluationError {
	return &EvaluationError{Strategy: strategy, Message: message, Cause: cause}
}

// BackendError is raised when an embedding or generation backend is
// unavailable or misbehaving. It usually travels as the Cause of a RAGError
// or EvaluationError.
type BackendError struct {
	// Backend identifies the backend (ollama, static, ...).
	Backend string

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Backend, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// NewBackendError creates a BackendError for the given backend.
func NewBackendError(backend, message string, cause error) *BackendError {
	return &BackendError{Backend: backend, Message: message, Cause: cause}
}

// IsBackend reports whether the error chain contains a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
