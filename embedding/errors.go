package embedding

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrCountMismatch indicates the service returned a different number of
	// vectors than inputs sent.
	ErrCountMismatch = errors.New("embedding count mismatch")

	// ErrEmbedderPanic indicates the embedder panicked during a call.
	ErrEmbedderPanic = errors.New("embedder panicked")
)
