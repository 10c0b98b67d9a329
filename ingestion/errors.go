package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when an index repository is not provided.
	ErrRepositoryRequired = errors.New("index repository required")

	// ErrGeneratorRequired is returned when an embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrInvalidExport is returned when an export file cannot be decoded.
	ErrInvalidExport = errors.New("invalid conversations export")
)
