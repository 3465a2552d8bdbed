package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageMissing marks a persisted file that does not exist yet. Stores
	// treat it as empty on first use.
	ErrStorageMissing = errors.New("storage file does not exist")

	// ErrCorpusUnavailable is returned when no corpus has been loaded.
	ErrCorpusUnavailable = errors.New("corpus not loaded")

	// ErrDuplicateID is returned when duplicate ids are rejected by policy.
	ErrDuplicateID = errors.New("duplicate item id")

	// ErrInvalidPayload wraps every PayloadError.
	ErrInvalidPayload = errors.New("invalid payload")
)

// StorageReadError reports a persisted file that could not be read when a
// read was required.
type StorageReadError struct {
	Path string
	Err  error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector of the wrong dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// EncodingError reports an encoder failure or timeout.
type EncodingError struct {
	Model string
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("encoding with %s failed: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Ingestion stages reported by IngestionPartialFailure.
const (
	StageMetadata  = "metadata"
	StageEmbedding = "embedding"
	StageRollback  = "rollback"
	StageJournal   = "journal"
)

// IngestionPartialFailure reports that the metadata and embedding stores
// diverged. It is surfaced and never retried, since a retry could append the
// metadata twice.
type IngestionPartialFailure struct {
	Stage string
	Err   error
}

func (e *IngestionPartialFailure) Error() string {
	return fmt.Sprintf("partial ingestion failure at %s stage: %v", e.Stage, e.Err)
}

func (e *IngestionPartialFailure) Unwrap() error { return e.Err }

// QueryParseError reports a query field that could not be parsed into its
// derived form. It is not fatal.
type QueryParseError struct {
	Field  string
	Value  string
	Reason string
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("cannot parse %s %q: %s", e.Field, e.Value, e.Reason)
}

// PayloadError reports an invalid ingestion payload.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid payload field %s: %s", e.Field, e.Reason)
}

func (e *PayloadError) Unwrap() error { return ErrInvalidPayload }
