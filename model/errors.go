package model

import "errors"

var (
	// ErrValidation marks malformed, oversized or unreadable input. No job is created.
	ErrValidation = errors.New("validation error")
	// ErrProvider marks an embedding provider failure after retries.
	ErrProvider = errors.New("provider error")
	// ErrPersistence marks a store write failure.
	ErrPersistence = errors.New("persistence error")
	// ErrCancelled marks a job cancelled by the caller.
	ErrCancelled = errors.New("job cancelled")
	// ErrDocumentVersionExists is returned when a (source id, version) pair is ingested twice.
	ErrDocumentVersionExists = errors.New("document version already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
)
