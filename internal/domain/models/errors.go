package models

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrDataShape         = errors.New("unexpected payload shape")
	ErrPersistence       = errors.New("persistence failed")
	ErrUniverseRead      = errors.New("universe read failed")
	ErrSchemaSetup       = errors.New("schema setup failed")
	ErrAuditQuery        = errors.New("audit query failed")
	ErrDownloadFailed    = errors.New("download failed")
	ErrTooFewPeriods     = errors.New("fewer than 2 periods")
)

// SourceError is a failed fetch against one backend.
type SourceError struct {
	Backend BackendName
	Detail  string
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Detail, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError builds a SourceError; kind should be ErrSourceUnavailable or ErrDataShape.
func NewSourceError(backend BackendName, kind error, format string, args ...interface{}) *SourceError {
	return &SourceError{Backend: backend, Detail: fmt.Sprintf(format, args...), Err: kind}
}
