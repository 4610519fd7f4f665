package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRunInProgress = errors.New("reconciliation already running for this provider and window")
	ErrNotFound      = errors.New("not found")
)

// ValidationError rejects malformed input before matching or scoring begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// DataSourceError means fetching internal or provider transactions failed.
type DataSourceError struct {
	Source   string
	Provider Provider
	Err      error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("fetch %s transactions for %s: %v", e.Source, e.Provider, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// PersistenceError means computed records could not be written. The whole
// run must be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RuleEvaluationError is raised by a single fraud rule family. It never
// aborts an analysis.
type RuleEvaluationError struct {
	Family string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule family %s: %v", e.Family, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
