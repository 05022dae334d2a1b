package syncer

import (
	"errors"
	"fmt"
)

// ErrRunInProgress matches every ConflictError via errors.Is.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// ConflictError is returned when a run is requested while another one holds
// the single-flight slot.
type ConflictError struct {
	RunningRunID string // empty when the running run could not be identified
}

func (e *ConflictError) Error() string {
	if e.RunningRunID == "" {
		return ErrRunInProgress.Error()
	}
	return fmt.Sprintf("%s (run %s)", ErrRunInProgress.Error(), e.RunningRunID)
}

func (e *ConflictError) Unwrap() error {
	return ErrRunInProgress
}

// LedgerPersistenceError means the run ledger could not be read or written.
type LedgerPersistenceError struct {
	Op  string
	Err error
}

func (e *LedgerPersistenceError) Error() string {
	return fmt.Sprintf("run ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerPersistenceError) Unwrap() error {
	return e.Err
}
