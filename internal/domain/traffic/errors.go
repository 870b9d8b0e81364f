package traffic

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid input")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotFound         = errors.New("not found")
	ErrStore            = errors.New("store error")
	ErrDataSource       = errors.New("data source error")
	ErrPersistence      = errors.New("persistence error")
	ErrSaveInProgress   = errors.New("save already in progress")
)

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CapacityError reports a manual allocation whose editable lanes no longer
// fit in the cycle. Lane is zero when the condition came from a total edit.
type CapacityError struct {
	Lane      Lane `json:"lane,omitempty"`
	Requested int  `json:"requested,omitempty"`
	Total     int  `json:"total_cycle_time"`
	Assigned  int  `json:"assigned"`
}

func (e *CapacityError) Error() string {
	if e.Lane == 0 {
		return fmt.Sprintf("%s: assigned green times (%ds) exceed total cycle time (%ds)",
			ErrCapacityExceeded, e.Assigned, e.Total)
	}
	return fmt.Sprintf("%s: insufficient green time available for %s lane (requested %ds, %ds of %ds already assigned); reduce other lanes",
		ErrCapacityExceeded, e.Lane, e.Requested, e.Assigned, e.Total)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// StoreError wraps a failed call on a backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// NewStoreError returns nil for a nil err so repositories can wrap blindly.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// DataSourceError marks a read-path collaborator failure.
func DataSourceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataSource, op, err)
}

// PersistenceError marks a failed save; the caller's state is unchanged.
func PersistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
