// Package derive implements the L1-to-L2 derivation pipeline: a pull
// pipeline of stages that turns raw L1 block data into ordered L2 payload
// attributes, plus the driver that produces the disputed payload.
package derive

import (
	"errors"
	"fmt"
)

var (
	// ErrEof signals that a stage has consumed all data available at the
	// current L1 origin. The consumer pulls the next L1 block upstream.
	ErrEof = errors.New("end of data")

	// ErrNotEnoughData signals that a stage made progress but has no item to
	// emit yet. The caller retries.
	ErrNotEnoughData = errors.New("not enough data")
)

// ResetError requires a full pipeline reset at the last safe origin.
type ResetError struct {
	Err error
}

// Error implements error.
func (e ResetError) Error() string {
	return fmt.Sprintf("reset: %v", e.Err)
}

// Unwrap exposes the cause.
func (e ResetError) Unwrap() error {
	return e.Err
}

// NewResetError wraps an error as a pipeline reset.
func NewResetError(err error) error {
	return ResetError{Err: err}
}

// IsReset reports whether the error demands a pipeline reset.
func IsReset(err error) bool {
	var r ResetError
	return errors.As(err, &r)
}

// CriticalError aborts the scenario.
type CriticalError struct {
	Err error
}

// Error implements error.
func (e CriticalError) Error() string {
	return fmt.Sprintf("critical: %v", e.Err)
}

// Unwrap exposes the cause.
func (e CriticalError) Unwrap() error {
	return e.Err
}

// NewCriticalError wraps an error as fatal to the pipeline.
func NewCriticalError(err error) error {
	return CriticalError{Err: err}
}

// IsCritical reports whether the error is fatal.
func IsCritical(err error) bool {
	var c CriticalError
	return errors.As(err, &c)
}
