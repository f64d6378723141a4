package iface

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrAcquisition  = errors.New("acquisition failed")
	ErrDetection    = errors.New("detection failed")
	ErrComputation  = errors.New("computation error")
)

func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func Computation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrComputation, fmt.Sprintf(format, args...))
}

// Acquisition wraps a frame source failure. cause may be nil.
func Acquisition(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrAcquisition, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrAcquisition, msg, cause)
}

// Detection wraps a detector failure. cause may be nil.
func Detection(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrDetection, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrDetection, msg, cause)
}
