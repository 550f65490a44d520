package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals an illegal status transition (e.g. cancel after paid).
	ErrConflict = errors.New("illegal status transition")
	// ErrReservationExpired blocks new actions against a lapsed PENDING reservation.
	ErrReservationExpired = errors.New("reservation payment window has lapsed")
)

// ValidationError reports missing or malformed input. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// GatewayError wraps a network or provider failure. Retryable with the same
// transaction identifier.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PartialFailureError means the gateway confirmed the payment as COMPLETED but
// the reservation could not be persisted or linked. The money is captured;
// callers must retry reconciliation with the same transaction identifier and
// must never re-initiate payment.
type PartialFailureError struct {
	TransactionID string
	Err           error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("payment %s captured but reservation not persisted: %v", e.TransactionID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
