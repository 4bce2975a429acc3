package entities

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMetadataUnavailable is returned when a content URI cannot be resolved
var ErrMetadataUnavailable = errors.New("metadata unavailable")

// ErrSessionUnavailable is wrapped by SessionError when no wallet session is ready
var ErrSessionUnavailable = errors.New("wallet session unavailable")

// ValidationError reports bad user input. It is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SessionError reports that a wallet session or contract handle is unavailable
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// BackendError carries the messages the backend API reported, verbatim.
// Status is zero when the request never reached the backend.
type BackendError struct {
	Status   int
	Messages []string
}

func (e *BackendError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("backend error (status %d)", e.Status)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.Status, strings.Join(e.Messages, "; "))
}

// TxErrorKind classifies an on-chain failure
type TxErrorKind string

const (
	TxRejected          TxErrorKind = "rejected"
	TxReverted          TxErrorKind = "reverted"
	TxInsufficientFunds TxErrorKind = "insufficient_funds"
	TxTimeout           TxErrorKind = "timeout"
	TxUnknown           TxErrorKind = "unknown"
)

// TxError is a classified transaction failure
type TxError struct {
	Kind   TxErrorKind
	Reason string
	Err    error
}

func (e *TxError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("transaction %s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("transaction %s: %v", e.Kind, e.Err)
	}
	return "transaction " + string(e.Kind)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a user-declined signature request
func IsRejected(err error) bool {
	var txErr *TxError
	return errors.As(err, &txErr) && txErr.Kind == TxRejected
}
