// Package domain defines the core domain models for the Kinetic simulator.
package domain

import (
	"errors"
	"fmt"
)

// Status is the outcome of a request as reported back to the client.
type Status int

// Request outcomes.
const (
	StatusSuccess Status = iota
	StatusInvalidSequence
	StatusNotAuthorized
	StatusUnsupportedAlgorithm
	StatusNegativeOffset
	StatusEmptyPermissionSet
	StatusUnknownRole
	StatusPersistenceFailed
	StatusInternalError
	StatusInvalidState
	StatusInvalidRequest
	StatusNotFound
	StatusVersionMismatch
	StatusHMACFailure
	StatusInvalidBatch
)

var statusNames = map[Status]string{
	StatusSuccess:              "Success",
	StatusInvalidSequence:      "InvalidSequence",
	StatusNotAuthorized:        "NotAuthorized",
	StatusUnsupportedAlgorithm: "UnsupportedAlgorithm",
	StatusNegativeOffset:       "NegativeOffset",
	StatusEmptyPermissionSet:   "EmptyPermissionSet",
	StatusUnknownRole:          "UnknownRole",
	StatusPersistenceFailed:    "PersistenceFailed",
	StatusInternalError:        "InternalError",
	StatusInvalidState:         "InvalidState",
	StatusInvalidRequest:       "InvalidRequest",
	StatusNotFound:             "NotFound",
	StatusVersionMismatch:      "VersionMismatch",
	StatusHMACFailure:          "HMACFailure",
	StatusInvalidBatch:         "InvalidBatch",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// DomainError represents a domain error with a structured error code and
// the request status it maps to.
type DomainError struct {
	Code    string // Error code (e.g., "KS-SEQ-4000")
	Status  Status // Status reported to the client
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code, status and message.
func NewDomainError(code string, status Status, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Status:  status,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithDetailsf is WithDetails with formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// StatusOf maps an error to the status reported to the client.
// A nil error is a success; errors outside the domain are internal errors.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Status
	}
	return StatusInternalError
}

// ============================================================================
// Request admission errors
// ============================================================================

var (
	// ErrInvalidSequence indicates a sequence number that does not advance
	// the connection's last accepted sequence.
	ErrInvalidSequence = NewDomainError("KS-SEQ-4000", StatusInvalidSequence, "invalid sequence")

	// ErrNotAuthorized indicates the identity lacks the required permission.
	ErrNotAuthorized = NewDomainError("KS-AUTH-4030", StatusNotAuthorized, "not authorized")

	// ErrHMACFailure indicates the request HMAC did not verify.
	ErrHMACFailure = NewDomainError("KS-AUTH-4010", StatusHMACFailure, "hmac verification failed")

	// ErrInvalidRequest indicates a malformed or unsupported request.
	ErrInvalidRequest = NewDomainError("KS-REQ-4000", StatusInvalidRequest, "invalid request")
)

// ============================================================================
// ACL validation errors
// ============================================================================

var (
	// ErrUnsupportedAlgorithm indicates an ACL names an HMAC algorithm outside the supported set.
	ErrUnsupportedAlgorithm = NewDomainError("KS-ACL-4001", StatusUnsupportedAlgorithm, "unsupported hmac algorithm")

	// ErrNegativeOffset indicates a scope offset below zero.
	ErrNegativeOffset = NewDomainError("KS-ACL-4002", StatusNegativeOffset, "offset in scope must be positive")

	// ErrEmptyPermissionSet indicates a scope without permissions.
	ErrEmptyPermissionSet = NewDomainError("KS-ACL-4003", StatusEmptyPermissionSet, "permission is not set")

	// ErrUnknownRole indicates a permission value outside the known set.
	ErrUnknownRole = NewDomainError("KS-ACL-4004", StatusUnknownRole, "permission is invalid")
)

// ============================================================================
// Storage and batch errors
// ============================================================================

var (
	// ErrPersistenceFailed indicates durable ACL state could not be written.
	ErrPersistenceFailed = NewDomainError("KS-SYS-5001", StatusPersistenceFailed, "persistence failed")

	// ErrInternal indicates an internal or storage engine failure.
	ErrInternal = NewDomainError("KS-SYS-5000", StatusInternalError, "internal error")

	// ErrInvalidState indicates an operation on a batch that is no longer open.
	ErrInvalidState = NewDomainError("KS-BATCH-4090", StatusInvalidState, "batch is closed")

	// ErrInvalidBatch indicates an unknown, duplicate or inconsistent batch.
	ErrInvalidBatch = NewDomainError("KS-BATCH-4000", StatusInvalidBatch, "invalid batch")

	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = NewDomainError("KS-KV-4040", StatusNotFound, "key not found")

	// ErrVersionMismatch indicates the stored version differs from the expected one.
	ErrVersionMismatch = NewDomainError("KS-KV-4090", StatusVersionMismatch, "version mismatch")
)
