package kineticserver

import (
	"errors"
	"fmt"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// StatusCode is the wire status of a response.
type StatusCode int32

// Status codes.
const (
	StatusNotAttempted        StatusCode = 0
	StatusSuccess             StatusCode = 1
	StatusHMACFailure         StatusCode = 2
	StatusNotAuthorized       StatusCode = 3
	StatusInternalError       StatusCode = 5
	StatusNotFound            StatusCode = 7
	StatusVersionMismatch     StatusCode = 8
	StatusServiceBusy         StatusCode = 9
	StatusNoSuchHMACAlgorithm StatusCode = 15
	StatusInvalidRequest      StatusCode = 16
	StatusInvalidBatch        StatusCode = 21
)

var statusCodeNames = map[StatusCode]string{
	StatusNotAttempted:        "NOT_ATTEMPTED",
	StatusSuccess:             "SUCCESS",
	StatusHMACFailure:         "HMAC_FAILURE",
	StatusNotAuthorized:       "NOT_AUTHORIZED",
	StatusInternalError:       "INTERNAL_ERROR",
	StatusNotFound:            "NOT_FOUND",
	StatusVersionMismatch:     "VERSION_MISMATCH",
	StatusServiceBusy:         "SERVICE_BUSY",
	StatusNoSuchHMACAlgorithm: "NO_SUCH_HMAC_ALGORITHM",
	StatusInvalidRequest:      "INVALID_REQUEST",
	StatusInvalidBatch:        "INVALID_BATCH",
}

func (c StatusCode) String() string {
	if name, ok := statusCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("StatusCode(%d)", int32(c))
}

// errServiceBusy reports a connection over its request rate.
var errServiceBusy = errors.New("request rate exceeded")

// statusFor maps a handler error to the wire status and message.
func statusFor(err error) Status {
	if err == nil {
		return Status{Code: StatusSuccess}
	}
	if errors.Is(err, errServiceBusy) {
		return Status{Code: StatusServiceBusy, Message: err.Error()}
	}

	var de *domain.DomainError
	if !errors.As(err, &de) {
		return Status{Code: StatusInternalError, Message: "internal error"}
	}

	msg := de.Message
	if de.Details != "" {
		msg += ": " + de.Details
	}

	switch de.Status {
	case domain.StatusSuccess:
		return Status{Code: StatusSuccess}
	case domain.StatusInvalidSequence, domain.StatusInvalidRequest:
		return Status{Code: StatusInvalidRequest, Message: msg}
	case domain.StatusNotAuthorized:
		return Status{Code: StatusNotAuthorized, Message: msg}
	case domain.StatusHMACFailure:
		return Status{Code: StatusHMACFailure, Message: msg}
	case domain.StatusUnsupportedAlgorithm:
		return Status{Code: StatusNoSuchHMACAlgorithm, Message: msg}
	case domain.StatusNotFound:
		return Status{Code: StatusNotFound, Message: msg}
	case domain.StatusVersionMismatch:
		return Status{Code: StatusVersionMismatch, Message: msg}
	case domain.StatusInvalidState, domain.StatusInvalidBatch:
		return Status{Code: StatusInvalidBatch, Message: msg}
	case domain.StatusNegativeOffset:
		return Status{Code: StatusInternalError, Message: "Offset in scope is less than 0: " + de.Details}
	case domain.StatusEmptyPermissionSet:
		return Status{Code: StatusInternalError, Message: "No permission set in acl: " + de.Details}
	case domain.StatusUnknownRole:
		return Status{Code: StatusInternalError, Message: "Permission is invalid in acl: " + de.Details}
	case domain.StatusPersistenceFailed:
		return Status{Code: StatusInternalError, Message: "Failed to persist acl: " + de.Details}
	default:
		return Status{Code: StatusInternalError, Message: msg}
	}
}
