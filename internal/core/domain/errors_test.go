package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("KS-TEST-1000", StatusInternalError, "test message"),
			expected: "[KS-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("KS-TEST-1001", StatusInternalError, "test message").WithDetails("extra info"),
			expected: "[KS-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("KS-TEST-1000", StatusInternalError, "message 1")
	err2 := NewDomainError("KS-TEST-1000", StatusInternalError, "message 2")
	err3 := NewDomainError("KS-TEST-1001", StatusInternalError, "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := ErrPersistenceFailed.WithCause(cause)

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if errors.Unwrap(ErrInternal) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_WithDetails(t *testing.T) {
	withDetails := ErrInvalidSequence.WithDetailsf("invalid sequence id: %d", 3)

	if ErrInvalidSequence.Details != "" {
		t.Error("WithDetails should not modify original error")
	}
	if withDetails.Details != "invalid sequence id: 3" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "invalid sequence id: 3")
	}
	if withDetails.Code != ErrInvalidSequence.Code || withDetails.Status != StatusInvalidSequence {
		t.Errorf("code/status not preserved: %s/%s", withDetails.Code, withDetails.Status)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusSuccess},
		{"domain", ErrNotAuthorized, StatusNotAuthorized},
		{"wrapped domain", fmt.Errorf("apply: %w", ErrNegativeOffset.WithDetails("x")), StatusNegativeOffset},
		{"foreign", errors.New("disk on fire"), StatusInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(fmt.Errorf("wrapped: %w", ErrUnknownRole)); got != "KS-ACL-4004" {
		t.Errorf("GetErrorCode() = %q, want %q", got, "KS-ACL-4004")
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode() = %q, want empty", got)
	}
	if !IsDomainError(ErrVersionMismatch, "") {
		t.Error("IsDomainError should accept any domain error with empty code")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err    *DomainError
		code   string
		status Status
	}{
		{ErrInvalidSequence, "KS-SEQ-4000", StatusInvalidSequence},
		{ErrNotAuthorized, "KS-AUTH-4030", StatusNotAuthorized},
		{ErrHMACFailure, "KS-AUTH-4010", StatusHMACFailure},
		{ErrInvalidRequest, "KS-REQ-4000", StatusInvalidRequest},
		{ErrUnsupportedAlgorithm, "KS-ACL-4001", StatusUnsupportedAlgorithm},
		{ErrNegativeOffset, "KS-ACL-4002", StatusNegativeOffset},
		{ErrEmptyPermissionSet, "KS-ACL-4003", StatusEmptyPermissionSet},
		{ErrUnknownRole, "KS-ACL-4004", StatusUnknownRole},
		{ErrPersistenceFailed, "KS-SYS-5001", StatusPersistenceFailed},
		{ErrInternal, "KS-SYS-5000", StatusInternalError},
		{ErrInvalidState, "KS-BATCH-4090", StatusInvalidState},
		{ErrInvalidBatch, "KS-BATCH-4000", StatusInvalidBatch},
		{ErrNotFound, "KS-KV-4040", StatusNotFound},
		{ErrVersionMismatch, "KS-KV-4090", StatusVersionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Error code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Status != tt.status {
				t.Errorf("Status = %v, want %v", tt.err.Status, tt.status)
			}
			if tt.err.Message == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}
