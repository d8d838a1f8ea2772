package handler

import (
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/infra/buildinfo"
	"github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ConnectionsResponse is the body of GET /connections.
type ConnectionsResponse struct {
	Count       int                      `json:"count"`
	Connections []kineticserver.ConnInfo `json:"connections"`
}

// ScopeView is an ACL scope as reported over HTTP.
type ScopeView struct {
	Offset      int64    `json:"offset"`
	Value       string   `json:"value,omitempty"` // hex
	Permissions []string `json:"permissions"`
	TLSRequired bool     `json:"tls_required,omitempty"`
}

// ACLEntryView is an ACL entry without its key.
type ACLEntryView struct {
	Identity    int64       `json:"identity"`
	Algorithm   string      `json:"algorithm"`
	HasKey      bool        `json:"has_key"`
	MaxPriority int32       `json:"max_priority,omitempty"`
	Scopes      []ScopeView `json:"scopes"`
}

// ACLResponse is the body of GET /acl.
type ACLResponse struct {
	Enabled bool           `json:"enabled"`
	Open    bool           `json:"open"`
	Version uint64         `json:"version"`
	Entries []ACLEntryView `json:"entries"`
}

// StorageResponse is the body of GET /storage.
type StorageResponse struct {
	Engine           string `json:"engine"`
	TotalKeys        uint64 `json:"total_keys"`
	TotalSize        uint64 `json:"total_size"`
	LSMSize          uint64 `json:"lsm_size,omitempty"`
	ValueLogSize     uint64 `json:"value_log_size,omitempty"`
	LastGCTime       int64  `json:"last_gc_time,omitempty"`
	GCBytesReclaimed uint64 `json:"gc_bytes_reclaimed,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Build       buildinfo.Info `json:"build"`
	StartedAt   time.Time      `json:"started_at"`
	Uptime      string         `json:"uptime"`
	Connections int            `json:"connections"`
	Security    bool           `json:"security"`
}
