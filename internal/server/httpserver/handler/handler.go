package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
	"github.com/stephzylstra/kinetic-sim/internal/storage"
)

// ConnectionSource lists open device connections.
type ConnectionSource interface {
	Connections() []kineticserver.ConnInfo
	Connection(id int64) (kineticserver.ConnInfo, bool)
}

// ACLSource exposes the current ACL snapshot.
type ACLSource interface {
	Enabled() bool
	Table() *domain.ACLTable
}

// StorageSource reports storage statistics.
type StorageSource interface {
	Stats(ctx context.Context) (*storage.KVStats, error)
}

// Deps are the device components the handlers read from. Nil sources
// make their endpoints report 503.
type Deps struct {
	Connections ConnectionSource
	ACL         ACLSource
	Storage     StorageSource
	Logger      *slog.Logger
	StartedAt   time.Time
}

// Handler serves the ops endpoints.
type Handler struct {
	conns     ConnectionSource
	acl       ACLSource
	storage   StorageSource
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a Handler.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &Handler{
		conns:     deps.Connections,
		acl:       deps.ACL,
		storage:   deps.Storage,
		logger:    deps.Logger,
		startedAt: deps.StartedAt,
	}
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	response := NewResponse(getRequestID(w), data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	response := NewErrorResponse(getRequestID(w), code, message, nil)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// getRequestID returns the id the RequestID middleware put on the response.
func getRequestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}
