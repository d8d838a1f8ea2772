package handler

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/infra/buildinfo"
)

// ListConnections handles GET /connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	if h.conns == nil {
		h.writeError(w, http.StatusServiceUnavailable, "KS-SYS-5030", "kinetic server not running")
		return
	}
	conns := h.conns.Connections()
	h.writeJSON(w, http.StatusOK, ConnectionsResponse{Count: len(conns), Connections: conns})
}

// GetConnection handles GET /connections/{id}.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	if h.conns == nil {
		h.writeError(w, http.StatusServiceUnavailable, "KS-SYS-5030", "kinetic server not running")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "KS-REQ-4000", "connection id must be an integer")
		return
	}
	c, ok := h.conns.Connection(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "KS-CONN-4040", "connection not found")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// ACL handles GET /acl. Keys are never included.
func (h *Handler) ACL(w http.ResponseWriter, r *http.Request) {
	if h.acl == nil {
		h.writeError(w, http.StatusServiceUnavailable, "KS-SYS-5030", "security not configured")
		return
	}
	table := h.acl.Table()
	resp := ACLResponse{
		Enabled: h.acl.Enabled(),
		Open:    table == nil,
		Version: table.Version(),
		Entries: []ACLEntryView{},
	}
	for _, acl := range table.Entries() {
		resp.Entries = append(resp.Entries, viewACL(acl))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func viewACL(acl *domain.ACL) ACLEntryView {
	v := ACLEntryView{
		Identity:    acl.Identity,
		Algorithm:   acl.HMACAlgorithm.String(),
		HasKey:      len(acl.Key) > 0,
		MaxPriority: acl.MaxPriority,
		Scopes:      make([]ScopeView, 0, len(acl.Scopes)),
	}
	for _, s := range acl.Scopes {
		sv := ScopeView{
			Offset:      s.Offset,
			Value:       hex.EncodeToString(s.Value),
			Permissions: make([]string, 0, len(s.Permissions)),
			TLSRequired: s.TLSRequired,
		}
		for _, p := range s.Permissions {
			sv.Permissions = append(sv.Permissions, p.String())
		}
		v.Scopes = append(v.Scopes, sv)
	}
	return v
}

// Storage handles GET /storage.
func (h *Handler) Storage(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		h.writeError(w, http.StatusServiceUnavailable, "KS-SYS-5030", "storage not configured")
		return
	}
	st, err := h.storage.Stats(r.Context())
	if err != nil {
		h.logger.Error("storage stats failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "KS-SYS-5000", "storage stats unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, StorageResponse{
		Engine:           st.Engine,
		TotalKeys:        st.TotalKeys,
		TotalSize:        st.TotalSize,
		LSMSize:          st.LSMSize,
		ValueLogSize:     st.ValueLogSize,
		LastGCTime:       st.LastGCTime,
		GCBytesReclaimed: st.GCBytesReclaimed,
	})
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Build:     buildinfo.Get(),
		StartedAt: h.startedAt.UTC(),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.conns != nil {
		resp.Connections = len(h.conns.Connections())
	}
	if h.acl != nil {
		resp.Security = h.acl.Enabled()
	}
	h.writeJSON(w, http.StatusOK, resp)
}
