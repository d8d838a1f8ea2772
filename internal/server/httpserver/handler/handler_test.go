package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
	"github.com/stephzylstra/kinetic-sim/internal/storage"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
)

type fakeConns []kineticserver.ConnInfo

func (f fakeConns) Connections() []kineticserver.ConnInfo { return f }

func (f fakeConns) Connection(id int64) (kineticserver.ConnInfo, bool) {
	for _, c := range f {
		if c.ID == id {
			return c, true
		}
	}
	return kineticserver.ConnInfo{}, false
}

type fakeACL struct {
	enabled bool
	table   *domain.ACLTable
}

func (f *fakeACL) Enabled() bool           { return f.enabled }
func (f *fakeACL) Table() *domain.ACLTable { return f.table }

type fakeStorage struct {
	stats *storage.KVStats
	err   error
}

func (f *fakeStorage) Stats(context.Context) (*storage.KVStats, error) { return f.stats, f.err }

func newRouter(deps Deps) http.Handler {
	deps.Logger = logger.Discard()
	h := New(deps)
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/status", h.Status)
	r.Get("/connections", h.ListConnections)
	r.Get("/connections/{id}", h.GetConnection)
	r.Get("/acl", h.ACL)
	r.Get("/storage", h.Storage)
	return r
}

// get performs a request and decodes the envelope's data into out.
func get(t *testing.T, h http.Handler, path string, out any) (int, *Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("%s: decode body %q: %v", path, rec.Body.String(), err)
	}
	if out != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, out); err != nil {
			t.Fatalf("%s: decode data: %v", path, err)
		}
	}
	return rec.Code, &raw.Response
}

func TestHealth(t *testing.T) {
	h := newRouter(Deps{})
	code, resp := get(t, h, "/health", nil)
	if code != http.StatusOK || resp.Code != "OK" {
		t.Errorf("GET /health = %d %s", code, resp.Code)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name    string
		storage StorageSource
		want    int
	}{
		{"no storage", nil, http.StatusServiceUnavailable},
		{"storage failing", &fakeStorage{err: errors.New("closed")}, http.StatusServiceUnavailable},
		{"storage ok", &fakeStorage{stats: &storage.KVStats{Engine: "memory"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := get(t, newRouter(Deps{Storage: tt.storage}), "/ready", nil)
			if code != tt.want {
				t.Errorf("GET /ready = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestConnections(t *testing.T) {
	opened := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	conns := fakeConns{
		{ID: 101, RemoteAddr: "127.0.0.1:5000", TraceID: "a", OpenedAt: opened, Requests: 4, LastSequence: 3},
		{ID: 102, RemoteAddr: "127.0.0.1:5001", TraceID: "b", OpenedAt: opened, OpenBatches: 1},
	}
	h := newRouter(Deps{Connections: conns})

	var list ConnectionsResponse
	if code, _ := get(t, h, "/connections", &list); code != http.StatusOK {
		t.Fatalf("GET /connections = %d", code)
	}
	if diff := cmp.Diff(ConnectionsResponse{Count: 2, Connections: conns}, list); diff != "" {
		t.Errorf("connections mismatch (-want +got):\n%s", diff)
	}

	var one kineticserver.ConnInfo
	if code, _ := get(t, h, "/connections/102", &one); code != http.StatusOK {
		t.Fatalf("GET /connections/102 = %d", code)
	}
	if diff := cmp.Diff(conns[1], one); diff != "" {
		t.Errorf("connection mismatch (-want +got):\n%s", diff)
	}

	if code, resp := get(t, h, "/connections/7", nil); code != http.StatusNotFound || resp.Code != "KS-CONN-4040" {
		t.Errorf("GET /connections/7 = %d %s", code, resp.Code)
	}
	if code, _ := get(t, h, "/connections/abc", nil); code != http.StatusBadRequest {
		t.Errorf("GET /connections/abc = %d, want 400", code)
	}
}

func TestConnections_NotRunning(t *testing.T) {
	h := newRouter(Deps{})
	for _, path := range []string{"/connections", "/connections/1", "/acl", "/storage"} {
		if code, _ := get(t, h, path, nil); code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, code)
		}
	}
}

func TestACL_HidesKeys(t *testing.T) {
	table := domain.NewACLTable([]*domain.ACL{{
		Identity:      1,
		Key:           []byte("asdfasdf"),
		HMACAlgorithm: domain.HMACSHA1,
		Scopes: []domain.Scope{{
			Offset:      2,
			Value:       []byte{0xab},
			Permissions: []domain.Permission{domain.PermissionRead, domain.PermissionWrite},
		}},
	}})
	h := newRouter(Deps{ACL: &fakeACL{enabled: true, table: table}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/acl", nil))
	if body := rec.Body.String(); strings.Contains(body, "asdfasdf") {
		t.Fatalf("ACL body leaks key: %s", body)
	}

	var got ACLResponse
	get(t, h, "/acl", &got)
	want := ACLResponse{
		Enabled: true,
		Version: table.Version(),
		Entries: []ACLEntryView{{
			Identity:  1,
			Algorithm: domain.HMACSHA1.String(),
			HasKey:    true,
			Scopes: []ScopeView{{
				Offset:      2,
				Value:       "ab",
				Permissions: []string{domain.PermissionRead.String(), domain.PermissionWrite.String()},
			}},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ACL mismatch (-want +got):\n%s", diff)
	}
}

func TestACL_OpenMode(t *testing.T) {
	h := newRouter(Deps{ACL: &fakeACL{enabled: true}})
	var got ACLResponse
	get(t, h, "/acl", &got)
	if !got.Open || len(got.Entries) != 0 {
		t.Errorf("ACL = %+v, want open with no entries", got)
	}
}

func TestStorage(t *testing.T) {
	st := &fakeStorage{stats: &storage.KVStats{Engine: "badger", TotalKeys: 12, TotalSize: 4096, LSMSize: 1024}}
	var got StorageResponse
	if code, _ := get(t, newRouter(Deps{Storage: st}), "/storage", &got); code != http.StatusOK {
		t.Fatalf("GET /storage = %d", code)
	}
	want := StorageResponse{Engine: "badger", TotalKeys: 12, TotalSize: 4096, LSMSize: 1024}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("storage mismatch (-want +got):\n%s", diff)
	}

	st.err = errors.New("closed")
	if code, _ := get(t, newRouter(Deps{Storage: st}), "/storage", nil); code != http.StatusInternalServerError {
		t.Errorf("GET /storage with failing engine = %d, want 500", code)
	}
}

func TestStatus(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	h := newRouter(Deps{
		Connections: fakeConns{{ID: 1}},
		ACL:         &fakeACL{enabled: true},
		StartedAt:   started,
	})
	var got StatusResponse
	if code, _ := get(t, h, "/status", &got); code != http.StatusOK {
		t.Fatalf("GET /status = %d", code)
	}
	if got.Connections != 1 || !got.Security {
		t.Errorf("status = %+v", got)
	}
	if got.StartedAt.Unix() != started.Unix() {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Build.GoVersion == "" {
		t.Error("status has no Go version")
	}
}
