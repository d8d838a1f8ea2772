package metric

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Record(t *testing.T) {
	r := NewRegistry()

	r.ObserveRequest("PUT", "SUCCESS", time.Millisecond)
	r.ObserveRequest("PUT", "SUCCESS", time.Millisecond)
	r.ObserveRequest("GET", "NOT_FOUND", time.Millisecond)
	r.ConnOpened()
	r.ConnOpened()
	r.ConnClosed()
	r.ACLUpdate(ResultFailure)
	r.Batch(ResultSuccess)
	r.SequenceRejected()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"put success", testutil.ToFloat64(r.RequestsTotal.WithLabelValues("PUT", "SUCCESS")), 2},
		{"get not found", testutil.ToFloat64(r.RequestsTotal.WithLabelValues("GET", "NOT_FOUND")), 1},
		{"connections", testutil.ToFloat64(r.ConnectionsActive), 1},
		{"acl failure", testutil.ToFloat64(r.ACLUpdatesTotal.WithLabelValues(ResultFailure)), 1},
		{"batch success", testutil.ToFloat64(r.BatchesTotal.WithLabelValues(ResultSuccess)), 1},
		{"sequence", testutil.ToFloat64(r.SequenceRejections), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.ObserveRequest("NOOP", "SUCCESS", 0)
	r.ConnOpened()
	r.ConnClosed()
	r.ACLUpdate(ResultSuccess)
	r.Batch(ResultAborted)
	r.SequenceRejected()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil registry handler status = %d", rec.Code)
	}
}

func TestCollector(t *testing.T) {
	r := NewRegistry()
	snap := Snapshot{StorageKeys: 3, StorageBytes: 120, ACLIdentities: 2, ACLVersion: 5, SecurityOn: true}
	r.Registerer().MustRegister(NewCollector(func() Snapshot { return snap }))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"kinetic_device_keys 3",
		"kinetic_device_bytes 120",
		"kinetic_acl_identities 2",
		"kinetic_acl_version 5",
		"kinetic_acl_enforced 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
