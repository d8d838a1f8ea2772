package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name   string
		server string
		tls    *tls.Config
		want   string
	}{
		{"with http prefix", "http://localhost:8180", nil, "http://localhost:8180"},
		{"with https prefix", "https://localhost:8180/", nil, "https://localhost:8180"},
		{"without prefix", "localhost:8180", nil, "http://localhost:8180"},
		{"tls without prefix", "drive-1:8180", &tls.Config{}, "https://drive-1:8180"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.server, tt.tls, 0)
			if client.BaseURL() != tt.want {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), tt.want)
			}
		})
	}
}

func TestHTTPClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "kinetic-cli/") {
			t.Errorf("User-Agent = %q", ua)
		}
		if r.URL.Path != "/status" {
			t.Errorf("path = %q, want /status", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"OK","message":"success","data":{"connections":3,"security":true}}`))
	}))
	defer server.Close()

	var out struct {
		Connections int  `json:"connections"`
		Security    bool `json:"security"`
	}
	client := NewHTTPClient(server.URL, nil, time.Second)
	if err := client.Fetch(context.Background(), "/status", &out); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Connections != 3 || !out.Security {
		t.Errorf("decoded %+v", out)
	}
}

func TestHTTPClient_FetchError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"envelope", http.StatusNotFound, `{"code":"KS-CONN-4040","message":"connection not found"}`, "KS-CONN-4040", "[KS-CONN-4040] connection not found"},
		{"plain text", http.StatusBadGateway, "bad gateway", "", "request failed with status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewHTTPClient(server.URL, nil, time.Second).Fetch(context.Background(), "/x", nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Fetch() error = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Code != tt.wantCode {
				t.Errorf("APIError = %+v", apiErr)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	err := NewHTTPClient(server.URL, nil, time.Second).Fetch(context.Background(), "/", nil)
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("Fetch() error = %v", err)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := NewHTTPClient(url, nil, time.Second).Fetch(context.Background(), "/", nil); err == nil {
		t.Error("Fetch() against closed server succeeded")
	}
}
