package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRedactSensitive(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"hmac string", slog.String("hmac", "abcd"), redactedValue},
		{"acl key bytes", slog.Any("acl_key", []byte("asdfasdf")), redactedValue},
		{"seal key", slog.String("seal_key", "0123"), redactedValue},
		{"empty secret kept", slog.String("secret", ""), ""},
		{"data key kept", slog.String("key", "users/1"), "users/1"},
		{"ordinary attr", slog.String("identity", "7"), "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSensitive(tt.attr)
			if got.Value.Kind() == slog.KindString {
				if got.Value.String() != tt.want {
					t.Errorf("value = %q, want %q", got.Value.String(), tt.want)
				}
				return
			}
			if tt.want == redactedValue {
				t.Errorf("value kind %v was not redacted", got.Value.Kind())
			}
		})
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf})
	l.Info("acl", slog.Group("entry", slog.Int64("identity", 1), slog.String("hmac_secret", "s3cr3t")))

	var rec struct {
		Entry map[string]any `json:"entry"`
	}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Entry["hmac_secret"] != redactedValue {
		t.Errorf("nested secret = %v, want redacted", rec.Entry["hmac_secret"])
	}
	if rec.Entry["identity"] != float64(1) {
		t.Errorf("identity = %v, want 1", rec.Entry["identity"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"HMAC": true, "acl_key": true, "password": true,
		"key": false, "conn_id": false,
	} {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
