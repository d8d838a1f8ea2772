package logger

import (
	"log/slog"
	"strings"
)

// redactedValue replaces the value of a sensitive attribute.
const redactedValue = "***REDACTED***"

// Substrings of attribute keys that mark a value as secret. ACL keys and
// HMAC digests travel through the device handler and must never reach a
// log line.
var sensitiveKeyParts = [...]string{
	"password",
	"secret",
	"credential",
	"hmac",
	"acl_key",
	"seal_key",
	"encryption_key",
}

// IsSensitiveKey reports whether an attribute key names secret data.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

// redactSensitive masks a sensitive string or byte slice attribute. Empty
// values stay visible so "no key configured" is still diagnosable.
func redactSensitive(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		members := v.Group()
		out := make([]slog.Attr, len(members))
		for i, m := range members {
			out[i] = redactSensitive(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if !IsSensitiveKey(a.Key) {
		return a
	}

	empty := false
	switch v.Kind() {
	case slog.KindString:
		empty = v.String() == ""
	case slog.KindAny:
		b, ok := v.Any().([]byte)
		empty = ok && len(b) == 0
	default:
		return a
	}
	if empty {
		return a
	}
	return slog.String(a.Key, redactedValue)
}
