package config

import "strings"

// Sanitize returns a copy of the config with secrets masked for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Server.HTTP.AllowList = append([]string(nil), cfg.Server.HTTP.AllowList...)

	if sanitized.Security.ACLEncryptionKey != "" {
		sanitized.Security.ACLEncryptionKey = maskSecret(sanitized.Security.ACLEncryptionKey)
	}
	if sanitized.Security.DefaultKey != "" {
		sanitized.Security.DefaultKey = maskSecret(sanitized.Security.DefaultKey)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
