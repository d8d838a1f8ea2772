package tlsroots

import (
	"crypto/tls"
	"log/slog"
)

// ServerOptions describes a server certificate and optional client CAs.
type ServerOptions struct {
	CertFile string
	KeyFile  string

	// ClientCAFile verifies client certificates when presented. Clients
	// without one are still accepted.
	ClientCAFile string

	Logger *slog.Logger
}

// ServerConfig returns a server tls.Config whose certificate follows the
// files on disk, and the watcher serving it. The caller starts and stops
// the watcher.
func ServerConfig(opts ServerOptions) (*tls.Config, *Watcher, error) {
	var wopts []WatcherOption
	if opts.Logger != nil {
		wopts = append(wopts, WithLogger(opts.Logger))
	}
	w, err := NewWatcher(opts.CertFile, opts.KeyFile, wopts...)
	if err != nil {
		return nil, nil, err
	}

	cfg := &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	if opts.ClientCAFile != "" {
		pool, err := LoadPool(nil, opts.ClientCAFile)
		if err != nil {
			return nil, nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, w, nil
}

// ClientConfig returns a client tls.Config trusting the system roots plus
// caFile when given. insecure disables verification.
func ClientConfig(caFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if insecure {
		cfg.InsecureSkipVerify = true
		return cfg, nil
	}
	if caFile != "" {
		pool, err := LoadPool(SystemPool(), caFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
