package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	k := &cfg.Kinetic
	if k.Addr == "" && k.TLSAddr == "" {
		return errors.New("server.kinetic: addr or tls_addr is required")
	}
	if err := verifyAddr("server.kinetic.addr", k.Addr); err != nil {
		return err
	}
	if err := verifyAddr("server.kinetic.tls_addr", k.TLSAddr); err != nil {
		return err
	}
	if k.TLSAddr != "" {
		if err := verifyPair("server.kinetic", k.TLSCertFile, k.TLSKeyFile); err != nil {
			return err
		}
	}
	if k.RateLimit < 0 {
		return errors.New("server.kinetic.rate_limit must not be negative")
	}
	if k.RateLimit > 0 && k.RateBurst < 1 {
		return errors.New("server.kinetic.rate_burst must be at least 1 when rate_limit is set")
	}

	h := &cfg.HTTP
	if !h.Enabled {
		return nil
	}
	if h.Addr == "" {
		return errors.New("server.http.addr is required when http is enabled")
	}
	if err := verifyAddr("server.http.addr", h.Addr); err != nil {
		return err
	}
	if h.Addr == k.Addr || h.Addr == k.TLSAddr {
		return fmt.Errorf("server.http.addr %s conflicts with the kinetic listener", h.Addr)
	}
	if h.TLSCertFile != "" || h.TLSKeyFile != "" {
		if err := verifyPair("server.http", h.TLSCertFile, h.TLSKeyFile); err != nil {
			return err
		}
	}
	if h.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	return nil
}

func verifyAddr(field, addr string) error {
	if addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func verifyPair(field, certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		return fmt.Errorf("%s: tls_cert_file and tls_key_file are both required", field)
	}
	for _, f := range []string{certFile, keyFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Engine {
	case "badger", "bbolt", "memory":
	default:
		return fmt.Errorf("storage.engine %q is not one of badger, bbolt, memory", cfg.Engine)
	}
	if cfg.Engine == "memory" {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if cfg.Badger.GCThreshold < 0 || cfg.Badger.GCThreshold > 1 {
		return errors.New("storage.badger.gc_threshold must be within [0, 1]")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if !cfg.Enabled || !cfg.BootstrapDefault {
		return nil
	}
	if cfg.DefaultIdentity == 0 {
		return errors.New("security.default_identity is required when bootstrap_default is set")
	}
	if cfg.DefaultKey == "" {
		return errors.New("security.default_key is required when bootstrap_default is set")
	}
	return nil
}
