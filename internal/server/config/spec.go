package config

import "time"

// ServerConfig is the root configuration for kinetic-simulator.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the listeners.
type ServerSection struct {
	Kinetic KineticConfig `koanf:"kinetic"`
	HTTP    HTTPConfig    `koanf:"http"`
}

// KineticConfig configures the Kinetic protocol listener.
type KineticConfig struct {
	// Addr is the plaintext listen address.
	Addr string `koanf:"addr"`

	// TLSAddr is the TLS listen address. Empty disables the TLS listener.
	TLSAddr         string `koanf:"tls_addr"`
	TLSCertFile     string `koanf:"tls_cert_file"`
	TLSKeyFile      string `koanf:"tls_key_file"`
	TLSClientCAFile string `koanf:"tls_client_ca_file"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// RateLimit is requests/second per connection (0 = unlimited).
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	MaxMessageSize int `koanf:"max_message_size"`
	MaxValueSize   int `koanf:"max_value_size"`
}

// HTTPConfig configures the ops HTTP server.
type HTTPConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// AllowList limits the device endpoints to these IPs/CIDRs.
	AllowList []string `koanf:"allow_list"`

	// RateLimit is requests/second per client IP (0 = unlimited).
	RateLimit int `koanf:"rate_limit"`
}

// StorageSection configures the key/value engine.
type StorageSection struct {
	// Engine is one of badger, bbolt, memory.
	Engine  string        `koanf:"engine"`
	DataDir string        `koanf:"data_dir"`
	Badger  BadgerSection `koanf:"badger"`
	Bolt    BoltSection   `koanf:"bolt"`
}

// BadgerSection holds the Badger tuning knobs exposed in the config file.
type BadgerSection struct {
	GCInterval  string  `koanf:"gc_interval"`
	GCThreshold float64 `koanf:"gc_threshold"`
	CacheSize   int64   `koanf:"cache_size"`
	SyncWrites  bool    `koanf:"sync_writes"`
}

// BoltSection configures the bbolt engine.
type BoltSection struct {
	File        string        `koanf:"file"`
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// SecuritySection configures device authorization.
type SecuritySection struct {
	// Enabled turns HMAC authentication and ACL checks on.
	Enabled bool `koanf:"enabled"`

	// BootstrapDefault installs the default identity when no ACL file exists.
	BootstrapDefault bool   `koanf:"bootstrap_default"`
	DefaultIdentity  int64  `koanf:"default_identity"`
	DefaultKey       string `koanf:"default_key"`

	// ACLDir holds the .acl file. Empty means storage.data_dir.
	ACLDir string `koanf:"acl_dir"`

	// ACLEncryptionKey seals the ACL file at rest when set.
	ACLEncryptionKey string `koanf:"acl_encryption_key"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
