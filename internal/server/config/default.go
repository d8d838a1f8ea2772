package config

import "time"

// Default configuration values.
const (
	DefaultKineticAddr    = "127.0.0.1:8123"
	DefaultKineticTLSAddr = ""
	DefaultHTTPAddr       = "127.0.0.1:8180"
	DefaultHTTPRateLimit  = 100

	DefaultEngine  = "badger"
	DefaultDataDir = "/var/lib/kinetic-simulator/data"

	DefaultIdentity = 1
	DefaultKey      = "asdfasdf"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Kinetic: KineticConfig{
				Addr:           DefaultKineticAddr,
				TLSAddr:        DefaultKineticTLSAddr,
				ReadTimeout:    30 * time.Second,
				WriteTimeout:   30 * time.Second,
				IdleTimeout:    5 * time.Minute,
				RateBurst:      100,
				MaxMessageSize: 1 << 20,
				MaxValueSize:   1 << 20,
			},
			HTTP: HTTPConfig{
				Enabled:   true,
				Addr:      DefaultHTTPAddr,
				RateLimit: DefaultHTTPRateLimit,
			},
		},
		Storage: StorageSection{
			Engine:  DefaultEngine,
			DataDir: DefaultDataDir,
			Badger: BadgerSection{
				GCInterval:  "10m",
				GCThreshold: 0.5,
				CacheSize:   64 << 20,
			},
			Bolt: BoltSection{
				File:        "kinetic.db",
				OpenTimeout: time.Second,
			},
		},
		Security: SecuritySection{
			Enabled:          true,
			BootstrapDefault: true,
			DefaultIdentity:  DefaultIdentity,
			DefaultKey:       DefaultKey,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
