package config

// CLIConfig is the configuration for kinetic-cli.
type CLIConfig struct {
	// CurrentProfile is used when --profile is not given.
	CurrentProfile string `yaml:"current_profile"`

	// Output is the default output format (table, json, yaml).
	Output string `yaml:"output"`

	Profiles map[string]Profile `yaml:"profiles"`
}

// Profile describes how to reach and authenticate to one device.
type Profile struct {
	Server    string `yaml:"server" json:"server"`
	OpsServer string `yaml:"ops_server,omitempty" json:"ops_server,omitempty"`
	Identity  int64  `yaml:"identity" json:"identity"`
	Key       string `yaml:"key" json:"key"`
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	TLS       bool   `yaml:"tls,omitempty" json:"tls,omitempty"`
	CAFile    string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	Insecure  bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// DefaultProfileName is the profile created by Default.
const DefaultProfileName = "default"

// DefaultProfile returns a profile for a local simulator with the factory
// identity.
func DefaultProfile() Profile {
	return Profile{
		Server:    "localhost:8123",
		OpsServer: "localhost:8180",
		Identity:  1,
		Key:       "asdfasdf",
		Algorithm: "HmacSHA1",
	}
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		CurrentProfile: DefaultProfileName,
		Output:         "table",
		Profiles:       map[string]Profile{DefaultProfileName: DefaultProfile()},
	}
}

// Profile returns the named profile, or the current one when name is
// empty.
func (c *CLIConfig) Profile(name string) (Profile, bool) {
	if name == "" {
		name = c.CurrentProfile
	}
	p, ok := c.Profiles[name]
	return p, ok
}
