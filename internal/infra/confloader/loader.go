package confloader

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "KINETIC_"

// Nesting separator inside environment variable names. A single underscore
// stays part of the key, so KINETIC_STORAGE__DATA_DIR maps to storage.data_dir.
const envSeparator = "__"

// layer is one configuration source. Layers are merged in order, later
// layers overriding earlier ones.
type layer struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

// Loader merges a YAML file, the environment and explicit overrides into a
// configuration struct. Values already set on the target survive unless a
// source provides the key.
type Loader struct {
	envPrefix string
	filePath  string
	overrides map[string]any

	mu sync.RWMutex
	k  *koanf.Koanf
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML file to read. An empty path skips the file.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides sets values keyed by dotted path that win over every other
// source. Typically these come from command line flags.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configured file path, or "" when none is set.
func (l *Loader) FilePath() string {
	return l.filePath
}

func (l *Loader) layers() []layer {
	var out []layer
	if l.filePath != "" {
		out = append(out, layer{name: "file " + l.filePath, provider: file.Provider(l.filePath), parser: yaml.Parser()})
	}
	prefix := l.envPrefix
	out = append(out, layer{name: "env " + prefix, provider: env.Provider(prefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, prefix))
		return strings.ReplaceAll(s, envSeparator, ".")
	})})
	if len(l.overrides) > 0 {
		out = append(out, layer{name: "overrides", provider: mapProvider(l.overrides)})
	}
	return out
}

// Load reads every source from scratch and unmarshals the result into
// target. Keys removed from the file since the last call are gone.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")
	for _, src := range l.layers() {
		if err := k.Load(src.provider, src.parser); err != nil {
			return fmt.Errorf("load %s: %w", src.name, err)
		}
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.mu.Lock()
	l.k = k
	l.mu.Unlock()
	return nil
}

// Reload is Load under the name used by file watchers.
func (l *Loader) Reload(target any) error {
	return l.Load(target)
}

// Lookup returns the string form of a dotted key from the last successful
// Load. It reports false before the first Load or when the key is unset.
func (l *Loader) Lookup(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.k == nil || !l.k.Exists(key) {
		return "", false
	}
	return l.k.String(key), true
}

// Keys returns the sorted dotted keys seen by the last successful Load.
func (l *Loader) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.k == nil {
		return nil
	}
	keys := l.k.Keys()
	sort.Strings(keys)
	return keys
}
