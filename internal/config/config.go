// Package config handles parsing and writing of multihack configuration files (.mhk.toml).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// FileName is the per-project configuration file.
const FileName = ".mhk.toml"

// DefaultHostname is the shared public relay. Projects synced through it are
// subject to file count and size budgets.
const DefaultHostname = "https://quiet-shelf-57463.herokuapp.com"

const (
	defaultReadConcurrency = 8
	defaultRelayListen     = ":8080"
)

// Relay configures `mhk relay`, the self-hosted room server.
type Relay struct {
	Listen          string `toml:"listen,omitempty" json:"listen,omitempty" jsonschema:"description=Address the relay listens on (e.g. :8080)"`
	RedisAddr       string `toml:"redis_addr,omitempty" json:"redis_addr,omitempty" jsonschema:"description=Redis address used to share rooms between relay instances"`
	MaxMessageBytes int64  `toml:"max_message_bytes,omitempty" json:"max_message_bytes,omitempty" jsonschema:"description=Largest accepted websocket message in bytes"`
}

// Config represents the multihack configuration (after processing).
type Config struct {
	Hostname        string   `toml:"hostname,omitempty" json:"hostname,omitempty" jsonschema:"description=Relay server used to join rooms"`
	TrashDir        string   `toml:"trash_dir,omitempty" json:"trash_dir,omitempty" jsonschema:"description=Where files deleted by peers are moved (relative to the project root)"`
	Ignore          []string `toml:"ignore,omitempty" json:"ignore,omitempty" jsonschema:"description=Glob patterns never synchronized"`
	ReadConcurrency int      `toml:"read_concurrency,omitempty" json:"read_concurrency,omitempty" jsonschema:"minimum=1,description=Files read in parallel when sending the project to a peer"`
	Relay           Relay    `toml:"relay,omitempty" json:"relay,omitempty" jsonschema:"description=Self-hosted relay settings"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Hostname:        DefaultHostname,
		ReadConcurrency: defaultReadConcurrency,
		Relay: Relay{
			Listen: defaultRelayListen,
		},
	}
}

// IsPublicRelay reports whether the configured hostname is the shared relay.
func (c *Config) IsPublicRelay() bool {
	return strings.TrimSuffix(c.Hostname, "/") == DefaultHostname
}

// ResolveTrashDir returns the absolute trash directory for a project rooted
// at root, or "" to use the project default.
func (c *Config) ResolveTrashDir(root string) string {
	if c.TrashDir == "" {
		return ""
	}
	if filepath.IsAbs(c.TrashDir) {
		return filepath.Clean(c.TrashDir)
	}
	return filepath.Join(root, c.TrashDir)
}

// rawConfig is an intermediate type for decoding TOML with includes.
type rawConfig struct {
	Includes        []string `toml:"includes,omitempty"`
	Hostname        string   `toml:"hostname,omitempty"`
	TrashDir        string   `toml:"trash_dir,omitempty"`
	Ignore          []string `toml:"ignore,omitempty"`
	ReadConcurrency int      `toml:"read_concurrency,omitempty"`
	Relay           Relay    `toml:"relay,omitempty"`
}

// SchemaConfig is the exported type for JSON schema generation.
// It represents what users can write in .mhk.toml files.
type SchemaConfig struct {
	Includes        []string `toml:"includes,omitempty" json:"includes,omitempty" jsonschema:"description=Other config files to include and merge (supports glob patterns)"`
	Hostname        string   `toml:"hostname,omitempty" json:"hostname,omitempty" jsonschema:"description=Relay server used to join rooms"`
	TrashDir        string   `toml:"trash_dir,omitempty" json:"trash_dir,omitempty" jsonschema:"description=Where files deleted by peers are moved (relative to the project root)"`
	Ignore          []string `toml:"ignore,omitempty" json:"ignore,omitempty" jsonschema:"description=Glob patterns never synchronized"`
	ReadConcurrency int      `toml:"read_concurrency,omitempty" json:"read_concurrency,omitempty" jsonschema:"minimum=1,description=Files read in parallel when sending the project to a peer"`
	Relay           Relay    `toml:"relay,omitempty" json:"relay,omitempty" jsonschema:"description=Self-hosted relay settings"`
}

// LoadConfig reads and parses a configuration file from the given path.
// Supports includes directive for composable configuration.
// Applies defaults for missing fields.
func LoadConfig(fsys afero.Fs, path string) (Config, error) {
	cfg, err := LoadWithIncludes(fsys, path)
	if err != nil {
		return Config{}, err
	}
	return withDefaults(cfg), nil
}

// LoadOrDefault is LoadConfig, falling back to DefaultConfig when path does
// not exist.
func LoadOrDefault(fsys afero.Fs, path string) (Config, error) {
	cfg, err := LoadConfig(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Hostname == "" {
		cfg.Hostname = def.Hostname
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = def.ReadConcurrency
	}
	if cfg.Relay.Listen == "" {
		cfg.Relay.Listen = def.Relay.Listen
	}
	return cfg
}

// SchemaComment is the TOML comment that references the JSON Schema for editor autocomplete.
const SchemaComment = "#:schema https://raw.githubusercontent.com/bolasblack/multihack/refs/heads/master/mhk-config.schema.json\n\n"

// SaveConfig writes the configuration to the given path with schema comment header.
func SaveConfig(fsys afero.Fs, path string, cfg Config) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	// Write schema comment for editor autocomplete support
	if _, err := f.WriteString(SchemaComment); err != nil {
		return err
	}

	return toml.NewEncoder(f).Encode(cfg)
}
