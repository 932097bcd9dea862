package config

import (
	"fmt"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// LoadWithIncludes loads config with includes support.
// It processes includes recursively, merging configs in the order they are specified.
func LoadWithIncludes(fsys afero.Fs, path string) (Config, error) {
	return loadWithIncludes(fsys, path, make(map[string]bool))
}

func loadWithIncludes(fsys afero.Fs, path string, visited map[string]bool) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if visited[absPath] {
		return Config{}, fmt.Errorf("circular include detected: %s", path)
	}
	visited[absPath] = true

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Relative include paths resolve against the including file.
	baseDir := filepath.Dir(absPath)

	var merged Config
	for _, includePattern := range raw.Includes {
		resolvedPattern := includePattern
		if !filepath.IsAbs(includePattern) {
			resolvedPattern = filepath.Join(baseDir, includePattern)
		}

		matchedFiles, err := expandGlob(fsys, resolvedPattern)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand glob %s: %w", includePattern, err)
		}

		// Empty glob result is OK (no files matched)
		for _, includePath := range matchedFiles {
			included, err := loadWithIncludes(fsys, includePath, visited)
			if err != nil {
				return Config{}, fmt.Errorf("failed to load include %s: %w", includePath, err)
			}
			merged = mergeConfigs(merged, included)
		}
	}

	return mergeConfigs(merged, rawToConfig(raw)), nil
}

func rawToConfig(raw rawConfig) Config {
	return Config{
		Hostname:        raw.Hostname,
		TrashDir:        raw.TrashDir,
		Ignore:          raw.Ignore,
		ReadConcurrency: raw.ReadConcurrency,
		Relay:           raw.Relay,
	}
}

// isGlobPattern checks if the pattern contains glob special characters.
func isGlobPattern(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// expandGlob expands a glob pattern and returns sorted matched files.
// For literal paths (no glob characters), returns error if file doesn't exist.
// For glob patterns, returns empty slice if no files match.
func expandGlob(fsys afero.Fs, pattern string) ([]string, error) {
	if !isGlobPattern(pattern) {
		if _, err := fsys.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	matches, err := afero.Glob(fsys, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// mergeConfigs merges overlay config into base config.
// Scalars: overlay wins if set
// Arrays: append (concatenate)
func mergeConfigs(base, overlay Config) Config {
	result := base

	if overlay.Hostname != "" {
		result.Hostname = overlay.Hostname
	}
	if overlay.TrashDir != "" {
		result.TrashDir = overlay.TrashDir
	}
	if overlay.ReadConcurrency != 0 {
		result.ReadConcurrency = overlay.ReadConcurrency
	}

	if len(overlay.Ignore) > 0 {
		result.Ignore = append(append([]string(nil), result.Ignore...), overlay.Ignore...)
	}

	if overlay.Relay.Listen != "" {
		result.Relay.Listen = overlay.Relay.Listen
	}
	if overlay.Relay.RedisAddr != "" {
		result.Relay.RedisAddr = overlay.Relay.RedisAddr
	}
	if overlay.Relay.MaxMessageBytes != 0 {
		result.Relay.MaxMessageBytes = overlay.Relay.MaxMessageBytes
	}

	return result
}
