// generator.go provides config templates for mhk init.
//
// Fields with defaults (hostname, read_concurrency) are only written when a
// template changes them.

package config

import (
	"bytes"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Template represents a configuration template type.
type Template string

const (
	// TemplatePublic syncs through the shared public relay.
	TemplatePublic Template = "public"
	// TemplatePrivate syncs through a self-hosted relay.
	TemplatePrivate Template = "private"
)

// TemplateConfig holds a Config and its associated comments.
type TemplateConfig struct {
	Config Config
	// Comments maps a top-level key or [section] name to the comment
	// inserted before it.
	Comments map[string]string
}

// GenerateConfig returns the TOML content for the given template.
func GenerateConfig(template Template) (string, error) {
	tc := getTemplateConfig(template)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tc.Config); err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}

	content := buf.String()
	for key, comment := range tc.Comments {
		content = insertComment(content, key, comment)
	}

	return SchemaComment + content, nil
}

func getTemplateConfig(template Template) TemplateConfig {
	switch template {
	case TemplatePublic:
		return TemplateConfig{
			Config: Config{
				Ignore: []string{".git", "node_modules"},
			},
			Comments: map[string]string{
				"ignore": "never sent to peers",
			},
		}
	case TemplatePrivate:
		return TemplateConfig{
			Config: Config{
				Hostname: "http://localhost:8080",
				Ignore:   []string{".git", "node_modules"},
				Relay: Relay{
					Listen:    defaultRelayListen,
					RedisAddr: "localhost:6379",
				},
			},
			Comments: map[string]string{
				"hostname": "run `mhk relay` to serve this address",
				"relay":    "remove redis_addr to keep rooms in memory",
			},
		}
	default:
		return getTemplateConfig(TemplatePublic)
	}
}

// insertComment inserts a comment line before the first line defining key,
// either as `key = ...` or as a `[key]` table header.
func insertComment(content, key, comment string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines)+1)
	inserted := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inserted && (trimmed == "["+key+"]" || strings.HasPrefix(trimmed, key+" =")) {
			result = append(result, "# "+comment)
			inserted = true
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
