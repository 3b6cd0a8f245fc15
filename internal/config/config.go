// Package config defines the coder-independent configuration surface: the
// AI model selection and the tool extensions a coder may be given. Each
// coder translates this common shape into its own native config files.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExtensionType distinguishes how a tool extension is reached.
type ExtensionType string

const (
	// ExtensionStdio is a pipe-based extension launched as a subprocess.
	ExtensionStdio ExtensionType = "stdio"
	// ExtensionHTTP is a network-based extension. No coder currently has a
	// native translation for it; every translation must reject it.
	ExtensionHTTP ExtensionType = "http"
	// ExtensionBuiltin names an extension bundled with the coder itself.
	ExtensionBuiltin ExtensionType = "builtin"
)

// Extension is one named tool integration a coder may invoke during task
// execution.
type Extension struct {
	Name        string            `yaml:"name"`
	DisplayName string            `yaml:"display_name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Bundled     *bool             `yaml:"bundled,omitempty"`
	Type        ExtensionType     `yaml:"type,omitempty"`
	Cmd         string            `yaml:"cmd,omitempty"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	EnvKeys     []string          `yaml:"env_keys,omitempty"`
	Timeout     int               `yaml:"timeout,omitempty"`
}

// IsEnabled reports whether the extension is active. Extensions are enabled
// unless explicitly disabled.
func (e Extension) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Provider describes where an AI model is served from.
type Provider struct {
	Name     string         `yaml:"name"`
	APIKey   string         `yaml:"api_key,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// AIModel selects a model and, optionally, its provider.
type AIModel struct {
	Name     string    `yaml:"name"`
	Provider *Provider `yaml:"provider,omitempty"`
}

// CoderConfig is the common configuration handed to a coder. It is built
// once per invocation and read-only afterwards.
type CoderConfig struct {
	AIModel    AIModel     `yaml:"ai_model"`
	Extensions []Extension `yaml:"extensions"`
}

// EnabledExtensions returns the extensions that should be materialized into
// a coder's native config. Disabled declarations never appear.
func (c *CoderConfig) EnabledExtensions() []Extension {
	if c == nil {
		return nil
	}
	var enabled []Extension
	for _, ext := range c.Extensions {
		if ext.IsEnabled() {
			enabled = append(enabled, ext)
		}
	}
	return enabled
}

// HasEnabledExtensions reports whether any extension would be materialized.
func (c *CoderConfig) HasEnabledExtensions() bool {
	return len(c.EnabledExtensions()) > 0
}

// Load reads a CoderConfig from a YAML file.
func Load(path string) (*CoderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var cfg CoderConfig
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file %s: %w", path, err)
	}
	if cfg.AIModel.Name == "" {
		return nil, fmt.Errorf("invalid config %s: ai_model.name is required", path)
	}
	if err := validateExtensionNames(cfg.Extensions); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validateExtensionNames(exts []Extension) error {
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		if ext.Name == "" {
			return fmt.Errorf("extension name is required")
		}
		if _, dup := seen[ext.Name]; dup {
			return fmt.Errorf("duplicate extension name %q", ext.Name)
		}
		seen[ext.Name] = struct{}{}
	}
	return nil
}

// MergeExtensions layers extra extensions over base. Names are unique in
// the result; a name present in both keeps its first position and takes the
// extra definition (last write wins).
func MergeExtensions(base, extra []Extension) []Extension {
	merged := make([]Extension, 0, len(base)+len(extra))
	index := make(map[string]int, len(base))
	for _, ext := range base {
		if pos, ok := index[ext.Name]; ok {
			merged[pos] = ext
			continue
		}
		index[ext.Name] = len(merged)
		merged = append(merged, ext)
	}
	for _, ext := range extra {
		if pos, ok := index[ext.Name]; ok {
			merged[pos] = ext
			continue
		}
		index[ext.Name] = len(merged)
		merged = append(merged, ext)
	}
	return merged
}
