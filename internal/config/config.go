// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL  string `json:"base_url"`
	TenantID string `json:"tenant_id"`
	Username string `json:"username,omitempty"`

	// Output settings
	Format string `json:"format"`

	// Behavior preferences (persisted via config set, overridable by flags)
	Stats   *bool `json:"stats,omitempty"`
	Verbose *int  `json:"verbose,omitempty"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	Host   string
	Tenant string
	Format string
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:  "http://localhost:3000",
		TenantID: "default",
		Format:   "auto",
		Sources:  make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > global file > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, globalConfigPath())
	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config location
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	if v, ok := fileCfg["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceGlobal)
	}
	if v, ok := fileCfg["tenant_id"].(string); ok && v != "" {
		cfg.TenantID = v
		cfg.Sources["tenant_id"] = string(SourceGlobal)
	}
	if v, ok := fileCfg["username"].(string); ok && v != "" {
		cfg.Username = v
		cfg.Sources["username"] = string(SourceGlobal)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceGlobal)
	}
	if v, ok := fileCfg["stats"].(bool); ok {
		cfg.Stats = &v
		cfg.Sources["stats"] = string(SourceGlobal)
	}
	if v, ok := fileCfg["verbose"].(float64); ok {
		iv := int(v)
		if iv >= 0 && iv <= 2 && v == float64(iv) {
			cfg.Verbose = &iv
			cfg.Sources["verbose"] = string(SourceGlobal)
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MEMCTL_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("MEMCTL_TENANT_ID"); v != "" {
		cfg.TenantID = v
		cfg.Sources["tenant_id"] = string(SourceEnv)
	}
	if v := os.Getenv("MEMCTL_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
}

// ApplyOverrides applies command-line flag values to the configuration.
func ApplyOverrides(cfg *Config, overrides FlagOverrides) {
	if overrides.Host != "" {
		cfg.BaseURL = NormalizeHost(overrides.Host)
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if overrides.Tenant != "" {
		cfg.TenantID = overrides.Tenant
		cfg.Sources["tenant_id"] = string(SourceFlag)
	}
	if overrides.Format != "" {
		cfg.Format = overrides.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
}

// Save persists the given keys to the global config file.
func Save(values map[string]any) error {
	path := globalConfigPath()

	existing := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: trusted config location
		_ = json.Unmarshal(data, &existing)
	}
	for k, v := range values {
		existing[k] = v
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// GlobalConfigDir returns the directory holding the global config and
// fallback credential files.
func GlobalConfigDir() string {
	if dir := os.Getenv("MEMCTL_CONFIG_DIR"); dir != "" {
		return dir
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "memctl")
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// NormalizeHost converts a host string to a full base URL.
// Bare localhost hosts default to http://, everything else to https://,
// and full URLs pass through untouched.
func NormalizeHost(host string) string {
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	if isLoopback(host) {
		return "http://" + host
	}
	return "https://" + host
}

// NormalizeBaseURL canonicalizes a base URL into a credential-store origin:
// lowercased scheme+host, no trailing slash.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.ToLower(baseURL), "/")
}

// isLoopback reports whether host (with optional port) is a loopback address.
func isLoopback(host string) bool {
	bare := host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		if !strings.HasPrefix(host, "[") || strings.HasPrefix(host, "[::1]:") {
			bare = host[:idx]
		}
	}
	if bare == "localhost" || strings.HasSuffix(bare, ".localhost") {
		return true
	}
	return bare == "127.0.0.1" || bare == "[::1]"
}
