package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memctl/internal/appctx"
	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/output"
)

// configKeys are the settable configuration keys.
var configKeys = []string{"base_url", "tenant_id", "username", "format", "stats", "verbose"}

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Get, set, and list memctl configuration values.",
	}

	cmd.AddCommand(
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigListCmd(),
	)

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			key := args[0]
			value, ok := configValue(app.Config, key)
			if !ok {
				return output.ErrUsage("unknown config key: " + key)
			}

			source := app.Config.Sources[key]
			if source == "" {
				source = string(config.SourceDefault)
			}
			return app.OK(map[string]any{
				"key":    key,
				"value":  value,
				"source": source,
			}, output.WithSummary(fmt.Sprintf("%s = %v (%s)", key, value, source)))
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long: `Persist a configuration value to the global config file. Environment
variables and flags still take precedence on each invocation.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			key, raw := args[0], args[1]
			value, err := parseConfigValue(key, raw)
			if err != nil {
				return err
			}

			if err := config.Save(map[string]any{key: value}); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			return app.OK(map[string]any{
				"key":   key,
				"value": value,
			}, output.WithSummary(fmt.Sprintf("Set %s = %v", key, value)))
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			entries := make(map[string]any, len(configKeys))
			for _, key := range configKeys {
				value, _ := configValue(app.Config, key)
				source := app.Config.Sources[key]
				if source == "" {
					source = string(config.SourceDefault)
				}
				entries[key] = map[string]any{
					"value":  value,
					"source": source,
				}
			}
			return app.OK(entries)
		},
	}
}

// configValue reads a key from the resolved config.
func configValue(cfg *config.Config, key string) (any, bool) {
	switch key {
	case "base_url":
		return cfg.BaseURL, true
	case "tenant_id":
		return cfg.TenantID, true
	case "username":
		return cfg.Username, true
	case "format":
		return cfg.Format, true
	case "stats":
		if cfg.Stats != nil {
			return *cfg.Stats, true
		}
		return false, true
	case "verbose":
		if cfg.Verbose != nil {
			return *cfg.Verbose, true
		}
		return 0, true
	default:
		return nil, false
	}
}

// parseConfigValue validates and converts a raw value for the given key.
func parseConfigValue(key, raw string) (any, error) {
	switch key {
	case "base_url":
		return config.NormalizeHost(raw), nil
	case "tenant_id", "username":
		return raw, nil
	case "format":
		switch raw {
		case "auto", "json", "styled", "quiet":
			return raw, nil
		}
		return nil, output.ErrUsage("format must be one of: auto, json, styled, quiet")
	case "stats":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, output.ErrUsage("stats must be true or false")
		}
		return v, nil
	case "verbose":
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 2 {
			return nil, output.ErrUsage("verbose must be 0, 1, or 2")
		}
		return v, nil
	default:
		return nil, output.ErrUsage("unknown config key: " + key)
	}
}
