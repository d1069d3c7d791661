// Package cli wires the cobra command tree.
package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentmemory/memctl/internal/appctx"
	"github.com/agentmemory/memctl/internal/commands"
	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/output"
	"github.com/agentmemory/memctl/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "memctl",
		Short:         "Command-line interface for the Agent Memory System",
		Long: `memctl records agent memory events, builds Active Context Bundles, and
manages the token pair that authenticates every call.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Help and version need no app setup
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				Host:   flags.Host,
				Tenant: flags.Tenant,
			})
			if err != nil {
				return err
			}

			// Persisted preferences apply unless a flag overrides them.
			if cfg.Stats != nil && !flags.Stats {
				flags.Stats = *cfg.Stats
			}
			if cfg.Verbose != nil && flags.Verbose == 0 {
				flags.Verbose = *cfg.Verbose
			}

			app := appctx.NewApp(cfg)
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVar(&flags.Quiet, "quiet", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")

	// Context flags
	cmd.PersistentFlags().StringVar(&flags.Host, "host", "", "Memory system host (e.g., localhost:3000, memory.example.com)")
	cmd.PersistentFlags().StringVar(&flags.Tenant, "tenant", "", "Tenant ID")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for retries/refreshes, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	return cmd
}

// newCommandTree builds the root command with all subcommands attached.
func newCommandTree() *cobra.Command {
	cmd := NewRootCmd()
	cmd.AddCommand(commands.NewAuthCmd())
	cmd.AddCommand(commands.NewEventsCmd())
	cmd.AddCommand(commands.NewACBCmd())
	cmd.AddCommand(commands.NewAPICmd())
	cmd.AddCommand(commands.NewConfigCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	cmd := newCommandTree()

	// ExecuteC returns the executed command, whose context carries the app.
	executedCmd, err := cmd.ExecuteC()
	if err == nil {
		return
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	if app := appctx.FromContext(executedCmd.Context()); app != nil {
		_ = app.Err(err)
		os.Exit(apiErr.ExitCode())
	}

	// App not available (failure during setup): output the error directly.
	writer := output.New(output.Options{
		Format: fallbackFormat(cmd.PersistentFlags()),
		Writer: os.Stdout,
	})
	_ = writer.Err(err)

	os.Exit(apiErr.ExitCode())
}

// fallbackFormat picks an output format from raw flag values, for errors
// raised before the app context exists.
func fallbackFormat(pf *pflag.FlagSet) output.Format {
	quiet, _ := pf.GetBool("quiet")
	styled, _ := pf.GetBool("styled")
	jsonFlag, _ := pf.GetBool("json")

	switch {
	case quiet:
		return output.FormatQuiet
	case styled:
		return output.FormatStyled
	case jsonFlag:
		return output.FormatJSON
	default:
		return output.FormatAuto
	}
}

// transformCobraError maps cobra's flag and argument errors to usage errors
// so they carry the usage exit code and envelope shape.
func transformCobraError(err error) error {
	msg := err.Error()

	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	if strings.HasPrefix(msg, "unknown flag: ") {
		flag := strings.TrimPrefix(msg, "unknown flag: ")
		return output.ErrUsage("Unknown option: " + flag)
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		re := regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage(msg)
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsage(msg)
	}

	return err
}
