// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agentmemory/memctl/internal/api"
	"github.com/agentmemory/memctl/internal/auth"
	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/observability"
	"github.com/agentmemory/memctl/internal/output"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Auth   *auth.Manager
	API    *api.Client
	Output *output.Writer

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	Styled bool

	// Context flags
	Host   string
	Tenant string

	// Behavior flags
	Verbose int // 0=off, 1=retries/refreshes, 2=every request
	Stats   bool
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config) *App {
	// Collector always runs to gather stats; hooks control trace verbosity.
	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(0, collector)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	authMgr := auth.NewManager(cfg, httpClient)
	apiClient := api.NewClient(cfg, authMgr, hooks)

	format := output.FormatAuto
	switch cfg.Format {
	case "json":
		format = output.FormatJSON
	case "quiet":
		format = output.FormatQuiet
	case "styled":
		format = output.FormatStyled
	}

	return &App{
		Config:    cfg,
		Auth:      authMgr,
		API:       apiClient,
		Collector: collector,
		Hooks:     hooks,
		Output: output.New(output.Options{
			Format: format,
			Writer: os.Stdout,
		}),
	}
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	// Order matters: the most specific mode wins.
	if a.Flags.Quiet {
		a.Output = output.New(output.Options{Format: output.FormatQuiet, Writer: os.Stdout})
	} else if a.Flags.JSON {
		a.Output = output.New(output.Options{Format: output.FormatJSON, Writer: os.Stdout})
	} else if a.Flags.Styled {
		a.Output = output.New(output.Options{Format: output.FormatStyled, Writer: os.Stdout})
	}

	verboseLevel := a.Flags.Verbose
	if debugEnv := os.Getenv("MEMCTL_DEBUG"); debugEnv != "" {
		switch debugEnv {
		case "1":
			if verboseLevel < 1 {
				verboseLevel = 1
			}
		case "2", "true":
			verboseLevel = 2
		}
	}
	if a.Hooks != nil {
		a.Hooks.SetLevel(verboseLevel)
	}
}

// OK outputs a success response, including stats when --stats is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		stats := a.Collector.Summary()
		opts = append(opts, output.WithMeta("stats", statsMap(&stats)))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if enabled.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		stats := a.Collector.Summary()
		a.printStatsToStderr(&stats)
	}
	return nil
}

// isMachineOutput returns true if output is meant for programmatic consumption.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet {
		return true
	}
	return a.Config != nil && a.Config.Format == "quiet"
}

func statsMap(stats *observability.SessionMetrics) map[string]any {
	return map[string]any{
		"requests":        stats.TotalRequests,
		"retries":         stats.TotalRetries,
		"token_refreshes": stats.TokenRefreshes,
		"failed":          stats.FailedRequests,
		"duration_ms":     stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}
}

// printStatsToStderr outputs a compact stats line to stderr.
func (a *App) printStatsToStderr(stats *observability.SessionMetrics) {
	if stats == nil {
		return
	}

	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	if stats.TotalRequests == 1 {
		parts = append(parts, "1 request")
	} else if stats.TotalRequests > 1 {
		parts = append(parts, fmt.Sprintf("%d requests", stats.TotalRequests))
	}
	if stats.TokenRefreshes > 0 {
		parts = append(parts, fmt.Sprintf("%d token refreshes", stats.TokenRefreshes))
	}
	if stats.TotalRetries > 0 {
		parts = append(parts, fmt.Sprintf("%d retries", stats.TotalRetries))
	}
	if stats.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedRequests))
	}

	if len(parts) > 0 {
		fmt.Fprintf(os.Stderr, "\nStats: %s\n", strings.Join(parts, " | "))
	}
}

// IsInteractive returns true if stdout is a terminal and no machine-output
// mode is in effect.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
