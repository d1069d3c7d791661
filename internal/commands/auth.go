// Package commands implements the CLI commands.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/agentmemory/memctl/internal/appctx"
	"github.com/agentmemory/memctl/internal/output"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Manage Agent Memory System authentication including login, logout, and status.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
		newAuthSessionsCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var username, password, tenant string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the memory system",
		Long: `Exchange a username and password for a token pair.

Missing credentials are prompted for interactively when stdout is a
terminal. The tenant defaults to the configured tenant_id.

Logging in while already authenticated opens a second, independent
server-side session; run "memctl auth logout" first to end the current one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if tenant == "" {
				tenant = app.Config.TenantID
			}
			if username == "" && app.Config.Username != "" {
				username = app.Config.Username
			}

			if username == "" || password == "" {
				if !app.IsInteractive() {
					return output.ErrUsageHint("Username and password required",
						"Pass --username and --password, or run in a terminal")
				}
				if err := promptForCredentials(&username, &password); err != nil {
					return output.ErrUsage("login canceled")
				}
			}

			if err := app.Auth.Login(cmd.Context(), username, password, tenant); err != nil {
				return err
			}

			creds := app.Auth.Current()
			data := map[string]any{
				"authenticated": true,
				"tenant_id":     tenant,
			}
			summary := "Logged in"
			if creds != nil && creds.Username != "" {
				data["username"] = creds.Username
				summary = "Logged in as " + creds.Username
			}
			return app.OK(data, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID (defaults to configured tenant)")

	return cmd
}

func promptForCredentials(username, password *string) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(username),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password),
		),
	).Run()
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh token and clear stored credentials",
		Long: `Attempt to revoke the refresh token server-side, then clear local
credentials. The local clear happens even when the revoke call fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			app.Auth.Logout(cmd.Context())

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the current authentication status and token expiry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if envToken := os.Getenv("MEMCTL_TOKEN"); envToken != "" {
				return app.OK(map[string]any{
					"authenticated": true,
					"source":        "MEMCTL_TOKEN",
				}, output.WithSummary("Authenticated via MEMCTL_TOKEN env var"))
			}

			creds := app.Auth.Current()
			if creds == nil || creds.AccessToken == "" {
				return app.OK(map[string]any{
					"authenticated": false,
				}, output.WithSummary("Not authenticated"))
			}

			expiresIn := time.Until(time.Unix(creds.ExpiresAt, 0))
			status := map[string]any{
				"authenticated": true,
				"source":        "login",
				"tenant_id":     creds.TenantID,
				"expires_in":    expiresIn.Round(time.Second).String(),
				"expired":       expiresIn < 0,
			}
			if creds.Username != "" {
				status["username"] = creds.Username
			}

			summary := "Authenticated"
			if creds.Username != "" {
				summary += " as " + creds.Username
			}
			if expiresIn < 0 {
				summary += " (access token expired; next call will refresh)"
			}
			return app.OK(status, output.WithSummary(summary))
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long: `Force a refresh exchange now. The refresh token rotates: the one on
file is consumed and replaced by the one the server returns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if err := app.Auth.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "refreshed",
			}, output.WithSummary("Token refreshed successfully"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print the current access token to stdout for use with other tools,
refreshing it first when expired.

Examples:
  export MEMCTL_TOKEN=$(memctl auth token)
  curl -H "Authorization: Bearer $(memctl auth token)" ...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			token, err := app.Auth.AccessToken(cmd.Context())
			if err != nil {
				return err
			}

			// Raw output by default for shell substitution; envelope only
			// when --json is explicit.
			if app.Flags.JSON {
				return app.OK(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
}

func newAuthSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List authentication sessions",
		Long:  "List the server-side authentication sessions for the current user.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			sessions, err := app.API.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			active := 0
			for _, s := range sessions {
				if s.IsActive {
					active++
				}
			}
			return app.OK(sessions, output.WithSummary(
				fmt.Sprintf("%d sessions (%d active)", len(sessions), active)))
		},
	}
}
