package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memctl/internal/appctx"
	"github.com/agentmemory/memctl/internal/models"
	"github.com/agentmemory/memctl/internal/output"
)

// NewACBCmd creates the acb command group.
func NewACBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acb",
		Short: "Work with Active Context Bundles",
	}

	cmd.AddCommand(newACBBuildCmd())
	return cmd
}

func newACBBuildCmd() *cobra.Command {
	var (
		sessionID string
		agentID   string
		channel   string
		intent    string
		queryText string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an Active Context Bundle",
		Long: `Ask the server to compute an Active Context Bundle for an agent
request. Section selection and token budgeting happen server-side.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if sessionID == "" || agentID == "" {
				return output.ErrUsage("--session and --agent are required")
			}
			if intent == "" {
				return output.ErrUsage("--intent is required")
			}

			acb, err := app.API.BuildACB(cmd.Context(), models.ACBRequest{
				SessionID: sessionID,
				AgentID:   agentID,
				Channel:   channel,
				Intent:    intent,
				QueryText: queryText,
			})
			if err != nil {
				return err
			}

			names := make([]string, len(acb.Sections))
			for i, s := range acb.Sections {
				names[i] = s.Name
			}
			summary := fmt.Sprintf("ACB built: %d/%d tokens, sections: %s",
				acb.TokenUsedEst, acb.BudgetTokens, strings.Join(names, ", "))
			return app.OK(acb, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID")
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent ID")
	cmd.Flags().StringVarP(&channel, "channel", "c", "private", "Channel")
	cmd.Flags().StringVarP(&intent, "intent", "i", "", "Intent of the agent request")
	cmd.Flags().StringVarP(&queryText, "query", "q", "", "Query text for retrieval")

	return cmd
}
