package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentmemory/memctl/internal/appctx"
	"github.com/agentmemory/memctl/internal/models"
	"github.com/agentmemory/memctl/internal/output"
)

// NewEventsCmd creates the events command group.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Record memory events",
	}

	cmd.AddCommand(newEventsRecordCmd())
	return cmd
}

func newEventsRecordCmd() *cobra.Command {
	var (
		sessionID string
		channel   string
		actorType string
		actorID   string
		kind      string
		text      string
		tags      []string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an event to memory",
		Long: `Record a memory event for a session.

The event is given inline via flags, or as a JSON/YAML document with
--file (use "-" for stdin). Sensitivity defaults to "none".

Examples:
  memctl events record --session session-123 --channel private \
      --actor-type human --actor-id user-456 --text "Hello!"
  memctl events record --file event.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			var event models.Event
			if file != "" {
				loaded, err := loadEventFile(file)
				if err != nil {
					return err
				}
				event = *loaded
			} else {
				if sessionID == "" || channel == "" {
					return output.ErrUsage("--session and --channel are required")
				}
				if actorID == "" {
					return output.ErrUsage("--actor-id is required")
				}
				content, err := json.Marshal(map[string]string{"text": text})
				if err != nil {
					return err
				}
				event = models.Event{
					SessionID: sessionID,
					Channel:   channel,
					Actor:     models.Actor{Type: actorType, ID: actorID},
					Kind:      kind,
					Content:   content,
					Tags:      tags,
				}
			}

			receipt, err := app.API.RecordEvent(cmd.Context(), event)
			if err != nil {
				return err
			}

			return app.OK(receipt, output.WithSummary("Event recorded: "+receipt.EventID))
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID")
	cmd.Flags().StringVarP(&channel, "channel", "c", "", "Channel (e.g., private)")
	cmd.Flags().StringVar(&actorType, "actor-type", "human", "Actor type: human or agent")
	cmd.Flags().StringVar(&actorID, "actor-id", "", "Actor ID")
	cmd.Flags().StringVarP(&kind, "kind", "k", "message", "Event kind")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Text content")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Event document (JSON or YAML, \"-\" for stdin)")

	return cmd
}

// loadEventFile reads an event document in JSON or YAML form.
func loadEventFile(path string) (*models.Event, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // G304: user-supplied input file
	}
	if err != nil {
		return nil, output.ErrUsage("cannot read event file: " + err.Error())
	}

	var event models.Event
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, output.ErrUsage("invalid event JSON: " + err.Error())
		}
		return &event, nil
	}

	// YAML path: decode generically, then round-trip through JSON so the
	// free-form content field ends up as RawMessage.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, output.ErrUsage("invalid event YAML: " + err.Error())
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(jsonData, &event); err != nil {
		return nil, output.ErrUsage("invalid event document: " + err.Error())
	}
	return &event, nil
}
