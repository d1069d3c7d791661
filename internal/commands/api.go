package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/agentmemory/memctl/internal/appctx"
	"github.com/agentmemory/memctl/internal/output"
)

// NewAPICmd creates the raw api command.
func NewAPICmd() *cobra.Command {
	var data string
	var jqExpr string

	cmd := &cobra.Command{
		Use:   "api METHOD PATH",
		Short: "Make a raw authenticated API request",
		Long: `Make an authenticated request against any memory API path. The bearer
token is attached and refreshed exactly as for the typed commands.

Examples:
  memctl api GET /auth/sessions
  memctl api POST /api/v1/acb/build --data '{"session_id":"s1",...}'
  memctl api GET /auth/sessions --jq '.sessions[].session_id'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			method := strings.ToUpper(args[0])
			path := args[1]

			var body any
			if data != "" {
				if err := json.Unmarshal([]byte(data), &body); err != nil {
					return output.ErrUsage("invalid --data JSON: " + err.Error())
				}
			}

			var resp any
			var err error
			switch method {
			case "GET":
				r, reqErr := app.API.Get(cmd.Context(), path)
				if reqErr != nil {
					return reqErr
				}
				err = r.UnmarshalData(&resp)
			case "POST":
				r, reqErr := app.API.Post(cmd.Context(), path, body)
				if reqErr != nil {
					return reqErr
				}
				err = r.UnmarshalData(&resp)
			default:
				return output.ErrUsage("unsupported method: " + method)
			}
			if err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if jqExpr != "" {
				results, err := applyJQ(jqExpr, resp)
				if err != nil {
					return err
				}
				for _, r := range results {
					if err := app.Output.OK(r); err != nil {
						return err
					}
				}
				return nil
			}

			return app.OK(resp)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the response with a jq expression")

	return cmd
}

// applyJQ runs a jq expression over the decoded response.
func applyJQ(expr string, input any) ([]any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, output.ErrUsage("invalid jq expression: " + err.Error())
	}

	var results []any
	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, output.ErrUsage("jq: " + err.Error())
		}
		results = append(results, v)
	}
	return results, nil
}
