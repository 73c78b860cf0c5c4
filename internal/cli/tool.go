package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"support-router/internal/tools"
)

func newToolCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tool <name> [json-args]",
		Short: "Invoke a support tool directly",
		Long: `Invoke one tool by name with JSON arguments and print its JSON result.
Failures are printed as {"error": "..."} like any other tool result.

Tools: ` + strings.Join(tools.Names(), ", ") + `

Examples:
  support tool lookup_user '{"email":"alice@example.com"}'
  support tool search_knowledge '{"query":"refund policy"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := json.RawMessage(`{}`)
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}

			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Tools.Call(cmd.Context(), args[0], raw)
			fmt.Fprintln(cmd.OutOrStdout(), res.JSON())
			return nil
		},
	}
}
