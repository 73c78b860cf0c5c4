package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"support-router/internal/usecase"
)

func newRunCmd(e *env) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Process one customer message and print the reply",
		Long: `Process one customer message through the router and print the reply.

Pass --session to continue an earlier conversation; the session id is printed
after every reply.

Examples:
  support run "How do I reserve an experience?"
  support run "it's alice@example.com" --session 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Service.Process(cmd.Context(), usecase.ProcessInput{Message: args[0], SessionID: sessionID})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			fmt.Fprintf(cmd.OutOrStdout(), "\nsession: %s\n", out.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue")
	return cmd
}

func newChatCmd(e *env) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive support conversation",
		Long: `Start an interactive conversation. Each line is one customer message;
an empty line or "exit" ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(w, "you> ")
				if !scanner.Scan() {
					fmt.Fprintln(w)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.EqualFold(line, "exit") {
					return nil
				}
				out, err := a.Service.Process(cmd.Context(), usecase.ProcessInput{Message: line, SessionID: sessionID})
				if err != nil {
					fmt.Fprintf(w, "error: %v\n", err)
					continue
				}
				sessionID = out.SessionID
				fmt.Fprintf(w, "support> %s\n", out.Reply)
			}
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue")
	return cmd
}
