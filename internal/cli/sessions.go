package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"canopy/internal/model"
	"canopy/internal/store"
)

func newSessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and reset stored session state",
	}
	cmd.AddCommand(newSessionsListCmd(app))
	cmd.AddCommand(newSessionsResetCmd(app))
	return cmd
}

func newSessionsListCmd(app *App) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored tree states, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			states, err := store.Store{Dir: dir}.ListTreeStates(commandContext(cmd), sessionID)
			if err != nil {
				return writeErr(cmd, err)
			}
			if states == nil {
				states = []model.TreeState{}
			}
			sessions := map[string]bool{}
			for _, st := range states {
				sessions[st.SessionID] = true
			}
			return writeOut(cmd, app, map[string]any{
				"data": states,
				"meta": map[string]any{"sessions": len(sessions), "states": len(states)},
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only list states of this session")
	return cmd
}

func newSessionsResetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Forget the stored tree states of a session (activity is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			id := strings.TrimSpace(args[0])
			n, err := store.Store{Dir: dir}.DeleteSession(commandContext(cmd), id)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{"session": id, "removed": n},
				"_hints": []string{
					"a running server keeps the session in memory until it restarts",
				},
			})
		},
	}
}
