package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"canopy/internal/store"
	"canopy/internal/tree"
	"canopy/internal/tui"
	"canopy/internal/web"
)

const defaultTerminalSession = "terminal"

func newBrowseCmd(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "browse <tree-id>",
		Short: "Browse a tree in the terminal",
		Long: strings.TrimSpace(`
Browse a tree interactively. The terminal session is stored like a browser
session, so selection, expansion and row order survive restarts. When the
browser exits the final selection is written to stdout.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			s := store.Store{Dir: dir}
			if err := s.Ensure(); err != nil {
				return writeErr(cmd, err)
			}
			catalog, err := loadCatalog(app, web.TreeOptions(web.ServerConfig{Dir: dir})...)
			if err != nil {
				return writeErr(cmd, err)
			}
			id := strings.TrimSpace(args[0])
			t, _, ok := catalog.Tree(id)
			if !ok {
				return writeErr(cmd, store.NotFoundError{Kind: "tree", ID: id})
			}
			def, _ := catalog.Definition(id)

			sid := strings.TrimSpace(sessionID)
			ctx := web.WithSessionID(commandContext(cmd), sid)
			st := t.NewState()
			rec, found, err := s.LoadTreeState(ctx, sid, id)
			if err != nil {
				return writeErr(cmd, err)
			}
			if found {
				if err := store.Restore(st, rec); err != nil {
					return writeErr(cmd, err)
				}
			}

			err = tui.Run(ctx, t, st, tui.Options{
				Title:       def.Title,
				Description: def.Description,
				OnTurn:      saveTurn(s, sid, t),
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"session":  sid,
					"tree":     id,
					"selected": st.Selected(),
					"expanded": st.Expanded(),
				},
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", envOr("CANOPY_SESSION", defaultTerminalSession), "Session id the terminal state is stored under")
	return cmd
}

func saveTurn(s store.Store, sessionID string, t *tree.Tree) func(context.Context, *tree.State) error {
	return func(ctx context.Context, st *tree.State) error {
		rec, err := store.Snapshot(sessionID, t, st)
		if err != nil {
			return err
		}
		return s.SaveTreeState(ctx, rec)
	}
}
