package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"canopy/internal/model"
	"canopy/internal/store"
)

func newActivityCmd(app *App) *cobra.Command {
	var f store.ActivityFilter

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List opened items and reorders, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Limit < 0 {
				return writeErr(cmd, errors.New("activity: --limit must be >= 0"))
			}
			dir, err := resolveDir(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			entries, err := store.Store{Dir: dir}.ReadActivity(commandContext(cmd), f)
			if err != nil {
				return writeErr(cmd, err)
			}
			if entries == nil {
				entries = []model.Activity{}
			}
			return writeOut(cmd, app, map[string]any{
				"data": entries,
				"meta": map[string]any{"count": len(entries), "limit": f.Limit},
			})
		},
	}

	cmd.Flags().StringVar(&f.SessionID, "session", "", "Only show activity of this session")
	cmd.Flags().StringVar(&f.TreeID, "tree", "", "Only show activity of this tree")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Keep the newest N entries (0 = all)")
	return cmd
}
