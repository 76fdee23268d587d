package store

import (
	"fmt"
	"time"

	"canopy/internal/model"
	"canopy/internal/tree"
)

// Snapshot captures the persistable part of a session's tree state.
func Snapshot(sessionID string, t *tree.Tree, st *tree.State) (model.TreeState, error) {
	rec := model.TreeState{
		SessionID: sessionID,
		TreeID:    t.ID(),
		Selected:  st.Selected(),
		Expanded:  st.Expanded(),
		UpdatedAt: time.Now().UTC(),
	}
	if root := st.CustomTree(); root != nil {
		raw, err := root.MarshalJSON()
		if err != nil {
			return model.TreeState{}, fmt.Errorf("encode custom tree: %w", err)
		}
		rec.Custom = string(raw)
	}
	return rec, nil
}

// Restore applies a stored record to a fresh state. Ids that no longer exist
// are kept; they drop out the next time the client submits the tree.
func Restore(st *tree.State, rec model.TreeState) error {
	if rec.Custom != "" {
		root, err := tree.ParseCustomTree([]byte(rec.Custom))
		if err != nil {
			return fmt.Errorf("decode custom tree: %w", err)
		}
		st.SetCustomTree(root)
	}
	st.SetSelected(tree.NewSet(rec.Selected...))
	st.SetExpanded(tree.NewSet(rec.Expanded...))
	return nil
}
