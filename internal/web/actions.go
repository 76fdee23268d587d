package web

import (
	"context"
	"strings"

	"github.com/golang/glog"

	"canopy/internal/model"
	"canopy/internal/store"
	"canopy/internal/tree"
)

// TreeOptions returns the deferred actions the server attaches to every tree:
// opened items and shuffles are appended to the activity log.
func TreeOptions(cfg ServerConfig) []tree.Option {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" || cfg.ReadOnly {
		return nil
	}
	st := store.Store{Dir: dir}
	return []tree.Option{
		tree.WithOpenAction(recordActivity(st, model.ActivityOpen)),
		tree.WithShuffleAction(recordActivity(st, model.ActivityShuffle)),
	}
}

func recordActivity(st store.Store, typ string) tree.Action {
	return func(ctx context.Context, ev tree.ActionEvent) {
		_, err := st.AppendActivity(ctx, model.Activity{
			SessionID: SessionIDFrom(ctx),
			TreeID:    ev.TreeID,
			Type:      typ,
			ItemID:    ev.ItemID,
		})
		if err != nil {
			glog.Warningf("tree %s: record %s: %v", ev.TreeID, typ, err)
		}
	}
}
