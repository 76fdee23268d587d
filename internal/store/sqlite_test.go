package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"canopy/internal/model"
	"canopy/internal/tree"
)

func TestTreeState_SaveLoadList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}

	if _, ok, err := s.LoadTreeState(ctx, "s1", "library"); err != nil || ok {
		t.Fatalf("expected no state, got ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := model.TreeState{
		SessionID: "s1",
		TreeID:    "library",
		Selected:  []string{"dune"},
		Expanded:  []string{"fiction", "novels"},
		Custom:    `{"root":[{"id":"science"}]}`,
		UpdatedAt: at,
	}
	if err := s.SaveTreeState(ctx, want); err != nil {
		t.Fatalf("SaveTreeState: %v", err)
	}
	got, ok, err := s.LoadTreeState(ctx, "s1", "library")
	if err != nil || !ok {
		t.Fatalf("LoadTreeState: ok=%v err=%v", ok, err)
	}
	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, want.UpdatedAt)
	}
	got.UpdatedAt = want.UpdatedAt
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got: %#v\nwant: %#v", got, want)
	}

	want.Selected = []string{"science"}
	want.UpdatedAt = at.Add(time.Minute)
	if err := s.SaveTreeState(ctx, want); err != nil {
		t.Fatalf("SaveTreeState (replace): %v", err)
	}
	other := model.TreeState{SessionID: "s2", TreeID: "library", UpdatedAt: at}
	if err := s.SaveTreeState(ctx, other); err != nil {
		t.Fatalf("SaveTreeState (s2): %v", err)
	}

	all, err := s.ListTreeStates(ctx, "")
	if err != nil {
		t.Fatalf("ListTreeStates: %v", err)
	}
	if len(all) != 2 || all[0].SessionID != "s1" || !reflect.DeepEqual(all[0].Selected, []string{"science"}) {
		t.Fatalf("unexpected list: %#v", all)
	}
	mine, err := s.ListTreeStates(ctx, "s2")
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListTreeStates(s2) = %#v, %v", mine, err)
	}

	n, err := s.DeleteSession(ctx, "s1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteSession = %d, %v", n, err)
	}
	var nf NotFoundError
	if _, err := s.DeleteSession(ctx, "s1"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTreeState_RequiresIDs(t *testing.T) {
	s := Store{Dir: t.TempDir()}
	if err := s.SaveTreeState(context.Background(), model.TreeState{TreeID: "x"}); err == nil {
		t.Fatalf("expected error for missing session id")
	}
}

func TestActivity_AppendRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := Store{Dir: t.TempDir()}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, item := range []string{"a", "b", "c"} {
		a, err := s.AppendActivity(ctx, model.Activity{
			SessionID: "s1",
			TreeID:    "library",
			Type:      model.ActivityOpen,
			ItemID:    item,
			At:        base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
		if a.ID == "" {
			t.Fatalf("activity id not assigned")
		}
	}
	if _, err := s.AppendActivity(ctx, model.Activity{SessionID: "s2", TreeID: "other", Type: model.ActivityShuffle, At: base}); err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	if _, err := s.AppendActivity(ctx, model.Activity{}); err == nil {
		t.Fatalf("expected error for empty type")
	}

	all, err := s.ReadActivity(ctx, ActivityFilter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("ReadActivity = %d, %v", len(all), err)
	}

	last2, err := s.ReadActivity(ctx, ActivityFilter{SessionID: "s1", Limit: 2})
	if err != nil {
		t.Fatalf("ReadActivity: %v", err)
	}
	var items []string
	for _, a := range last2 {
		items = append(items, a.ItemID)
	}
	if !reflect.DeepEqual(items, []string{"b", "c"}) {
		t.Fatalf("newest two, oldest first = %v", items)
	}

	byTree, err := s.ReadActivity(ctx, ActivityFilter{TreeID: "other"})
	if err != nil || len(byTree) != 1 || byTree[0].Type != model.ActivityShuffle {
		t.Fatalf("ReadActivity(tree=other) = %#v, %v", byTree, err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	tr := tree.New("library", nil, tree.WithSelectMode(tree.SelectMultiple))
	st := tr.NewState()
	st.SetSelected(tree.NewSet("b", "a"))
	st.SetExpanded(tree.NewSet("x"))
	st.SetCustomTree(tree.NewNode("", tree.NewNode("a", tree.NewNode("b"))))

	rec, err := Snapshot("s1", tr, st)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if rec.TreeID != "library" || !reflect.DeepEqual(rec.Selected, []string{"a", "b"}) {
		t.Fatalf("unexpected record %#v", rec)
	}

	fresh := tr.NewState()
	if err := Restore(fresh, rec); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(fresh.Selected(), []string{"a", "b"}) || !fresh.IsExpanded("x") {
		t.Fatalf("selection/expansion not restored")
	}
	if !tree.NodesEqual(fresh.CustomTree(), st.CustomTree()) {
		t.Fatalf("custom tree not restored")
	}

	rec.Custom = "{"
	if err := Restore(tr.NewState(), rec); err == nil {
		t.Fatalf("expected error for bad custom tree")
	}
}
