package tree

import "github.com/golang/glog"

// positionIndex returns the id => Position map for st, building it on first use.
// Only rows reachable through expanded ancestors are indexed, except in
// ExpandClient mode where the client holds every row.
func (t *Tree) positionIndex(st *State) map[string]Position {
	if st.positions != nil {
		return st.positions
	}
	m := st.Model()
	out := map[string]Position{}
	var visit func(pos Position)
	visit = func(pos Position) {
		id := m.ItemID(pos)
		out[id] = pos
		if !m.IsExpandable(pos) {
			return
		}
		if t.expandMode != ExpandClient && !st.expanded.Has(id) {
			return
		}
		for i, n := 0, m.ChildCount(pos); i < n; i++ {
			visit(pos.Child(i))
		}
	}
	for i, n := 0, m.ChildCount(nil); i < n; i++ {
		visit(Position{i})
	}
	if glog.V(2) {
		glog.Infof("tree %s: indexed %d rows", t.id, len(out))
	}
	st.positions = out
	return out
}

// Resolve returns the position of a currently reachable row.
func (t *Tree) Resolve(st *State, id string) (Position, bool) {
	pos, ok := t.positionIndex(st)[id]
	return pos, ok
}

// locate finds the model position of id for lazy loading of custom nodes.
func (t *Tree) locate(st *State, id string) (Position, bool) {
	if l, ok := st.Model().(Locator); ok {
		return l.Locate(id)
	}
	return t.Resolve(st, id)
}

// idsToReach returns the ids of every row from the top level down to pos.
func idsToReach(m Model, pos Position) Set {
	out := Set{}
	for i := 1; i <= len(pos); i++ {
		out[m.ItemID(pos[:i])] = struct{}{}
	}
	return out
}
