package tree

// itemSpace is the active id universe of a State: the model's expanded rows,
// or the installed custom tree.
type itemSpace interface {
	valid(id string) bool
	// prepareOpen checks that id can be opened, loading custom children if needed.
	prepareOpen(id string) error
	// branchTo returns the ids from the top level down to id.
	branchTo(id string) Set
}

func (t *Tree) space(st *State) itemSpace {
	if st.custom != nil {
		return customSpace{t: t, st: st}
	}
	return modelSpace{t: t, st: st}
}

type modelSpace struct {
	t  *Tree
	st *State
}

func (s modelSpace) valid(id string) bool {
	_, ok := s.t.Resolve(s.st, id)
	return ok
}

func (s modelSpace) prepareOpen(id string) error {
	pos, _ := s.t.Resolve(s.st, id)
	if !s.st.Model().IsExpandable(pos) {
		return protocolErr("open", id, "item is not expandable")
	}
	return nil
}

func (s modelSpace) branchTo(id string) Set {
	pos, _ := s.t.Resolve(s.st, id)
	return idsToReach(s.st.Model(), pos)
}

type customSpace struct {
	t  *Tree
	st *State
}

func (s customSpace) valid(id string) bool {
	_, ok := s.st.customIndex()[id]
	return ok
}

func (s customSpace) prepareOpen(id string) error {
	n := s.st.customIndex()[id]
	if !n.HasChildren() {
		return protocolErr("open", id, "item is not expandable in custom tree")
	}
	return s.t.LoadCustomChildren(s.st, n)
}

func (s customSpace) branchTo(id string) Set {
	return NewSet(pathTo(s.st.custom, id)...)
}

// LoadCustomChildren pulls the children of a leafless custom branch from the
// model and attaches them in place. Nodes that already have children are left
// alone, so a second call never refetches. Children already present elsewhere
// in the custom tree keep their place and are not added again.
func (t *Tree) LoadCustomChildren(st *State, n *Node) error {
	if n == nil || !n.HasChildren() || len(n.Children) > 0 {
		return nil
	}
	pos, ok := t.locate(st, n.ID)
	if !ok {
		return protocolErr("open", n.ID, "custom item has no row in the model")
	}
	ids := st.customIndex()
	for _, c := range loadChildren(n, st.Model(), pos, func(id string) bool { _, ok := ids[id]; return ok }) {
		ids[c.ID] = c
	}
	return nil
}
