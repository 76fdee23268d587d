package tree

// Row is one row of a tree as seen by a session.
type Row struct {
	ID         string
	Label      string
	Depth      int
	Position   Position // nil for custom rows the model cannot locate
	Expandable bool
	Expanded   bool
	Selected   bool
	// Hidden rows sit below a collapsed ancestor. They are only listed in
	// ExpandClient mode, where the client holds every row.
	Hidden bool
	Image  *Image
}

// VisibleRows lists the rows a session currently sees, top to bottom: the
// custom tree when one is installed, otherwise the model. Children of
// collapsed rows are skipped, or listed as Hidden in ExpandClient mode.
func (t *Tree) VisibleRows(st *State) []Row {
	m := st.Model()
	all := t.expandMode == ExpandClient
	label := func(id string, pos Position) string {
		if l, ok := m.(Labeler); ok && pos != nil {
			if s := l.Label(pos); s != "" {
				return s
			}
		}
		return id
	}

	var out []Row
	if st.custom != nil {
		var walk func(n *Node, depth int, hidden bool)
		walk = func(n *Node, depth int, hidden bool) {
			for _, c := range n.Children {
				if c == nil {
					continue
				}
				pos, ok := t.locate(st, c.ID)
				if !ok {
					pos = nil
				}
				r := Row{
					ID:         c.ID,
					Label:      label(c.ID, pos),
					Depth:      depth,
					Position:   pos,
					Expandable: c.HasChildren(),
					Expanded:   st.expanded.Has(c.ID),
					Selected:   st.selected.Has(c.ID),
					Hidden:     hidden,
				}
				if pos != nil {
					r.Image = m.Image(pos)
				}
				out = append(out, r)
				if r.Expanded || all {
					walk(c, depth+1, hidden || !r.Expanded)
				}
			}
		}
		walk(st.custom, 0, false)
		return out
	}

	var walk func(pos Position, hidden bool)
	walk = func(pos Position, hidden bool) {
		id := m.ItemID(pos)
		r := Row{
			ID:         id,
			Label:      label(id, pos),
			Depth:      len(pos) - 1,
			Position:   pos,
			Expandable: m.IsExpandable(pos),
			Expanded:   st.expanded.Has(id),
			Selected:   st.selected.Has(id),
			Hidden:     hidden,
			Image:      m.Image(pos),
		}
		out = append(out, r)
		if r.Expandable && (r.Expanded || all) {
			for i, n := 0, m.ChildCount(pos); i < n; i++ {
				walk(pos.Child(i), hidden || !r.Expanded)
			}
		}
	}
	for i, n := 0, m.ChildCount(nil); i < n; i++ {
		walk(Position{i}, false)
	}
	return out
}
