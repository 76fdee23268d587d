package tree

import "strings"

// State is the per-session UI state of one tree. A State is used by one
// request turn at a time and needs no locking of its own.
type State struct {
	model    Model
	selected Set
	expanded Set
	custom   *Node
	openID   string

	// Turn-scoped scratch caches, rebuilt on demand.
	positions map[string]Position
	customIDs map[string]*Node
}

// Model returns the row model the state is bound to.
func (s *State) Model() Model {
	if s.model == nil {
		return EmptyModel
	}
	return s.model
}

// SetModel installs a new row model. The position index is dropped and the
// selection, expansion and custom tree are cleared since their ids belonged
// to the old model.
func (s *State) SetModel(m Model) {
	if m == nil {
		m = EmptyModel
	}
	s.model = m
	s.positions = nil
	s.selected = nil
	s.expanded = nil
	s.SetCustomTree(nil)
}

// CustomTree returns the installed custom tree root, or nil.
func (s *State) CustomTree() *Node { return s.custom }

// SetCustomTree takes ownership of root and drops the custom id map.
func (s *State) SetCustomTree(root *Node) {
	s.custom = root
	s.customIDs = nil
}

// Selection returns a copy of the selected ids.
func (s *State) Selection() Set { return s.selected.Clone() }

// Selected returns the selected ids in lexical order.
func (s *State) Selected() []string { return s.selected.Sorted() }

func (s *State) SetSelected(ids Set) { s.selected = ids.Clone() }

func (s *State) IsEmpty() bool { return s.selected.Len() == 0 }

// ValueString joins the selection with ", "; it is empty when nothing is selected.
func (s *State) ValueString() string {
	return strings.Join(s.Selected(), ", ")
}

// Expansion returns a copy of the expanded ids.
func (s *State) Expansion() Set { return s.expanded.Clone() }

func (s *State) Expanded() []string { return s.expanded.Sorted() }

func (s *State) SetExpanded(ids Set) { s.expanded = ids.Clone() }

func (s *State) IsExpanded(id string) bool { return s.expanded.Has(id) }

// PendingOpenID is the item whose open request is being serviced this turn.
func (s *State) PendingOpenID() string { return s.openID }

// EndTurn runs once the response has been produced: the pending open marker
// is cleared and the scratch caches are dropped.
func (s *State) EndTurn() {
	s.openID = ""
	s.positions = nil
	s.customIDs = nil
}

// InvalidatePositions drops the position index. Call it when the model's
// structure changed in place.
func (s *State) InvalidatePositions() { s.positions = nil }

// customIndex returns the lazily built id => node map of the custom tree.
func (s *State) customIndex() map[string]*Node {
	if s.customIDs == nil {
		s.customIDs = indexNodes(s.custom)
	}
	return s.customIDs
}
