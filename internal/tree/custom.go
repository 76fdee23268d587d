package tree

// Node is a node of a custom tree: a session-owned arrangement of item ids that
// replaces the model's natural structure (e.g. after the client reorders rows).
// The root node has an empty ID and owns its whole subtree.
type Node struct {
	ID       string
	Children []*Node

	// expandable marks a branch whose children have not been loaded yet.
	expandable bool
}

func NewNode(id string, children ...*Node) *Node {
	return &Node{ID: id, Children: children}
}

// NewBranch returns a node that declares children without carrying them.
// They are pulled from the model the first time the node is opened.
func NewBranch(id string) *Node {
	return &Node{ID: id, expandable: true}
}

// HasChildren reports whether n has, or declares, children.
func (n *Node) HasChildren() bool {
	return n != nil && (n.expandable || len(n.Children) > 0)
}

// Clone returns a deep copy so per-session edits never alias a shared template.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, expandable: n.expandable}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// NodesEqual compares ids and child order recursively. Two nil trees are equal.
func NodesEqual(a, b *Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ID != b.ID || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !NodesEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// indexNodes maps every non-root id below root to its node.
func indexNodes(root *Node) map[string]*Node {
	out := map[string]*Node{}
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			if c == nil {
				continue
			}
			out[c.ID] = c
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// pathTo returns the ids from the top level down to id (inclusive), or nil.
func pathTo(root *Node, id string) []string {
	if root == nil {
		return nil
	}
	var path []string
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		for _, c := range n.Children {
			if c == nil {
				continue
			}
			path = append(path, c.ID)
			if c.ID == id || walk(c) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !walk(root) {
		return nil
	}
	return path
}

// loadChildren materializes the children of a leafless branch from the model.
// It is a no-op when n already has children or declares none. Children for
// which taken reports true are already placed elsewhere and are skipped.
func loadChildren(n *Node, m Model, pos Position, taken func(id string) bool) []*Node {
	if !n.HasChildren() || len(n.Children) > 0 {
		return nil
	}
	count := m.ChildCount(pos)
	added := make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		cp := pos.Child(i)
		id := m.ItemID(cp)
		if taken != nil && taken(id) {
			continue
		}
		added = append(added, &Node{ID: id, expandable: m.IsExpandable(cp) && m.ChildCount(cp) > 0})
	}
	n.Children = added
	return added
}
