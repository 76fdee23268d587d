package tui

import (
	"net/url"

	json "github.com/goccy/go-json"

	"canopy/internal/tree"
)

// The browser drives the tree through the same request turns as the web
// client: it builds the parameters a submitted form would carry.

func formValues(t *tree.Tree, selection, expansion tree.Set) url.Values {
	presence, selName, expName, _ := t.ParamNames()
	v := url.Values{}
	v.Set(presence, "")
	for _, id := range selection.Sorted() {
		v.Add(selName, t.PrefixItemID(id))
	}
	for _, id := range expansion.Sorted() {
		v.Add(expName, t.PrefixItemID(id))
	}
	return v
}

func openValues(t *tree.Tree, itemID string) url.Values {
	v := url.Values{}
	v.Set(tree.ParamTrigger, t.ID())
	v.Set(tree.ParamItem, t.PrefixItemID(itemID))
	return v
}

func shuffleValues(t *tree.Tree, st *tree.State, root *tree.Node) (url.Values, error) {
	payload, err := json.Marshal(root)
	if err != nil {
		return nil, err
	}
	_, _, _, shuffle := t.ParamNames()
	v := formValues(t, st.Selection(), st.Expansion())
	v.Set(shuffle, string(payload))
	return v, nil
}

// toggleSelection returns the selection after the user toggles id.
func toggleSelection(t *tree.Tree, st *tree.State, id string) tree.Set {
	cur := st.Selection()
	if cur.Has(id) {
		delete(cur, id)
		return cur
	}
	if t.SelectMode() == tree.SelectSingle {
		return tree.NewSet(id)
	}
	cur[id] = struct{}{}
	return cur
}

// arrangement returns a copy of the session's custom tree, or builds one from
// the model's currently expanded rows. Collapsed branches become lazy nodes.
func arrangement(st *tree.State) *tree.Node {
	if root := st.CustomTree(); root != nil {
		return root.Clone()
	}
	m := st.Model()
	var build func(pos tree.Position) *tree.Node
	build = func(pos tree.Position) *tree.Node {
		id := m.ItemID(pos)
		if !m.IsExpandable(pos) {
			return tree.NewNode(id)
		}
		if !st.IsExpanded(id) {
			return tree.NewBranch(id)
		}
		n := tree.NewNode(id)
		for i, c := 0, m.ChildCount(pos); i < c; i++ {
			n.Children = append(n.Children, build(pos.Child(i)))
		}
		return n
	}
	root := tree.NewNode("")
	for i, c := 0, m.ChildCount(nil); i < c; i++ {
		root.Children = append(root.Children, build(tree.Position{i}))
	}
	return root
}

// moveSibling shifts id by delta among its siblings. It reports false when id
// is missing or would leave its parent's bounds.
func moveSibling(root *tree.Node, id string, delta int) bool {
	if root == nil {
		return false
	}
	for i, c := range root.Children {
		if c == nil {
			continue
		}
		if c.ID == id {
			j := i + delta
			if j < 0 || j >= len(root.Children) {
				return false
			}
			root.Children[i], root.Children[j] = root.Children[j], root.Children[i]
			return true
		}
		if moveSibling(c, id, delta) {
			return true
		}
	}
	return false
}
