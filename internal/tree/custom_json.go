package tree

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Custom trees travel as {"root":[{"id":"a","expandable":true,"items":[...]}]}.
type wireTree struct {
	Root []wireNode `json:"root"`
}

type wireNode struct {
	ID         string     `json:"id"`
	Expandable bool       `json:"expandable,omitempty"`
	Items      []wireNode `json:"items,omitempty"`
}

// ParseCustomTree decodes a serialized custom tree. Empty input yields an empty root.
// Item ids must be non-empty and unique.
func ParseCustomTree(data []byte) (*Node, error) {
	root := &Node{}
	if strings.TrimSpace(string(data)) == "" {
		return root, nil
	}
	var w wireTree
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("custom tree: %w", err)
	}
	seen := map[string]bool{}
	var convert func(in wireNode) (*Node, error)
	convert = func(in wireNode) (*Node, error) {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return nil, errors.New("custom tree: item without id")
		}
		if seen[id] {
			return nil, fmt.Errorf("custom tree: duplicate item id %q", id)
		}
		seen[id] = true
		n := &Node{ID: id, expandable: in.Expandable}
		for _, c := range in.Items {
			cn, err := convert(c)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, cn)
		}
		return n, nil
	}
	for _, in := range w.Root {
		n, err := convert(in)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, n)
	}
	return root, nil
}

func toWire(n *Node) wireNode {
	out := wireNode{ID: n.ID, Expandable: n.expandable && len(n.Children) == 0}
	for _, c := range n.Children {
		if c != nil {
			out.Items = append(out.Items, toWire(c))
		}
	}
	return out
}

// MarshalJSON encodes the tree rooted at n in the wire format read by ParseCustomTree.
func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireTree{Root: []wireNode{}}
	if n != nil {
		for _, c := range n.Children {
			if c != nil {
				w.Root = append(w.Root, toWire(c))
			}
		}
	}
	return json.Marshal(w)
}
