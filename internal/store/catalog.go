package store

import (
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"

	"canopy/internal/model"
	"canopy/internal/tree"
)

// BuildTree turns a validated definition into a shared tree. opts are applied
// after the definition's own configuration.
func BuildTree(def model.Definition, opts ...tree.Option) (*tree.Tree, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}
	typ, _ := tree.ParseType(def.Type)
	sel, _ := tree.ParseSelectMode(def.SelectMode)
	exp, _ := tree.ParseExpandMode(def.ExpandMode)

	base := ""
	if def.Source != "" {
		base = filepath.Dir(def.Source)
	}
	all := []tree.Option{
		tree.WithType(typ),
		tree.WithSelectMode(sel),
		tree.WithExpandMode(exp),
		tree.WithShuffle(def.Shuffle),
	}
	if len(def.Custom) > 0 {
		all = append(all, tree.WithCustomTree(customTemplate(def.Custom)))
	}
	all = append(all, opts...)
	return tree.New(def.ID, NewDefinitionModel(def, base), all...), nil
}

func customTemplate(items []model.CustomDef) *tree.Node {
	var convert func(c model.CustomDef) *tree.Node
	convert = func(c model.CustomDef) *tree.Node {
		if c.Expandable && len(c.Items) == 0 {
			return tree.NewBranch(c.ID)
		}
		n := tree.NewNode(c.ID)
		for _, k := range c.Items {
			n.Children = append(n.Children, convert(k))
		}
		return n
	}
	root := tree.NewNode("")
	for _, c := range items {
		root.Children = append(root.Children, convert(c))
	}
	return root
}

// Catalog holds the trees built from a definitions directory. Reload swaps the
// whole set at once. Each tree carries the generation in which its definition
// last changed, so sessions re-adopt only the trees that were edited.
type Catalog struct {
	dir  string
	opts []tree.Option

	mu      sync.RWMutex
	gen     uint64
	entries map[string]catalogEntry
}

type catalogEntry struct {
	tree *tree.Tree
	def  model.Definition
	gen  uint64
}

// NewCatalog returns an empty catalog over dir. opts are applied to every tree.
func NewCatalog(dir string, opts ...tree.Option) *Catalog {
	return &Catalog{
		dir:     strings.TrimSpace(dir),
		opts:    opts,
		entries: map[string]catalogEntry{},
	}
}

func (c *Catalog) Dir() string { return c.dir }

// Reload rereads every definition. Trees whose definition is unchanged are
// kept as they are. On error the previous set stays in place.
func (c *Catalog) Reload() error {
	defs, err := LoadDefinitions(c.dir)
	if err != nil {
		return err
	}

	c.mu.RLock()
	prev := c.entries
	next := c.gen + 1
	c.mu.RUnlock()

	entries := make(map[string]catalogEntry, len(defs))
	changed := 0
	for _, def := range defs {
		if old, ok := prev[def.ID]; ok && reflect.DeepEqual(old.def, def) {
			entries[def.ID] = old
			continue
		}
		t, err := BuildTree(def, c.opts...)
		if err != nil {
			return err
		}
		entries[def.ID] = catalogEntry{tree: t, def: def, gen: next}
		changed++
	}

	c.mu.Lock()
	c.entries = entries
	c.gen = next
	c.mu.Unlock()

	if glog.V(1) {
		glog.Infof("catalog %s: loaded %d trees, %d changed (generation %d)", c.dir, len(entries), changed, next)
	}
	return nil
}

// Tree returns the current tree for id and the generation its definition was
// last loaded in.
func (c *Catalog) Tree(id string) (*tree.Tree, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e.tree, e.gen, ok
}

func (c *Catalog) Definition(id string) (model.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e.def, ok
}

// Generation counts successful reloads.
func (c *Catalog) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// IDs lists the tree ids in lexical order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
