// Package tree holds the server-side state machine of a lazily materialized
// tree control: item identity, per-session selection and expansion, custom
// (shuffled) trees, and reconciliation of client requests against them.
package tree

import (
	"context"
	"strings"
)

// Type selects how opening a branch affects the rest of the tree.
type Type int

const (
	// Vertical trees keep every opened branch open.
	Vertical Type = iota
	// Horizontal trees show a single open branch from the top level down.
	Horizontal
)

func (t Type) String() string {
	if t == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

type SelectMode int

const (
	SelectSingle SelectMode = iota
	SelectMultiple
)

func (m SelectMode) String() string {
	if m == SelectMultiple {
		return "multiple"
	}
	return "single"
}

// ExpandMode describes where row expansion happens.
type ExpandMode int

const (
	// ExpandLazy loads a branch from the server once, when first opened.
	ExpandLazy ExpandMode = iota
	// ExpandClient ships every row to the client up front.
	ExpandClient
	// ExpandDynamic asks the server every time a branch is opened.
	ExpandDynamic
)

func (m ExpandMode) String() string {
	switch m {
	case ExpandClient:
		return "client"
	case ExpandDynamic:
		return "dynamic"
	default:
		return "lazy"
	}
}

// ParseType, ParseSelectMode and ParseExpandMode accept the lower-case names
// produced by String; empty input selects the default.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vertical":
		return Vertical, true
	case "horizontal":
		return Horizontal, true
	}
	return Vertical, false
}

func ParseSelectMode(s string) (SelectMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return SelectSingle, true
	case "multiple":
		return SelectMultiple, true
	}
	return SelectSingle, false
}

func ParseExpandMode(s string) (ExpandMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lazy":
		return ExpandLazy, true
	case "client":
		return ExpandClient, true
	case "dynamic":
		return ExpandDynamic, true
	}
	return ExpandLazy, false
}

// Action is run from the deferred action queue after a request is reconciled.
type Action func(ctx context.Context, ev ActionEvent)

// ActionEvent describes why an Action runs.
type ActionEvent struct {
	TreeID string
	Name   string // "openItem" or "shuffle"
	ItemID string // the opened item for "openItem"
	State  *State
}

// Tree is the shared definition of one tree control. It is read-only once
// built and may serve any number of sessions, each holding its own State.
type Tree struct {
	id         string
	model      Model
	typ        Type
	selectMode SelectMode
	expandMode ExpandMode
	shuffle    bool
	onOpen     Action
	onShuffle  Action
	template   *Node
	warn       Warner
}

type Option func(*Tree)

func WithType(t Type) Option { return func(tr *Tree) { tr.typ = t } }
func WithSelectMode(m SelectMode) Option { return func(tr *Tree) { tr.selectMode = m } }
func WithExpandMode(m ExpandMode) Option { return func(tr *Tree) { tr.expandMode = m } }

// WithShuffle lets clients submit reordered custom trees.
func WithShuffle(enabled bool) Option { return func(tr *Tree) { tr.shuffle = enabled } }
func WithOpenAction(a Action) Option { return func(tr *Tree) { tr.onOpen = a } }
func WithShuffleAction(a Action) Option {
	return func(tr *Tree) { tr.onShuffle = a }
}

// WithCustomTree installs a template copied into every new State.
func WithCustomTree(root *Node) Option { return func(tr *Tree) { tr.template = root.Clone() } }

func WithWarner(w Warner) Option {
	return func(tr *Tree) {
		if w != nil {
			tr.warn = w
		}
	}
}

func New(id string, model Model, opts ...Option) *Tree {
	if model == nil {
		model = EmptyModel
	}
	t := &Tree{id: strings.TrimSpace(id), model: model, warn: glogWarner{}}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tree) ID() string { return t.id }

// TargetID identifies targeted requests (image downloads) aimed at this tree.
func (t *Tree) TargetID() string { return t.id }
func (t *Tree) Model() Model { return t.model }
func (t *Tree) Type() Type { return t.typ }
func (t *Tree) SelectMode() SelectMode { return t.selectMode }
func (t *Tree) ExpandMode() ExpandMode { return t.expandMode }
func (t *Tree) Shuffle() bool { return t.shuffle }
func (t *Tree) CustomTemplate() *Node { return t.template.Clone() }

// NewState returns fresh per-session state bound to the tree's model. The
// custom tree template, if any, is deep-copied.
func (t *Tree) NewState() *State {
	return &State{model: t.model, custom: t.template.Clone()}
}

// Adopt rebinds st to this tree after its definition was reloaded. Selection,
// expansion and caches are reset as with SetModel.
func (t *Tree) Adopt(st *State) {
	st.SetModel(t.model)
	st.SetCustomTree(t.template.Clone())
}
