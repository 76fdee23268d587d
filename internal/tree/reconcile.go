package tree

import (
	"context"
	"fmt"
)

// Branch names the path a request turn took through HandleRequest.
type Branch int

const (
	BranchMutation Branch = iota
	BranchImage
	BranchOpen
)

func (b Branch) String() string {
	switch b {
	case BranchImage:
		return "image"
	case BranchOpen:
		return "open"
	default:
		return "mutation"
	}
}

// Escape replaces the normal response with a raw resource.
type Escape struct {
	ItemID   string
	MimeType string
	Data     []byte
}

// Outcome reports what a request turn did.
type Outcome struct {
	Branch Branch
	// Changed is true when the selection differs from before the turn.
	Changed bool
	// Escape is set by image requests; the caller must send it as the whole response.
	Escape *Escape
}

// HandleRequest reconciles one request turn against st. Exactly one branch
// runs: a targeted image request, an open-item request, or a generic mutation
// of selection, custom tree and expansion. Deferred actions are added to q and
// must be drained by the caller before the response is produced.
//
// A *ProtocolError aborts the turn; individual bad tokens are only warned about.
func (t *Tree) HandleRequest(ctx context.Context, st *State, req Request, q *Queue) (Outcome, error) {
	st.openID = ""

	if target, ok := req.Param(ParamTarget); ok && target == t.TargetID() {
		esc, err := t.handleImageRequest(st, req)
		if err != nil {
			return Outcome{Branch: BranchImage}, err
		}
		return Outcome{Branch: BranchImage, Escape: esc}, nil
	}

	if t.isOpenItemRequest(req) {
		if err := t.handleOpenItemRequest(ctx, st, req, q); err != nil {
			return Outcome{Branch: BranchOpen}, err
		}
		return Outcome{Branch: BranchOpen}, nil
	}

	return Outcome{Branch: BranchMutation, Changed: t.handleMutation(ctx, st, req, q)}, nil
}

// IsPresent reports whether this tree submitted a form in req.
func (t *Tree) IsPresent(req Request) bool {
	_, ok := req.Param(t.presenceParam())
	return ok
}

func (t *Tree) isOpenItemRequest(req Request) bool {
	trigger, ok := req.Param(ParamTrigger)
	if !ok || trigger != t.id {
		return false
	}
	_, ok = req.Param(ParamItem)
	return ok
}

func (t *Tree) handleImageRequest(st *State, req Request) (*Escape, error) {
	itemID, ok := req.Param(ParamItem)
	if !ok {
		return nil, protocolErr("image", "", "no item id provided")
	}
	if !t.space(st).valid(itemID) {
		return nil, protocolErr("image", itemID, "item id is not valid")
	}
	pos, ok := t.locate(st, itemID)
	if !ok {
		return nil, protocolErr("image", itemID, "item has no row in the model")
	}
	img := st.Model().Image(pos)
	if img == nil || img.Content == nil {
		return nil, protocolErr("image", itemID, "item does not have an image")
	}
	data, err := img.Content()
	if err != nil {
		return nil, fmt.Errorf("tree %s: load image for %s: %w", t.id, itemID, err)
	}
	return &Escape{ItemID: itemID, MimeType: img.MimeType, Data: data}, nil
}

func (t *Tree) handleOpenItemRequest(ctx context.Context, st *State, req Request, q *Queue) error {
	raw, ok := req.Param(ParamItem)
	if !ok {
		return protocolErr("open", "", "no item id provided")
	}
	itemID, ok := t.StripPrefix(raw)
	if !ok {
		return protocolErr("open", raw, "item id does not have the correct prefix")
	}
	space := t.space(st)
	if !space.valid(itemID) {
		return protocolErr("open", itemID, "item id is not valid")
	}
	if err := space.prepareOpen(itemID); err != nil {
		return err
	}

	st.openID = itemID

	switch t.typ {
	case Horizontal:
		st.expanded = space.branchTo(itemID)
	default:
		rows := st.expanded.Clone()
		rows[itemID] = struct{}{}
		st.expanded = rows
	}

	if t.onOpen != nil {
		ev := ActionEvent{TreeID: t.id, Name: "openItem", ItemID: itemID, State: st}
		action := t.onOpen
		if err := q.Enqueue(func() { action(ctx, ev) }); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) handleMutation(ctx context.Context, st *State, req Request, q *Queue) bool {
	values := st.selected
	if t.IsPresent(req) {
		values = t.DecodeSelection(st, req.Params(t.selectionParam()))
	}
	changed := !SetsEqual(values, st.selected)
	if changed {
		st.selected = values
	}

	if t.shuffle {
		t.handleShuffle(ctx, st, req, q)
	}
	st.expanded = t.DecodeExpansion(st, req.Params(t.expansionParam()))
	return changed
}

func (t *Tree) handleShuffle(ctx context.Context, st *State, req Request, q *Queue) {
	payload, _ := req.Param(t.shuffleParam())
	if payload == "" {
		return
	}
	next, err := ParseCustomTree([]byte(payload))
	if err != nil {
		t.warn.Warningf("tree %s: could not parse shuffled tree items: %v", t.id, err)
		return
	}
	if NodesEqual(next, st.custom) {
		return
	}
	st.SetCustomTree(next)
	if t.onShuffle != nil {
		ev := ActionEvent{TreeID: t.id, Name: "shuffle", State: st}
		action := t.onShuffle
		if err := q.Enqueue(func() { action(ctx, ev) }); err != nil {
			t.warn.Warningf("tree %s: shuffle action not queued: %v", t.id, err)
		}
	}
}

// DecodeSelection turns raw selection tokens into item ids. Tokens without a
// valid prefix or naming unknown items are dropped with a warning. In single
// select mode decoding stops at the first valid id.
func (t *Tree) DecodeSelection(st *State, raw []string) Set {
	return t.decodeIDs(st, raw, "Selected", t.selectMode == SelectSingle)
}

// DecodeExpansion decodes expansion tokens with the same rules as
// DecodeSelection. A missing parameter means no rows are expanded.
func (t *Tree) DecodeExpansion(st *State, raw []string) Set {
	return t.decodeIDs(st, raw, "Expanded", false)
}

func (t *Tree) decodeIDs(st *State, raw []string, kind string, single bool) Set {
	out := Set{}
	space := t.space(st)
	for _, token := range nonEmpty(raw) {
		itemID, ok := t.StripPrefix(token)
		if !ok {
			t.warn.Warningf("%s row id [%s] does not have a valid prefix and will be ignored", kind, token)
			continue
		}
		if !space.valid(itemID) {
			t.warn.Warningf("%s row id [%s] is not valid and will be ignored", kind, itemID)
			continue
		}
		out[itemID] = struct{}{}
		if single {
			break
		}
	}
	return out
}
