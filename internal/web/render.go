package web

import (
	"html/template"
	"net/url"
	"strings"

	"github.com/golang/glog"

	"canopy/internal/tree"
)

type treeVM struct {
	ID          string
	Title       string
	Description template.HTML
	Type        string
	SelectMode  string
	ExpandMode  string
	Multiple    bool
	Shuffle     bool
	ReadOnly    bool
	Action      string
	EventsURL   string

	PresenceParam  string
	SelectionParam string
	ExpansionParam string
	ShuffleParam   string
	CustomJSON     string

	Value  string
	OpenID string
	Rows   []rowVM
}

type rowVM struct {
	ID         string
	Token      string
	Label      string
	Indent     int
	Expandable bool
	Expanded   bool
	Selected   bool
	Hidden     bool
	Opened     bool
	ImageURL   string
	OpenURL    string
}

func (s *Server) treeViewModel(t *tree.Tree, st *tree.State) treeVM {
	def, _ := s.catalog.Definition(t.ID())
	presence, selection, expansion, shuffle := t.ParamNames()
	base := treeURL(t.ID())

	title := strings.TrimSpace(def.Title)
	if title == "" {
		title = t.ID()
	}
	vm := treeVM{
		ID:             t.ID(),
		Title:          title,
		Description:    renderMarkdownHTML(def.Description),
		Type:           t.Type().String(),
		SelectMode:     t.SelectMode().String(),
		ExpandMode:     t.ExpandMode().String(),
		Multiple:       t.SelectMode() == tree.SelectMultiple,
		Shuffle:        t.Shuffle(),
		ReadOnly:       s.cfg.ReadOnly,
		Action:         base,
		EventsURL:      base + "/events",
		PresenceParam:  presence,
		SelectionParam: selection,
		ExpansionParam: expansion,
		ShuffleParam:   shuffle,
		Value:          st.ValueString(),
		OpenID:         st.PendingOpenID(),
	}
	if root := st.CustomTree(); root != nil && t.Shuffle() {
		raw, err := root.MarshalJSON()
		if err != nil {
			glog.Warningf("tree %s: encode custom tree: %v", t.ID(), err)
		} else {
			vm.CustomJSON = string(raw)
		}
	}

	for _, r := range t.VisibleRows(st) {
		token := t.PrefixItemID(r.ID)
		q := url.Values{}
		q.Set(tree.ParamTrigger, t.ID())
		q.Set(tree.ParamItem, token)
		vm.Rows = append(vm.Rows, rowVM{
			ID:         r.ID,
			Token:      token,
			Label:      r.Label,
			Indent:     r.Depth,
			Expandable: r.Expandable,
			Expanded:   r.Expanded,
			Selected:   r.Selected,
			Hidden:     r.Hidden,
			Opened:     r.ID == vm.OpenID,
			ImageURL:   t.ImageURL(base, r.Image, r.ID),
			OpenURL:    base + "/open?" + q.Encode(),
		})
	}
	return vm
}
