package store

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"canopy/internal/model"
	"canopy/internal/tree"
)

// DefinitionModel serves the rows of a tree definition. It is immutable once
// built and safe for concurrent readers.
type DefinitionModel struct {
	items   []model.NodeDef
	baseDir string
	byID    map[string]tree.Position
}

// NewDefinitionModel indexes def's rows. Image files are resolved against baseDir.
func NewDefinitionModel(def model.Definition, baseDir string) *DefinitionModel {
	m := &DefinitionModel{items: def.Items, baseDir: baseDir, byID: map[string]tree.Position{}}
	var walk func(items []model.NodeDef, pos tree.Position)
	walk = func(items []model.NodeDef, pos tree.Position) {
		for i, n := range items {
			p := pos.Child(i)
			if _, dup := m.byID[n.ID]; !dup {
				m.byID[n.ID] = p
			}
			walk(n.Items, p)
		}
	}
	walk(def.Items, nil)
	return m
}

func (m *DefinitionModel) node(pos tree.Position) *model.NodeDef {
	items := m.items
	var cur *model.NodeDef
	for _, i := range pos {
		if i < 0 || i >= len(items) {
			return nil
		}
		cur = &items[i]
		items = cur.Items
	}
	return cur
}

func (m *DefinitionModel) ChildCount(pos tree.Position) int {
	if len(pos) == 0 {
		return len(m.items)
	}
	if n := m.node(pos); n != nil {
		return len(n.Items)
	}
	return 0
}

func (m *DefinitionModel) ItemID(pos tree.Position) string {
	if n := m.node(pos); n != nil {
		return n.ID
	}
	return ""
}

func (m *DefinitionModel) IsExpandable(pos tree.Position) bool {
	n := m.node(pos)
	return n != nil && n.IsExpandable()
}

func (m *DefinitionModel) Label(pos tree.Position) string {
	if n := m.node(pos); n != nil {
		return n.Label
	}
	return ""
}

// Locate finds any row by id, collapsed ancestors included.
func (m *DefinitionModel) Locate(id string) (tree.Position, bool) {
	pos, ok := m.byID[id]
	return pos, ok
}

// Len is the total number of rows.
func (m *DefinitionModel) Len() int { return len(m.byID) }

func (m *DefinitionModel) Image(pos tree.Position) *tree.Image {
	n := m.node(pos)
	if n == nil || n.Image == nil {
		return nil
	}
	def := n.Image
	if u := strings.TrimSpace(def.URL); u != "" {
		return &tree.Image{URL: u, MimeType: def.MimeType}
	}
	file := strings.TrimSpace(def.File)
	if file == "" {
		return nil
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(m.baseDir, file)
	}
	mimeType := strings.TrimSpace(def.MimeType)
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(file))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &tree.Image{
		MimeType: mimeType,
		CacheKey: strings.TrimSpace(def.CacheKey),
		Content:  func() ([]byte, error) { return os.ReadFile(file) },
	}
}
