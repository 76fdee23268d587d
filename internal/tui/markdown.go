package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

type rendererKey struct {
	style string
	width int
}

// rendererCache holds one glamour renderer per style and wrap width.
// Building a renderer parses a whole style sheet, and the header is redrawn
// on every resize.
type rendererCache struct {
	mu  sync.Mutex
	byK map[rendererKey]*glamour.TermRenderer
}

var headerRenderers = &rendererCache{byK: map[rendererKey]*glamour.TermRenderer{}}

func (c *rendererCache) get(k rendererKey) (*glamour.TermRenderer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byK[k]; ok {
		return r, nil
	}
	cfg := styles.DarkStyleConfig
	if k.style == "light" {
		cfg = styles.LightStyleConfig
	}
	flush(&cfg)
	r, err := glamour.NewTermRenderer(glamour.WithStyles(cfg), glamour.WithWordWrap(k.width))
	if err != nil {
		return nil, err
	}
	c.byK[k] = r
	return r, nil
}

// flush removes the outer margins so the description lines up with the rows.
func flush(cfg *ansi.StyleConfig) {
	zero := uint(0)
	cfg.Document.Margin = &zero
	cfg.Paragraph.Margin = &zero
}

// renderMarkdown renders a tree description for the header. Rendering
// failures fall back to the raw text.
func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	r, err := headerRenderers.get(rendererKey{style: markdownStyle(), width: max(width, 20)})
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
