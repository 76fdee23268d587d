package web

import (
	"bytes"
	"html/template"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in descriptions is escaped: html.WithUnsafe is not set.
var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM, emoji.Emoji),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// descriptions memoizes rendered tree descriptions by source text. The tree
// fragment is rendered on every turn while descriptions only change on reload.
var descriptions = &descriptionCache{byText: map[string]template.HTML{}}

type descriptionCache struct {
	mu     sync.Mutex
	byText map[string]template.HTML
}

func (c *descriptionCache) render(src string) template.HTML {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	c.mu.Lock()
	out, ok := c.byText[src]
	c.mu.Unlock()
	if ok {
		return out
	}

	var b bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &b); err != nil {
		out = template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	} else {
		out = template.HTML(b.String())
	}
	c.mu.Lock()
	c.byText[src] = out
	c.mu.Unlock()
	return out
}

// forget drops every cached rendering. Called when definitions reload so
// descriptions that are gone do not accumulate.
func (c *descriptionCache) forget() {
	c.mu.Lock()
	c.byText = map[string]template.HTML{}
	c.mu.Unlock()
}

func renderMarkdownHTML(src string) template.HTML { return descriptions.render(src) }
