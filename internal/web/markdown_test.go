package web

import (
	"html/template"
	"strings"
	"testing"
)

func TestRenderMarkdownHTML(t *testing.T) {
	c := &descriptionCache{byText: map[string]template.HTML{}}

	if got := c.render("  "); got != "" {
		t.Fatalf("blank description rendered as %q", got)
	}
	got := string(c.render("Some *books* :smile:\n<script>x</script>"))
	if !strings.Contains(got, "<em>books</em>") {
		t.Fatalf("emphasis not rendered: %s", got)
	}
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw html passed through: %s", got)
	}
	if strings.Contains(got, ":smile:") {
		t.Fatalf("emoji shortcode not rendered: %s", got)
	}
	if len(c.byText) != 1 {
		t.Fatalf("expected one cached rendering, got %d", len(c.byText))
	}
	c.forget()
	if len(c.byText) != 0 {
		t.Fatalf("forget kept %d renderings", len(c.byText))
	}
}
