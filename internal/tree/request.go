package tree

import "net/url"

// Parameter names understood by the reconciler. Per-tree names are derived
// from the tree id: "<id>" selection, "<id>-h" presence, "<id>.open"
// expansion and "<id>.shuffle" custom tree payload.
const (
	// ParamTarget carries the target id of a targeted (image) request.
	ParamTarget = "wc_target"
	// ParamItem carries the item of an image or open request.
	ParamItem = "wc_tiid"
	// ParamTrigger names the component that triggered an internal update.
	ParamTrigger = "wc_ajax"
	// ParamCacheKey and ParamRandom keep image URLs cacheable or unique.
	ParamCacheKey = "wc_ck"
	ParamRandom   = "wc_rand"
)

// Request exposes decoded request parameters.
type Request interface {
	// Param returns the first value of name and whether it was present.
	Param(name string) (string, bool)
	Params(name string) []string
}

// Values adapts url.Values (form and query parameters) to Request.
type Values url.Values

func (v Values) Param(name string) (string, bool) {
	vs, ok := v[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (v Values) Params(name string) []string { return v[name] }

func (t *Tree) presenceParam() string  { return t.id + "-h" }
func (t *Tree) selectionParam() string { return t.id }
func (t *Tree) expansionParam() string { return t.id + ".open" }
func (t *Tree) shuffleParam() string   { return t.id + ".shuffle" }

// ParamNames lists the per-tree parameter names for renderers building forms.
func (t *Tree) ParamNames() (presence, selection, expansion, shuffle string) {
	return t.presenceParam(), t.selectionParam(), t.expansionParam(), t.shuffleParam()
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
