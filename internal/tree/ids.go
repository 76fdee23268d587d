package tree

// ItemIDPrefix is prepended to every item id exhibited to the client so ids
// from different trees on one page cannot collide.
func (t *Tree) ItemIDPrefix() string { return t.id + "-" }

// PrefixItemID returns the wire token for id.
func (t *Tree) PrefixItemID(id string) string { return t.ItemIDPrefix() + id }

// StripPrefix returns the item id carried by a wire token. Tokens no longer
// than the prefix are invalid. Only the prefix length is checked: ids are
// compared after stripping.
func (t *Tree) StripPrefix(raw string) (string, bool) {
	offset := len(t.ItemIDPrefix())
	if len(raw) <= offset {
		return "", false
	}
	return raw[offset:], true
}
