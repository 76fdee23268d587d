package tree

import (
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ImageURL returns the URL a client uses to fetch img for itemID. External
// URLs are returned as-is. Otherwise a targeted request URL is built on base;
// it carries the image cache key, or a unique value when there is none.
func (t *Tree) ImageURL(base string, img *Image, itemID string) string {
	if img == nil {
		return ""
	}
	if u := strings.TrimSpace(img.URL); u != "" {
		return u
	}
	if img.Content == nil {
		return ""
	}
	q := url.Values{}
	q.Set(ParamTarget, t.TargetID())
	q.Set(ParamItem, itemID)
	if key := strings.TrimSpace(img.CacheKey); key != "" {
		q.Set(ParamCacheKey, key)
	} else {
		q.Set(ParamRandom, ulid.Make().String())
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
