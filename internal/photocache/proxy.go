package photocache

import (
	"fmt"
	"net/url"
)

// BuildProxyURL constructs the deterministic proxy URL for an unresolved
// photo reference. It is pure and cannot fail, which makes it the guaranteed
// fallback of the whole cache hierarchy: in the worst case every request
// degrades to this URL.
func BuildProxyURL(endpoint, reference string, maxWidth int) string {
	return fmt.Sprintf("%s?ref=%s&maxWidth=%d", endpoint, url.QueryEscape(reference), maxWidth)
}
