package sanitizer

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = sync.OnceValue(bluemonday.StrictPolicy)

// StripHTML removes all markup and returns plain text with whitespace
// runs collapsed to single spaces. Entities are decoded, so the result is
// meant for storage, not for direct HTML output.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(strictPolicy().Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}
