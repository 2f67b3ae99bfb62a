// Package sanitize strips untrusted feed HTML down to a safe subset.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TeaserWords is the word-boundary cap applied to teasers.
const TeaserWords = 100

var (
	articlePolicy = newArticlePolicy()
	teaserPolicy  = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)
)

func newArticlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "a", "img", "p", "div")
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src").OnElements("img")
	return p
}

// Cleaned is the result of sanitizing one piece of feed content.
type Cleaned struct {
	// Teaser is the input with all markup removed, truncated to
	// TeaserWords words.
	Teaser string
	// Article is the input reduced to the allow-listed tag and
	// attribute set.
	Article string
}

// Clean sanitizes a single HTML/text fragment. Empty input yields empty
// output; Clean never fails.
func Clean(content string) Cleaned {
	return Cleaned{
		Teaser:  TruncateWords(teaserPolicy.Sanitize(content), TeaserWords),
		Article: strings.TrimSpace(articlePolicy.Sanitize(content)),
	}
}

// CleanSections concatenates multi-part content (as in Atom multi-section
// entries) and sanitizes the result as one fragment.
func CleanSections(sections []string) Cleaned {
	return Clean(strings.Join(sections, ""))
}

// TruncateWords collapses whitespace in s and truncates it to at most n
// words, breaking on word boundaries. Truncated output ends with a
// horizontal ellipsis.
func TruncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}
