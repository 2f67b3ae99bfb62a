// Package slug generates URL-safe, collision-free slugs.
package slug

import (
	"fmt"

	gslug "github.com/gosimple/slug"
)

// maxSourceLen bounds how much of the source text feeds the slug.
const maxSourceLen = 200

// Make slugifies source and returns the first variant for which exists
// reports false. Collisions are resolved by appending -1, -2, and so on.
// The exists predicate receives each candidate and may return an error,
// which aborts generation.
func Make(source string, exists func(slug string) (bool, error)) (string, error) {
	if len(source) > maxSourceLen {
		source = source[:maxSourceLen]
	}
	base := gslug.Make(source)

	candidate := base
	for extra := 1; ; extra++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, extra)
	}
}
