package stores

import (
	"regexp"
	"strings"
	"time"

	"github.com/oarkflow/date"
)

var paramSegment = regexp.MustCompile(`\{[a-zA-Z_][a-zA-Z0-9_]*\}`)

// uriLikePattern translates a permission URI pattern to its SQL LIKE form,
// computed once at save time. '*' spans anything, so it becomes '%'. A
// '{name}' segment becomes '_%' (one or more characters); the lowering pairs
// that with a slash-count guard to keep the match inside a single segment.
func uriLikePattern(uri string) string {
	if strings.Contains(uri, "*") {
		return strings.ReplaceAll(uri, "*", "%")
	}
	return paramSegment.ReplaceAllString(uri, "_%")
}

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
