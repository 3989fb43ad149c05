package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var paramToken = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// MatchURI checks a request URI against a pattern. Exactly one matching mode
// applies per pattern, tried in priority order:
//
//  1. case-insensitive exact match
//  2. wildcard: '*' matches any run of characters (including none)
//  3. parameterized: each '{name}' matches a single path segment
//
// "/api/*" matches "/api/users" and "/api/users/5"; "/api/{id}" matches
// "/api/5" but not "/api/5/roles".
func MatchURI(pattern, uri string) bool {
	if strings.EqualFold(pattern, uri) {
		return true
	}
	if strings.Contains(pattern, "*") {
		re, err := compileWildcard(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(uri)
	}
	if paramToken.MatchString(pattern) {
		re, _, err := compileParams(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(uri)
	}
	return false
}

// ExtractParams binds the '{name}' segments of a parameterized pattern to the
// corresponding segments of the URI, in declaration order. Exact and wildcard
// patterns carry no parameters; a non-matching URI yields an empty map.
func ExtractParams(pattern, uri string) map[string]string {
	out := make(map[string]string)
	if strings.Contains(pattern, "*") || !paramToken.MatchString(pattern) {
		return out
	}
	re, names, err := compileParams(pattern)
	if err != nil {
		return out
	}
	m := re.FindStringSubmatch(uri)
	if m == nil {
		return out
	}
	for i, name := range names {
		if i+1 < len(m) {
			out[name] = m[i+1]
		}
	}
	return out
}

// ValidatePattern reports whether the pattern would compile under the matching
// mode it selects.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty uri pattern")
	}
	if strings.Contains(pattern, "*") {
		_, err := compileWildcard(pattern)
		return err
	}
	if strings.Contains(pattern, "{") || strings.Contains(pattern, "}") {
		if !paramToken.MatchString(pattern) {
			return fmt.Errorf("malformed parameter segment in %q", pattern)
		}
		_, _, err := compileParams(pattern)
		return err
	}
	return nil
}

func compileWildcard(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	return regexp.Compile("(?i)^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
}

func compileParams(pattern string) (*regexp.Regexp, []string, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	names := make([]string, 0, 2)
	last := 0
	for _, m := range paramToken.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:m[0]]))
		names = append(names, pattern[m[2]:m[3]])
		b.WriteString(`([^/]+)`)
		last = m[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return re, names, nil
}
