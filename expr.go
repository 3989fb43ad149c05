package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The expression grammar is deliberately tiny: known tokens are substituted
// into the text and at most one ==/!= comparison is evaluated. This is an
// interpreter over a closed grammar, not a script engine.

var contextToken = regexp.MustCompile(`context\.([a-zA-Z_][a-zA-Z0-9_]*)`)

// substituteTokens replaces subject.*, resource.*, action and context.<key>
// tokens with their values from the request. Unknown context keys substitute
// to the empty string.
func substituteTokens(expr string, req *Request) string {
	pairs := []string{
		"resource.uri", "", "resource.type", "",
		"subject.id", "", "subject.name", "", "subject.type", "",
		"action", req.Action,
	}
	if req.Resource != nil {
		pairs[1] = req.Resource.Uri
		pairs[3] = req.Resource.ResourceType
	}
	if req.Subject != nil {
		pairs[5] = strconv.FormatInt(req.Subject.ID, 10)
		pairs[7] = req.Subject.Name
		pairs[9] = req.Subject.Kind.String()
	}
	out := strings.NewReplacer(pairs...).Replace(expr)
	out = contextToken.ReplaceAllStringFunc(out, func(tok string) string {
		key := tok[len("context."):]
		if req.Context == nil {
			return ""
		}
		if v, ok := req.Context[key]; ok {
			return fmt.Sprint(v)
		}
		return ""
	})
	return out
}

// evalComparison evaluates a single "left == right" or "left != right"
// comparison over already-substituted text. Operands are trimmed of spaces
// and quotes.
func evalComparison(s string) (bool, error) {
	if l, r, ok := strings.Cut(s, "!="); ok {
		return trimOperand(l) != trimOperand(r), nil
	}
	if l, r, ok := strings.Cut(s, "=="); ok {
		return trimOperand(l) == trimOperand(r), nil
	}
	return false, fmt.Errorf("no comparison operator in %q", s)
}

func trimOperand(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// EvaluateExpression runs the restricted grammar against a request: tokens
// are substituted, then a single comparison is evaluated if one is present.
// Text without a comparison defaults to true only when it contains a literal
// "allow" or "true" token. Panics surface as errors, never escape.
func EvaluateExpression(expr string, req *Request) (result bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = false
			err = fmt.Errorf("expression evaluation fault: %v", rec)
		}
	}()
	s := substituteTokens(expr, req)
	if strings.Contains(s, "==") || strings.Contains(s, "!=") {
		return evalComparison(s)
	}
	ls := strings.ToLower(s)
	return strings.Contains(ls, "allow") || strings.Contains(ls, "true"), nil
}
