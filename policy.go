package guard

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"
)

// Clock abstracts the time source used by time-based conditions, so callers
// can evaluate against a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default wall-clock source.
var SystemClock Clock = systemClock{}

// Request is one (subject, resource, action, context) evaluation input.
// Subject is nil for unauthenticated callers.
type Request struct {
	Subject  *Entity
	Resource *Resource
	Action   string
	Context  map[string]any
	Clock    Clock
}

func (r *Request) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now()
	}
	return time.Now()
}

// PolicyType selects the expression-evaluation strategy of a policy.
type PolicyType uint8

const (
	PolicySimple PolicyType = iota + 1
	// PolicyScript is a placeholder strategy: it resolves to "expression
	// contains 'allow' and not 'deny'" until a script host exists.
	PolicyScript
	PolicyRegex
	PolicyCustom
)

func (t PolicyType) String() string {
	switch t {
	case PolicySimple:
		return "simple"
	case PolicyScript:
		return "script"
	case PolicyRegex:
		return "regex"
	case PolicyCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ConditionKind selects what a policy condition inspects.
type ConditionKind uint8

const (
	ConditionSubject ConditionKind = iota + 1
	ConditionResource
	ConditionAction
	ConditionContext
	ConditionTime
)

func (k ConditionKind) String() string {
	switch k {
	case ConditionSubject:
		return "subject"
	case ConditionResource:
		return "resource"
	case ConditionAction:
		return "action"
	case ConditionContext:
		return "context"
	case ConditionTime:
		return "time"
	default:
		return "unknown"
	}
}

// PolicyCondition is one gating check. Attribute names the inspected field:
// subject id/name/type, resource uri/type/version, a context key, or a time
// attribute (hour, dayOfWeek, date). Operator is one of ==, !=, >=, <=.
type PolicyCondition struct {
	Kind      ConditionKind `json:"kind" yaml:"kind"`
	Attribute string        `json:"attribute" yaml:"attribute"`
	Operator  string        `json:"operator" yaml:"operator"`
	Value     string        `json:"value" yaml:"value"`
}

func (c PolicyCondition) holds(req *Request) bool {
	if c.Kind == ConditionTime && c.Attribute == "date" {
		want, err := date.Parse(c.Value)
		if err != nil {
			return false
		}
		now := req.now()
		same := now.Year() == want.Year() && now.Month() == want.Month() && now.Day() == want.Day()
		if c.Operator == "!=" {
			return !same
		}
		return same
	}
	actual, ok := c.actual(req)
	if !ok {
		return false
	}
	switch c.Operator {
	case "!=":
		return actual != c.Value
	case ">=":
		return compareOrdered(actual, c.Value) >= 0
	case "<=":
		return compareOrdered(actual, c.Value) <= 0
	default:
		return actual == c.Value
	}
}

func (c PolicyCondition) actual(req *Request) (string, bool) {
	switch c.Kind {
	case ConditionSubject:
		if req.Subject == nil {
			return "", false
		}
		switch c.Attribute {
		case "id":
			return strconv.FormatInt(req.Subject.ID, 10), true
		case "name":
			return req.Subject.Name, true
		case "type":
			return req.Subject.Kind.String(), true
		}
	case ConditionResource:
		if req.Resource == nil {
			return "", false
		}
		switch c.Attribute {
		case "uri":
			return req.Resource.Uri, true
		case "type":
			return req.Resource.ResourceType, true
		case "version":
			return req.Resource.Version, true
		}
	case ConditionAction:
		return req.Action, true
	case ConditionContext:
		if req.Context == nil {
			return "", false
		}
		v, ok := req.Context[c.Attribute]
		if !ok {
			return "", false
		}
		return strings.TrimSpace(stringify(v)), true
	case ConditionTime:
		now := req.now()
		switch c.Attribute {
		case "hour":
			return strconv.Itoa(now.Hour()), true
		case "dayOfWeek":
			return now.Weekday().String(), true
		case "date":
			return now.Format("2006-01-02"), true
		}
	}
	return "", false
}

// compareOrdered compares numerically when both sides parse as numbers,
// lexically otherwise.
func compareOrdered(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// PolicyResult is the detailed outcome of a policy evaluation.
type PolicyResult struct {
	Passed bool
	Reason string
	Steps  []string
}

// AuthorizationPolicy gates an authorization before any rule runs:
// authentication, required claims, conditions, then the type-specific
// expression. Evaluation is state-free; faults resolve to deny.
type AuthorizationPolicy struct {
	ID                     int64             `json:"id" yaml:"id"`
	Name                   string            `json:"name" yaml:"name"`
	Type                   PolicyType        `json:"type" yaml:"type"`
	Expression             string            `json:"expression" yaml:"expression"`
	RequiresAuthentication bool              `json:"requires_authentication" yaml:"requires_authentication"`
	RequiredClaims         []string          `json:"required_claims,omitempty" yaml:"required_claims,omitempty"`
	Conditions             []PolicyCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// subjectClaims derives the claims map contributed by the subject's kind.
func subjectClaims(e *Entity) map[string]string {
	if e == nil {
		return nil
	}
	return map[string]string{
		"id":   strconv.FormatInt(e.ID, 10),
		"name": e.Name,
		"type": e.Kind.String(),
	}
}

// Evaluate runs the policy gate, short-circuiting on the first failed step.
func (p *AuthorizationPolicy) Evaluate(req *Request) bool {
	if p == nil {
		return true
	}
	if p.RequiresAuthentication && req.Subject == nil {
		return false
	}
	if len(p.RequiredClaims) > 0 {
		claims := subjectClaims(req.Subject)
		for _, c := range p.RequiredClaims {
			if _, ok := claims[c]; !ok {
				return false
			}
		}
	}
	for _, c := range p.Conditions {
		if !c.holds(req) {
			return false
		}
	}
	return p.evaluateExpression(req)
}

// EvaluateDetailed runs the same gate and records a reason per step.
func (p *AuthorizationPolicy) EvaluateDetailed(req *Request) PolicyResult {
	res := PolicyResult{Passed: true}
	if p == nil {
		res.Reason = "no policy configured"
		return res
	}
	if p.RequiresAuthentication {
		if req.Subject == nil {
			res.Passed = false
			res.Reason = "Authentication required"
			return res
		}
		res.Steps = append(res.Steps, "authentication present")
	}
	if len(p.RequiredClaims) > 0 {
		claims := subjectClaims(req.Subject)
		for _, c := range p.RequiredClaims {
			if _, ok := claims[c]; !ok {
				res.Passed = false
				res.Reason = "missing required claim: " + c
				return res
			}
		}
		res.Steps = append(res.Steps, "required claims present")
	}
	for _, c := range p.Conditions {
		if !c.holds(req) {
			res.Passed = false
			res.Reason = "condition failed: " + c.Kind.String() + "." + c.Attribute + " " + c.Operator + " " + c.Value
			return res
		}
	}
	if len(p.Conditions) > 0 {
		res.Steps = append(res.Steps, "all conditions hold")
	}
	if !p.evaluateExpression(req) {
		res.Passed = false
		res.Reason = "policy expression denied (" + p.Type.String() + ")"
		return res
	}
	res.Reason = "policy passed"
	return res
}

// evaluateExpression dispatches on the policy type. Any panic or evaluation
// error resolves to deny; a security decision must always produce an answer.
func (p *AuthorizationPolicy) evaluateExpression(req *Request) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	switch p.Type {
	case PolicySimple:
		res, err := EvaluateExpression(p.Expression, req)
		if err != nil {
			return false
		}
		return res
	case PolicyScript:
		ls := strings.ToLower(p.Expression)
		return strings.Contains(ls, "allow") && !strings.Contains(ls, "deny")
	case PolicyRegex:
		re, err := regexp.Compile(p.Expression)
		if err != nil {
			return false
		}
		uri := ""
		if req.Resource != nil {
			uri = req.Resource.Uri
		}
		return re.MatchString(uri + ":" + req.Action)
	case PolicyCustom:
		if req.Context == nil {
			return false
		}
		v, _ := req.Context["customLogic"].(string)
		return v == "allow"
	default:
		return false
	}
}
