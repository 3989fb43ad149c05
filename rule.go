package guard

import (
	"regexp"
	"strings"

	"github.com/oarkflow/guard/utils"
)

// RuleType selects how a rule computes its underlying boolean once its
// targets and conditions pass.
type RuleType uint8

const (
	RulePermission RuleType = iota + 1
	RuleAttribute
	RuleRelationship
	RuleCustom
)

func (t RuleType) String() string {
	switch t {
	case RulePermission:
		return "permission"
	case RuleAttribute:
		return "attribute"
	case RuleRelationship:
		return "relationship"
	case RuleCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// RuleEffect maps the computed boolean onto the rule's contribution.
type RuleEffect uint8

const (
	EffectPermit RuleEffect = iota + 1
	EffectDeny
	EffectIndeterminate
)

func (e RuleEffect) String() string {
	switch e {
	case EffectPermit:
		return "permit"
	case EffectDeny:
		return "deny"
	case EffectIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// RuleTarget scopes a rule to matching requests. Subject accepts "type:X"
// for a kind match or a regular expression over the subject name; Resource
// is a URI pattern; Action is a regular expression. Empty fields match
// anything; a target matches when all its non-empty fields match.
type RuleTarget struct {
	Subject  string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`
	Action   string `json:"action,omitempty" yaml:"action,omitempty"`
}

func (t RuleTarget) matches(req *Request) bool {
	if t.Subject != "" {
		if kind, ok := strings.CutPrefix(t.Subject, "type:"); ok {
			if req.Subject == nil || !strings.EqualFold(req.Subject.Kind.String(), kind) {
				return false
			}
		} else {
			re, err := regexp.Compile(t.Subject)
			if err != nil || req.Subject == nil || !re.MatchString(req.Subject.Name) {
				return false
			}
		}
	}
	if t.Resource != "" {
		if req.Resource == nil || !utils.MatchURI(t.Resource, req.Resource.Uri) {
			return false
		}
	}
	if t.Action != "" {
		re, err := regexp.Compile(t.Action)
		if err != nil || !re.MatchString(req.Action) {
			return false
		}
	}
	return true
}

func (t RuleTarget) describe() string {
	parts := make([]string, 0, 3)
	if t.Subject != "" {
		parts = append(parts, "subject="+t.Subject)
	}
	if t.Resource != "" {
		parts = append(parts, "resource="+t.Resource)
	}
	if t.Action != "" {
		parts = append(parts, "action="+t.Action)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// AuthorizationRule is one targeted, conditional contribution to a decision.
// Its outcome is tri-state: nil when the rule does not apply (inactive,
// unmatched targets, unmet conditions, or Indeterminate effect), otherwise
// the computed boolean mapped through the effect.
type AuthorizationRule struct {
	ID         int64             `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Type       RuleType          `json:"type" yaml:"type"`
	Effect     RuleEffect        `json:"effect" yaml:"effect"`
	Priority   int               `json:"priority" yaml:"priority"`
	Active     bool              `json:"active" yaml:"active"`
	Expression string            `json:"expression,omitempty" yaml:"expression,omitempty"`
	Targets    []RuleTarget      `json:"targets,omitempty" yaml:"targets,omitempty"`
	Conditions []PolicyCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RuleResult carries one rule's contribution plus its reasoning.
type RuleResult struct {
	RuleID        int64
	RuleName      string
	Decision      *bool
	MatchedTarget string
	Reason        string
}

// Evaluate returns the rule's tri-state contribution for the request.
func (r *AuthorizationRule) Evaluate(h *Hierarchy, req *Request) *bool {
	return r.evaluate(h, req).Decision
}

// EvaluateDetailed returns the contribution with the matched target and a
// reason string.
func (r *AuthorizationRule) EvaluateDetailed(h *Hierarchy, req *Request) RuleResult {
	return r.evaluate(h, req)
}

func (r *AuthorizationRule) evaluate(h *Hierarchy, req *Request) RuleResult {
	out := RuleResult{RuleID: r.ID, RuleName: r.Name}
	if !r.Active {
		out.Reason = "rule inactive"
		return out
	}
	if len(r.Targets) > 0 {
		matched := false
		for _, t := range r.Targets {
			if t.matches(req) {
				matched = true
				out.MatchedTarget = t.describe()
				break
			}
		}
		if !matched {
			out.Reason = "no target matched"
			return out
		}
	} else {
		out.MatchedTarget = "any"
	}
	for _, c := range r.Conditions {
		if !c.holds(req) {
			out.Reason = "condition not met: " + c.Kind.String() + "." + c.Attribute
			return out
		}
	}
	verdict, err := r.decide(h, req)
	if err != nil {
		// An evaluation fault never propagates; the rule abstains.
		out.Reason = "evaluation fault: " + err.Error()
		return out
	}
	switch r.Effect {
	case EffectPermit:
		out.Decision = &verdict
		out.Reason = r.Type.String() + " evaluated " + boolWord(verdict)
	case EffectDeny:
		inverted := !verdict
		out.Decision = &inverted
		out.Reason = r.Type.String() + " evaluated " + boolWord(verdict) + ", inverted by deny effect"
	case EffectIndeterminate:
		out.Reason = "effect forces indeterminate"
	default:
		out.Reason = "unknown effect"
	}
	return out
}

// decide computes the raw boolean for the rule type. Panics are recovered
// and surfaced as errors so the caller can abstain.
func (r *AuthorizationRule) decide(h *Hierarchy, req *Request) (verdict bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			verdict = false
			err = &ValidationError{Code: CodeInvalidValue, Msg: "rule evaluation panic"}
		}
	}()
	switch r.Type {
	case RulePermission:
		if req.Subject == nil || req.Resource == nil || h == nil {
			return false, nil
		}
		verb, ok := ParseVerb(req.Action)
		if !ok {
			return false, nil
		}
		return h.HasEffectiveAccess(req.Subject.ID, req.Resource.Uri, verb), nil
	case RuleAttribute:
		return EvaluateExpression(r.Expression, req)
	case RuleRelationship:
		ls := strings.ToLower(r.Expression)
		if strings.Contains(ls, "owner") {
			return req.Subject != nil && req.Resource != nil && req.Subject.ID == req.Resource.ID, nil
		}
		// Resources carry no group edges, so "member" never holds.
		if strings.Contains(ls, "member") {
			return false, nil
		}
		return false, nil
	case RuleCustom:
		v, _ := r.Metadata["customLogic"].(string)
		return v == "allow", nil
	default:
		return false, nil
	}
}

func boolWord(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
