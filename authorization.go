package guard

import (
	"sort"
	"sync"
	"time"
)

// CombinationType selects how rule contributions fold into one decision.
type CombinationType uint8

const (
	// AllowOverride grants when any applicable rule grants.
	AllowOverride CombinationType = iota + 1
	// DenyOverride denies when any applicable rule denies; grants otherwise,
	// including when no rule applies.
	DenyOverride
	// Unanimous grants only when every applicable rule grants; an empty set
	// grants vacuously.
	Unanimous
	// Consensus grants when a strict majority of applicable rules grant.
	Consensus
	// FirstApplicable takes the first non-abstaining rule in priority order.
	FirstApplicable
)

func (t CombinationType) String() string {
	switch t {
	case AllowOverride:
		return "allow-override"
	case DenyOverride:
		return "deny-override"
	case Unanimous:
		return "unanimous"
	case Consensus:
		return "consensus"
	case FirstApplicable:
		return "first-applicable"
	default:
		return "unknown"
	}
}

// Authorization binds a gating policy to an ordered rule set and a
// combination strategy. Mutations bump Version so cached decisions made
// against older revisions can never be served.
type Authorization struct {
	mu sync.RWMutex

	ID        int64                `json:"id" yaml:"id"`
	Name      string               `json:"name" yaml:"name"`
	Policy    *AuthorizationPolicy `json:"policy,omitempty" yaml:"policy,omitempty"`
	Rules     []*AuthorizationRule `json:"rules,omitempty" yaml:"rules,omitempty"`
	Type      CombinationType      `json:"type" yaml:"type"`
	Context   map[string]any       `json:"context,omitempty" yaml:"context,omitempty"`
	Version   uint64               `json:"version" yaml:"version"`
	CreatedAt time.Time            `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" yaml:"updated_at"`
}

// NewAuthorization creates an empty authorization with the given strategy.
func NewAuthorization(id int64, name string, combination CombinationType) *Authorization {
	now := time.Now()
	return &Authorization{
		ID:        id,
		Name:      name,
		Type:      combination,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a *Authorization) touch() {
	a.UpdatedAt = time.Now()
	a.Version++
}

// AddRule appends a rule and bumps the revision.
func (a *Authorization) AddRule(r *AuthorizationRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Rules = append(a.Rules, r)
	a.touch()
}

// RemoveRule deletes the rule with the given ID; removing an unknown ID is
// a no-op and does not bump the revision.
func (a *Authorization) RemoveRule(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.Rules {
		if r.ID == id {
			a.Rules = append(a.Rules[:i], a.Rules[i+1:]...)
			a.touch()
			return
		}
	}
}

// UpdatePolicy replaces the gating policy and bumps the revision.
func (a *Authorization) UpdatePolicy(p *AuthorizationPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Policy = p
	a.touch()
}

// SetContext stores a default context value merged into every request that
// does not set the key itself.
func (a *Authorization) SetContext(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Context == nil {
		a.Context = make(map[string]any)
	}
	a.Context[key] = value
	a.touch()
}

// Revision returns the current version under the read lock.
func (a *Authorization) Revision() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Version
}

// AuthorizationResult is the full trace of one evaluation.
type AuthorizationResult struct {
	IsAuthorized bool
	Reason       string
	PolicyResult PolicyResult
	RuleResults  []RuleResult
	AppliedRule  string
}

// Evaluate runs the policy gate then folds the rule contributions.
func (a *Authorization) Evaluate(h *Hierarchy, req *Request) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	req = a.mergedRequest(req)
	if a.Policy != nil && !a.Policy.Evaluate(req) {
		return false
	}
	decisions := make([]*bool, 0, len(a.Rules))
	for _, r := range a.sortedRules() {
		d := r.Evaluate(h, req)
		decisions = append(decisions, d)
		if a.Type == FirstApplicable && d != nil {
			break
		}
	}
	granted, _ := a.fold(decisions)
	return granted
}

// EvaluateWithDetails runs the same pipeline and records every step.
func (a *Authorization) EvaluateWithDetails(h *Hierarchy, req *Request) AuthorizationResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	req = a.mergedRequest(req)
	out := AuthorizationResult{}
	out.PolicyResult = a.Policy.EvaluateDetailed(req)
	if !out.PolicyResult.Passed {
		out.Reason = "policy denied: " + out.PolicyResult.Reason
		return out
	}
	decisions := make([]*bool, 0, len(a.Rules))
	for _, r := range a.sortedRules() {
		rr := r.EvaluateDetailed(h, req)
		out.RuleResults = append(out.RuleResults, rr)
		decisions = append(decisions, rr.Decision)
		if rr.Decision != nil && out.AppliedRule == "" {
			out.AppliedRule = rr.RuleName
		}
		if a.Type == FirstApplicable && rr.Decision != nil {
			break
		}
	}
	granted, reason := a.fold(decisions)
	out.IsAuthorized = granted
	out.Reason = reason
	return out
}

// mergedRequest overlays the authorization's default context under the
// request's own context. The caller's request is never mutated.
func (a *Authorization) mergedRequest(req *Request) *Request {
	if len(a.Context) == 0 {
		return req
	}
	merged := make(map[string]any, len(a.Context)+len(req.Context))
	for k, v := range a.Context {
		merged[k] = v
	}
	for k, v := range req.Context {
		merged[k] = v
	}
	clone := *req
	clone.Context = merged
	return &clone
}

// sortedRules returns the rules in ascending priority. The sort is stable
// so rules sharing a priority keep insertion order.
func (a *Authorization) sortedRules() []*AuthorizationRule {
	rules := append([]*AuthorizationRule(nil), a.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules
}

// fold applies the combination strategy over the tri-state contributions.
// Abstentions (nil) never count toward any strategy.
func (a *Authorization) fold(decisions []*bool) (bool, string) {
	applicable := 0
	trueCount := 0
	for _, d := range decisions {
		if d == nil {
			continue
		}
		applicable++
		if *d {
			trueCount++
		}
	}
	switch a.Type {
	case AllowOverride:
		if trueCount > 0 {
			return true, "granted: at least one rule permitted"
		}
		return false, "denied: no rule permitted"
	case DenyOverride:
		if applicable > trueCount {
			return false, "denied: at least one rule denied"
		}
		return true, "granted: no rule denied"
	case Unanimous:
		if applicable == trueCount {
			return true, "granted: all applicable rules permitted"
		}
		return false, "denied: not all applicable rules permitted"
	case Consensus:
		if trueCount*2 > applicable {
			return true, "granted: majority of applicable rules permitted"
		}
		return false, "denied: no majority permitted"
	case FirstApplicable:
		for _, d := range decisions {
			if d != nil {
				if *d {
					return true, "granted: first applicable rule permitted"
				}
				return false, "denied: first applicable rule denied"
			}
		}
		return false, "denied: no applicable rule"
	default:
		return false, "denied: unknown combination strategy"
	}
}
