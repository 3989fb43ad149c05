package guard

import "testing"

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *Entity, *Resource) {
	t.Helper()
	h := NewHierarchy()
	role := h.NewRole("reader")
	u := h.NewUser("alice")
	if err := h.AddChild(role.ID, u.ID); err != nil {
		t.Fatalf("role->user: %v", err)
	}
	if err := h.AddPermission(role.ID, Permission{Uri: "/reports/*", Verb: VerbGet, Grant: true}); err != nil {
		t.Fatalf("permission: %v", err)
	}
	e := NewEngine(h, opts...)
	e.AddAuthorization(NewAuthorizationBuilder(1, "report-access", AllowOverride).
		Rule(NewRuleBuilder(1, "reader", RulePermission).Build()).
		Build())
	return e, u, NewResource(1, "/reports/annual", "report")
}

func TestEngineEvaluate(t *testing.T) {
	e, u, res := newTestEngine(t)
	if !e.Evaluate(1, u, res, "GET", nil) {
		t.Fatalf("expected a grant")
	}
	if e.Evaluate(1, u, res, "DELETE", nil) {
		t.Fatalf("expected a deny for the wrong verb")
	}
	if e.Evaluate(99, u, res, "GET", nil) {
		t.Fatalf("unknown authorization must deny")
	}
}

func TestEngineDecisionCache(t *testing.T) {
	cache, err := NewDecisionCache(DecisionCacheConfig{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	e, u, res := newTestEngine(t, WithDecisionCache(cache))

	if !e.Evaluate(1, u, res, "GET", nil) {
		t.Fatalf("first evaluation should grant")
	}
	cache.Wait() // ristretto applies writes asynchronously
	if !e.Evaluate(1, u, res, "GET", nil) {
		t.Fatalf("cached evaluation should grant")
	}

	// a mutation bumps the revision, so the stale entry is unreachable
	a, _ := e.Authorization(1)
	a.AddRule(NewRuleBuilder(2, "block", RuleAttribute).Expression("allow").Effect(EffectDeny).Priority(-1).Build())
	if e.Evaluate(1, u, res, "GET", nil) != true {
		t.Fatalf("allow-override still grants with one permit")
	}

	e.InvalidateCache()
	if !e.Evaluate(1, u, res, "GET", nil) {
		t.Fatalf("evaluation after invalidation should still grant")
	}
}

func TestEngineContextBypassesCache(t *testing.T) {
	cache, err := NewDecisionCache(DecisionCacheConfig{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	h := NewHierarchy()
	u := h.NewUser("alice")
	e := NewEngine(h, WithDecisionCache(cache))
	e.AddAuthorization(NewAuthorizationBuilder(1, "ctx", AllowOverride).
		Rule(NewRuleBuilder(1, "env", RuleAttribute).Expression("context.env == prod").Build()).
		Build())

	if !e.Evaluate(1, u, nil, "GET", map[string]any{"env": "prod"}) {
		t.Fatalf("prod context should grant")
	}
	cache.Wait()
	// a different context must not be answered by a cached decision
	if e.Evaluate(1, u, nil, "GET", map[string]any{"env": "staging"}) {
		t.Fatalf("staging context must be evaluated fresh and denied")
	}
}

func TestEngineEvaluateWithDetails(t *testing.T) {
	e, u, res := newTestEngine(t)
	out := e.EvaluateWithDetails(1, u, res, "GET", nil)
	if !out.IsAuthorized || out.AppliedRule != "reader" {
		t.Fatalf("unexpected trace: %+v", out)
	}
	out = e.EvaluateWithDetails(42, u, res, "GET", nil)
	if out.IsAuthorized || out.Reason != "authorization not found" {
		t.Fatalf("unknown authorization trace: %+v", out)
	}
}

func TestEngineRemoveAuthorization(t *testing.T) {
	e, u, res := newTestEngine(t)
	e.RemoveAuthorization(1)
	if e.Evaluate(1, u, res, "GET", nil) {
		t.Fatalf("removed authorization must deny")
	}
	if got := e.Authorizations(); len(got) != 0 {
		t.Fatalf("expected no registered authorizations, got %d", len(got))
	}
}
