package guard

import (
	"fmt"
	"sync"

	"github.com/oarkflow/guard/logger"
)

// Engine owns the entity hierarchy and the registered authorizations, and
// serves decisions with an optional short-lived cache in front.
type Engine struct {
	mu             sync.RWMutex
	hierarchy      *Hierarchy
	authorizations map[int64]*Authorization
	cache          *DecisionCache
	log            logger.Logger
	clock          Clock
}

// EngineOption customizes an Engine at construction.
type EngineOption func(*Engine)

// WithLogger sets the decision logger. The default discards everything.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithDecisionCache enables the decision cache.
func WithDecisionCache(c *DecisionCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithClock fixes the time source used by time-based conditions.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// NewEngine builds an engine over the given hierarchy. A nil hierarchy gets
// a fresh empty one.
func NewEngine(h *Hierarchy, opts ...EngineOption) *Engine {
	if h == nil {
		h = NewHierarchy()
	}
	e := &Engine{
		hierarchy:      h,
		authorizations: make(map[int64]*Authorization),
		log:            logger.NewNullLogger(),
		clock:          SystemClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hierarchy exposes the engine's entity graph.
func (e *Engine) Hierarchy() *Hierarchy { return e.hierarchy }

// AddAuthorization registers an authorization, replacing any with the same ID.
func (e *Engine) AddAuthorization(a *Authorization) {
	e.mu.Lock()
	e.authorizations[a.ID] = a
	e.mu.Unlock()
	e.log.Debug("authorization registered", "id", a.ID, "name", a.Name, "strategy", a.Type.String())
}

// Authorization returns the registered authorization with the given ID.
func (e *Engine) Authorization(id int64) (*Authorization, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.authorizations[id]
	return a, ok
}

// RemoveAuthorization unregisters an authorization. Unknown IDs are a no-op.
func (e *Engine) RemoveAuthorization(id int64) {
	e.mu.Lock()
	delete(e.authorizations, id)
	e.mu.Unlock()
}

// Authorizations returns the registered authorizations in arbitrary order.
func (e *Engine) Authorizations() []*Authorization {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Authorization, 0, len(e.authorizations))
	for _, a := range e.authorizations {
		out = append(out, a)
	}
	return out
}

// Evaluate decides one request against the named authorization, consulting
// the cache when one is configured. Unknown authorizations deny.
func (e *Engine) Evaluate(authID int64, subject *Entity, resource *Resource, action string, ctx map[string]any) bool {
	a, ok := e.Authorization(authID)
	if !ok {
		e.log.Warn("authorization not found", "id", authID)
		return false
	}
	key := ""
	// Context payloads are not part of the key, so cached decisions are only
	// usable for context-free requests.
	cacheable := e.cache != nil && len(ctx) == 0
	if cacheable {
		key = decisionKey(authID, a.Revision(), subject, resource, action)
		if granted, hit := e.cache.Get(key); hit {
			e.log.Debug("decision served from cache", "key", key, "granted", granted)
			return granted
		}
	}
	req := &Request{Subject: subject, Resource: resource, Action: action, Context: ctx, Clock: e.clock}
	granted := a.Evaluate(e.hierarchy, req)
	if cacheable {
		e.cache.Set(key, granted)
	}
	e.logDecision(a, subject, resource, action, granted)
	return granted
}

// EvaluateWithDetails decides one request and returns the full trace. The
// detailed path never consults the cache.
func (e *Engine) EvaluateWithDetails(authID int64, subject *Entity, resource *Resource, action string, ctx map[string]any) AuthorizationResult {
	a, ok := e.Authorization(authID)
	if !ok {
		return AuthorizationResult{Reason: "authorization not found"}
	}
	req := &Request{Subject: subject, Resource: resource, Action: action, Context: ctx, Clock: e.clock}
	res := a.EvaluateWithDetails(e.hierarchy, req)
	e.log.Info("authorization decision",
		"authorization", a.Name,
		"action", action,
		"granted", res.IsAuthorized,
		"reason", res.Reason,
		"rule", res.AppliedRule,
	)
	return res
}

// InvalidateCache drops every cached decision, if a cache is configured.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

func (e *Engine) logDecision(a *Authorization, subject *Entity, resource *Resource, action string, granted bool) {
	subjectID := int64(-1)
	if subject != nil {
		subjectID = subject.ID
	}
	uri := ""
	if resource != nil {
		uri = resource.Uri
	}
	e.log.Info("authorization decision",
		"authorization", a.Name,
		"subject", subjectID,
		"resource", uri,
		"action", action,
		"granted", granted,
	)
}

// decisionKey binds a cache entry to the authorization revision so stale
// decisions die with the revision that produced them.
func decisionKey(authID int64, revision uint64, subject *Entity, resource *Resource, action string) string {
	subjectID := int64(-1)
	if subject != nil {
		subjectID = subject.ID
	}
	uri := ""
	if resource != nil {
		uri = resource.Uri
	}
	return fmt.Sprintf("%d:%d:%d:%s:%s", authID, revision, subjectID, uri, action)
}
