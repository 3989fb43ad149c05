package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of a full setup: limits, entities and
// their edges, the resource tree, and authorization definitions. It is the
// interchange format between YAML, JSON and the line-oriented DSL.
type Config struct {
	Version        string                `json:"version" yaml:"version"`
	Tenant         string                `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	Limits         LimitsConfig          `json:"limits,omitempty" yaml:"limits,omitempty"`
	Cache          CacheConfig           `json:"cache,omitempty" yaml:"cache,omitempty"`
	Entities       []EntityRecord        `json:"entities,omitempty" yaml:"entities,omitempty"`
	Edges          []EdgeConfig          `json:"edges,omitempty" yaml:"edges,omitempty"`
	Resources      []ResourceConfig      `json:"resources,omitempty" yaml:"resources,omitempty"`
	Authorizations []AuthorizationConfig `json:"authorizations,omitempty" yaml:"authorizations,omitempty"`
}

type LimitsConfig struct {
	MaxChildren    int `json:"max_children,omitempty" yaml:"max_children,omitempty"`
	MaxPermissions int `json:"max_permissions,omitempty" yaml:"max_permissions,omitempty"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	NumCounters int64  `json:"num_counters,omitempty" yaml:"num_counters,omitempty"`
	MaxCost     int64  `json:"max_cost,omitempty" yaml:"max_cost,omitempty"`
	TTL         string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

type EdgeConfig struct {
	Parent int64 `json:"parent" yaml:"parent"`
	Child  int64 `json:"child" yaml:"child"`
}

type ResourceConfig struct {
	ID          int64        `json:"id" yaml:"id"`
	Uri         string       `json:"uri" yaml:"uri"`
	Type        string       `json:"type,omitempty" yaml:"type,omitempty"`
	Version     string       `json:"version,omitempty" yaml:"version,omitempty"`
	Parent      int64        `json:"parent,omitempty" yaml:"parent,omitempty"`
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

type AuthorizationConfig struct {
	ID       int64          `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Strategy string         `json:"strategy" yaml:"strategy"`
	Context  map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Policy   *PolicyConfig  `json:"policy,omitempty" yaml:"policy,omitempty"`
	Rules    []RuleConfig   `json:"rules,omitempty" yaml:"rules,omitempty"`
}

type PolicyConfig struct {
	ID                     int64             `json:"id" yaml:"id"`
	Name                   string            `json:"name" yaml:"name"`
	Type                   string            `json:"type" yaml:"type"`
	Expression             string            `json:"expression,omitempty" yaml:"expression,omitempty"`
	RequiresAuthentication bool              `json:"requires_authentication,omitempty" yaml:"requires_authentication,omitempty"`
	RequiredClaims         []string          `json:"required_claims,omitempty" yaml:"required_claims,omitempty"`
	Conditions             []ConditionConfig `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type ConditionConfig struct {
	Kind      string `json:"kind" yaml:"kind"`
	Attribute string `json:"attribute" yaml:"attribute"`
	Operator  string `json:"operator" yaml:"operator"`
	Value     string `json:"value" yaml:"value"`
}

type RuleConfig struct {
	ID         int64             `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type" yaml:"type"`
	Effect     string            `json:"effect,omitempty" yaml:"effect,omitempty"`
	Priority   int               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Disabled   bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Expression string            `json:"expression,omitempty" yaml:"expression,omitempty"`
	Targets    []RuleTarget      `json:"targets,omitempty" yaml:"targets,omitempty"`
	Conditions []ConditionConfig `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// LoadYAML parses a YAML document into a Config.
func LoadYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return &cfg, nil
}

// LoadJSON parses a JSON document into a Config.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads a config file, dispatching on extension: .yaml/.yml, .json,
// or .gcl for the line-oriented DSL.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".json"):
		return LoadJSON(data)
	case strings.HasSuffix(path, ".gcl"):
		return ParseDSL(string(data))
	default:
		return LoadYAML(data)
	}
}

// ToYAML renders the config as YAML.
func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }

// ToJSON renders the config as indented JSON.
func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// Validate checks referential integrity before any building happens: kinds
// parse, edges point at declared entities, resource parents exist, and
// every enum string resolves.
func (c *Config) Validate() error {
	ids := make(map[int64]bool, len(c.Entities))
	for _, e := range c.Entities {
		if e.Name == "" {
			return validationf(CodeMissingField, "entity %d: name is required", e.ID)
		}
		if _, ok := ParseKind(e.Kind); !ok {
			return validationf(CodeInvalidValue, "entity %d: unknown kind %q", e.ID, e.Kind)
		}
		if ids[e.ID] {
			return validationf(CodeInvalidValue, "duplicate entity id %d", e.ID)
		}
		ids[e.ID] = true
	}
	for _, edge := range c.Edges {
		if !ids[edge.Parent] || !ids[edge.Child] {
			return validationf(CodeEntityNotFound, "edge %d->%d references an undeclared entity", edge.Parent, edge.Child)
		}
	}
	resourceIDs := make(map[int64]bool, len(c.Resources))
	for _, r := range c.Resources {
		if r.Uri == "" {
			return validationf(CodeMissingField, "resource %d: uri is required", r.ID)
		}
		resourceIDs[r.ID] = true
	}
	for _, r := range c.Resources {
		if r.Parent != 0 && !resourceIDs[r.Parent] {
			return validationf(CodeEntityNotFound, "resource %d: parent %d is not declared", r.ID, r.Parent)
		}
	}
	for _, a := range c.Authorizations {
		if _, ok := parseCombination(a.Strategy); !ok {
			return validationf(CodeInvalidValue, "authorization %d: unknown strategy %q", a.ID, a.Strategy)
		}
		if a.Policy != nil {
			if _, ok := parsePolicyType(a.Policy.Type); !ok {
				return validationf(CodeInvalidValue, "authorization %d: unknown policy type %q", a.ID, a.Policy.Type)
			}
			for _, cond := range a.Policy.Conditions {
				if _, ok := parseConditionKind(cond.Kind); !ok {
					return validationf(CodeInvalidValue, "authorization %d: unknown condition kind %q", a.ID, cond.Kind)
				}
			}
		}
		for _, r := range a.Rules {
			if _, ok := parseRuleType(r.Type); !ok {
				return validationf(CodeInvalidValue, "rule %d: unknown type %q", r.ID, r.Type)
			}
			if r.Effect != "" {
				if _, ok := parseEffect(r.Effect); !ok {
					return validationf(CodeInvalidValue, "rule %d: unknown effect %q", r.ID, r.Effect)
				}
			}
		}
	}
	return nil
}

// BuildHierarchy materializes the entities, edges and permissions. Edge
// declarations flow through the same mutation path as runtime calls, so the
// structural invariants hold for configured graphs too.
func (c *Config) BuildHierarchy() (*Hierarchy, error) {
	var opts []HierarchyOption
	if c.Limits.MaxChildren > 0 || c.Limits.MaxPermissions > 0 {
		opts = append(opts, WithLimits(Limits{
			MaxChildren:    c.Limits.MaxChildren,
			MaxPermissions: c.Limits.MaxPermissions,
		}))
	}
	records := make([]*EntityRecord, 0, len(c.Entities))
	for i := range c.Entities {
		rec := c.Entities[i]
		rec.Parents = nil
		rec.Children = nil
		records = append(records, &rec)
	}
	h, err := HierarchyFromRecords(records, opts...)
	if err != nil {
		return nil, err
	}
	for _, edge := range c.Edges {
		if err := h.AddChild(edge.Parent, edge.Child); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// BuildResources materializes the resource tree, keyed by resource ID.
func (c *Config) BuildResources() (map[int64]*Resource, error) {
	out := make(map[int64]*Resource, len(c.Resources))
	for _, rc := range c.Resources {
		r := NewResource(rc.ID, rc.Uri, rc.Type)
		r.Version = rc.Version
		for _, p := range rc.Permissions {
			if err := r.AddPermission(p); err != nil {
				return nil, err
			}
		}
		out[rc.ID] = r
	}
	for _, rc := range c.Resources {
		if rc.Parent == 0 {
			continue
		}
		parent, ok := out[rc.Parent]
		if !ok {
			return nil, validationf(CodeEntityNotFound, "resource %d: parent %d is not declared", rc.ID, rc.Parent)
		}
		if err := parent.AddChild(out[rc.ID]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BuildAuthorizations materializes the authorization definitions.
func (c *Config) BuildAuthorizations() ([]*Authorization, error) {
	out := make([]*Authorization, 0, len(c.Authorizations))
	for _, ac := range c.Authorizations {
		strategy, ok := parseCombination(ac.Strategy)
		if !ok {
			return nil, validationf(CodeInvalidValue, "authorization %d: unknown strategy %q", ac.ID, ac.Strategy)
		}
		a := NewAuthorization(ac.ID, ac.Name, strategy)
		a.Context = ac.Context
		if ac.Policy != nil {
			p, err := buildPolicy(ac.Policy)
			if err != nil {
				return nil, err
			}
			a.Policy = p
		}
		for _, rc := range ac.Rules {
			r, err := buildRule(&rc)
			if err != nil {
				return nil, err
			}
			a.Rules = append(a.Rules, r)
		}
		out = append(out, a)
	}
	return out, nil
}

func buildPolicy(pc *PolicyConfig) (*AuthorizationPolicy, error) {
	pt, ok := parsePolicyType(pc.Type)
	if !ok {
		return nil, validationf(CodeInvalidValue, "policy %d: unknown type %q", pc.ID, pc.Type)
	}
	p := &AuthorizationPolicy{
		ID:                     pc.ID,
		Name:                   pc.Name,
		Type:                   pt,
		Expression:             pc.Expression,
		RequiresAuthentication: pc.RequiresAuthentication,
		RequiredClaims:         pc.RequiredClaims,
	}
	for _, cc := range pc.Conditions {
		cond, err := buildCondition(cc)
		if err != nil {
			return nil, err
		}
		p.Conditions = append(p.Conditions, cond)
	}
	return p, nil
}

func buildRule(rc *RuleConfig) (*AuthorizationRule, error) {
	rt, ok := parseRuleType(rc.Type)
	if !ok {
		return nil, validationf(CodeInvalidValue, "rule %d: unknown type %q", rc.ID, rc.Type)
	}
	effect := EffectPermit
	if rc.Effect != "" {
		e, ok := parseEffect(rc.Effect)
		if !ok {
			return nil, validationf(CodeInvalidValue, "rule %d: unknown effect %q", rc.ID, rc.Effect)
		}
		effect = e
	}
	r := &AuthorizationRule{
		ID:         rc.ID,
		Name:       rc.Name,
		Type:       rt,
		Effect:     effect,
		Priority:   rc.Priority,
		Active:     !rc.Disabled,
		Expression: rc.Expression,
		Targets:    rc.Targets,
		Metadata:   rc.Metadata,
	}
	for _, cc := range rc.Conditions {
		cond, err := buildCondition(cc)
		if err != nil {
			return nil, err
		}
		r.Conditions = append(r.Conditions, cond)
	}
	return r, nil
}

func buildCondition(cc ConditionConfig) (PolicyCondition, error) {
	kind, ok := parseConditionKind(cc.Kind)
	if !ok {
		return PolicyCondition{}, validationf(CodeInvalidValue, "unknown condition kind %q", cc.Kind)
	}
	op := cc.Operator
	if op == "" {
		op = "=="
	}
	return PolicyCondition{Kind: kind, Attribute: cc.Attribute, Operator: op, Value: cc.Value}, nil
}

// ParseCondition parses "kind.attribute op value" condition text, e.g.
// "subject.type == user" or "time.hour >= 9".
func ParseCondition(text string) (PolicyCondition, error) {
	for _, op := range []string{"!=", ">=", "<=", "=="} {
		l, r, ok := strings.Cut(text, op)
		if !ok {
			continue
		}
		l = strings.TrimSpace(l)
		r = strings.Trim(strings.TrimSpace(r), `"'`)
		kindText, attr, ok := strings.Cut(l, ".")
		if !ok {
			return PolicyCondition{}, validationf(CodeInvalidValue, "condition %q: expected kind.attribute", text)
		}
		kind, ok := parseConditionKind(kindText)
		if !ok {
			return PolicyCondition{}, validationf(CodeInvalidValue, "condition %q: unknown kind %q", text, kindText)
		}
		return PolicyCondition{Kind: kind, Attribute: attr, Operator: op, Value: r}, nil
	}
	return PolicyCondition{}, validationf(CodeInvalidValue, "condition %q: no operator found", text)
}

// NewEngineFromConfig validates and materializes a complete engine plus the
// resource tree the config declares.
func NewEngineFromConfig(cfg *Config, opts ...EngineOption) (*Engine, map[int64]*Resource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	h, err := cfg.BuildHierarchy()
	if err != nil {
		return nil, nil, err
	}
	resources, err := cfg.BuildResources()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Cache.Enabled {
		ttl, _ := time.ParseDuration(cfg.Cache.TTL)
		cache, err := NewDecisionCache(DecisionCacheConfig{
			NumCounters: cfg.Cache.NumCounters,
			MaxCost:     cfg.Cache.MaxCost,
			TTL:         ttl,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithDecisionCache(cache))
	}
	engine := NewEngine(h, opts...)
	auths, err := cfg.BuildAuthorizations()
	if err != nil {
		return nil, nil, err
	}
	for _, a := range auths {
		engine.AddAuthorization(a)
	}
	return engine, resources, nil
}

// Stats summarizes a config for tooling output.
type Stats struct {
	Entities       int
	Edges          int
	Resources      int
	Authorizations int
	Rules          int
}

func (c *Config) Stats() Stats {
	s := Stats{
		Entities:       len(c.Entities),
		Edges:          len(c.Edges),
		Resources:      len(c.Resources),
		Authorizations: len(c.Authorizations),
	}
	for _, a := range c.Authorizations {
		s.Rules += len(a.Rules)
	}
	return s
}

func parseCombination(s string) (CombinationType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow-override", "allow_override", "allowoverride":
		return AllowOverride, true
	case "deny-override", "deny_override", "denyoverride":
		return DenyOverride, true
	case "unanimous":
		return Unanimous, true
	case "consensus":
		return Consensus, true
	case "first-applicable", "first_applicable", "firstapplicable":
		return FirstApplicable, true
	default:
		return 0, false
	}
}

func parsePolicyType(s string) (PolicyType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return PolicySimple, true
	case "script":
		return PolicyScript, true
	case "regex":
		return PolicyRegex, true
	case "custom":
		return PolicyCustom, true
	default:
		return 0, false
	}
}

func parseRuleType(s string) (RuleType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permission":
		return RulePermission, true
	case "attribute":
		return RuleAttribute, true
	case "relationship":
		return RuleRelationship, true
	case "custom":
		return RuleCustom, true
	default:
		return 0, false
	}
}

func parseEffect(s string) (RuleEffect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permit", "allow":
		return EffectPermit, true
	case "deny":
		return EffectDeny, true
	case "indeterminate":
		return EffectIndeterminate, true
	default:
		return 0, false
	}
}

func parseConditionKind(s string) (ConditionKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "subject":
		return ConditionSubject, true
	case "resource":
		return ConditionResource, true
	case "action":
		return ConditionAction, true
	case "context":
		return ConditionContext, true
	case "time":
		return ConditionTime, true
	default:
		return 0, false
	}
}
