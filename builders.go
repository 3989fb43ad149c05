package guard

// Fluent builders for assembling policies, rules and authorizations in
// code. Each setter returns the builder; Build returns the finished value.

type PolicyBuilder struct {
	p AuthorizationPolicy
}

func NewPolicyBuilder(id int64, name string) *PolicyBuilder {
	return &PolicyBuilder{p: AuthorizationPolicy{ID: id, Name: name, Type: PolicySimple}}
}

func (b *PolicyBuilder) Type(t PolicyType) *PolicyBuilder { b.p.Type = t; return b }

func (b *PolicyBuilder) Expression(expr string) *PolicyBuilder { b.p.Expression = expr; return b }

func (b *PolicyBuilder) RequireAuthentication() *PolicyBuilder {
	b.p.RequiresAuthentication = true
	return b
}

func (b *PolicyBuilder) RequireClaims(claims ...string) *PolicyBuilder {
	b.p.RequiredClaims = append(b.p.RequiredClaims, claims...)
	return b
}

func (b *PolicyBuilder) Condition(kind ConditionKind, attribute, operator, value string) *PolicyBuilder {
	b.p.Conditions = append(b.p.Conditions, PolicyCondition{Kind: kind, Attribute: attribute, Operator: operator, Value: value})
	return b
}

func (b *PolicyBuilder) Build() *AuthorizationPolicy {
	p := b.p
	return &p
}

type RuleBuilder struct {
	r AuthorizationRule
}

func NewRuleBuilder(id int64, name string, t RuleType) *RuleBuilder {
	return &RuleBuilder{r: AuthorizationRule{ID: id, Name: name, Type: t, Effect: EffectPermit, Active: true}}
}

func (b *RuleBuilder) Effect(e RuleEffect) *RuleBuilder { b.r.Effect = e; return b }

func (b *RuleBuilder) Priority(p int) *RuleBuilder { b.r.Priority = p; return b }

func (b *RuleBuilder) Inactive() *RuleBuilder { b.r.Active = false; return b }

func (b *RuleBuilder) Expression(expr string) *RuleBuilder { b.r.Expression = expr; return b }

func (b *RuleBuilder) Target(subject, resource, action string) *RuleBuilder {
	b.r.Targets = append(b.r.Targets, RuleTarget{Subject: subject, Resource: resource, Action: action})
	return b
}

func (b *RuleBuilder) Condition(kind ConditionKind, attribute, operator, value string) *RuleBuilder {
	b.r.Conditions = append(b.r.Conditions, PolicyCondition{Kind: kind, Attribute: attribute, Operator: operator, Value: value})
	return b
}

func (b *RuleBuilder) Meta(key string, value any) *RuleBuilder {
	if b.r.Metadata == nil {
		b.r.Metadata = make(map[string]any)
	}
	b.r.Metadata[key] = value
	return b
}

func (b *RuleBuilder) Build() *AuthorizationRule {
	r := b.r
	return &r
}

type AuthorizationBuilder struct {
	a *Authorization
}

func NewAuthorizationBuilder(id int64, name string, strategy CombinationType) *AuthorizationBuilder {
	return &AuthorizationBuilder{a: NewAuthorization(id, name, strategy)}
}

func (b *AuthorizationBuilder) Policy(p *AuthorizationPolicy) *AuthorizationBuilder {
	b.a.Policy = p
	return b
}

func (b *AuthorizationBuilder) Rule(r *AuthorizationRule) *AuthorizationBuilder {
	b.a.Rules = append(b.a.Rules, r)
	return b
}

func (b *AuthorizationBuilder) Context(key string, value any) *AuthorizationBuilder {
	if b.a.Context == nil {
		b.a.Context = make(map[string]any)
	}
	b.a.Context[key] = value
	return b
}

func (b *AuthorizationBuilder) Build() *Authorization { return b.a }
