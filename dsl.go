package guard

import (
	"fmt"
	"strconv"
	"strings"
)

// The .gcl DSL is a line-oriented configuration format. One directive per
// line; "#" starts a comment. Directives that detail an authorization
// (policy, rule, target, condition, meta, context) apply to the most
// recently opened block, so order matters.
//
//	version 1
//	tenant acme
//	limit children 100
//	entity 1 user alice
//	perm 1 /reports/* GET grant
//	edge 2 1
//	resource 10 /reports report
//	authz 100 allow-override report-access
//	policy 5 simple gate
//	expr action == "GET"
//	rule 7 permission permit 10 reader
//	target type:user /reports/* GET

// ParseDSL parses DSL text into a Config.
func ParseDSL(text string) (*Config, error) {
	cfg := &Config{}
	var curAuthz *AuthorizationConfig
	var curPolicy *PolicyConfig
	var curRule *RuleConfig

	flushRule := func() {
		if curAuthz != nil && curRule != nil {
			curAuthz.Rules = append(curAuthz.Rules, *curRule)
		}
		curRule = nil
	}
	flushAuthz := func() {
		flushRule()
		if curAuthz != nil {
			if curPolicy != nil {
				curAuthz.Policy = curPolicy
			}
			cfg.Authorizations = append(cfg.Authorizations, *curAuthz)
		}
		curAuthz = nil
		curPolicy = nil
	}

	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		directive, args := fields[0], fields[1:]
		fail := func(format string, a ...any) error {
			return validationf(CodeInvalidValue, "line %d: %s", lineNo+1, fmt.Sprintf(format, a...))
		}
		switch directive {
		case "version":
			if len(args) != 1 {
				return nil, fail("version takes one argument")
			}
			cfg.Version = args[0]
		case "tenant":
			if len(args) != 1 {
				return nil, fail("tenant takes one argument")
			}
			cfg.Tenant = args[0]
		case "limit":
			if len(args) != 2 {
				return nil, fail("limit takes a target and a count")
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fail("limit count %q is not a number", args[1])
			}
			switch args[0] {
			case "children":
				cfg.Limits.MaxChildren = n
			case "permissions":
				cfg.Limits.MaxPermissions = n
			default:
				return nil, fail("unknown limit target %q", args[0])
			}
		case "entity":
			if len(args) < 3 {
				return nil, fail("entity takes id, kind and name")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("entity id %q is not a number", args[0])
			}
			if _, ok := ParseKind(args[1]); !ok {
				return nil, fail("unknown entity kind %q", args[1])
			}
			cfg.Entities = append(cfg.Entities, EntityRecord{
				ID:   id,
				Kind: args[1],
				Name: strings.Join(args[2:], " "),
			})
		case "perm":
			if len(args) < 4 {
				return nil, fail("perm takes entity id, uri, verb and grant|deny")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("entity id %q is not a number", args[0])
			}
			p, err := parseDSLPermission(args[1:])
			if err != nil {
				return nil, fail("%v", err)
			}
			found := false
			for i := range cfg.Entities {
				if cfg.Entities[i].ID == id {
					cfg.Entities[i].Permissions = append(cfg.Entities[i].Permissions, p)
					found = true
					break
				}
			}
			if !found {
				return nil, fail("perm references undeclared entity %d", id)
			}
		case "edge":
			if len(args) != 2 {
				return nil, fail("edge takes parent and child ids")
			}
			parent, err1 := strconv.ParseInt(args[0], 10, 64)
			child, err2 := strconv.ParseInt(args[1], 10, 64)
			if err1 != nil || err2 != nil {
				return nil, fail("edge ids must be numbers")
			}
			cfg.Edges = append(cfg.Edges, EdgeConfig{Parent: parent, Child: child})
		case "resource":
			if len(args) < 2 {
				return nil, fail("resource takes id and uri")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("resource id %q is not a number", args[0])
			}
			rc := ResourceConfig{ID: id, Uri: args[1]}
			for _, extra := range args[2:] {
				if v, ok := strings.CutPrefix(extra, "parent="); ok {
					parent, err := strconv.ParseInt(v, 10, 64)
					if err != nil {
						return nil, fail("resource parent %q is not a number", v)
					}
					rc.Parent = parent
				} else if v, ok := strings.CutPrefix(extra, "version="); ok {
					rc.Version = v
				} else if rc.Type == "" {
					rc.Type = extra
				}
			}
			cfg.Resources = append(cfg.Resources, rc)
		case "rperm":
			if len(args) < 4 {
				return nil, fail("rperm takes resource id, uri, verb and grant|deny")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("resource id %q is not a number", args[0])
			}
			p, err := parseDSLPermission(args[1:])
			if err != nil {
				return nil, fail("%v", err)
			}
			found := false
			for i := range cfg.Resources {
				if cfg.Resources[i].ID == id {
					cfg.Resources[i].Permissions = append(cfg.Resources[i].Permissions, p)
					found = true
					break
				}
			}
			if !found {
				return nil, fail("rperm references undeclared resource %d", id)
			}
		case "authz":
			flushAuthz()
			if len(args) < 3 {
				return nil, fail("authz takes id, strategy and name")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("authz id %q is not a number", args[0])
			}
			if _, ok := parseCombination(args[1]); !ok {
				return nil, fail("unknown strategy %q", args[1])
			}
			curAuthz = &AuthorizationConfig{ID: id, Strategy: args[1], Name: strings.Join(args[2:], " ")}
		case "context":
			if curAuthz == nil {
				return nil, fail("context outside an authz block")
			}
			if len(args) < 2 {
				return nil, fail("context takes a key and a value")
			}
			if curAuthz.Context == nil {
				curAuthz.Context = make(map[string]any)
			}
			curAuthz.Context[args[0]] = strings.Join(args[1:], " ")
		case "policy":
			if curAuthz == nil {
				return nil, fail("policy outside an authz block")
			}
			if len(args) < 3 {
				return nil, fail("policy takes id, type and name")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("policy id %q is not a number", args[0])
			}
			if _, ok := parsePolicyType(args[1]); !ok {
				return nil, fail("unknown policy type %q", args[1])
			}
			curPolicy = &PolicyConfig{ID: id, Type: args[1], Name: strings.Join(args[2:], " ")}
		case "require-auth":
			if curPolicy == nil {
				return nil, fail("require-auth outside a policy block")
			}
			curPolicy.RequiresAuthentication = true
		case "claim":
			if curPolicy == nil {
				return nil, fail("claim outside a policy block")
			}
			if len(args) != 1 {
				return nil, fail("claim takes one name")
			}
			curPolicy.RequiredClaims = append(curPolicy.RequiredClaims, args[0])
		case "expr":
			expr := strings.TrimSpace(strings.TrimPrefix(line, "expr"))
			switch {
			case curRule != nil:
				curRule.Expression = expr
			case curPolicy != nil:
				curPolicy.Expression = expr
			default:
				return nil, fail("expr outside a policy or rule block")
			}
		case "condition":
			text := strings.TrimSpace(strings.TrimPrefix(line, "condition"))
			cond, err := ParseCondition(text)
			if err != nil {
				return nil, fail("%v", err)
			}
			cc := ConditionConfig{Kind: cond.Kind.String(), Attribute: cond.Attribute, Operator: cond.Operator, Value: cond.Value}
			switch {
			case curRule != nil:
				curRule.Conditions = append(curRule.Conditions, cc)
			case curPolicy != nil:
				curPolicy.Conditions = append(curPolicy.Conditions, cc)
			default:
				return nil, fail("condition outside a policy or rule block")
			}
		case "rule":
			flushRule()
			if curAuthz == nil {
				return nil, fail("rule outside an authz block")
			}
			if len(args) < 5 {
				return nil, fail("rule takes id, type, effect, priority and name")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return nil, fail("rule id %q is not a number", args[0])
			}
			if _, ok := parseRuleType(args[1]); !ok {
				return nil, fail("unknown rule type %q", args[1])
			}
			if _, ok := parseEffect(args[2]); !ok {
				return nil, fail("unknown rule effect %q", args[2])
			}
			priority, err := strconv.Atoi(args[3])
			if err != nil {
				return nil, fail("rule priority %q is not a number", args[3])
			}
			curRule = &RuleConfig{
				ID:       id,
				Type:     args[1],
				Effect:   args[2],
				Priority: priority,
				Name:     strings.Join(args[4:], " "),
			}
		case "disabled":
			if curRule == nil {
				return nil, fail("disabled outside a rule block")
			}
			curRule.Disabled = true
		case "target":
			if curRule == nil {
				return nil, fail("target outside a rule block")
			}
			if len(args) != 3 {
				return nil, fail("target takes subject, resource and action (use - for any)")
			}
			t := RuleTarget{}
			if args[0] != "-" {
				t.Subject = args[0]
			}
			if args[1] != "-" {
				t.Resource = args[1]
			}
			if args[2] != "-" {
				t.Action = args[2]
			}
			curRule.Targets = append(curRule.Targets, t)
		case "meta":
			if curRule == nil {
				return nil, fail("meta outside a rule block")
			}
			if len(args) < 2 {
				return nil, fail("meta takes a key and a value")
			}
			if curRule.Metadata == nil {
				curRule.Metadata = make(map[string]any)
			}
			curRule.Metadata[args[0]] = strings.Join(args[1:], " ")
		default:
			return nil, fail("unknown directive %q", directive)
		}
	}
	flushAuthz()
	return cfg, nil
}

func parseDSLPermission(args []string) (Permission, error) {
	verb, ok := ParseVerb(args[1])
	if !ok {
		return Permission{}, fmt.Errorf("unknown verb %q", args[1])
	}
	p := Permission{Uri: args[0], Verb: verb}
	// "grant" and "deny" may both appear; a deny entry that also carries
	// Grant must survive a round trip. The first remaining token is the
	// scheme.
	for _, tok := range args[2:] {
		switch {
		case tok == "grant":
			p.Grant = true
		case tok == "deny":
			p.Deny = true
		case p.Scheme == "":
			p.Scheme = tok
		default:
			return Permission{}, fmt.Errorf("unexpected token %q", tok)
		}
	}
	if !p.Grant && !p.Deny {
		return Permission{}, fmt.Errorf("expected grant or deny, got %q", args[2])
	}
	return p, nil
}

// EncodeDSL renders a Config back into DSL text. Parsing the output yields
// an equivalent config.
func EncodeDSL(cfg *Config) string {
	var b strings.Builder
	if cfg.Version != "" {
		fmt.Fprintf(&b, "version %s\n", cfg.Version)
	}
	if cfg.Tenant != "" {
		fmt.Fprintf(&b, "tenant %s\n", cfg.Tenant)
	}
	if cfg.Limits.MaxChildren > 0 {
		fmt.Fprintf(&b, "limit children %d\n", cfg.Limits.MaxChildren)
	}
	if cfg.Limits.MaxPermissions > 0 {
		fmt.Fprintf(&b, "limit permissions %d\n", cfg.Limits.MaxPermissions)
	}
	for _, e := range cfg.Entities {
		fmt.Fprintf(&b, "entity %d %s %s\n", e.ID, e.Kind, e.Name)
		for _, p := range e.Permissions {
			writeDSLPermission(&b, "perm", e.ID, p)
		}
	}
	for _, edge := range cfg.Edges {
		fmt.Fprintf(&b, "edge %d %d\n", edge.Parent, edge.Child)
	}
	for _, r := range cfg.Resources {
		fmt.Fprintf(&b, "resource %d %s", r.ID, r.Uri)
		if r.Type != "" {
			fmt.Fprintf(&b, " %s", r.Type)
		}
		if r.Version != "" {
			fmt.Fprintf(&b, " version=%s", r.Version)
		}
		if r.Parent != 0 {
			fmt.Fprintf(&b, " parent=%d", r.Parent)
		}
		b.WriteByte('\n')
		for _, p := range r.Permissions {
			writeDSLPermission(&b, "rperm", r.ID, p)
		}
	}
	for _, a := range cfg.Authorizations {
		fmt.Fprintf(&b, "authz %d %s %s\n", a.ID, a.Strategy, a.Name)
		for k, v := range a.Context {
			fmt.Fprintf(&b, "context %s %v\n", k, v)
		}
		if a.Policy != nil {
			p := a.Policy
			fmt.Fprintf(&b, "policy %d %s %s\n", p.ID, p.Type, p.Name)
			if p.RequiresAuthentication {
				b.WriteString("require-auth\n")
			}
			for _, c := range p.RequiredClaims {
				fmt.Fprintf(&b, "claim %s\n", c)
			}
			if p.Expression != "" {
				fmt.Fprintf(&b, "expr %s\n", p.Expression)
			}
			for _, c := range p.Conditions {
				fmt.Fprintf(&b, "condition %s.%s %s %s\n", c.Kind, c.Attribute, c.Operator, c.Value)
			}
		}
		for _, r := range a.Rules {
			effect := r.Effect
			if effect == "" {
				effect = "permit"
			}
			fmt.Fprintf(&b, "rule %d %s %s %d %s\n", r.ID, r.Type, effect, r.Priority, r.Name)
			if r.Disabled {
				b.WriteString("disabled\n")
			}
			if r.Expression != "" {
				fmt.Fprintf(&b, "expr %s\n", r.Expression)
			}
			for _, t := range r.Targets {
				fmt.Fprintf(&b, "target %s %s %s\n", dashIfEmpty(t.Subject), dashIfEmpty(t.Resource), dashIfEmpty(t.Action))
			}
			for _, c := range r.Conditions {
				fmt.Fprintf(&b, "condition %s.%s %s %s\n", c.Kind, c.Attribute, c.Operator, c.Value)
			}
			for k, v := range r.Metadata {
				fmt.Fprintf(&b, "meta %s %v\n", k, v)
			}
		}
	}
	return b.String()
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeDSLPermission(b *strings.Builder, directive string, id int64, p Permission) {
	fmt.Fprintf(b, "%s %d %s %s", directive, id, p.Uri, p.Verb)
	if p.Grant || !p.Deny {
		b.WriteString(" grant")
	}
	if p.Deny {
		b.WriteString(" deny")
	}
	if p.Scheme != "" {
		fmt.Fprintf(b, " %s", p.Scheme)
	}
	b.WriteByte('\n')
}
