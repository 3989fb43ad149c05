package guard

import "testing"

type account struct {
	name  string
	tier  string
	score int
	tags  []string
}

func accountReader() FieldReader[*account] {
	return func(a *account, field string) any {
		switch field {
		case "name":
			return a.name
		case "tier":
			return a.tier
		case "score":
			return a.score
		case "tags":
			return a.tags
		default:
			return nil
		}
	}
}

func TestSpecificationLeaves(t *testing.T) {
	read := accountReader()
	a := &account{name: "alice", tier: "gold", score: 7}

	if !Where("tier", CmpEq, "gold", read).IsSatisfiedBy(a) {
		t.Fatalf("equality should hold")
	}
	if Where("tier", CmpNeq, "gold", read).IsSatisfiedBy(a) {
		t.Fatalf("inequality should not hold")
	}
	if !Where("score", CmpGte, 5, read).IsSatisfiedBy(a) {
		t.Fatalf("numeric comparison should hold")
	}
	if Where("score", CmpLte, 5, read).IsSatisfiedBy(a) {
		t.Fatalf("numeric ceiling should not hold")
	}
	if !Where("name", CmpLike, "ali*", read).IsSatisfiedBy(a) {
		t.Fatalf("wildcard comparison should hold")
	}
	if !Where("tier", CmpIn, []string{"silver", "gold"}, read).IsSatisfiedBy(a) {
		t.Fatalf("membership should hold")
	}
	if !TrueSpecification(read).IsSatisfiedBy(a) || FalseSpecification(read).IsSatisfiedBy(a) {
		t.Fatalf("constant specifications misbehave")
	}
}

func TestSpecificationListFields(t *testing.T) {
	read := accountReader()
	a := &account{name: "alice", tags: []string{"staff", "beta"}}
	if !Where("tags", CmpEq, "staff", read).IsSatisfiedBy(a) {
		t.Fatalf("list equality is containment")
	}
	if Where("tags", CmpEq, "admin", read).IsSatisfiedBy(a) {
		t.Fatalf("absent element should not satisfy")
	}
	if !Where("tags", CmpNeq, "admin", read).IsSatisfiedBy(a) {
		t.Fatalf("list inequality is non-containment")
	}
}

func TestSpecificationComposition(t *testing.T) {
	read := accountReader()
	gold := Where("tier", CmpEq, "gold", read)
	high := Where("score", CmpGte, 5, read)

	a := &account{tier: "gold", score: 3}
	if gold.And(high).IsSatisfiedBy(a) {
		t.Fatalf("conjunction needs both sides")
	}
	if !gold.Or(high).IsSatisfiedBy(a) {
		t.Fatalf("disjunction needs one side")
	}
	if gold.Not().IsSatisfiedBy(a) {
		t.Fatalf("negation of a satisfied specification")
	}
}

func TestDeMorgan(t *testing.T) {
	read := accountReader()
	gold := Where("tier", CmpEq, "gold", read)
	high := Where("score", CmpGte, 5, read)
	lhs := gold.And(high).Not()
	rhs := gold.Not().Or(high.Not())

	cases := []*account{
		{tier: "gold", score: 9},
		{tier: "gold", score: 1},
		{tier: "iron", score: 9},
		{tier: "iron", score: 1},
	}
	for i, a := range cases {
		if lhs.IsSatisfiedBy(a) != rhs.IsSatisfiedBy(a) {
			t.Fatalf("case %d: De Morgan equivalence violated", i)
		}
	}
}

func TestSpecificationBuilder(t *testing.T) {
	read := accountReader()
	spec := NewSpecificationBuilder(read).
		Where("tier", CmpEq, "gold").
		Where("score", CmpGte, 5).
		Build()
	if !spec.IsSatisfiedBy(&account{tier: "gold", score: 7}) {
		t.Fatalf("both clauses hold")
	}
	if spec.IsSatisfiedBy(&account{tier: "gold", score: 2}) {
		t.Fatalf("second clause fails")
	}
	empty := NewSpecificationBuilder(read).Build()
	if !empty.IsSatisfiedBy(&account{}) {
		t.Fatalf("empty builder should yield the true specification")
	}
}

func TestCastKeepsTree(t *testing.T) {
	read := accountReader()
	spec := Where("name", CmpEq, "alice", read)

	type wrapped struct{ inner *account }
	cast := Cast(spec, func(w wrapped, field string) any {
		return read(w.inner, field)
	})
	if !cast.IsSatisfiedBy(wrapped{inner: &account{name: "alice"}}) {
		t.Fatalf("cast specification should reuse the same tree")
	}
	if cast.Node() != spec.Node() {
		t.Fatalf("cast must not copy the tree")
	}
}

func TestNodeString(t *testing.T) {
	n := AndNode(CmpNode("tier", CmpEq, "gold"), NotNode(CmpNode("score", CmpLte, 2)))
	want := "(tier == gold AND NOT score <= 2)"
	if n.String() != want {
		t.Fatalf("got %q want %q", n.String(), want)
	}
}
