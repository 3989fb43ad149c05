package guard

import "testing"

func TestPermissionEffective(t *testing.T) {
	cases := []struct {
		grant, deny, want bool
	}{
		{false, false, false},
		{true, false, true},
		{false, true, false},
		{true, true, false},
	}
	for _, c := range cases {
		p := Permission{Uri: "/x", Verb: VerbGet, Grant: c.grant, Deny: c.deny}
		if p.Effective() != c.want {
			t.Fatalf("grant=%v deny=%v: expected effective=%v", c.grant, c.deny, c.want)
		}
	}
}

func TestPermissionAllows(t *testing.T) {
	p := Permission{Uri: "/reports/*", Verb: VerbGet, Grant: true}
	if !p.Allows("/reports/annual", VerbGet) {
		t.Fatalf("matching uri and verb should allow")
	}
	if p.Allows("/reports/annual", VerbPost) {
		t.Fatalf("verb mismatch must not allow")
	}
	if p.Allows("/admin", VerbGet) {
		t.Fatalf("uri mismatch must not allow")
	}
}

func TestPermissionVerbAny(t *testing.T) {
	p := Permission{Uri: "/reports/*", Verb: VerbAny, Grant: true}
	for _, v := range []Verb{VerbGet, VerbPost, VerbDelete} {
		if !p.Allows("/reports/annual", v) {
			t.Fatalf("wildcard verb should allow %s", v)
		}
	}
}

func TestParseVerb(t *testing.T) {
	if v, ok := ParseVerb("get"); !ok || v != VerbGet {
		t.Fatalf("lowercase verb should parse, got %v %v", v, ok)
	}
	if v, ok := ParseVerb("*"); !ok || v != VerbAny {
		t.Fatalf("wildcard verb should parse, got %v %v", v, ok)
	}
	if _, ok := ParseVerb("teleport"); ok {
		t.Fatalf("unknown verb must not parse")
	}
}
