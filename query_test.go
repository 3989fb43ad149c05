package guard

import "testing"

func queryFixture(t *testing.T) (*Hierarchy, *Entity, *Entity) {
	t.Helper()
	h := NewHierarchy()
	eng := h.NewGroup("engineering")
	ops := h.NewGroup("operations")
	alice := h.NewUser("alice")
	bob := h.NewUser("bob")
	if err := h.AddChild(eng.ID, alice.ID); err != nil {
		t.Fatalf("eng->alice: %v", err)
	}
	if err := h.AddChild(ops.ID, bob.ID); err != nil {
		t.Fatalf("ops->bob: %v", err)
	}
	if err := h.AddPermission(alice.ID, Permission{Uri: "/admin/*", Verb: VerbAny, Grant: true}); err != nil {
		t.Fatalf("alice permission: %v", err)
	}
	return h, alice, bob
}

func TestHierarchyQuery(t *testing.T) {
	h, alice, _ := queryFixture(t)

	users := h.Query(h.KindIs(KindUser))
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if got := h.Query(h.MemberOfGroup("engineering")); len(got) != 1 || got[0].ID != alice.ID {
		t.Fatalf("membership query: %v", got)
	}
	if n := h.Count(h.KindIs(KindGroup)); n != 2 {
		t.Fatalf("expected 2 groups, got %d", n)
	}
}

func TestHierarchyAnyFirst(t *testing.T) {
	h, alice, _ := queryFixture(t)
	privileged := h.HasMinPermissions(1)
	if !h.Any(privileged) {
		t.Fatalf("alice carries a permission")
	}
	got, ok := h.First(privileged)
	if !ok || got.ID != alice.ID {
		t.Fatalf("first privileged entity: %v %v", got, ok)
	}
	if h.Any(h.MemberOfGroup("finance")) {
		t.Fatalf("no finance group exists")
	}
	if _, ok := h.First(h.MemberOfGroup("finance")); ok {
		t.Fatalf("first over an empty result must report false")
	}
}

func TestHighRiskPermissionQuery(t *testing.T) {
	h, alice, _ := queryFixture(t)
	risky := h.KindIs(KindUser).And(h.HasPermissionMatching("/admin/users"))
	got := h.Query(risky)
	if len(got) != 1 || got[0].ID != alice.ID {
		t.Fatalf("expected only alice, got %v", got)
	}
}

func TestQueryComposesAcrossFields(t *testing.T) {
	h, _, bob := queryFixture(t)
	spec := h.KindIs(KindUser).And(h.MemberOfGroup("engineering").Not())
	got := h.Query(spec)
	if len(got) != 1 || got[0].ID != bob.ID {
		t.Fatalf("expected only bob, got %v", got)
	}
}
