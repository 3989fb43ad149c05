package guard

import "testing"

func TestAddChildRejectsSelfReference(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("engineering")
	err := h.AddChild(g.ID, g.ID)
	if err == nil {
		t.Fatalf("self-reference should be rejected")
	}
	if CodeOf(err) != CodeSelfReference {
		t.Fatalf("expected code %s got %s", CodeSelfReference, CodeOf(err))
	}
	if len(g.Children()) != 0 {
		t.Fatalf("rejected edge must leave the graph unchanged")
	}
}

func TestAddChildRejectsUserParent(t *testing.T) {
	h := NewHierarchy()
	u := h.NewUser("alice")
	g := h.NewGroup("engineering")
	err := h.AddChild(u.ID, g.ID)
	if err == nil || CodeOf(err) != CodeKindMismatch {
		t.Fatalf("user as parent should fail with kind mismatch, got %v", err)
	}
}

func TestAddChildRejectsCycle(t *testing.T) {
	h := NewHierarchy()
	a := h.NewGroup("a")
	b := h.NewGroup("b")
	c := h.NewGroup("c")
	if err := h.AddChild(a.ID, b.ID); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if err := h.AddChild(b.ID, c.ID); err != nil {
		t.Fatalf("b->c: %v", err)
	}
	err := h.AddChild(c.ID, a.ID)
	if err == nil || CodeOf(err) != CodeCycle {
		t.Fatalf("closing the chain should fail with a cycle, got %v", err)
	}
	if len(c.Children()) != 0 {
		t.Fatalf("rejected edge must not appear on the parent side")
	}
	if len(a.Parents()) != 0 {
		t.Fatalf("rejected edge must not appear on the child side")
	}
}

func TestAddChildEdgeSymmetry(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("engineering")
	u := h.NewUser("alice")
	if err := h.AddChild(g.ID, u.ID); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if got := g.Children(); len(got) != 1 || got[0] != u.ID {
		t.Fatalf("parent side missing the edge: %v", got)
	}
	if got := u.Parents(); len(got) != 1 || got[0] != g.ID {
		t.Fatalf("child side missing the edge: %v", got)
	}
	// re-adding is a no-op
	if err := h.AddChild(g.ID, u.ID); err != nil {
		t.Fatalf("duplicate edge should be a no-op: %v", err)
	}
	if len(g.Children()) != 1 || len(u.Parents()) != 1 {
		t.Fatalf("duplicate edge must not grow the adjacency lists")
	}
}

func TestRemoveChildDetachesBothSides(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("engineering")
	u := h.NewUser("alice")
	if err := h.AddChild(g.ID, u.ID); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if err := h.RemoveChild(g.ID, u.ID); err != nil {
		t.Fatalf("remove child: %v", err)
	}
	if len(g.Children()) != 0 || len(u.Parents()) != 0 {
		t.Fatalf("edge should be gone from both sides")
	}
	// removing again is a no-op
	if err := h.RemoveChild(g.ID, u.ID); err != nil {
		t.Fatalf("removing an absent edge should be a no-op: %v", err)
	}
}

func TestChildLimit(t *testing.T) {
	h := NewHierarchy(WithLimits(Limits{MaxChildren: 2}))
	g := h.NewGroup("engineering")
	for i := 0; i < 2; i++ {
		u := h.NewUser("user")
		if err := h.AddChild(g.ID, u.ID); err != nil {
			t.Fatalf("add child %d: %v", i, err)
		}
	}
	extra := h.NewUser("overflow")
	err := h.AddChild(g.ID, extra.ID)
	if err == nil || CodeOf(err) != CodeChildLimit {
		t.Fatalf("expected child limit, got %v", err)
	}
}

func TestPermissionLimit(t *testing.T) {
	h := NewHierarchy(WithLimits(Limits{MaxPermissions: 1}))
	u := h.NewUser("alice")
	if err := h.AddPermission(u.ID, Permission{Uri: "/a", Verb: VerbGet, Grant: true}); err != nil {
		t.Fatalf("first permission: %v", err)
	}
	err := h.AddPermission(u.ID, Permission{Uri: "/b", Verb: VerbGet, Grant: true})
	if err == nil || CodeOf(err) != CodePermissionLimit {
		t.Fatalf("expected permission limit, got %v", err)
	}
}

func TestAddPermissionValidatesPattern(t *testing.T) {
	h := NewHierarchy()
	u := h.NewUser("alice")
	err := h.AddPermission(u.ID, Permission{Uri: "/api/{", Verb: VerbGet, Grant: true})
	if err == nil || CodeOf(err) != CodeInvalidPattern {
		t.Fatalf("malformed pattern should be rejected, got %v", err)
	}
}

func TestAddGroupRequiresTwoGroups(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("parent")
	r := h.NewRole("admin")
	err := h.AddGroup(g.ID, r.ID)
	if err == nil || CodeOf(err) != CodeKindMismatch {
		t.Fatalf("group-role pairing should fail, got %v", err)
	}
	sub := h.NewGroup("sub")
	if err := h.AddGroup(g.ID, sub.ID); err != nil {
		t.Fatalf("group-group edge: %v", err)
	}
}

func TestTypedViews(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("engineering")
	sub := h.NewGroup("backend")
	role := h.NewRole("admin")
	u := h.NewUser("alice")
	for _, edge := range [][2]int64{{g.ID, sub.ID}, {g.ID, role.ID}, {g.ID, u.ID}, {role.ID, u.ID}} {
		if err := h.AddChild(edge[0], edge[1]); err != nil {
			t.Fatalf("edge %v: %v", edge, err)
		}
	}
	if got := h.Members(g.ID); len(got) != 1 || got[0].ID != u.ID {
		t.Fatalf("members: %v", got)
	}
	if got := h.Subgroups(g.ID); len(got) != 1 || got[0].ID != sub.ID {
		t.Fatalf("subgroups: %v", got)
	}
	if got := h.Roles(g.ID); len(got) != 1 || got[0].ID != role.ID {
		t.Fatalf("roles: %v", got)
	}
	if got := h.GroupMemberships(u.ID); len(got) != 1 || got[0].ID != g.ID {
		t.Fatalf("group memberships: %v", got)
	}
	if got := h.RoleMemberships(u.ID); len(got) != 1 || got[0].ID != role.ID {
		t.Fatalf("role memberships: %v", got)
	}
}

func TestEffectivePermissionsInherit(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("engineering")
	role := h.NewRole("reader")
	u := h.NewUser("alice")
	if err := h.AddChild(g.ID, role.ID); err != nil {
		t.Fatalf("group->role: %v", err)
	}
	if err := h.AddChild(role.ID, u.ID); err != nil {
		t.Fatalf("role->user: %v", err)
	}
	if err := h.AddPermission(g.ID, Permission{Uri: "/wiki/*", Verb: VerbGet, Grant: true}); err != nil {
		t.Fatalf("group permission: %v", err)
	}
	if err := h.AddPermission(role.ID, Permission{Uri: "/reports/*", Verb: VerbGet, Grant: true}); err != nil {
		t.Fatalf("role permission: %v", err)
	}
	if err := h.AddPermission(u.ID, Permission{Uri: "/profile", Verb: VerbPut, Grant: true}); err != nil {
		t.Fatalf("user permission: %v", err)
	}
	perms := h.EffectivePermissions(u.ID)
	if len(perms) != 3 {
		t.Fatalf("expected 3 effective permissions, got %d", len(perms))
	}
	if !h.HasEffectiveAccess(u.ID, "/reports/annual", VerbGet) {
		t.Fatalf("inherited role permission should grant access")
	}
	if !h.HasEffectiveAccess(u.ID, "/wiki/setup", VerbGet) {
		t.Fatalf("transitively inherited group permission should grant access")
	}
	if h.HasEffectiveAccess(u.ID, "/reports/annual", VerbDelete) {
		t.Fatalf("verb mismatch must deny")
	}
}

func TestDenyBeatsGrant(t *testing.T) {
	h := NewHierarchy()
	u := h.NewUser("alice")
	if err := h.AddPermission(u.ID, Permission{Uri: "/secret", Verb: VerbGet, Grant: true, Deny: true}); err != nil {
		t.Fatalf("permission: %v", err)
	}
	if h.HasEffectiveAccess(u.ID, "/secret", VerbGet) {
		t.Fatalf("a denied permission must not grant access")
	}
}

func TestAncestorsAndDescendants(t *testing.T) {
	h := NewHierarchy()
	top := h.NewGroup("company")
	mid := h.NewGroup("engineering")
	u := h.NewUser("alice")
	if err := h.AddChild(top.ID, mid.ID); err != nil {
		t.Fatalf("top->mid: %v", err)
	}
	if err := h.AddChild(mid.ID, u.ID); err != nil {
		t.Fatalf("mid->user: %v", err)
	}
	anc := h.Ancestors(u.ID)
	if len(anc) != 2 {
		t.Fatalf("expected 2 ancestors, got %d", len(anc))
	}
	desc := h.Descendants(top.ID)
	if len(desc) != 2 {
		t.Fatalf("expected 2 descendants, got %d", len(desc))
	}
}
