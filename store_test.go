package guard

import "testing"

func TestExportAndRebuild(t *testing.T) {
	h := NewHierarchy()
	g := h.NewGroup("engineering")
	role := h.NewRole("reader")
	u := h.NewUser("alice")
	if err := h.AddChild(g.ID, u.ID); err != nil {
		t.Fatalf("g->u: %v", err)
	}
	if err := h.AddChild(role.ID, u.ID); err != nil {
		t.Fatalf("role->u: %v", err)
	}
	if err := h.AddPermission(u.ID, Permission{Uri: "/profile", Verb: VerbGet, Grant: true}); err != nil {
		t.Fatalf("permission: %v", err)
	}

	records := h.Export()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	rebuilt, err := HierarchyFromRecords(records)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if rebuilt.Len() != 3 {
		t.Fatalf("expected 3 entities, got %d", rebuilt.Len())
	}
	ru, ok := rebuilt.Entity(u.ID)
	if !ok {
		t.Fatalf("user missing after rebuild")
	}
	if len(ru.Parents()) != 2 {
		t.Fatalf("edges lost in rebuild: %v", ru.Parents())
	}
	if !rebuilt.HasEffectiveAccess(u.ID, "/profile", VerbGet) {
		t.Fatalf("permissions lost in rebuild")
	}
	// the allocator continues past restored ids
	fresh := rebuilt.NewUser("new")
	if fresh.ID <= u.ID {
		t.Fatalf("fresh id %d should exceed restored ids", fresh.ID)
	}
}

func TestRebuildRejectsBadRecords(t *testing.T) {
	_, err := HierarchyFromRecords([]*EntityRecord{{ID: 1, Kind: "wizard", Name: "x"}})
	if err == nil {
		t.Fatalf("unknown kind must be rejected")
	}
	// a record set encoding a cycle fails on the edge pass
	records := []*EntityRecord{
		{ID: 1, Kind: "group", Name: "a", Parents: []int64{2}},
		{ID: 2, Kind: "group", Name: "b", Parents: []int64{1}},
	}
	_, err = HierarchyFromRecords(records)
	if err == nil || CodeOf(err) != CodeCycle {
		t.Fatalf("cyclic records must be rejected, got %v", err)
	}
	// duplicate ids
	_, err = HierarchyFromRecords([]*EntityRecord{
		{ID: 1, Kind: "user", Name: "a"},
		{ID: 1, Kind: "user", Name: "b"},
	})
	if err == nil {
		t.Fatalf("duplicate ids must be rejected")
	}
}
