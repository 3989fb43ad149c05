package stores

import (
	"context"
	"testing"

	"github.com/oarkflow/guard"
)

func seedMemoryStore(t *testing.T) *MemoryEntityStore {
	t.Helper()
	s := NewMemoryEntityStore()
	ctx := context.Background()
	records := []*guard.EntityRecord{
		{ID: 1, Kind: "group", Name: "engineering"},
		{ID: 2, Kind: "user", Name: "alice", Parents: []int64{1}, Permissions: []guard.Permission{
			{Uri: "/admin/*", Verb: guard.VerbAny, Grant: true},
		}},
		{ID: 3, Kind: "user", Name: "bob", Permissions: []guard.Permission{
			{Uri: "/api/{id}", Verb: guard.VerbGet, Grant: true},
		}},
	}
	for _, rec := range records {
		if err := s.SaveEntity(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", rec.ID, err)
		}
	}
	return s
}

func TestMemoryEntityStoreCRUD(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()

	rec, err := s.LoadEntity(ctx, 2)
	if err != nil || rec.Name != "alice" {
		t.Fatalf("load: %v %v", rec, err)
	}
	rec.Name = "mutated"
	reread, _ := s.LoadEntity(ctx, 2)
	if reread.Name != "alice" {
		t.Fatalf("loads must return copies")
	}

	all, err := s.ListEntities(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("list: %d %v", len(all), err)
	}

	if err := s.DeleteEntity(ctx, 3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadEntity(ctx, 3); err == nil {
		t.Fatalf("deleted entity should not load")
	}
}

func TestMemoryEntityStoreQuery(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()

	users, err := s.QueryEntities(ctx, guard.CmpNode("kind", guard.CmpEq, "user"))
	if err != nil || len(users) != 2 {
		t.Fatalf("kind query: %d %v", len(users), err)
	}

	members, err := s.QueryEntities(ctx, guard.CmpNode("group", guard.CmpEq, "engineering"))
	if err != nil || len(members) != 1 || members[0].ID != 2 {
		t.Fatalf("group query: %v %v", members, err)
	}

	risky, err := s.QueryEntities(ctx, guard.AndNode(
		guard.CmpNode("kind", guard.CmpEq, "user"),
		guard.CmpNode("permission.uris", guard.CmpLike, "/admin/users"),
	))
	if err != nil || len(risky) != 1 || risky[0].ID != 2 {
		t.Fatalf("risk query: %v %v", risky, err)
	}

	n, err := s.CountEntities(ctx, guard.NotNode(guard.CmpNode("kind", guard.CmpEq, "user")))
	if err != nil || n != 1 {
		t.Fatalf("count query: %d %v", n, err)
	}
}

// An edge saved on only one record still counts, matching the SQL store's
// edges table which accumulates both sides of every save.
func TestMemoryEntityStoreEdgesFromEitherSide(t *testing.T) {
	s := NewMemoryEntityStore()
	ctx := context.Background()
	records := []*guard.EntityRecord{
		{ID: 1, Kind: "group", Name: "engineering"},
		{ID: 2, Kind: "user", Name: "alice", Parents: []int64{1}},
		{ID: 10, Kind: "group", Name: "operations", Children: []int64{11}},
		{ID: 11, Kind: "user", Name: "carol"},
	}
	for _, rec := range records {
		if err := s.SaveEntity(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", rec.ID, err)
		}
	}

	// record 1 never listed alice in Children; alice's Parents entry is the
	// only trace of the edge
	parents, err := s.QueryEntities(ctx, guard.CmpNode("children_count", guard.CmpGte, 1))
	if err != nil || len(parents) != 2 || parents[0].ID != 1 || parents[1].ID != 10 {
		t.Fatalf("children_count should follow the edge relation: %v %v", parents, err)
	}

	// record 11 never listed operations in Parents; the group's Children
	// entry is the only trace
	members, err := s.QueryEntities(ctx, guard.CmpNode("group", guard.CmpEq, "operations"))
	if err != nil || len(members) != 1 || members[0].ID != 11 {
		t.Fatalf("group membership should follow the edge relation: %v %v", members, err)
	}
}

func TestMemoryAuthorizationStore(t *testing.T) {
	s := NewMemoryAuthorizationStore()
	ctx := context.Background()
	a := guard.NewAuthorization(1, "report-access", guard.AllowOverride)
	if err := s.SaveAuthorization(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadAuthorization(ctx, 1)
	if err != nil || got.Name != "report-access" {
		t.Fatalf("load: %v %v", got, err)
	}
	all, err := s.ListAuthorizations(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list: %d %v", len(all), err)
	}
	if err := s.DeleteAuthorization(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadAuthorization(ctx, 1); err == nil {
		t.Fatalf("deleted authorization should not load")
	}
}
