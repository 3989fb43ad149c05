package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oarkflow/guard"
)

// MemoryEntityStore implements entity persistence in-memory for testing/demo
type MemoryEntityStore struct {
	mu      sync.RWMutex
	records map[int64]*guard.EntityRecord
}

func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{records: make(map[int64]*guard.EntityRecord)}
}

func (s *MemoryEntityStore) SaveEntity(ctx context.Context, rec *guard.EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *rec
	s.records[rec.ID] = &cop
	return nil
}

func (s *MemoryEntityStore) LoadEntity(ctx context.Context, id int64) (*guard.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("entity not found: %d", id)
	}
	cop := *rec
	return &cop, nil
}

func (s *MemoryEntityStore) DeleteEntity(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryEntityStore) ListEntities(ctx context.Context) ([]*guard.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

// QueryEntities walks the specification tree against every record. The
// reader resolves the same field names the SQL store lowers to columns.
func (s *MemoryEntityStore) QueryEntities(ctx context.Context, node *guard.Node) ([]*guard.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*guard.EntityRecord, 0)
	for _, rec := range s.snapshotLocked() {
		if node.Match(s.readerLocked(rec)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryEntityStore) CountEntities(ctx context.Context, node *guard.Node) (int, error) {
	recs, err := s.QueryEntities(ctx, node)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *MemoryEntityStore) snapshotLocked() []*guard.EntityRecord {
	out := make([]*guard.EntityRecord, 0, len(s.records))
	for _, rec := range s.records {
		cop := *rec
		out = append(out, &cop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryEntityStore) readerLocked(rec *guard.EntityRecord) func(field string) any {
	return func(field string) any {
		switch field {
		case "id":
			return rec.ID
		case "name":
			return rec.Name
		case "kind", "type":
			return rec.Kind
		case "permission_count":
			return len(rec.Permissions)
		case "children_count":
			return len(s.childrenLocked(rec.ID))
		case "group":
			names := make([]string, 0)
			for _, pid := range s.parentsLocked(rec.ID) {
				if p, ok := s.records[pid]; ok && p.Kind == guard.KindGroup.String() {
					names = append(names, p.Name)
				}
			}
			return names
		case "permission.uris":
			uris := make([]string, 0)
			for _, p := range rec.Permissions {
				uris = append(uris, p.Uri)
			}
			return uris
		default:
			return nil
		}
	}
}

// parentsLocked resolves the parents of id from the edge relation. Every
// saved record contributes both of its adjacency sides, the same way the SQL
// store accumulates rows in its edges table, so a record that names id in
// Children counts even when id's own record never listed it.
func (s *MemoryEntityStore) parentsLocked(id int64) []int64 {
	seen := make(map[int64]bool)
	out := make([]int64, 0)
	if rec, ok := s.records[id]; ok {
		for _, pid := range rec.Parents {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	for _, rec := range s.records {
		if seen[rec.ID] {
			continue
		}
		for _, cid := range rec.Children {
			if cid == id {
				seen[rec.ID] = true
				out = append(out, rec.ID)
				break
			}
		}
	}
	return out
}

func (s *MemoryEntityStore) childrenLocked(id int64) []int64 {
	seen := make(map[int64]bool)
	out := make([]int64, 0)
	if rec, ok := s.records[id]; ok {
		for _, cid := range rec.Children {
			if !seen[cid] {
				seen[cid] = true
				out = append(out, cid)
			}
		}
	}
	for _, rec := range s.records {
		for _, pid := range rec.Parents {
			if pid == id && !seen[rec.ID] {
				seen[rec.ID] = true
				out = append(out, rec.ID)
			}
		}
	}
	return out
}

// MemoryAuthorizationStore keeps authorization definitions in-memory.
type MemoryAuthorizationStore struct {
	mu    sync.RWMutex
	items map[int64]*guard.Authorization
}

func NewMemoryAuthorizationStore() *MemoryAuthorizationStore {
	return &MemoryAuthorizationStore{items: make(map[int64]*guard.Authorization)}
}

func (s *MemoryAuthorizationStore) SaveAuthorization(ctx context.Context, a *guard.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = time.Now()
	s.items[a.ID] = a
	return nil
}

func (s *MemoryAuthorizationStore) LoadAuthorization(ctx context.Context, id int64) (*guard.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("authorization not found: %d", id)
	}
	return a, nil
}

func (s *MemoryAuthorizationStore) DeleteAuthorization(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryAuthorizationStore) ListAuthorizations(ctx context.Context) ([]*guard.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*guard.Authorization, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
