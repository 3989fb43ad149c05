package guard

import "context"

// EntityRecord is the flat persistence form of one entity. Edges appear on
// both sides; loaders rebuild symmetry from the parent lists alone.
type EntityRecord struct {
	ID          int64        `json:"id" yaml:"id"`
	Kind        string       `json:"kind" yaml:"kind"`
	Name        string       `json:"name" yaml:"name"`
	Parents     []int64      `json:"parents,omitempty" yaml:"parents,omitempty"`
	Children    []int64      `json:"children,omitempty" yaml:"children,omitempty"`
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// EntityStore persists entity records and answers specification queries.
// QueryEntities receives the specification tree so SQL-backed stores can
// lower it to a WHERE clause instead of scanning.
type EntityStore interface {
	SaveEntity(ctx context.Context, rec *EntityRecord) error
	LoadEntity(ctx context.Context, id int64) (*EntityRecord, error)
	DeleteEntity(ctx context.Context, id int64) error
	ListEntities(ctx context.Context) ([]*EntityRecord, error)
	QueryEntities(ctx context.Context, node *Node) ([]*EntityRecord, error)
	CountEntities(ctx context.Context, node *Node) (int, error)
}

// AuthorizationStore persists authorization definitions.
type AuthorizationStore interface {
	SaveAuthorization(ctx context.Context, a *Authorization) error
	LoadAuthorization(ctx context.Context, id int64) (*Authorization, error)
	DeleteAuthorization(ctx context.Context, id int64) error
	ListAuthorizations(ctx context.Context) ([]*Authorization, error)
}

// Export snapshots the hierarchy as records, in ID order.
func (h *Hierarchy) Export() []*EntityRecord {
	out := make([]*EntityRecord, 0, h.Len())
	for _, id := range h.SortedIDs() {
		e, ok := h.Entity(id)
		if !ok {
			continue
		}
		out = append(out, &EntityRecord{
			ID:          e.ID,
			Kind:        e.Kind.String(),
			Name:        e.Name,
			Parents:     e.Parents(),
			Children:    e.Children(),
			Permissions: e.Permissions(),
		})
	}
	return out
}

// HierarchyFromRecords rebuilds a hierarchy from persisted records. Every
// structural invariant is re-checked; a record set encoding a cycle or a
// forbidden edge is rejected rather than partially loaded.
func HierarchyFromRecords(records []*EntityRecord, opts ...HierarchyOption) (*Hierarchy, error) {
	h := NewHierarchy(opts...)
	maxID := int64(0)
	for _, rec := range records {
		kind, ok := ParseKind(rec.Kind)
		if !ok {
			return nil, validationf(CodeInvalidValue, "entity %d: unknown kind %q", rec.ID, rec.Kind)
		}
		if err := h.restoreEntity(rec.ID, kind, rec.Name); err != nil {
			return nil, err
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	for _, rec := range records {
		for _, parent := range rec.Parents {
			if err := h.AddChild(parent, rec.ID); err != nil {
				return nil, err
			}
		}
	}
	for _, rec := range records {
		for _, p := range rec.Permissions {
			if err := h.AddPermission(rec.ID, p); err != nil {
				return nil, err
			}
		}
	}
	h.setNextID(maxID + 1)
	return h, nil
}
