package guard

// Queries walk a sorted snapshot of entity IDs and evaluate the
// specification per entity. Each lookup and each field read acquires the
// hierarchy read lock on its own, so a concurrent writer may be observed
// between entities but never inside one field read.

// EntityReader resolves specification fields for in-memory entities. The
// field names line up with the columns the SQL store exposes, so one tree
// answers identically on both paths.
//
// Fields: id, name, kind (and its alias type), permission_count,
// children_count, group (direct parent group names), permission.uris.
func (h *Hierarchy) EntityReader() FieldReader[*Entity] {
	return func(e *Entity, field string) any {
		switch field {
		case "id":
			return e.ID
		case "name":
			return e.Name
		case "kind", "type":
			return e.Kind.String()
		case "permission_count":
			return len(e.Permissions())
		case "children_count":
			return len(e.Children())
		case "group":
			names := make([]string, 0)
			for _, p := range h.GroupMemberships(e.ID) {
				names = append(names, p.Name)
			}
			return names
		case "permission.uris":
			uris := make([]string, 0)
			for _, p := range e.Permissions() {
				uris = append(uris, p.Uri)
			}
			return uris
		default:
			return nil
		}
	}
}

// Query returns every entity satisfying the specification, in ID order.
func (h *Hierarchy) Query(spec *Specification[*Entity]) []*Entity {
	out := make([]*Entity, 0)
	for _, id := range h.SortedIDs() {
		e, ok := h.Entity(id)
		if ok && spec.IsSatisfiedBy(e) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many entities satisfy the specification.
func (h *Hierarchy) Count(spec *Specification[*Entity]) int {
	n := 0
	for _, id := range h.SortedIDs() {
		if e, ok := h.Entity(id); ok && spec.IsSatisfiedBy(e) {
			n++
		}
	}
	return n
}

// Any reports whether at least one entity satisfies the specification.
func (h *Hierarchy) Any(spec *Specification[*Entity]) bool {
	for _, id := range h.SortedIDs() {
		if e, ok := h.Entity(id); ok && spec.IsSatisfiedBy(e) {
			return true
		}
	}
	return false
}

// First returns the lowest-ID entity satisfying the specification.
func (h *Hierarchy) First(spec *Specification[*Entity]) (*Entity, bool) {
	for _, id := range h.SortedIDs() {
		if e, ok := h.Entity(id); ok && spec.IsSatisfiedBy(e) {
			return e, true
		}
	}
	return nil, false
}

// KindIs matches entities of one kind.
func (h *Hierarchy) KindIs(k Kind) *Specification[*Entity] {
	return Where("kind", CmpEq, k.String(), h.EntityReader())
}

// MemberOfGroup matches entities whose direct parents include the named
// group.
func (h *Hierarchy) MemberOfGroup(name string) *Specification[*Entity] {
	return Where("group", CmpEq, name, h.EntityReader())
}

// HasMinPermissions matches entities carrying at least n direct permissions.
func (h *Hierarchy) HasMinPermissions(n int) *Specification[*Entity] {
	return Where("permission_count", CmpGte, n, h.EntityReader())
}

// HasPermissionMatching matches entities with a direct permission whose URI
// pattern matches the given URI text.
func (h *Hierarchy) HasPermissionMatching(uri string) *Specification[*Entity] {
	return Where("permission.uris", CmpLike, uri, h.EntityReader())
}
