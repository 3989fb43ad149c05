package guard

import (
	"sort"
	"sync"

	"github.com/oarkflow/guard/utils"
)

// Kind discriminates the entity specializations. The set is closed: switches
// over Kind should cover every constant.
type Kind uint8

const (
	KindUser Kind = iota + 1
	KindGroup
	KindRole
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindGroup:
		return "group"
	case KindRole:
		return "role"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind label back to its Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "user":
		return KindUser, true
	case "group":
		return KindGroup, true
	case "role":
		return KindRole, true
	default:
		return 0, false
	}
}

// Entity is one node of the hierarchy. Relatives are referenced by ID, never
// owned: the adjacency lists are maintained by the Hierarchy so that both
// sides of an edge change together. All mutation goes through the Hierarchy.
type Entity struct {
	ID   int64
	Kind Kind
	Name string

	parents     []int64
	children    []int64
	permissions []Permission
}

// Parents returns a copy of the incoming edge list. The accessors below do
// not take the hierarchy lock; see the Hierarchy doc for the race window.
func (e *Entity) Parents() []int64 { return append([]int64(nil), e.parents...) }

// Children returns a copy of the outgoing edge list.
func (e *Entity) Children() []int64 { return append([]int64(nil), e.children...) }

// Permissions returns a copy of the directly attached permissions.
func (e *Entity) Permissions() []Permission { return append([]Permission(nil), e.permissions...) }

// Limits bounds the fan-out of a single entity. Zero means unlimited.
type Limits struct {
	MaxChildren    int `json:"max_children" yaml:"max_children"`
	MaxPermissions int `json:"max_permissions" yaml:"max_permissions"`
}

// Hierarchy is the arena holding every entity, indexed by ID. It enforces the
// structural invariants: no self-edges, no cycles, and bidirectional
// parent/child symmetry. Mutations are serialized behind a single write lock
// and Hierarchy reads take the read lock. Entity accessors read the node
// directly without that lock, so a caller racing them against a mutation may
// observe one side of an edge before the other.
type Hierarchy struct {
	mu       sync.RWMutex
	entities map[int64]*Entity
	nextID   int64
	limits   Limits
}

type HierarchyOption func(*Hierarchy)

// WithLimits installs relationship-count limits enforced at the mutation
// boundary.
func WithLimits(l Limits) HierarchyOption {
	return func(h *Hierarchy) { h.limits = l }
}

func NewHierarchy(opts ...HierarchyOption) *Hierarchy {
	h := &Hierarchy{entities: make(map[int64]*Entity), nextID: 1}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewUser creates and registers a user entity.
func (h *Hierarchy) NewUser(name string) *Entity { return h.newEntity(KindUser, name) }

// NewGroup creates and registers a group entity.
func (h *Hierarchy) NewGroup(name string) *Entity { return h.newEntity(KindGroup, name) }

// NewRole creates and registers a role entity.
func (h *Hierarchy) NewRole(name string) *Entity { return h.newEntity(KindRole, name) }

func (h *Hierarchy) newEntity(kind Kind, name string) *Entity {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := &Entity{ID: h.nextID, Kind: kind, Name: name}
	h.nextID++
	h.entities[e.ID] = e
	return e
}

// restoreEntity registers an entity under a caller-supplied ID, used when
// rebuilding from persisted records.
func (h *Hierarchy) restoreEntity(id int64, kind Kind, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id <= 0 {
		return validationf(CodeInvalidValue, "entity id must be positive, got %d", id)
	}
	if _, exists := h.entities[id]; exists {
		return validationf(CodeInvalidValue, "duplicate entity id %d", id)
	}
	h.entities[id] = &Entity{ID: id, Kind: kind, Name: name}
	return nil
}

// setNextID advances the allocator past restored IDs.
func (h *Hierarchy) setNextID(next int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if next > h.nextID {
		h.nextID = next
	}
}

// Entity looks up a node by ID.
func (h *Hierarchy) Entity(id int64) (*Entity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[id]
	return e, ok
}

// Len returns the number of registered entities.
func (h *Hierarchy) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entities)
}

// AddChild inserts the parent→child edge, updating both adjacency lists or
// neither. It rejects self-references, edges out of a user, fan-out beyond
// the configured limit, and any edge that would close a cycle. The cycle
// check runs under the same write lock as the insertion, so it sees the
// state that will hold at the moment the edge lands. Re-adding an existing
// edge is a no-op.
func (h *Hierarchy) AddChild(parentID, childID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addChildLocked(parentID, childID)
}

// AddGroup inserts a group→group edge. Both entities must be groups; the
// edge is cycle-checked like any other.
func (h *Hierarchy) AddGroup(groupID, childGroupID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.entities[groupID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", groupID)
	}
	c, ok := h.entities[childGroupID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", childGroupID)
	}
	if g.Kind != KindGroup || c.Kind != KindGroup {
		return structuralf(CodeKindMismatch, "AddGroup requires two groups, got %s and %s", g.Kind, c.Kind)
	}
	return h.addChildLocked(groupID, childGroupID)
}

func (h *Hierarchy) addChildLocked(parentID, childID int64) error {
	parent, ok := h.entities[parentID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", parentID)
	}
	child, ok := h.entities[childID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", childID)
	}
	if parentID == childID {
		return structuralf(CodeSelfReference, "entity %d cannot contain itself", parentID)
	}
	if parent.Kind == KindUser {
		return structuralf(CodeKindMismatch, "user %d cannot have children", parentID)
	}
	for _, c := range parent.children {
		if c == childID {
			return nil
		}
	}
	if h.limits.MaxChildren > 0 && len(parent.children) >= h.limits.MaxChildren {
		return structuralf(CodeChildLimit, "entity %d already has %d children", parentID, len(parent.children))
	}
	if h.reachableLocked(childID, parentID) {
		return structuralf(CodeCycle, "entity %d is already a descendant chain back to %d", childID, parentID)
	}
	parent.children = append(parent.children, childID)
	child.parents = append(child.parents, parentID)
	return nil
}

// RemoveChild deletes the parent→child edge from both sides. Removing an
// absent edge is a no-op.
func (h *Hierarchy) RemoveChild(parentID, childID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	parent, ok := h.entities[parentID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", parentID)
	}
	child, ok := h.entities[childID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", childID)
	}
	parent.children = removeID(parent.children, childID)
	child.parents = removeID(child.parents, parentID)
	return nil
}

// reachableLocked runs a breadth-first walk over descendants of from looking
// for target.
func (h *Hierarchy) reachableLocked(from, target int64) bool {
	if from == target {
		return true
	}
	seen := map[int64]bool{from: true}
	queue := []int64{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		e, ok := h.entities[id]
		if !ok {
			continue
		}
		for _, c := range e.children {
			if c == target {
				return true
			}
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return false
}

// AddPermission attaches a permission to the entity. The attach is local:
// relatives observe it only through query-time inheritance.
func (h *Hierarchy) AddPermission(entityID int64, p Permission) error {
	if p.Uri == "" {
		return validationf(CodeMissingField, "permission uri is required")
	}
	if err := utils.ValidatePattern(p.Uri); err != nil {
		return validationf(CodeInvalidPattern, "%v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[entityID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", entityID)
	}
	if h.limits.MaxPermissions > 0 && len(e.permissions) >= h.limits.MaxPermissions {
		return structuralf(CodePermissionLimit, "entity %d already has %d permissions", entityID, len(e.permissions))
	}
	e.permissions = append(e.permissions, p)
	return nil
}

// RemovePermission detaches the first permission equal to p.
func (h *Hierarchy) RemovePermission(entityID int64, p Permission) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[entityID]
	if !ok {
		return validationf(CodeEntityNotFound, "entity %d", entityID)
	}
	for i, q := range e.permissions {
		if q == p {
			e.permissions = append(e.permissions[:i], e.permissions[i+1:]...)
			return nil
		}
	}
	return nil
}

// ParentsOf returns the parents of id filtered by kind; kind 0 means any.
func (h *Hierarchy) ParentsOf(id int64, kind Kind) []*Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[id]
	if !ok {
		return nil
	}
	return h.filterLocked(e.parents, kind)
}

// ChildrenOf returns the children of id filtered by kind; kind 0 means any.
func (h *Hierarchy) ChildrenOf(id int64, kind Kind) []*Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[id]
	if !ok {
		return nil
	}
	return h.filterLocked(e.children, kind)
}

// RoleMemberships returns the roles an entity belongs to.
func (h *Hierarchy) RoleMemberships(id int64) []*Entity { return h.ParentsOf(id, KindRole) }

// GroupMemberships returns the groups an entity belongs to.
func (h *Hierarchy) GroupMemberships(id int64) []*Entity { return h.ParentsOf(id, KindGroup) }

// Members returns the users directly contained in a group or role.
func (h *Hierarchy) Members(id int64) []*Entity { return h.ChildrenOf(id, KindUser) }

// Subgroups returns the groups directly contained in a group.
func (h *Hierarchy) Subgroups(id int64) []*Entity { return h.ChildrenOf(id, KindGroup) }

// Roles returns the roles directly contained in a group.
func (h *Hierarchy) Roles(id int64) []*Entity { return h.ChildrenOf(id, KindRole) }

func (h *Hierarchy) filterLocked(ids []int64, kind Kind) []*Entity {
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := h.entities[id]
		if !ok {
			continue
		}
		if kind == 0 || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Ancestors enumerates every entity reachable upward from id, breadth-first,
// excluding id itself.
func (h *Hierarchy) Ancestors(id int64) []*Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.walkLocked(id, func(e *Entity) []int64 { return e.parents })
}

// Descendants enumerates every entity reachable downward from id,
// breadth-first, excluding id itself.
func (h *Hierarchy) Descendants(id int64) []*Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.walkLocked(id, func(e *Entity) []int64 { return e.children })
}

func (h *Hierarchy) walkLocked(id int64, next func(*Entity) []int64) []*Entity {
	if _, ok := h.entities[id]; !ok {
		return nil
	}
	seen := map[int64]bool{id: true}
	queue := []int64{id}
	out := make([]*Entity, 0)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		e, ok := h.entities[cur]
		if !ok {
			continue
		}
		for _, n := range next(e) {
			if seen[n] {
				continue
			}
			seen[n] = true
			if rel, ok := h.entities[n]; ok {
				out = append(out, rel)
			}
			queue = append(queue, n)
		}
	}
	return out
}

// EffectivePermissions unions the entity's direct permissions with those of
// every ancestor. Direct and inherited permissions carry equal weight.
func (h *Hierarchy) EffectivePermissions(id int64) []Permission {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[id]
	if !ok {
		return nil
	}
	out := append([]Permission(nil), e.permissions...)
	for _, a := range h.walkLocked(id, func(e *Entity) []int64 { return e.parents }) {
		out = append(out, a.permissions...)
	}
	return out
}

// HasEffectiveAccess reports whether the entity, or any of its ancestors,
// holds an effective permission granting verb on uri. Direct permissions are
// consulted first; the ancestor set is an unordered union.
func (h *Hierarchy) HasEffectiveAccess(id int64, uri string, verb Verb) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[id]
	if !ok {
		return false
	}
	if anyAllows(e.permissions, uri, verb) {
		return true
	}
	for _, a := range h.walkLocked(id, func(e *Entity) []int64 { return e.parents }) {
		if anyAllows(a.permissions, uri, verb) {
			return true
		}
	}
	return false
}

// SortedIDs returns every entity ID in ascending order. Query results use it
// for deterministic ordering.
func (h *Hierarchy) SortedIDs() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sortedIDsLocked()
}

func (h *Hierarchy) sortedIDsLocked() []int64 {
	ids := make([]int64, 0, len(h.entities))
	for id := range h.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
