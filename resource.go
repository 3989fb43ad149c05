package guard

import (
	"github.com/oarkflow/guard/utils"
)

// Resource is a node of the resource hierarchy. Unlike entities, resources
// form a strict tree: each node has at most one parent.
type Resource struct {
	ID           int64
	Uri          string
	ResourceType string
	Version      string
	Permissions  []Permission

	parent   *Resource
	children []*Resource
}

func NewResource(id int64, uri, resourceType string) *Resource {
	return &Resource{ID: id, Uri: uri, ResourceType: resourceType}
}

// ParentResource returns the single parent, or nil at the root.
func (r *Resource) ParentResource() *Resource { return r.parent }

// ChildResources returns a copy of the direct children.
func (r *Resource) ChildResources() []*Resource { return append([]*Resource(nil), r.children...) }

// AddChild attaches child under r. A child already placed elsewhere, a
// self-reference, or an edge that would fold the tree back on itself is
// rejected and the tree left unchanged.
func (r *Resource) AddChild(child *Resource) error {
	if child == nil {
		return validationf(CodeMissingField, "child resource is required")
	}
	if child == r {
		return structuralf(CodeSelfReference, "resource %q cannot contain itself", r.Uri)
	}
	if child.parent != nil {
		return structuralf(CodeAlreadyParented, "resource %q already has a parent", child.Uri)
	}
	for a := r; a != nil; a = a.parent {
		if a == child {
			return structuralf(CodeCycle, "resource %q is an ancestor of %q", child.Uri, r.Uri)
		}
	}
	child.parent = r
	r.children = append(r.children, child)
	return nil
}

// RemoveChild detaches child from r. Detaching a non-child is a no-op.
func (r *Resource) RemoveChild(child *Resource) {
	for i, c := range r.children {
		if c == child {
			r.children = append(r.children[:i], r.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Ancestors returns the chain of parents from the immediate parent to the
// root.
func (r *Resource) Ancestors() []*Resource {
	out := make([]*Resource, 0)
	for a := r.parent; a != nil; a = a.parent {
		out = append(out, a)
	}
	return out
}

// Descendants enumerates the full subtree below r, depth-first.
func (r *Resource) Descendants() []*Resource {
	out := make([]*Resource, 0)
	for _, c := range r.children {
		out = append(out, c)
		out = append(out, c.Descendants()...)
	}
	return out
}

// MatchesUri tests the request URI against this resource's pattern.
func (r *Resource) MatchesUri(requestUri string) bool {
	return utils.MatchURI(r.Uri, requestUri)
}

// ExtractParameters binds the pattern's {name} segments against the request
// URI, in declaration order.
func (r *Resource) ExtractParameters(requestUri string) map[string]string {
	return utils.ExtractParams(r.Uri, requestUri)
}

// AddPermission attaches a permission to the resource.
func (r *Resource) AddPermission(p Permission) error {
	if p.Uri == "" {
		return validationf(CodeMissingField, "permission uri is required")
	}
	if err := utils.ValidatePattern(p.Uri); err != nil {
		return validationf(CodeInvalidPattern, "%v", err)
	}
	r.Permissions = append(r.Permissions, p)
	return nil
}

// EffectivePermissions unions the resource's own permissions with those of
// every ancestor.
func (r *Resource) EffectivePermissions() []Permission {
	out := append([]Permission(nil), r.Permissions...)
	for _, a := range r.Ancestors() {
		out = append(out, a.Permissions...)
	}
	return out
}
