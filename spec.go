package guard

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/oarkflow/guard/utils"
)

// A specification is carried as a small operator tree so the same predicate
// can be interpreted in memory and lowered to a store's query language.
// Both interpretations walk the identical tree, so they cannot drift apart.

// NodeOp identifies a specification tree node.
type NodeOp uint8

const (
	OpTrue NodeOp = iota + 1
	OpFalse
	OpAnd
	OpOr
	OpNot
	OpCmp
)

// CmpOp is the comparison carried by an OpCmp leaf.
type CmpOp string

const (
	CmpEq   CmpOp = "=="
	CmpNeq  CmpOp = "!="
	CmpGte  CmpOp = ">="
	CmpLte  CmpOp = "<="
	CmpLike CmpOp = "like"
	CmpIn   CmpOp = "in"
)

// Node is one specification tree node. OpCmp leaves use Field, Cmp and
// Value; OpAnd/OpOr use Left and Right; OpNot uses Left only.
type Node struct {
	Op    NodeOp
	Left  *Node
	Right *Node
	Field string
	Cmp   CmpOp
	Value any
}

func TrueNode() *Node  { return &Node{Op: OpTrue} }
func FalseNode() *Node { return &Node{Op: OpFalse} }

func AndNode(l, r *Node) *Node { return &Node{Op: OpAnd, Left: l, Right: r} }
func OrNode(l, r *Node) *Node  { return &Node{Op: OpOr, Left: l, Right: r} }
func NotNode(n *Node) *Node    { return &Node{Op: OpNot, Left: n} }

func CmpNode(field string, cmp CmpOp, value any) *Node {
	return &Node{Op: OpCmp, Field: field, Cmp: cmp, Value: value}
}

// Match interprets the tree against a field reader.
func (n *Node) Match(read func(field string) any) bool {
	switch n.Op {
	case OpTrue:
		return true
	case OpFalse:
		return false
	case OpAnd:
		return n.Left.Match(read) && n.Right.Match(read)
	case OpOr:
		return n.Left.Match(read) || n.Right.Match(read)
	case OpNot:
		return !n.Left.Match(read)
	case OpCmp:
		return cmpValues(read(n.Field), n.Cmp, n.Value)
	default:
		return false
	}
}

// String renders the tree in infix form, mostly for traces and tests.
func (n *Node) String() string {
	switch n.Op {
	case OpTrue:
		return "true"
	case OpFalse:
		return "false"
	case OpAnd:
		return "(" + n.Left.String() + " AND " + n.Right.String() + ")"
	case OpOr:
		return "(" + n.Left.String() + " OR " + n.Right.String() + ")"
	case OpNot:
		return "NOT " + n.Left.String()
	case OpCmp:
		return fmt.Sprintf("%s %s %v", n.Field, n.Cmp, n.Value)
	default:
		return "?"
	}
}

// cmpValues applies a comparison between a field value and the literal
// carried by the tree. Slices of strings treat == as containment.
func cmpValues(actual any, cmp CmpOp, want any) bool {
	if list, ok := actual.([]string); ok {
		ws := stringify(want)
		switch cmp {
		case CmpEq, CmpIn:
			for _, s := range list {
				if s == ws {
					return true
				}
			}
			return false
		case CmpNeq:
			for _, s := range list {
				if s == ws {
					return false
				}
			}
			return true
		case CmpLike:
			// List elements are the patterns; the literal is the probe.
			for _, s := range list {
				if likeMatch(s, ws) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	as := stringify(actual)
	switch cmp {
	case CmpEq:
		return compareScalar(as, stringify(want)) == 0
	case CmpNeq:
		return compareScalar(as, stringify(want)) != 0
	case CmpGte:
		return compareScalar(as, stringify(want)) >= 0
	case CmpLte:
		return compareScalar(as, stringify(want)) <= 0
	case CmpLike:
		return likeMatch(stringify(want), as)
	case CmpIn:
		switch list := want.(type) {
		case []string:
			for _, s := range list {
				if s == as {
					return true
				}
			}
		case []any:
			for _, v := range list {
				if stringify(v) == as {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// compareScalar compares numerically when both operands parse as numbers,
// lexically otherwise.
func compareScalar(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// likeMatch implements the pattern dialect of permission URIs: "*" spans
// anything, "{name}" spans one path segment.
func likeMatch(pattern, value string) bool {
	if !strings.ContainsAny(pattern, "*{") {
		return strings.EqualFold(pattern, value)
	}
	return utils.MatchURI(pattern, value)
}

// stringify renders a scalar for comparison. Floats that carry an integer
// value print without a fraction so 5 and 5.0 compare equal as text.
func stringify(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case uint64:
		return strconv.FormatUint(vv, 10)
	case float64:
		if vv == float64(int64(vv)) {
			return strconv.FormatInt(int64(vv), 10)
		}
		return strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// FieldReader resolves a named field of T to a comparable value.
type FieldReader[T any] func(item T, field string) any

// Specification is a reusable predicate over T. The tree is compiled to a
// closure once; IsSatisfiedBy after that is a plain function call.
type Specification[T any] struct {
	node *Node
	read FieldReader[T]

	once     sync.Once
	compiled func(T) bool
}

// NewSpecification pairs a tree with a field reader for T.
func NewSpecification[T any](node *Node, read FieldReader[T]) *Specification[T] {
	return &Specification[T]{node: node, read: read}
}

// TrueSpecification is satisfied by everything.
func TrueSpecification[T any](read FieldReader[T]) *Specification[T] {
	return NewSpecification(TrueNode(), read)
}

// FalseSpecification is satisfied by nothing.
func FalseSpecification[T any](read FieldReader[T]) *Specification[T] {
	return NewSpecification(FalseNode(), read)
}

// Where builds a single-comparison specification.
func Where[T any](field string, cmp CmpOp, value any, read FieldReader[T]) *Specification[T] {
	return NewSpecification(CmpNode(field, cmp, value), read)
}

// Node returns the underlying tree, for lowering to a store query.
func (s *Specification[T]) Node() *Node { return s.node }

// IsSatisfiedBy tests one item.
func (s *Specification[T]) IsSatisfiedBy(item T) bool {
	s.once.Do(func() {
		s.compiled = compileNode(s.node, s.read)
	})
	return s.compiled(item)
}

// And conjoins two specifications sharing a reader.
func (s *Specification[T]) And(other *Specification[T]) *Specification[T] {
	return NewSpecification(AndNode(s.node, other.node), s.read)
}

// Or disjoins two specifications sharing a reader.
func (s *Specification[T]) Or(other *Specification[T]) *Specification[T] {
	return NewSpecification(OrNode(s.node, other.node), s.read)
}

// Not negates a specification.
func (s *Specification[T]) Not() *Specification[T] {
	return NewSpecification(NotNode(s.node), s.read)
}

// String renders the underlying tree.
func (s *Specification[T]) String() string { return s.node.String() }

// compileNode lowers a tree to a closure over T ahead of evaluation, so
// repeated IsSatisfiedBy calls pay no tree-walk cost.
func compileNode[T any](n *Node, read FieldReader[T]) func(T) bool {
	switch n.Op {
	case OpTrue:
		return func(T) bool { return true }
	case OpFalse:
		return func(T) bool { return false }
	case OpAnd:
		l := compileNode(n.Left, read)
		r := compileNode(n.Right, read)
		return func(item T) bool { return l(item) && r(item) }
	case OpOr:
		l := compileNode(n.Left, read)
		r := compileNode(n.Right, read)
		return func(item T) bool { return l(item) || r(item) }
	case OpNot:
		inner := compileNode(n.Left, read)
		return func(item T) bool { return !inner(item) }
	case OpCmp:
		field, cmp, want := n.Field, n.Cmp, n.Value
		return func(item T) bool { return cmpValues(read(item, field), cmp, want) }
	default:
		return func(T) bool { return false }
	}
}

// Cast rewrites a specification to another subject type, keeping the same
// tree. The new reader decides how U exposes the tree's fields.
func Cast[U, T any](s *Specification[T], read FieldReader[U]) *Specification[U] {
	return NewSpecification(s.node, read)
}

// SpecificationBuilder accumulates comparisons into one conjunction.
type SpecificationBuilder[T any] struct {
	node *Node
	read FieldReader[T]
}

func NewSpecificationBuilder[T any](read FieldReader[T]) *SpecificationBuilder[T] {
	return &SpecificationBuilder[T]{read: read}
}

func (b *SpecificationBuilder[T]) Where(field string, cmp CmpOp, value any) *SpecificationBuilder[T] {
	leaf := CmpNode(field, cmp, value)
	if b.node == nil {
		b.node = leaf
	} else {
		b.node = AndNode(b.node, leaf)
	}
	return b
}

func (b *SpecificationBuilder[T]) Build() *Specification[T] {
	if b.node == nil {
		return TrueSpecification(b.read)
	}
	return NewSpecification(b.node, b.read)
}
