package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/guard"
)

// SQLEntityStore persists entities in SQL (squealx). Specification queries
// are lowered to WHERE clauses instead of scanning, so the database answers
// the same trees the in-memory path interprets.
type SQLEntityStore struct {
	db *squealx.DB
}

func NewSQLEntityStore(db *squealx.DB) *SQLEntityStore {
	return &SQLEntityStore{db: db}
}

func (s *SQLEntityStore) SaveEntity(ctx context.Context, rec *guard.EntityRecord) error {
	q := `DELETE FROM entities WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": rec.ID}); err != nil {
		return err
	}
	q = `INSERT INTO entities(id, kind, name) VALUES(:id, :kind, :name)`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":   rec.ID,
		"kind": rec.Kind,
		"name": rec.Name,
	}); err != nil {
		return err
	}
	q = `DELETE FROM edges WHERE parent_id = :id OR child_id = :id`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": rec.ID}); err != nil {
		return err
	}
	for _, pid := range rec.Parents {
		if err := s.insertEdge(ctx, pid, rec.ID); err != nil {
			return err
		}
	}
	for _, cid := range rec.Children {
		if err := s.insertEdge(ctx, rec.ID, cid); err != nil {
			return err
		}
	}
	q = `DELETE FROM permissions WHERE entity_id = :id`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": rec.ID}); err != nil {
		return err
	}
	for _, p := range rec.Permissions {
		q = `INSERT INTO permissions(entity_id, uri, uri_like, verb, granted, denied, scheme) VALUES(:entity_id, :uri, :uri_like, :verb, :granted, :denied, :scheme)`
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{
			"entity_id": rec.ID,
			"uri":       p.Uri,
			"uri_like":  uriLikePattern(p.Uri),
			"verb":      string(p.Verb),
			"granted":   boolToInt(p.Grant),
			"denied":    boolToInt(p.Deny),
			"scheme":    p.Scheme,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLEntityStore) insertEdge(ctx context.Context, parent, child int64) error {
	q := `INSERT OR IGNORE INTO edges(parent_id, child_id) VALUES(:parent_id, :child_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"parent_id": parent, "child_id": child})
	return err
}

func (s *SQLEntityStore) LoadEntity(ctx context.Context, id int64) (*guard.EntityRecord, error) {
	q := `SELECT id, kind, name FROM entities WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if !r.Next() {
		r.Close()
		return nil, fmt.Errorf("entity not found: %d", id)
	}
	rec := &guard.EntityRecord{}
	if err := r.Scan(&rec.ID, &rec.Kind, &rec.Name); err != nil {
		r.Close()
		return nil, err
	}
	// release the connection before loadRelations queries on the same pool
	r.Close()
	if err := s.loadRelations(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLEntityStore) loadRelations(ctx context.Context, rec *guard.EntityRecord) error {
	q := `SELECT parent_id FROM edges WHERE child_id = :id ORDER BY parent_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": rec.ID})
	if err != nil {
		return err
	}
	for r.Next() {
		var pid int64
		if err := r.Scan(&pid); err != nil {
			r.Close()
			return err
		}
		rec.Parents = append(rec.Parents, pid)
	}
	r.Close()

	q = `SELECT child_id FROM edges WHERE parent_id = :id ORDER BY child_id`
	r, err = s.db.NamedQueryContext(ctx, q, map[string]any{"id": rec.ID})
	if err != nil {
		return err
	}
	for r.Next() {
		var cid int64
		if err := r.Scan(&cid); err != nil {
			r.Close()
			return err
		}
		rec.Children = append(rec.Children, cid)
	}
	r.Close()

	q = `SELECT uri, verb, granted, denied, scheme FROM permissions WHERE entity_id = :id`
	r, err = s.db.NamedQueryContext(ctx, q, map[string]any{"id": rec.ID})
	if err != nil {
		return err
	}
	defer r.Close()
	for r.Next() {
		var uri, verb, scheme string
		var granted, denied int
		if err := r.Scan(&uri, &verb, &granted, &denied, &scheme); err != nil {
			return err
		}
		rec.Permissions = append(rec.Permissions, guard.Permission{
			Uri:    uri,
			Verb:   guard.Verb(verb),
			Grant:  granted != 0,
			Deny:   denied != 0,
			Scheme: scheme,
		})
	}
	return nil
}

func (s *SQLEntityStore) DeleteEntity(ctx context.Context, id int64) error {
	for _, q := range []string{
		`DELETE FROM permissions WHERE entity_id = :id`,
		`DELETE FROM edges WHERE parent_id = :id OR child_id = :id`,
		`DELETE FROM entities WHERE id = :id`,
	} {
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLEntityStore) ListEntities(ctx context.Context) ([]*guard.EntityRecord, error) {
	return s.queryWhere(ctx, "1=1", map[string]any{})
}

func (s *SQLEntityStore) QueryEntities(ctx context.Context, node *guard.Node) ([]*guard.EntityRecord, error) {
	where, params, err := lowerNode(node)
	if err != nil {
		return nil, err
	}
	return s.queryWhere(ctx, where, params)
}

func (s *SQLEntityStore) CountEntities(ctx context.Context, node *guard.Node) (int, error) {
	where, params, err := lowerNode(node)
	if err != nil {
		return 0, err
	}
	q := `SELECT COUNT(*) FROM entities e WHERE ` + where
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	if !r.Next() {
		return 0, nil
	}
	var n int
	if err := r.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLEntityStore) queryWhere(ctx context.Context, where string, params map[string]any) ([]*guard.EntityRecord, error) {
	q := `SELECT e.id, e.kind, e.name FROM entities e WHERE ` + where + ` ORDER BY e.id`
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	out := make([]*guard.EntityRecord, 0)
	for r.Next() {
		rec := &guard.EntityRecord{}
		if err := r.Scan(&rec.ID, &rec.Kind, &rec.Name); err != nil {
			r.Close()
			return nil, err
		}
		out = append(out, rec)
	}
	r.Close()
	for _, rec := range out {
		if err := s.loadRelations(ctx, rec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// lowerNode translates a specification tree to a WHERE clause over the
// entities table. Field names line up with the in-memory reader, so both
// paths answer a given tree identically.
func lowerNode(node *guard.Node) (string, map[string]any, error) {
	params := make(map[string]any)
	counter := 0
	clause, err := lower(node, params, &counter)
	return clause, params, err
}

func lower(n *guard.Node, params map[string]any, counter *int) (string, error) {
	bind := func(v any) string {
		name := fmt.Sprintf("p%d", *counter)
		*counter++
		params[name] = v
		return ":" + name
	}
	switch n.Op {
	case guard.OpTrue:
		return "1=1", nil
	case guard.OpFalse:
		return "1=0", nil
	case guard.OpAnd:
		l, err := lower(n.Left, params, counter)
		if err != nil {
			return "", err
		}
		r, err := lower(n.Right, params, counter)
		if err != nil {
			return "", err
		}
		return "(" + l + " AND " + r + ")", nil
	case guard.OpOr:
		l, err := lower(n.Left, params, counter)
		if err != nil {
			return "", err
		}
		r, err := lower(n.Right, params, counter)
		if err != nil {
			return "", err
		}
		return "(" + l + " OR " + r + ")", nil
	case guard.OpNot:
		inner, err := lower(n.Left, params, counter)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case guard.OpCmp:
		return lowerCmp(n, bind)
	default:
		return "", fmt.Errorf("cannot lower node op %d", n.Op)
	}
}

func lowerCmp(n *guard.Node, bind func(any) string) (string, error) {
	column := ""
	switch n.Field {
	case "id":
		column = "e.id"
	case "name":
		column = "e.name"
	case "kind", "type":
		column = "e.kind"
	case "permission_count":
		column = "(SELECT COUNT(*) FROM permissions p WHERE p.entity_id = e.id)"
	case "children_count":
		column = "(SELECT COUNT(*) FROM edges ed WHERE ed.parent_id = e.id)"
	case "group":
		sub := `SELECT 1 FROM edges ed JOIN entities g ON g.id = ed.parent_id WHERE ed.child_id = e.id AND g.kind = 'group' AND g.name = ` + bind(n.Value)
		switch n.Cmp {
		case guard.CmpEq, guard.CmpIn:
			return "EXISTS (" + sub + ")", nil
		case guard.CmpNeq:
			return "NOT EXISTS (" + sub + ")", nil
		default:
			return "", fmt.Errorf("unsupported comparison %q for field group", n.Cmp)
		}
	case "permission.uris":
		switch n.Cmp {
		case guard.CmpEq, guard.CmpIn:
			return "EXISTS (SELECT 1 FROM permissions p WHERE p.entity_id = e.id AND p.uri = " + bind(n.Value) + ")", nil
		case guard.CmpNeq:
			return "NOT EXISTS (SELECT 1 FROM permissions p WHERE p.entity_id = e.id AND p.uri = " + bind(n.Value) + ")", nil
		case guard.CmpLike:
			// Stored URIs are the patterns; the literal value is matched
			// against them via the uri_like form computed at save time. A
			// '{name}' segment lowers to '_%', which alone would let the
			// match spill across '/', so non-wildcard patterns also require
			// the literal to carry exactly the pattern's slash count. Any
			// extra slash would have to be consumed by a wildcard, so equal
			// counts pin every '{name}' to a single segment.
			v := bind(n.Value)
			return "EXISTS (SELECT 1 FROM permissions p WHERE p.entity_id = e.id AND " + v + " LIKE p.uri_like" +
				" AND (instr(p.uri, '*') > 0 OR length(" + v + ") - length(replace(" + v + ", '/', '')) = length(p.uri) - length(replace(p.uri, '/', ''))))", nil
		default:
			return "", fmt.Errorf("unsupported comparison %q for field permission.uris", n.Cmp)
		}
	default:
		return "", fmt.Errorf("cannot lower field %q", n.Field)
	}
	switch n.Cmp {
	case guard.CmpEq:
		return column + " = " + bind(n.Value), nil
	case guard.CmpNeq:
		return column + " <> " + bind(n.Value), nil
	case guard.CmpGte:
		return column + " >= " + bind(n.Value), nil
	case guard.CmpLte:
		return column + " <= " + bind(n.Value), nil
	case guard.CmpLike:
		return column + " LIKE " + bind(likePattern(n.Value)), nil
	case guard.CmpIn:
		list, ok := n.Value.([]string)
		if !ok {
			return "", fmt.Errorf("in comparison needs a []string value")
		}
		holes := make([]string, 0, len(list))
		for _, v := range list {
			holes = append(holes, bind(v))
		}
		return column + " IN (" + strings.Join(holes, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported comparison %q", n.Cmp)
	}
}

func likePattern(v any) string {
	return strings.ReplaceAll(fmt.Sprint(v), "*", "%")
}
