package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/guard"
)

// SQLAuthorizationStore persists authorization definitions as JSON bodies
// with the identity columns broken out for lookup.
type SQLAuthorizationStore struct {
	db *squealx.DB
}

func NewSQLAuthorizationStore(db *squealx.DB) *SQLAuthorizationStore {
	return &SQLAuthorizationStore{db: db}
}

func (s *SQLAuthorizationStore) SaveAuthorization(ctx context.Context, a *guard.Authorization) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = time.Now()
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	q := `DELETE FROM authorizations WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": a.ID}); err != nil {
		return err
	}
	q = `INSERT INTO authorizations(id, name, body_json, version, created_at, updated_at) VALUES(:id, :name, :body_json, :version, :created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"body_json":  string(body),
		"version":    a.Version,
		"created_at": a.CreatedAt,
		"updated_at": a.UpdatedAt,
	})
	return err
}

func (s *SQLAuthorizationStore) LoadAuthorization(ctx context.Context, id int64) (*guard.Authorization, error) {
	q := `SELECT body_json, created_at, updated_at FROM authorizations WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("authorization not found: %d", id)
	}
	return scanAuthorization(r)
}

func (s *SQLAuthorizationStore) DeleteAuthorization(ctx context.Context, id int64) error {
	q := `DELETE FROM authorizations WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLAuthorizationStore) ListAuthorizations(ctx context.Context) ([]*guard.Authorization, error) {
	q := `SELECT body_json, created_at, updated_at FROM authorizations ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*guard.Authorization, 0)
	for r.Next() {
		a, err := scanAuthorization(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthorization(r rowScanner) (*guard.Authorization, error) {
	var body string
	var createdRaw, updatedRaw interface{}
	if err := r.Scan(&body, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var a guard.Authorization
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, err
	}
	if t, ok := timeFromRaw(createdRaw); ok {
		a.CreatedAt = t
	}
	if t, ok := timeFromRaw(updatedRaw); ok {
		a.UpdatedAt = t
	}
	return &a, nil
}

// timeFromRaw tolerates the driver handing timestamps back as time.Time,
// text or bytes.
func timeFromRaw(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := parseFlexibleTime(t); err == nil {
			return parsed, true
		}
	case []byte:
		if parsed, err := parseFlexibleTime(string(t)); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
