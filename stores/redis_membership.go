package stores

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisMembershipStore mirrors entity adjacency in Redis sets, one set per
// side of each edge (keys: guard:parents:{id}, guard:children:{id}). It is
// a shared-cache companion to the in-memory hierarchy, not a replacement.
type RedisMembershipStore struct {
	client         *redis.Client
	parentKeyFmt   string
	childrenKeyFmt string
}

func NewRedisMembershipStore(client *redis.Client) *RedisMembershipStore {
	return &RedisMembershipStore{
		client:         client,
		parentKeyFmt:   "guard:parents:%d",
		childrenKeyFmt: "guard:children:%d",
	}
}

func (r *RedisMembershipStore) parentKey(id int64) string {
	return fmt.Sprintf(r.parentKeyFmt, id)
}

func (r *RedisMembershipStore) childrenKey(id int64) string {
	return fmt.Sprintf(r.childrenKeyFmt, id)
}

// AddEdge records the parent->child edge on both sets.
func (r *RedisMembershipStore) AddEdge(ctx context.Context, parent, child int64) error {
	if err := r.client.SAdd(ctx, r.childrenKey(parent), child).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.parentKey(child), parent).Err()
}

// RemoveEdge removes the edge from both sets.
func (r *RedisMembershipStore) RemoveEdge(ctx context.Context, parent, child int64) error {
	if err := r.client.SRem(ctx, r.childrenKey(parent), child).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, r.parentKey(child), parent).Err()
}

// Parents lists the recorded parent IDs of an entity.
func (r *RedisMembershipStore) Parents(ctx context.Context, id int64) ([]int64, error) {
	return r.members(ctx, r.parentKey(id))
}

// Children lists the recorded child IDs of an entity.
func (r *RedisMembershipStore) Children(ctx context.Context, id int64) ([]int64, error) {
	return r.members(ctx, r.childrenKey(id))
}

func (r *RedisMembershipStore) members(ctx context.Context, key string) ([]int64, error) {
	raw, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed member %q in %s: %w", s, key, err)
		}
		out = append(out, id)
	}
	return out, nil
}
