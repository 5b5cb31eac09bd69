package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/core/observability"
)

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

const regionsKey = "regioncache:regions"

type Store struct {
	cli     *Client
	timeout time.Duration
}

func New(cli *Client, opTimeout time.Duration) *Store {
	return &Store{cli: cli, timeout: opTimeout}
}

// returns derived context with timeout if set
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Put(ctx context.Context, region model.CachedRegion) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(region)
	if err != nil {
		return fmt.Errorf("encode region %q: %w", region.ID, err)
	}

	start := time.Now()
	err = s.cli.rdb.HSet(ctx, regionsKey, region.ID, payload).Err()
	observability.ObserveStoreOp("hset", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis HSET %q: %w", region.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (model.CachedRegion, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := s.cli.rdb.HGet(ctx, regionsKey, id).Bytes()
	if err != nil {
		if isRedisNil(err) {
			observability.ObserveStoreOp("hget", nil, time.Since(start).Seconds())
			return model.CachedRegion{}, false, nil
		}
		observability.ObserveStoreOp("hget", err, time.Since(start).Seconds())
		return model.CachedRegion{}, false, fmt.Errorf("redis HGET %q: %w", id, err)
	}
	observability.ObserveStoreOp("hget", nil, time.Since(start).Seconds())

	var r model.CachedRegion
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.CachedRegion{}, false, fmt.Errorf("decode region %q: %w", id, err)
	}
	return r, true, nil
}

func (s *Store) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := s.cli.rdb.HDel(ctx, regionsKey, ids...).Err()
	observability.ObserveStoreOp("hdel", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis HDEL %d fields: %w", len(ids), err)
	}
	return nil
}

// RemoveIf scans the whole hash and deletes matches in one HDEL. The scan
// and the delete are not one transaction; a region inserted in between
// survives, which is the documented eventual-consistency contract.
func (s *Store) RemoveIf(ctx context.Context, pred func(model.CachedRegion) bool) (int, error) {
	regions, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	var victims []string
	for _, r := range regions {
		if pred(r) {
			victims = append(victims, r.ID)
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}
	if err := s.Remove(ctx, victims...); err != nil {
		return 0, err
	}
	return len(victims), nil
}

func (s *Store) Snapshot(ctx context.Context) ([]model.CachedRegion, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := s.cli.rdb.HGetAll(ctx, regionsKey).Result()
	observability.ObserveStoreOp("hgetall", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL: %w", err)
	}

	out := make([]model.CachedRegion, 0, len(raw))
	for id, v := range raw {
		var r model.CachedRegion
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode region %q: %w", id, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := s.cli.rdb.HLen(ctx, regionsKey).Result()
	observability.ObserveStoreOp("hlen", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis HLEN: %w", err)
	}
	return int(n), nil
}

func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := s.cli.rdb.Del(ctx, regionsKey).Err()
	observability.ObserveStoreOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}
