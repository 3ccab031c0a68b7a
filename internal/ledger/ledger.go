// Package ledger exposes the authoritative store as a handful of addressable
// collections over redis: key->record maps, append-only logs and scalar
// registers. Records are JSON-encoded; the encoding of individual fields is
// not part of any contract.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(name string) string {
	return fmt.Sprintf("%s:%s", s.prefix, name)
}

// Map is a key->record collection backed by a redis hash.
type Map[T any] struct {
	s    *Store
	name string
}

func NewMap[T any](s *Store, name string) *Map[T] {
	return &Map[T]{s: s, name: name}
}

func (m *Map[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var v T

	b, err := m.s.rdb.HGet(ctx, m.s.key(m.name), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("ledger: get %s[%s]: %w", m.name, key, err)
	}

	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("ledger: decode %s[%s]: %w", m.name, key, err)
	}

	return v, true, nil
}

func (m *Map[T]) Set(ctx context.Context, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode %s[%s]: %w", m.name, key, err)
	}

	if err := m.s.rdb.HSet(ctx, m.s.key(m.name), key, b).Err(); err != nil {
		return fmt.Errorf("ledger: set %s[%s]: %w", m.name, key, err)
	}

	return nil
}

func (m *Map[T]) Remove(ctx context.Context, key string) error {
	if err := m.s.rdb.HDel(ctx, m.s.key(m.name), key).Err(); err != nil {
		return fmt.Errorf("ledger: remove %s[%s]: %w", m.name, key, err)
	}

	return nil
}

func (m *Map[T]) Len(ctx context.Context) (int64, error) {
	n, err := m.s.rdb.HLen(ctx, m.s.key(m.name)).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: len %s: %w", m.name, err)
	}

	return n, nil
}

// All returns every key->record pair. Intended for the read-only projection;
// mutations always address a single key.
func (m *Map[T]) All(ctx context.Context) (map[string]T, error) {
	raw, err := m.s.rdb.HGetAll(ctx, m.s.key(m.name)).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: scan %s: %w", m.name, err)
	}

	out := make(map[string]T, len(raw))
	for k, b := range raw {
		var v T
		if err := json.Unmarshal([]byte(b), &v); err != nil {
			return nil, fmt.Errorf("ledger: decode %s[%s]: %w", m.name, k, err)
		}
		out[k] = v
	}

	return out, nil
}

// Log is an append-only collection backed by a redis list. Entries are never
// removed; housekeeping may rewrite an entry in place (processed flags).
type Log[T any] struct {
	s    *Store
	name string
}

func NewLog[T any](s *Store, name string) *Log[T] {
	return &Log[T]{s: s, name: name}
}

func (l *Log[T]) Append(ctx context.Context, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode %s: %w", l.name, err)
	}

	if err := l.s.rdb.RPush(ctx, l.s.key(l.name), b).Err(); err != nil {
		return fmt.Errorf("ledger: append %s: %w", l.name, err)
	}

	return nil
}

func (l *Log[T]) Count(ctx context.Context) (int64, error) {
	n, err := l.s.rdb.LLen(ctx, l.s.key(l.name)).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: count %s: %w", l.name, err)
	}

	return n, nil
}

func (l *Log[T]) Get(ctx context.Context, i int64) (T, bool, error) {
	var v T

	b, err := l.s.rdb.LIndex(ctx, l.s.key(l.name), i).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("ledger: get %s[%d]: %w", l.name, i, err)
	}

	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("ledger: decode %s[%d]: %w", l.name, i, err)
	}

	return v, true, nil
}

// Range returns entries [start, stop] with redis list semantics; stop = -1
// reads through the end.
func (l *Log[T]) Range(ctx context.Context, start, stop int64) ([]T, error) {
	raw, err := l.s.rdb.LRange(ctx, l.s.key(l.name), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: range %s: %w", l.name, err)
	}

	out := make([]T, 0, len(raw))
	for i, b := range raw {
		var v T
		if err := json.Unmarshal([]byte(b), &v); err != nil {
			return nil, fmt.Errorf("ledger: decode %s[%d]: %w", l.name, i, err)
		}
		out = append(out, v)
	}

	return out, nil
}

func (l *Log[T]) SetAt(ctx context.Context, i int64, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode %s[%d]: %w", l.name, i, err)
	}

	if err := l.s.rdb.LSet(ctx, l.s.key(l.name), i, b).Err(); err != nil {
		return fmt.Errorf("ledger: set %s[%d]: %w", l.name, i, err)
	}

	return nil
}

// Replace atomically rewrites the whole log. Used only by notification
// housekeeping, which flips processed flags and trims old entries.
func (l *Log[T]) Replace(ctx context.Context, vs []T) error {
	encoded := make([]any, 0, len(vs))
	for i, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("ledger: encode %s[%d]: %w", l.name, i, err)
		}
		encoded = append(encoded, b)
	}

	pipe := l.s.rdb.TxPipeline()
	pipe.Del(ctx, l.s.key(l.name))
	if len(encoded) > 0 {
		pipe.RPush(ctx, l.s.key(l.name), encoded...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger: replace %s: %w", l.name, err)
	}

	return nil
}

// Register is a single named value.
type Register[T any] struct {
	s    *Store
	name string
}

func NewRegister[T any](s *Store, name string) *Register[T] {
	return &Register[T]{s: s, name: name}
}

func (r *Register[T]) Get(ctx context.Context) (T, bool, error) {
	var v T

	b, err := r.s.rdb.Get(ctx, r.s.key(r.name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("ledger: get register %s: %w", r.name, err)
	}

	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("ledger: decode register %s: %w", r.name, err)
	}

	return v, true, nil
}

func (r *Register[T]) Set(ctx context.Context, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode register %s: %w", r.name, err)
	}

	if err := r.s.rdb.Set(ctx, r.s.key(r.name), b, 0).Err(); err != nil {
		return fmt.Errorf("ledger: set register %s: %w", r.name, err)
	}

	return nil
}

// Counter is a monotonic register. Next returns 1 on first use and strictly
// increases by 1 per call.
type Counter struct {
	s    *Store
	name string
}

func NewCounter(s *Store, name string) *Counter {
	return &Counter{s: s, name: name}
}

func (c *Counter) Next(ctx context.Context) (uint64, error) {
	n, err := c.s.rdb.Incr(ctx, c.s.key(c.name)).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: next %s: %w", c.name, err)
	}
	if n <= 0 {
		// Overflow of the id space is a contract violation, not user error.
		panic(fmt.Sprintf("ledger: counter %s overflow: %d", c.name, n))
	}

	return uint64(n), nil
}

func (c *Counter) Current(ctx context.Context) (uint64, error) {
	n, err := c.s.rdb.Get(ctx, c.s.key(c.name)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: current %s: %w", c.name, err)
	}

	return n, nil
}
