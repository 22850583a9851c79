// Package redisstore implements statestore.Store over Redis via go-redis/v9.
// Namespace+key map to a single namespaced Redis key; Search is a best-effort
// SCAN-and-substring-match, not a full-text index.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/loopkit/agentcore/statestore"
)

// Store implements statestore.Store over a redis.Cmdable (satisfied by both
// *redis.Client and *redis.ClusterClient).
type Store struct {
	rdb    redis.Cmdable
	prefix string
}

// New constructs a Store. prefix namespaces every key this Store touches,
// letting multiple Stores share one Redis instance without collision.
func New(rdb redis.Cmdable, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) redisKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, namespace, key)
}

func (s *Store) Read(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	v, err := s.rdb.Get(ctx, s.redisKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, statestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: read %s/%s: %w", namespace, key, err)
	}
	return json.RawMessage(v), nil
}

func (s *Store) Write(ctx context.Context, namespace, key string, value json.RawMessage) error {
	if err := s.rdb.Set(ctx, s.redisKey(namespace, key), []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("redisstore: write %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := s.rdb.Del(ctx, s.redisKey(namespace, key)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List scans every key under namespace whose suffix has prefix, via SCAN
// rather than KEYS so it does not block the server on large keyspaces.
func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	pattern := s.redisKey(namespace, prefix) + "*"
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		keys = append(keys, strings.TrimPrefix(full, s.redisKey(namespace, "")))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: list %s: %w", namespace, err)
	}
	return keys, nil
}

// Search scans every key in namespace and scores it by how many times query
// appears in the stored JSON text. This is a best-effort substring scan, not
// a real full-text index — use statestore/mongostore for relevance-ranked
// search.
func (s *Store) Search(ctx context.Context, namespace, query string, limit int) ([]statestore.SearchResult, error) {
	pattern := s.redisKey(namespace, "") + "*"
	var results []statestore.SearchResult
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	lowerQuery := strings.ToLower(query)
	for iter.Next(ctx) {
		full := iter.Val()
		v, err := s.rdb.Get(ctx, full).Bytes()
		if err != nil {
			continue
		}
		text := strings.ToLower(string(v))
		count := strings.Count(text, lowerQuery)
		if count == 0 {
			continue
		}
		results = append(results, statestore.SearchResult{
			Key:   strings.TrimPrefix(full, s.redisKey(namespace, "")),
			Score: float64(count),
		})
		if limit > 0 && len(results) >= limit*4 {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: search %s: %w", namespace, err)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
