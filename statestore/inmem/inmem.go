// Package inmem provides an in-memory statestore.Store for tests and local
// development. Data is stored in process memory and lost on exit.
package inmem

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/loopkit/agentcore/statestore"
)

// Store implements statestore.Store using an in-process map keyed by
// namespace and key. Thread-safe; all reads return defensive copies so
// callers cannot mutate stored state through the returned bytes.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

// New returns an empty Store, ready to use immediately.
func New() *Store {
	return &Store{data: make(map[string]map[string]json.RawMessage)}
}

func (s *Store) Read(_ context.Context, namespace, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.data[namespace]
	if ns == nil {
		return nil, statestore.ErrNotFound
	}
	v, ok := ns[key]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	cloned := make(json.RawMessage, len(v))
	copy(cloned, v)
	return cloned, nil
}

func (s *Store) Write(_ context.Context, namespace, key string, value json.RawMessage) error {
	cloned := make(json.RawMessage, len(value))
	copy(cloned, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.data[namespace]
	if ns == nil {
		ns = make(map[string]json.RawMessage)
		s.data[namespace] = ns
	}
	ns[key] = cloned
	return nil
}

func (s *Store) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.data[namespace]
	if ns == nil {
		return nil
	}
	delete(ns, key)
	return nil
}

func (s *Store) List(_ context.Context, namespace, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.data[namespace]
	var keys []string
	for k := range ns {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Search performs a best-effort substring match of query against each
// entry's raw JSON text, scored by match count. Not a full-text index;
// callers needing real relevance ranking should use statestore/mongostore.
func (s *Store) Search(_ context.Context, namespace, query string, limit int) ([]statestore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.data[namespace]
	var results []statestore.SearchResult
	for k, v := range ns {
		text := string(v)
		count := strings.Count(strings.ToLower(text), strings.ToLower(query))
		if count == 0 {
			continue
		}
		results = append(results, statestore.SearchResult{
			Key:     k,
			Score:   float64(count),
			Snippet: snippet(text, query),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func snippet(text, query string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if idx < 0 {
		return ""
	}
	start := idx - 20
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + 20
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

// Reset clears all stored entries across all namespaces. Primarily useful
// in tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]map[string]json.RawMessage)
}
