// Package memory is an in-process store.Store used by tests and by the local
// server when no persistent backend is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

type record struct {
	fields map[string]any
	seq    int64
}

type Store struct {
	mu  sync.RWMutex
	seq int64
	// Structure: [collection][id]record
	data map[string]map[string]*record
	now  func() time.Time
}

type Option func(*Store)

// WithClock overrides the time used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]map[string]*record),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, collection, id string) (map[string]any, error) {
	if err := store.ValidatePath(collection, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyFields(rec.fields)
}

func (s *Store) Set(_ context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	resolved, err := copyFields(store.ResolveTimestamps(fields, s.now()))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, resolved)
	return nil
}

func (s *Store) Merge(_ context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	resolved, err := copyFields(store.ResolveTimestamps(fields, s.now()))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing map[string]any
	if rec, ok := s.data[collection][id]; ok {
		existing = rec.fields
	}
	s.put(collection, id, store.MergeFields(existing, resolved))
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) List(_ context.Context, collection string, query store.ListQuery) ([]store.Document, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", store.ErrInvalid)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.data[collection]
	ids := make([]string, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	sortNewestFirst(ids, recs)
	if query.Limit > 0 && len(ids) > query.Limit {
		ids = ids[:query.Limit]
	}
	out := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		fields, err := copyFields(recs[id].fields)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Document{ID: id, Fields: fields})
	}
	return out, nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func (s *Store) Close() error { return nil }

func (s *Store) put(collection, id string, fields map[string]any) {
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]*record)
	}
	s.seq++
	seq := s.seq
	if rec, ok := s.data[collection][id]; ok {
		seq = rec.seq
	}
	s.data[collection][id] = &record{fields: fields, seq: seq}
}

func sortNewestFirst(ids []string, recs map[string]*record) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && recs[ids[j]].seq > recs[ids[j-1]].seq; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// copyFields deep-copies through JSON-compatible values so callers never share
// maps with the store. time.Time values are kept as-is.
func copyFields(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		c, err := copyValue(v)
		if err != nil {
			return nil, fmt.Errorf("copy field %q: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

func copyValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64, time.Time, store.Reference:
		return t, nil
	case map[string]any:
		return copyFields(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			c, err := copyValue(t[i])
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
}
