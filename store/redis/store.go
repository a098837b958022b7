package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

const (
	defaultLimit     = 50
	defaultPrefix    = "fnfin"
	maxMergeAttempts = 5
	pingTimeout      = 3 * time.Second
)

// Store keeps each document as a JSON string and a per-collection sorted set
// scored by write sequence, so List returns newest writes first.
type Store struct {
	client   *goredis.Client
	prefix   string
	addr     string
	db       int
	password string
	now      func() time.Time
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

// WithClock overrides the time used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		prefix: defaultPrefix,
		addr:   addr,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := store.ValidatePath(collection, id); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document %s/%s: %w", collection, id, err)
	}
	return decodeFields(raw)
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	raw, err := encodeFields(store.ResolveTimestamps(fields, s.now()))
	if err != nil {
		return err
	}
	seq, err := s.client.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate write sequence: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(collection, id), raw, 0)
		pipe.ZAddNX(ctx, s.indexKey(collection), goredis.Z{Score: float64(seq), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	key := s.docKey(collection, id)
	resolved := store.ResolveTimestamps(fields, s.now())

	seq, err := s.client.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate write sequence: %w", err)
	}

	merge := func(tx *goredis.Tx) error {
		var existing map[string]any
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			existing, err = decodeFields(raw)
			if err != nil {
				return err
			}
		}
		merged, err := encodeFields(store.MergeFields(existing, resolved))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			pipe.ZAddNX(ctx, s.indexKey(collection), goredis.Z{Score: float64(seq), Member: id})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err = s.client.Watch(ctx, merge, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to merge document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) List(ctx context.Context, collection string, query store.ListQuery) ([]store.Document, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", store.ErrInvalid)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(collection), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(ids) == 0 {
		return []store.Document{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.docKey(collection, id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load listed documents: %w", err)
	}
	docs := make([]store.Document, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: ids[i], Fields: fields})
	}
	return docs, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) docKey(collection, id string) string {
	return s.prefix + ":doc:" + collection + ":" + id
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + ":index:" + collection
}

func (s *Store) seqKey(collection string) string {
	return s.prefix + ":seq:" + collection
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return fields, nil
}
