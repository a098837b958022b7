// Package firestore backs store.Store with Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"

	gcfirestore "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

const defaultLimit = 50

type Store struct {
	client     *gcfirestore.Client
	ownsClient bool
}

// New wraps an existing client. Close does not close it.
func New(client *gcfirestore.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	return &Store{client: client}, nil
}

// Open dials Firestore for projectID; the returned store owns the client.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		projectID = gcfirestore.DetectProjectID
	}
	client, err := gcfirestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{client: client, ownsClient: true}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := store.ValidatePath(collection, id); err != nil {
		return nil, err
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document %s/%s: %w", collection, id, err)
	}
	return snap.Data(), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(s.client, fields)); err != nil {
		return fmt.Errorf("failed to save document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(s.client, fields), gcfirestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: collection is required", store.ErrInvalid)
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(s.client, fields))
	if err != nil {
		return "", fmt.Errorf("failed to add document to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *Store) List(ctx context.Context, collection string, query store.ListQuery) ([]store.Document, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", store.ErrInvalid)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	q := s.client.Collection(collection).Query
	if query.OrderBy != "" {
		q = q.OrderBy(query.OrderBy, gcfirestore.Desc)
	}
	iter := q.Limit(limit).Documents(ctx)
	defer iter.Stop()

	docs := make([]store.Document, 0, limit)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents in %s: %w", collection, err)
		}
		docs = append(docs, store.Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	return docs, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil || !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// toFirestore swaps store.ServerTimestamp sentinels for the client's own and
// store.Reference values for document references.
func toFirestore(client *gcfirestore.Client, fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(client, v)
	}
	return out
}

func toFirestoreValue(client *gcfirestore.Client, v any) any {
	switch t := v.(type) {
	case map[string]any:
		return toFirestore(client, t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = toFirestoreValue(client, t[i])
		}
		return out
	case store.Reference:
		if ref := client.Doc(t.Path); ref != nil {
			return ref
		}
		return t.Path
	default:
		if store.IsServerTimestamp(v) {
			return gcfirestore.ServerTimestamp
		}
		return v
	}
}
