// Package store defines the document store the handlers write through.
//
// Documents are flat field maps addressed by collection and id, mirroring the
// subset of Cloud Firestore the functions use. Backends live in the
// subpackages: firestore for production, sqlite and redis for local runs, and
// memory for tests.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid argument")
)

type serverTimestamp struct{}

// ServerTimestamp is a field value the backend replaces with its own commit
// time when the document is written.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Reference points at another document by its path from the database root,
// such as "clientes/c-1". Firestore stores it as a document reference.
type Reference struct {
	Path string `json:"path"`
}

type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type ListQuery struct {
	Limit int
	// OrderBy names a field to sort on, descending. Backends without field
	// indexes return documents in reverse write order instead.
	OrderBy string
}

type Store interface {
	// Get returns the fields of a document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	// Set replaces the document, dropping fields not present in fields.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Merge creates the document or merges fields into it, keeping the rest.
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
	// Add appends a document under a generated id and returns that id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	List(ctx context.Context, collection string, query ListQuery) ([]Document, error)
	Close() error
}

// ResolveTimestamps returns a copy of fields with every ServerTimestamp
// sentinel, at any depth, replaced by now.
func ResolveTimestamps(fields map[string]any, now time.Time) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch t := v.(type) {
	case serverTimestamp:
		return now
	case map[string]any:
		return ResolveTimestamps(t, now)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = resolveValue(t[i], now)
		}
		return out
	default:
		return v
	}
}

// MergeFields merges src into dst the way a Firestore merge-all write does:
// nested maps merge key by key, every other value overwrites. dst may be nil.
func MergeFields(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = MergeFields(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}

// ValidatePath checks the collection and id used to address a document.
func ValidatePath(collection, id string) error {
	if collection == "" {
		return errors.Join(ErrInvalid, errors.New("collection is required"))
	}
	if id == "" {
		return errors.Join(ErrInvalid, errors.New("document id is required"))
	}
	return nil
}
