// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

// Run exercises s against the store.Store contract. newStore must return an
// empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "config", "security")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Set(ctx, "_claims", "u1", map[string]any{"role": "editor", "team": "a"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := s.Set(ctx, "_claims", "u1", map[string]any{"role": "admin", "admin": true}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := s.Get(ctx, "_claims", "u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		want := map[string]any{"role": "admin", "admin": true}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("unexpected document (-want +got):\n%s", diff)
		}
	})

	t.Run("MergeKeepsUnrelatedFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Merge(ctx, "config", "security", map[string]any{"appCheckRequired": false, "owner": "ops"}); err != nil {
			t.Fatalf("Merge create failed: %v", err)
		}
		if err := s.Merge(ctx, "config", "security", map[string]any{"appCheckRequired": true}); err != nil {
			t.Fatalf("Merge update failed: %v", err)
		}
		got, err := s.Get(ctx, "config", "security")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		want := map[string]any{"appCheckRequired": true, "owner": "ops"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("unexpected document (-want +got):\n%s", diff)
		}
	})

	t.Run("AddResolvesServerTimestamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.Add(ctx, "audit_logs", map[string]any{"type": "config", "ts": store.ServerTimestamp})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if id == "" {
			t.Fatal("expected generated id")
		}
		got, err := s.Get(ctx, "audit_logs", id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got["type"] != "config" {
			t.Fatalf("unexpected type: %#v", got["type"])
		}
		switch ts := got["ts"].(type) {
		case time.Time:
			if ts.IsZero() {
				t.Fatal("expected resolved timestamp")
			}
		case string:
			if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
				t.Fatalf("expected RFC3339 timestamp, got %q", ts)
			}
		default:
			t.Fatalf("unexpected ts value %#v", got["ts"])
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, action := range []string{"create", "update", "delete"} {
			if _, err := s.Add(ctx, "audit_logs", map[string]any{"action": action}); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}
		docs, err := s.List(ctx, "audit_logs", store.ListQuery{Limit: 2})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("expected 2 documents, got %d", len(docs))
		}
		if docs[0].Fields["action"] != "delete" || docs[1].Fields["action"] != "update" {
			t.Fatalf("unexpected order: %#v", docs)
		}
	})

	t.Run("RejectsEmptyPath", func(t *testing.T) {
		s := newStore(t)
		if err := s.Set(context.Background(), "config", "", map[string]any{"x": 1}); !errors.Is(err, store.ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
	})
}
