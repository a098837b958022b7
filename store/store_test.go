package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResolveTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := map[string]any{
		"ts":     ServerTimestamp,
		"nested": map[string]any{"at": ServerTimestamp, "keep": "x"},
		"list":   []any{ServerTimestamp, 1},
	}
	got := ResolveTimestamps(in, now)
	want := map[string]any{
		"ts":     now,
		"nested": map[string]any{"at": now, "keep": "x"},
		"list":   []any{now, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected resolution (-want +got):\n%s", diff)
	}
	if !IsServerTimestamp(in["ts"]) {
		t.Fatal("input must not be mutated")
	}
}

func TestMergeFields(t *testing.T) {
	dst := map[string]any{
		"appCheckRequired": false,
		"limits":           map[string]any{"daily": 10, "monthly": 100},
		"owner":            "ops",
	}
	src := map[string]any{
		"appCheckRequired": true,
		"limits":           map[string]any{"daily": 20},
	}
	got := MergeFields(dst, src)
	want := map[string]any{
		"appCheckRequired": true,
		"limits":           map[string]any{"daily": 20, "monthly": 100},
		"owner":            "ops",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected merge (-want +got):\n%s", diff)
	}
}

func TestMergeFieldsNilDestination(t *testing.T) {
	got := MergeFields(nil, map[string]any{"a": 1})
	if got["a"] != 1 {
		t.Fatalf("unexpected merge: %#v", got)
	}
}
