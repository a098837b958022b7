package audit

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PipeOpsHQ/financeira-functions/store"
	"github.com/PipeOpsHQ/financeira-functions/store/memory"
)

func TestActionFor(t *testing.T) {
	doc := map[string]any{"valor": 10.5}
	tests := []struct {
		name   string
		before map[string]any
		after  map[string]any
		want   Action
	}{
		{name: "create", before: nil, after: doc, want: ActionCreate},
		{name: "delete", before: doc, after: nil, want: ActionDelete},
		{name: "update", before: doc, after: doc, want: ActionUpdate},
		{name: "both absent", before: nil, after: nil, want: ActionUpdate},
		{name: "empty document counts as present", before: map[string]any{}, after: nil, want: ActionDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ActionFor(tt.before, tt.after); got != tt.want {
				t.Fatalf("ActionFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentWrite(t *testing.T) {
	after := map[string]any{"valor": 42.0}
	entry := DocumentWrite(TypeTransaction, map[string]string{"txId": "tx-1"}, nil, after)

	got := entry.Document()
	if !store.IsServerTimestamp(got["ts"]) {
		t.Fatalf("expected server timestamp, got %#v", got["ts"])
	}
	delete(got, "ts")
	want := map[string]any{
		"type":   "transaction",
		"action": "create",
		"txId":   "tx-1",
		"before": nil,
		"after":  after,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestBackupRequestedHasNoAction(t *testing.T) {
	doc := BackupRequested("gs://bucket/firestore-backups/2026-10-19", "").Document()
	if _, ok := doc["action"]; ok {
		t.Fatalf("backup entry must not carry an action: %#v", doc)
	}
	if _, ok := doc["operation"]; ok {
		t.Fatalf("empty operation must be omitted: %#v", doc)
	}
	if doc["status"] != StatusRequested || doc["type"] != "backup" {
		t.Fatalf("unexpected backup entry: %#v", doc)
	}
}

func TestLogRecordAppends(t *testing.T) {
	s := memory.New()
	log := NewLog(s)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := log.Record(ctx, ConfigChange(true, "admin-uid")); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if n := s.Len(Collection); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
	recent, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Fields["actorUid"] != "admin-uid" {
		t.Fatalf("unexpected entries: %#v", recent)
	}
}

func TestLogRecordRequiresType(t *testing.T) {
	if _, err := NewLog(memory.New()).Record(context.Background(), Entry{}); err == nil {
		t.Fatal("expected error for untyped entry")
	}
}
