// Package audit appends entries to the append-only audit_logs collection.
//
// Entries are never updated or deleted by this module; every Record call adds
// one document stamped with the store's server timestamp.
package audit

import (
	"context"
	"fmt"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

// Collection is where audit entries are appended.
const Collection = "audit_logs"

type Type string

const (
	TypeConfig      Type = "config"
	TypeBackup      Type = "backup"
	TypeTransaction Type = "transaction"
	TypeClienteItem Type = "cliente_item"
)

type Action string

const (
	ActionCreate              Action = "create"
	ActionUpdate              Action = "update"
	ActionDelete              Action = "delete"
	ActionSetAppCheckRequired Action = "setAppCheckRequired"
)

// StatusRequested marks a backup whose export was requested. Completion is
// not tracked.
const StatusRequested = "requested"

// ActionFor derives a write action from snapshot presence: a nil map is an
// absent snapshot, an empty non-nil map is an existing document with no
// fields.
func ActionFor(before, after map[string]any) Action {
	switch {
	case after != nil && before == nil:
		return ActionCreate
	case after == nil && before != nil:
		return ActionDelete
	default:
		return ActionUpdate
	}
}

// Entry is one audit record before it is stamped and written.
type Entry struct {
	Type   Type
	Action Action
	// Fields holds context identifiers and payload specific to the entry type.
	Fields map[string]any
}

// Document renders the entry as stored, with ts left to the server.
func (e Entry) Document() map[string]any {
	doc := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		doc[k] = v
	}
	doc["type"] = string(e.Type)
	if e.Action != "" {
		doc["action"] = string(e.Action)
	}
	doc["ts"] = store.ServerTimestamp
	return doc
}

// ConfigChange records a change of the app-check requirement flag.
func ConfigChange(required bool, actorUID string) Entry {
	fields := map[string]any{"required": required}
	if actorUID != "" {
		fields["actorUid"] = actorUID
	}
	return Entry{Type: TypeConfig, Action: ActionSetAppCheckRequired, Fields: fields}
}

// BackupRequested records that an export was requested to outputURIPrefix.
func BackupRequested(outputURIPrefix, operation string) Entry {
	fields := map[string]any{
		"status":          StatusRequested,
		"outputUriPrefix": outputURIPrefix,
	}
	if operation != "" {
		fields["operation"] = operation
	}
	return Entry{Type: TypeBackup, Fields: fields}
}

// DocumentWrite records a create, update or delete observed on a watched
// document. ids carries the path parameters of the watched document.
func DocumentWrite(t Type, ids map[string]string, before, after map[string]any) Entry {
	fields := make(map[string]any, len(ids)+2)
	for k, v := range ids {
		fields[k] = v
	}
	fields["before"] = snapshot(before)
	fields["after"] = snapshot(after)
	return Entry{Type: t, Action: ActionFor(before, after), Fields: fields}
}

func snapshot(doc map[string]any) any {
	if doc == nil {
		return nil
	}
	return doc
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) (string, error)
}

// Log is a Recorder over a document store.
type Log struct {
	store      store.Store
	collection string
}

func NewLog(s store.Store) *Log {
	return &Log{store: s, collection: Collection}
}

func (l *Log) Record(ctx context.Context, entry Entry) (string, error) {
	if entry.Type == "" {
		return "", fmt.Errorf("audit entry type is required")
	}
	id, err := l.store.Add(ctx, l.collection, entry.Document())
	if err != nil {
		return "", fmt.Errorf("record audit log: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]store.Document, error) {
	docs, err := l.store.List(ctx, l.collection, store.ListQuery{Limit: limit, OrderBy: "ts"})
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return docs, nil
}
