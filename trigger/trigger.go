// Package trigger mirrors document writes into the audit log.
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/observe"
)

const (
	TransactionsName = "auditLogTransactions"
	ClienteItemsName = "auditLogClienteItems"
)

var (
	TransactionsPattern = MustParsePattern("transactions/{txId}")
	ClienteItemsPattern = MustParsePattern("clientes/{clienteId}/transacoes/{dr}/items/{itemId}")
)

// Change is one observed write. A nil Before or After is an absent
// snapshot.
type Change struct {
	Path   string
	Before map[string]any
	After  map[string]any
}

// Handler records every write under Pattern as an audit entry of Type.
type Handler struct {
	Name    string
	Pattern Pattern
	Type    audit.Type
	Audit   audit.Recorder
	Sink    observe.Sink
	Logger  *slog.Logger
}

// Transactions audits writes to transactions/{txId}.
func Transactions(rec audit.Recorder, sink observe.Sink) *Handler {
	return &Handler{Name: TransactionsName, Pattern: TransactionsPattern, Type: audit.TypeTransaction, Audit: rec, Sink: sink}
}

// ClienteItems audits writes to the per-client transaction items.
func ClienteItems(rec audit.Recorder, sink observe.Sink) *Handler {
	return &Handler{Name: ClienteItemsName, Pattern: ClienteItemsPattern, Type: audit.TypeClienteItem, Audit: rec, Sink: sink}
}

func (h *Handler) Handle(ctx context.Context, change Change) error {
	inv := observe.Start(h.Sink, observe.KindTrigger, h.Name)
	inv.Set("path", change.Path)

	ids, ok := h.Pattern.Match(change.Path)
	if !ok {
		err := fmt.Errorf("document %q does not match %s", change.Path, h.Pattern)
		return inv.End(ctx, err)
	}
	entry := audit.DocumentWrite(h.Type, ids, change.Before, change.After)
	inv.Set("action", string(entry.Action))
	if _, err := h.Audit.Record(ctx, entry); err != nil {
		h.logger().ErrorContext(ctx, "audit write failed",
			slog.String("function", h.Name), slog.String("path", change.Path), slog.Any("error", err))
		return inv.End(ctx, err)
	}
	h.logger().InfoContext(ctx, "document write audited",
		slog.String("function", h.Name), slog.String("path", change.Path), slog.String("action", string(entry.Action)))
	return inv.End(ctx, nil)
}

// HandleEvent is the CloudEvent entry point registered with the Functions
// Framework.
func (h *Handler) HandleEvent(ctx context.Context, e event.Event) error {
	change, err := ChangeFromEvent(e)
	if err != nil {
		h.logger().ErrorContext(ctx, "undecodable document event", slog.String("function", h.Name), slog.Any("error", err))
		return err
	}
	return h.Handle(ctx, change)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
