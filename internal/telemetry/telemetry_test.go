package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), "financeira-functions", "  ")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Fatalf("expected noop provider, got %T", tp)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), "financeira-functions", "http://127.0.0.1:4318")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if tp == nil {
		t.Fatal("expected provider")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestSetupSyncExportSendsOnEnd(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		requests.Add(1)
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tp, shutdown, err := Setup(context.Background(), "financeira-functions", srv.URL+"/v1/traces", WithSyncExport())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "callable.setCustomClaims")
	span.End()

	if got := requests.Load(); got != 1 {
		t.Fatalf("expected span exported on End, got %d requests", got)
	}
}
