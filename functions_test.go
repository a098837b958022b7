package financeira

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"google.golang.org/protobuf/proto"

	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/internal/platform"
	firestorestore "github.com/PipeOpsHQ/financeira-functions/store/firestore"
)

func localDeployment(t *testing.T) *deployment {
	t.Helper()
	t.Setenv("FUNCTIONS_STORE_BACKEND", "memory")
	t.Setenv("GCLOUD_PROJECT", "financeira-test")
	t.Setenv("BACKUP_BUCKET", "")
	t.Setenv("FIREBASE_CONFIG", "")
	t.Setenv("OTEL_ENDPOINT", "")
	return newDeployment(context.Background())
}

func auditCount(t *testing.T, d *deployment) int {
	t.Helper()
	s, err := d.documents(context.Background())
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	entries, err := audit.NewLog(s).Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	return len(entries)
}

func TestBackupWithoutBucketIsSilent(t *testing.T) {
	d := localDeployment(t)
	dest, err := d.backup.Run(context.Background())
	if err != nil || dest != "" {
		t.Fatalf("expected silent no-op, got %q, %v", dest, err)
	}
	if n := auditCount(t, d); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
}

func TestAnonymousCallableIsDenied(t *testing.T) {
	d := localDeployment(t)
	for name, h := range map[string]http.Handler{
		"setCustomClaims":     d.setCustomClaims,
		"setAppCheckRequired": d.setAppCheckRequired,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"data":{"uid":"u1","required":true}}`))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
			}
			var out map[string]map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out["error"]["status"] != "PERMISSION_DENIED" {
				t.Fatalf("unexpected body: %s", rec.Body.String())
			}
		})
	}
	if n := auditCount(t, d); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
}

func TestWriteTriggersAudit(t *testing.T) {
	d := localDeployment(t)
	raw, err := proto.Marshal(&firestoredata.DocumentEventData{
		Value: &firestoredata.Document{Fields: map[string]*firestoredata.Value{
			"valor": {ValueType: &firestoredata.Value_DoubleValue{DoubleValue: 12.5}},
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, tc := range []struct {
		subject string
		handle  func(context.Context, event.Event) error
	}{
		{"documents/transactions/tx-1", d.transactions.HandleEvent},
		{"documents/clientes/c-1/transacoes/dr-1/items/i-1", d.clienteItems.HandleEvent},
	} {
		e := event.New()
		e.SetID("evt-" + tc.subject)
		e.SetSubject(tc.subject)
		if err := e.SetData("application/protobuf", raw); err != nil {
			t.Fatalf("SetData: %v", err)
		}
		if err := tc.handle(context.Background(), e); err != nil {
			t.Fatalf("handle %s: %v", tc.subject, err)
		}
	}
	if n := auditCount(t, d); n != 2 {
		t.Fatalf("expected 2 audit entries, got %d", n)
	}
}

// firestoreDeployment builds a deployment on the default firestore backend
// whose platform dials FIRESTORE_EMULATOR_HOST. Creating the client does not
// connect.
func firestoreDeployment(t *testing.T) (*deployment, string) {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		host = "127.0.0.1:8085"
		t.Setenv("FIRESTORE_EMULATOR_HOST", host)
	}
	t.Setenv("FUNCTIONS_STORE_BACKEND", "firestore")
	t.Setenv("GCLOUD_PROJECT", "financeira-test")
	t.Setenv("BACKUP_BUCKET", "")
	t.Setenv("FIREBASE_CONFIG", "")
	t.Setenv("OTEL_ENDPOINT", "")

	d := newDeployment(context.Background())
	project := "financeira-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	d.platform = platform.New(func(ctx context.Context) (*platform.Clients, error) {
		client, err := firestore.NewClient(ctx, project)
		if err != nil {
			return nil, err
		}
		return &platform.Clients{Firestore: client}, nil
	})
	t.Cleanup(func() { _ = d.platform.Close() })
	return d, host
}

func TestDocumentsDefaultsToFirestore(t *testing.T) {
	d, _ := firestoreDeployment(t)

	s, err := d.documents(context.Background())
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if _, ok := s.(*firestorestore.Store); !ok {
		t.Fatalf("expected firestore store, got %T", s)
	}
	again, err := d.documents(context.Background())
	if err != nil || again != s {
		t.Fatalf("expected the same store on reuse, got %v, %v", again, err)
	}
}

func TestDocumentsRetriesAfterPlatformFailure(t *testing.T) {
	d, _ := firestoreDeployment(t)
	calls := 0
	d.platform = platform.New(func(ctx context.Context) (*platform.Clients, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("metadata server unreachable")
		}
		client, err := firestore.NewClient(ctx, "financeira-test")
		if err != nil {
			return nil, err
		}
		return &platform.Clients{Firestore: client}, nil
	})
	t.Cleanup(func() { _ = d.platform.Close() })

	if _, err := d.documents(context.Background()); err == nil {
		t.Fatal("expected platform error")
	}
	s, err := d.documents(context.Background())
	if err != nil {
		t.Fatalf("documents after retry: %v", err)
	}
	if _, ok := s.(*firestorestore.Store); !ok {
		t.Fatalf("expected firestore store, got %T", s)
	}
}

func TestWriteTriggerAuditsToFirestoreEmulator(t *testing.T) {
	d, host := firestoreDeployment(t)
	conn, err := net.DialTimeout("tcp", host, time.Second)
	if err != nil {
		t.Skipf("firestore emulator unavailable at %s: %v", host, err)
	}
	_ = conn.Close()

	raw, err := proto.Marshal(&firestoredata.DocumentEventData{
		Value: &firestoredata.Document{Fields: map[string]*firestoredata.Value{
			"valor": {ValueType: &firestoredata.Value_DoubleValue{DoubleValue: 7}},
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e := event.New()
	e.SetID("evt-emulator")
	e.SetSubject("documents/transactions/tx-1")
	if err := e.SetData("application/protobuf", raw); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.transactions.HandleEvent(ctx, e); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if n := auditCount(t, d); n != 1 {
		t.Fatalf("expected 1 audit entry, got %d", n)
	}
}
