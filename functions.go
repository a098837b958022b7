// Package financeira registers the project's Cloud Functions with the
// Functions Framework. Clients are created on first use, so a cold start
// that only skips a backup never touches the network.
package financeira

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/PipeOpsHQ/financeira-functions/admin"
	"github.com/PipeOpsHQ/financeira-functions/backup"
	"github.com/PipeOpsHQ/financeira-functions/callable"
	"github.com/PipeOpsHQ/financeira-functions/internal/config"
	"github.com/PipeOpsHQ/financeira-functions/internal/logging"
	"github.com/PipeOpsHQ/financeira-functions/internal/platform"
	"github.com/PipeOpsHQ/financeira-functions/internal/telemetry"
	"github.com/PipeOpsHQ/financeira-functions/observe"
	otelsink "github.com/PipeOpsHQ/financeira-functions/observe/otel"
	"github.com/PipeOpsHQ/financeira-functions/store"
	"github.com/PipeOpsHQ/financeira-functions/store/factory"
	firestorestore "github.com/PipeOpsHQ/financeira-functions/store/firestore"
	"github.com/PipeOpsHQ/financeira-functions/trigger"
)

const serviceName = "financeira-functions"

func init() {
	functions.HTTP("setCustomClaims", SetCustomClaims)
	functions.HTTP("setAppCheckRequired", SetAppCheckRequired)
	functions.CloudEvent(backup.Name, BackupFirestoreDaily)
	functions.CloudEvent(trigger.TransactionsName, AuditLogTransactions)
	functions.CloudEvent(trigger.ClienteItemsName, AuditLogClienteItems)
}

func SetCustomClaims(w http.ResponseWriter, r *http.Request) {
	current().setCustomClaims.ServeHTTP(w, r)
}

func SetAppCheckRequired(w http.ResponseWriter, r *http.Request) {
	current().setAppCheckRequired.ServeHTTP(w, r)
}

// BackupFirestoreDaily runs on the Cloud Scheduler message. The message
// payload is ignored.
func BackupFirestoreDaily(ctx context.Context, _ event.Event) error {
	_, err := current().backup.Run(ctx)
	return err
}

func AuditLogTransactions(ctx context.Context, e event.Event) error {
	return current().transactions.HandleEvent(ctx, e)
}

func AuditLogClienteItems(ctx context.Context, e event.Event) error {
	return current().clienteItems.HandleEvent(ctx, e)
}

// deployment is the process-wide wiring of the deployed functions.
type deployment struct {
	cfg      config.Config
	logger   *slog.Logger
	sink     observe.Sink
	platform *platform.Platform

	storeMu sync.Mutex
	store   store.Store

	setCustomClaims     http.Handler
	setAppCheckRequired http.Handler
	backup              *backup.Job
	transactions        *trigger.Handler
	clienteItems        *trigger.Handler
}

var (
	deployOnce sync.Once
	deployed   *deployment
)

func current() *deployment {
	deployOnce.Do(func() {
		deployed = newDeployment(context.Background())
	})
	return deployed
}

func newDeployment(ctx context.Context) *deployment {
	cfg, err := config.Load()
	logger := logging.Setup(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid environment, using defaults", slog.Any("error", err))
	}

	tp, _, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, telemetry.WithSyncExport())
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
		tp = nil
	}

	d := &deployment{
		cfg:      cfg,
		logger:   logger,
		sink:     observe.NewMultiSink(observe.NewLogSink(logger), otelsink.NewSink(tp)),
		platform: platform.New(platform.Firebase(cfg)),
	}
	rec := recorder{d}
	svc := &admin.Service{Claims: claimsSetter{d}, Store: storeProxy{d}, Audit: rec}
	opts := []callable.Option{
		callable.WithVerifier(verifier{d}),
		callable.WithSink(d.sink),
		callable.WithLogger(logger),
	}
	d.setCustomClaims = callable.Handler("setCustomClaims", svc.SetCustomClaimsFunc(), opts...)
	d.setAppCheckRequired = callable.Handler("setAppCheckRequired", svc.SetAppCheckRequiredFunc(), opts...)
	d.backup = &backup.Job{
		Target:   backup.NewResolver(cfg),
		Exporter: backup.NewAPIExporter(),
		Audit:    rec,
		Sink:     d.sink,
		Logger:   logger,
	}
	d.transactions = trigger.Transactions(rec, d.sink)
	d.transactions.Logger = logger
	d.clienteItems = trigger.ClienteItems(rec, d.sink)
	d.clienteItems.Logger = logger
	return d
}

// documents returns the document store, creating it on first use. The
// firestore backend shares the Firebase app's client.
func (d *deployment) documents(ctx context.Context) (store.Store, error) {
	d.storeMu.Lock()
	defer d.storeMu.Unlock()
	if d.store != nil {
		return d.store, nil
	}
	var (
		s   store.Store
		err error
	)
	switch d.cfg.StoreBackend {
	case factory.BackendFirestore, "":
		clients, cerr := d.platform.Clients(ctx)
		if cerr != nil {
			return nil, cerr
		}
		s, err = firestorestore.New(clients.Firestore)
		if err != nil {
			return nil, err
		}
	default:
		s, err = factory.FromConfig(ctx, d.cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", d.cfg.StoreBackend, err)
		}
	}
	d.store = s
	return s, nil
}
