// Command functions-local runs the functions against a local store and
// mints tokens for calling them.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/PipeOpsHQ/financeira-functions/admin"
	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/authz"
	"github.com/PipeOpsHQ/financeira-functions/backup"
	"github.com/PipeOpsHQ/financeira-functions/devserver"
	"github.com/PipeOpsHQ/financeira-functions/internal/config"
	"github.com/PipeOpsHQ/financeira-functions/internal/logging"
	"github.com/PipeOpsHQ/financeira-functions/internal/telemetry"
	"github.com/PipeOpsHQ/financeira-functions/observe"
	otelsink "github.com/PipeOpsHQ/financeira-functions/observe/otel"
	cronpkg "github.com/PipeOpsHQ/financeira-functions/runtime/cron"
	"github.com/PipeOpsHQ/financeira-functions/runtimeconfig"
	"github.com/PipeOpsHQ/financeira-functions/store/factory"
	"github.com/PipeOpsHQ/financeira-functions/trigger"
)

func main() {
	ctx := context.Background()
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	switch strings.TrimSpace(os.Args[1]) {
	case "serve":
		runServe(ctx, os.Args[2:])
	case "mint-token":
		runMintToken(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage:
  functions-local serve [--config functions.yaml] [--addr host:port] [--store sqlite|redis|memory|firestore] [--allow-local-no-auth]
  functions-local mint-token --uid UID [--role user|admin] [--ttl 1h]`)
}

func runServe(ctx context.Context, args []string) {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	configPath := fs.String("config", "", "runtime file (YAML)")
	addr := fs.String("addr", "", "listen address")
	backend := fs.String("store", "", "document store backend")
	allowLocal := fs.Bool("allow-local-no-auth", false, "let loopback callers use operator routes without a token")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel)

	var rt runtimeconfig.Config
	if *configPath != "" {
		if rt, err = runtimeconfig.Load(*configPath); err != nil {
			log.Fatalf("load runtime config: %v", err)
		}
	}
	cfg.StoreBackend = strings.ToLower(firstNonEmpty(*backend, rt.Store, cfg.StoreBackend))
	listenAddr := firstNonEmpty(*addr, rt.Addr, fmt.Sprintf("127.0.0.1:%d", cfg.Port))

	tokens, err := authz.NewLocalTokens(cfg.LocalTokenSecret)
	if err != nil {
		log.Fatalf("LOCAL_TOKEN_SECRET: %v", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, "financeira-functions-local", cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()
	sink := observe.NewMultiSink(observe.NewLogSink(logger), otelsink.NewSink(tp))

	docs, err := factory.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer docs.Close()
	auditLog := audit.NewLog(docs)

	job := &backup.Job{
		Target:   backup.NewResolver(cfg),
		Exporter: backup.NewAPIExporter(),
		Audit:    auditLog,
		Sink:     sink,
		Logger:   logger,
	}
	sched := cronpkg.New(cronpkg.WithLogger(logger))
	schedule := backup.CronSpec()
	enabled := true
	if jc, ok := rt.Job(backup.Name); ok {
		schedule = firstNonEmpty(jc.Schedule, schedule)
		enabled = jc.IsEnabled()
	}
	if err := sched.Add(backup.Name, schedule, job.Run); err != nil {
		log.Fatalf("schedule %s: %v", backup.Name, err)
	}
	if !enabled {
		_ = sched.SetEnabled(backup.Name, false)
	}
	sched.Start(ctx)
	defer sched.Stop()

	transactions := trigger.Transactions(auditLog, sink)
	transactions.Logger = logger
	clienteItems := trigger.ClienteItems(auditLog, sink)
	clienteItems.Logger = logger

	srv := devserver.NewServer(devserver.Config{
		Addr:             listenAddr,
		Admin:            &admin.Service{Claims: authz.NewStoreClaims(docs), Store: docs, Audit: auditLog},
		Verifier:         tokens,
		Triggers:         []*trigger.Handler{transactions, clienteItems},
		Scheduler:        sched,
		Audit:            auditLog,
		Sink:             sink,
		Logger:           logger,
		AllowLocalNoAuth: *allowLocal,
		AllowedOrigin:    rt.AllowedOrigin,
	})
	if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("serve: %v", err)
	}
}

func runMintToken(args []string) {
	fs := pflag.NewFlagSet("mint-token", pflag.ExitOnError)
	uid := fs.String("uid", "", "subject uid")
	role := fs.String("role", string(authz.RoleUser), "role claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	tokens, err := authz.NewLocalTokens(cfg.LocalTokenSecret, authz.WithTTL(*ttl))
	if err != nil {
		log.Fatalf("LOCAL_TOKEN_SECRET: %v", err)
	}
	token, err := tokens.Mint(*uid, authz.ClaimsFor(strings.TrimSpace(*role)))
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Println(token)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
