package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	attributesvc "github.com/assetgrid/searchsync/internal/attribute"
	"github.com/assetgrid/searchsync/internal/availability"
	"github.com/assetgrid/searchsync/internal/config"
	"github.com/assetgrid/searchsync/internal/entitystore"
	"github.com/assetgrid/searchsync/internal/es"
	"github.com/assetgrid/searchsync/internal/events"
	"github.com/assetgrid/searchsync/internal/index/registry"
	"github.com/assetgrid/searchsync/internal/kv"
	logpkg "github.com/assetgrid/searchsync/internal/logger"
	"github.com/assetgrid/searchsync/internal/reindex"
	"github.com/assetgrid/searchsync/internal/search"
	"github.com/assetgrid/searchsync/internal/syncq"
	chiTransport "github.com/assetgrid/searchsync/internal/transport/chi"
	"github.com/assetgrid/searchsync/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting searchsync",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	// Search-engine connection registry
	connCfgs := make(map[string]es.Config, len(cfg.Connections))
	for platform, c := range cfg.Connections {
		connCfgs[platform] = es.Config{Addrs: c.Addrs, Username: c.Username, Password: c.Password}
	}
	esReg := es.NewRegistry(connCfgs)
	idxReg := registry.New(esReg)

	// Task/lock store
	kvStore, err := kv.NewStore(kv.Config{Addrs: cfg.Redis.Addrs, Password: cfg.Redis.Password})
	if err != nil {
		log.Fatal("failed to create kv store", zap.Error(err))
	}
	defer kvStore.Close()
	if err := kvStore.Ping(context.Background()); err != nil {
		log.Fatal("kv store not ready", zap.Error(err))
	}
	tasks := reindex.NewTaskStore(kvStore)

	// Audit event bus (optional)
	publisher, err := events.Connect(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal("failed to connect event bus", zap.Error(err))
	}
	defer publisher.Close()

	// Reindex orchestration
	orch := reindex.NewOrchestrator(
		idxReg,
		reindex.ConnFunc(func(t, e string) (reindex.Engine, error) { return esReg.Conn(t, e) }),
		tasks,
		time.Duration(cfg.Search.CleanupDelaySec)*time.Second,
		log,
	)
	watchdog := reindex.NewWatchdog(
		orch, tasks, kvStore,
		time.Duration(cfg.Watchdog.IntervalSec)*time.Second,
		time.Duration(cfg.Watchdog.LockTTLSec)*time.Second,
		log,
	)

	// Write-behind sync queue
	queue := syncq.New(
		syncq.ConnFunc(func(t, e string) (syncq.Bulker, error) { return esReg.Conn(t, e) }),
		tasks,
		syncq.RealClock(),
		time.Duration(cfg.Sync.DebounceMs)*time.Millisecond,
		cfg.Sync.MaxBatch,
		log,
	)

	// Search assembly
	defsSource := entitystore.NewClient(cfg.EntityStore.BaseURL, time.Duration(cfg.EntityStore.TimeoutSec)*time.Second)
	availClient := availability.NewClient(cfg.Availability.BaseURL, time.Duration(cfg.Availability.TimeoutSec)*time.Second)
	assembler := search.NewAssembler(
		search.ConnFunc(func(t, e string) (search.Searcher, error) { return esReg.Conn(t, e) }),
		defsSource,
		availClient,
		publisher,
		cfg.Search.MaxScanBatch,
		log,
	)

	attrs := attributesvc.NewService(
		attributesvc.ConnFunc(func(t, e string) (attributesvc.Engine, error) { return esReg.Conn(t, e) }),
		orch,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go watchdog.Run(ctx)

	server := chiTransport.NewServer(assembler, queue, attrs, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	log.Info("stopped")
}
