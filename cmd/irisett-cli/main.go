// Command irisett-cli is the thin flag-based entrypoint SPEC_FULL.md §5
// calls for: a "-dump-config" flag, a "migrate" subcommand, and a "serve"
// subcommand that wires and runs the whole engine. Grounded on the
// teacher's cmd/server/main.go load-config/open-db/migrate/serve
// sequence, generalized to spec.md §5's startup ordering (migrate, load
// definitions + seed, load instances, arm scheduler, arm failsafe, serve
// API).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irisett-go/irisett/internal/activemonitor"
	"github.com/irisett-go/irisett/internal/api"
	"github.com/irisett-go/irisett/internal/config"
	"github.com/irisett-go/irisett/internal/definition"
	"github.com/irisett-go/irisett/internal/eventbus"
	"github.com/irisett-go/irisett/internal/notify"
	"github.com/irisett-go/irisett/internal/pipeline"
	"github.com/irisett-go/irisett/internal/pluginrunner"
	"github.com/irisett-go/irisett/internal/scheduler"
	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/tmpl"
	"github.com/irisett-go/irisett/internal/wsproxy"
)

func main() {
	dumpConfig := flag.Bool("dump-config", false, "print a documented example configuration file and exit")
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if *dumpConfig {
		if err := config.DumpExample(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "failed to dump example config:", err)
			os.Exit(1)
		}
		return
	}

	cmd := "serve"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	cfg := config.InitGlobal(*configPath)
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gw, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer gw.Close()

	if err := store.Migrate(ctx, gw); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	if cmd == "migrate" {
		logger.Info("migrations applied")
		return
	}

	if err := serve(ctx, gw, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// serve implements spec.md §5's startup ordering: load definitions (plus
// the built-in seed), load instances, arm the scheduler and its failsafe
// scan, then begin serving the admin API and event websocket.
func serve(ctx context.Context, gw store.Gateway, cfg *config.Config, logger *slog.Logger) error {
	tmplCache := tmpl.NewCache()

	definitions := definition.New(gw, tmplCache)
	if err := definitions.Load(ctx); err != nil {
		return fmt.Errorf("failed to load monitor definitions: %w", err)
	}
	if err := definition.Seed(ctx, definitions); err != nil {
		return fmt.Errorf("failed to seed built-in monitor definitions: %w", err)
	}

	instances := activemonitor.New(gw)
	if err := instances.Load(ctx, cfg.Engine.DefaultInterval()); err != nil {
		return fmt.Errorf("failed to load monitor instances: %w", err)
	}

	bus := eventbus.New(256)
	defer bus.Close()

	runner := pluginrunner.New(logger)

	groups := notify.NewGroupStore(gw)
	contacts := notify.NewContactStore(gw)
	resolver := notify.NewRecipientResolver(gw)
	backends := notify.BuildBackends(cfg.Notify, logger)
	manager := notify.NewManager(resolver, backends, logger)

	// The scheduler needs a RunFunc at construction time and the pipeline
	// needs the scheduler's Schedule method at its own construction time;
	// sched is assigned before either is ever invoked, so the closure is
	// safe despite the forward reference.
	var sched *scheduler.Scheduler
	var p *pipeline.Pipeline
	runFunc := func(ctx context.Context, instanceID int64) { p.Run(ctx, instanceID) }

	sched = scheduler.New(instances, runFunc, scheduler.Config{
		TickInterval:      time.Second,
		FailsafeInterval:  cfg.Engine.FailsafeInterval(),
		MaxConcurrentJobs: cfg.Engine.MaxConcurrentJobs,
		DefaultInterval:   cfg.Engine.DefaultInterval(),
	}, logger)

	p = pipeline.New(gw, instances, definitions, tmplCache, runner, bus, manager,
		sched.Schedule, pipeline.Config{
			DownThreshold:    cfg.Engine.DownThreshold,
			UnknownThreshold: cfg.Engine.UnknownThreshold,
			DefaultInterval:  cfg.Engine.DefaultInterval(),
			PluginTimeout:    cfg.Engine.PluginTimeout(),
		}, logger)

	sched.LoadAll()
	go sched.Run(ctx)
	defer sched.Stop()

	router, err := api.NewRouter(gw, definitions, instances, groups, contacts, tmplCache, sched, cfg.Auth, logger)
	if err != nil {
		return fmt.Errorf("failed to build admin API router: %w", err)
	}
	router.Handle("/ws/events", wsproxy.NewHandler(bus, logger))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("admin API listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin API server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
