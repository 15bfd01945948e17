package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/d20core/internal/api"
	"github.com/udisondev/d20core/internal/config"
	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/db"
	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/game/buff"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/game/itemhandler"
	"github.com/udisondev/d20core/internal/game/roll"
	"github.com/udisondev/d20core/internal/observe"
)

const ConfigPath = "config/rulesd.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config first to determine log level
	cfgPath := ConfigPath
	if p := os.Getenv("D20_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadEngine(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	slog.Info("d20 rules daemon starting", "log_level", cfg.LogLevel, "store", cfg.Store.Driver)

	rules, err := data.LoadRuleset(cfg.RulesetPath)
	if err != nil {
		return fmt.Errorf("loading ruleset: %w", err)
	}
	catalog, err := data.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	src, err := diceSource(cfg.Seed)
	if err != nil {
		return fmt.Errorf("seeding dice: %w", err)
	}
	ev := formula.New(src)

	store, err := db.Open(ctx, cfg.Store.Driver, cfg.Store.DSN(), cfg.Store.Migrate)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	slog.Info("store opened", "driver", cfg.Store.Driver)

	provider, err := observe.InitProvider("d20-rulesd")
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	dispatcher := action.NewDispatcher(ev,
		action.WithCatalog(catalog),
		action.WithRecorder(metrics),
		action.WithMaxDepth(cfg.MaxDispatchDepth),
	)
	machine := buff.NewMachine(dispatcher, ev, rules, buff.WithRecorder(metrics))
	items := itemhandler.NewHandler(store, rules, roll.NewComposer(rules, ev), dispatcher,
		itemhandler.WithBuffs(machine),
		itemhandler.WithRecorder(metrics),
	)

	// One writer at a time: HTTP commands and timeline ticks share the dice
	// source and the store.
	var engineMu sync.Mutex
	apiServer := api.NewServer(store, items, rules, &engineMu)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: newMux(provider, apiServer), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("http server listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if cfg.Timeline.Interval > 0 {
		ticker := buff.NewTicker(machine, store, cfg.Timeline.Interval, cfg.Timeline.RoundsPerTick, metrics, buff.WithTickLock(&engineMu))
		g.Go(func() error {
			if err := ticker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("timeline ticker: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}
	slog.Info("d20 rules daemon stopped")
	return nil
}

func newMux(p *observe.Provider, srv *api.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", p.Handler())
	srv.Register(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func diceSource(seed int64) (formula.Source, error) {
	if seed != 0 {
		return formula.NewSource(seed), nil
	}
	return formula.NewRandomSource()
}
