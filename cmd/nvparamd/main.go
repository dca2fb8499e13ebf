// cmd/nvparamd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/nvparam/internal/config"
	"github.com/tamzrod/nvparam/internal/flashfs"
	nvlog "github.com/tamzrod/nvparam/internal/log"
	"github.com/tamzrod/nvparam/internal/metrics"
	"github.com/tamzrod/nvparam/internal/node"
	"github.com/tamzrod/nvparam/internal/persistence"
	server "github.com/tamzrod/nvparam/internal/server/modbus"
)

// Exit codes (sysexits.h)
const (
	exitError  = 1
	exitFatal  = 70 // EX_SOFTWARE: no trustworthy configuration state
	exitConfig = 78 // EX_CONFIG
)

func main() {
	app := &cli.App{
		Name:  "nvparamd",
		Usage: "Serve flash-backed parameter registries over Modbus TCP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to YAML configuration",
				EnvVars:  []string{"NVPARAMD_CONFIG"},
				Required: true,
			},
		},
		Action:         run,
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitError)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitError)
}

// exitHandler turns a persistence fatal condition into a process halt.
type exitHandler struct {
	log *zap.Logger
}

func (h exitHandler) RaiseFatal(code persistence.FatalCode) {
	h.log.Error("fatal condition, halting", zap.Stringer("code", code))
	_ = h.log.Sync()
	os.Exit(exitFatal)
}

func run(c *cli.Context) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("config load failed: %v", err), exitConfig)
	}
	if err := config.Validate(cfg); err != nil {
		return cli.Exit(fmt.Sprintf("config validation failed: %v", err), exitConfig)
	}
	config.Normalize(cfg)

	logger, err := nvlog.New(cfg.Log.Level, os.Stderr)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mt := metrics.New(promReg)

	var fatal persistence.FatalHandler = exitHandler{log: logger}

	// --------------------
	// Flash media
	// --------------------

	mediumFor := func(id string) flashfs.Medium { return flashfs.NewMemMedium() }
	if cfg.Flash.Path != "" {
		db, err := flashfs.OpenBolt(cfg.Flash.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		mediumFor = func(id string) flashfs.Medium { return flashfs.NewBoltMedium(db, "registry/"+id) }
	} else {
		logger.Warn("flash.path not set, parameters live in RAM and are lost on exit")
	}

	// --------------------
	// Build registries
	// --------------------

	nodes := make([]*node.Node, 0, len(cfg.Registries))
	for _, rc := range cfg.Registries {
		n, err := node.Build(rc, mediumFor(rc.ID), nvlog.ForRegistry(logger, rc.ID), mt)
		if err != nil {
			if persistence.IsFatal(err) {
				logger.Error("registry initialization failed", zap.String("registry", rc.ID), zap.Error(err))
				fatal.RaiseFatal(persistence.FatalCodeOf(err))
			}
			return fmt.Errorf("registry %q: %w", rc.ID, err)
		}
		nodes = append(nodes, n)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	// --------------------
	// Modbus parameter server
	// --------------------

	if cfg.Modbus.Listen != "" {
		units := make([]server.Unit, 0, len(nodes))
		for _, n := range nodes {
			units = append(units, server.Unit{ID: n.UnitID, Adapter: n.Adapter, Lock: n.Lock})
		}

		srv, err := server.New(
			server.Config{
				Listen:  cfg.Modbus.Listen,
				Timeout: time.Duration(cfg.Modbus.TimeoutMs) * time.Millisecond,
			},
			units,
			server.WithLogger(logger.Named("modbus")),
			server.WithMetrics(mt),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}

	// --------------------
	// Metrics endpoint
	// --------------------

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		hs := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Listen))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	// --------------------
	// Autosave
	// --------------------

	var savers []*persistence.Autosaver
	if cfg.Persistence.AutosaveIntervalMs > 0 {
		interval := time.Duration(cfg.Persistence.AutosaveIntervalMs) * time.Millisecond
		for _, n := range nodes {
			as, err := persistence.NewAutosaver(n.Manager, interval, n.Lock)
			if err != nil {
				return err
			}
			savers = append(savers, as)
			g.Go(func() error {
				as.Run(gctx)
				return nil
			})
		}
	}

	logger.Info("nvparamd running", zap.Int("registries", len(nodes)))

	err = g.Wait()

	// Commit pending changes once more on the way out.
	for i, as := range savers {
		if _, serr := as.SaveIfDirty(); serr != nil {
			logger.Warn("final save failed", zap.String("registry", nodes[i].ID), zap.Error(serr))
		}
	}

	logger.Info("nvparamd stopped")
	return err
}
