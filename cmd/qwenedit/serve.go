package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"qwenedit/internal/config"
	"qwenedit/internal/httpapi"
	"qwenedit/internal/manager"
)

const shutdownGrace = 10 * time.Second

type serveFlags struct {
	addr          string
	workerURL     string
	workerCmd     string
	corsEnabled   bool
	corsOrigins   string
	ensureWeights bool
	maxQueue      int
}

func newServeCmd(g *globalFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Assemble the editing pipeline and serve the HTTP API",
		Long: "serve starts the HTTP listener first, then assembles the pipeline on the configured worker.\n" +
			"Until assembly succeeds every edit request is answered with 503.",
		Example: "  qwenedit serve --worker-cmd 'python -m qwen_worker'\n  qwenedit serve --worker-url http://127.0.0.1:9000 --addr :8000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, os.Getenv)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, sf, &cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, closer, err := newLogger(cfg, g.logFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()
			return serve(cmd.Context(), cfg, log, sf.ensureWeights)
		},
	}
	f := cmd.Flags()
	f.StringVar(&sf.addr, "addr", "", "HTTP listen address (defaults QWENEDIT_ADDR or :8000)")
	f.StringVar(&sf.workerURL, "worker-url", "", "URL of an already running pipeline worker")
	f.StringVar(&sf.workerCmd, "worker-cmd", "", "Pipeline worker command to spawn; --host and --port are appended")
	f.BoolVar(&sf.corsEnabled, "cors-enabled", false, "Enable CORS")
	f.StringVar(&sf.corsOrigins, "cors-origins", "", "Comma-separated allowed origins (default *)")
	f.BoolVar(&sf.ensureWeights, "ensure-weights", false, "Fetch missing weights before assembling")
	f.IntVar(&sf.maxQueue, "max-queue-depth", 0, "Maximum edit requests admitted at once")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, sf *serveFlags, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = sf.addr
	}
	if f.Changed("worker-url") {
		cfg.WorkerURL = sf.workerURL
		cfg.WorkerCmd = nil
	}
	if f.Changed("worker-cmd") {
		cfg.WorkerCmd = strings.Fields(sf.workerCmd)
		cfg.WorkerURL = ""
	}
	if f.Changed("cors-enabled") {
		cfg.CORSEnabled = sf.corsEnabled
	}
	if f.Changed("cors-origins") {
		cfg.CORSAllowedOrigins = splitCSV(sf.corsOrigins)
	}
	if f.Changed("max-queue-depth") {
		cfg.MaxQueueDepth = sf.maxQueue
	}
}

// serve runs until ctx is done or SIGINT/SIGTERM arrives.
func serve(parent context.Context, cfg config.Config, log zerolog.Logger, ensureWeights bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pairing, err := cfg.Pairing()
	if err != nil {
		return err
	}
	pub := manager.MultiPublisher{
		manager.LogPublisher{Logger: log},
		manager.NewCounterPublisher(prometheus.DefaultRegisterer),
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Pairing:         pairing,
		Device:          cfg.Device,
		Offload:         cfg.Offload(),
		CacheDir:        cfg.CacheDir,
		NewRuntime:      runtimeFactory(cfg, log, pub),
		AssembleTimeout: time.Duration(cfg.AssembleSeconds) * time.Second,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		MaxWait:         time.Duration(cfg.QueueWaitSeconds) * time.Second,
		Publisher:       pub,
		Logger:          log,
		Registerer:      prometheus.DefaultRegisterer,
	})

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("model", pairing.ModelID).Str("compressed", pairing.CompressedID).
			Str("device", cfg.Device).Str("cache_dir", cfg.CacheDir).Msg("qwenedit listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if rep := manager.SanityCheck(ctx, cfg.WorkerCmd, cfg.WorkerURL); rep.Error != "" {
		log.Warn().Str("worker_mode", rep.WorkerMode).Str("worker", rep.WorkerPath).Str("error", rep.Error).Msg("pipeline worker preflight failed")
	} else {
		log.Info().Str("worker_mode", rep.WorkerMode).Str("worker", rep.WorkerPath).Msg("pipeline worker preflight ok")
	}

	// Assembly runs behind the listener so early requests see 503.
	go func() {
		if ensureWeights {
			if _, err := runFetch(ctx, cfg, log, fetchRun{}); err != nil {
				log.Error().Err(err).Msg("weight fetch failed; assembling with what is cached")
			}
		}
		if err := mgr.Load(ctx); err != nil {
			log.Error().Err(err).Str("model", pairing.ModelID).Str("device", cfg.Device).Msg("pipeline unavailable; serving 503")
			return
		}
		log.Info().Dur("uptime", mgr.Uptime()).Msg("pipeline ready")
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-serveErr:
		log.Error().Err(runErr).Msg("server error")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := mgr.Close(shutdownGrace); err != nil {
		log.Warn().Err(err).Msg("pipeline release error")
	}
	return runErr
}

// runtimeFactory picks the worker runtime: a remote URL wins over a command.
func runtimeFactory(cfg config.Config, log zerolog.Logger, pub manager.EventPublisher) manager.RuntimeFactory {
	switch {
	case cfg.WorkerURL != "":
		return func(context.Context) (manager.Runtime, error) {
			return manager.NewRemoteRuntime(cfg.WorkerURL), nil
		}
	case len(cfg.WorkerCmd) > 0:
		return func(ctx context.Context) (manager.Runtime, error) {
			return manager.NewSubprocessRuntime(ctx, manager.SubprocessConfig{
				Cmd:          cfg.WorkerCmd,
				Env:          []string{"HF_HOME=" + cfg.CacheDir},
				ReadyTimeout: time.Duration(cfg.WorkerReadySeconds) * time.Second,
				Publisher:    pub,
				Logger:       log,
			})
		}
	}
	return nil
}
