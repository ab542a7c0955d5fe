package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-host/pkg/backoff"
	"github.com/dd0wney/cluso-host/pkg/config"
	"github.com/dd0wney/cluso-host/pkg/health"
	"github.com/dd0wney/cluso-host/pkg/host"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
	"github.com/dd0wney/cluso-host/pkg/orchestration"
)

const shutdownTimeout = 15 * time.Second

func newRunCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the host agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

// hostConfig maps the file configuration onto the host's
func hostConfig(cfg config.Config) host.Config {
	return host.Config{
		HostID:           cfg.HostID,
		ClusterID:        cfg.ClusterID,
		RequireClusterID: cfg.RequireClusterID,
		Mode:             cfg.Mode,
		Orchestrator:     cfg.Orchestrator,
		APIIP:            cfg.API.IP,
		APIPort:          cfg.API.Port,
		PreferredNIC:     cfg.PreferredNIC,
		PublicAddress:    cfg.PublicAddress,
		PrivateAddress:   cfg.PrivateAddress,
		Key:              cfg.Store.Key,
		Retry: backoff.Policy{
			Initial:     cfg.Coordination.RetryInitial,
			MaxAttempts: cfg.Coordination.RetryAttempts,
		},
		AttemptTimeout:    cfg.Coordination.AttemptTimeout,
		ReconcileInterval: cfg.Reconcile.Interval,
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.Logging.Level))
	logging.SetDefaultLogger(logger)
	registry := metrics.DefaultRegistry()

	b, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn("failed to close store", logging.Error(err))
		}
	}()

	api := orchestration.NewHTTPClient(cfg.OrchestratorAPI.IP, cfg.OrchestratorAPI.Port)
	h, err := host.New(hostConfig(cfg), host.Dependencies{
		Store:   b.store,
		API:     api,
		Logger:  logger,
		Metrics: registry,
	})
	if err != nil {
		return err
	}

	h.OnReady(func() {
		logger.Info("cluster id agreed, host accepting work",
			logging.HostID(h.HostID()),
			logging.ClusterID(h.ClusterID()))
	})

	if err := h.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           newMux(h, b, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", logging.String("addr", cfg.HTTP.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		if err != nil {
			logger.Error("http server failed", logging.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http server shutdown", logging.Error(serr))
	}
	h.Close()
	logger.Info("host stopped")
	return err
}

func newMux(h *host.Host, b *backend, registry *metrics.Registry) *http.ServeMux {
	hc := health.NewHealthChecker()

	hc.RegisterReadinessCheck("ready_gate", health.ReadyGateCheck(h.IsReady))
	hc.RegisterLivenessCheck("process", health.SimpleCheck("process"))

	clusterState := func() (bool, string, error) {
		c := h.Coordinator()
		id, _ := c.ClusterID()
		select {
		case <-c.Settled():
			return true, id, c.Err()
		default:
			return false, id, nil
		}
	}
	hc.RegisterCheck("ready_gate", health.ReadyGateCheck(h.IsReady))
	hc.RegisterCheck("cluster_id", health.ClusterIDCheck(clusterState))
	hc.RegisterCheck("store", health.StoreCheck(b.ping, 2*time.Second))
	hc.RegisterCheck("reconciler", health.ReconcilerCheck(h.OperatingMode() == "leader", h.Reconciling))

	mux := http.NewServeMux()
	mux.Handle("/health", hc.HTTPHandler())
	mux.Handle("/health/ready", hc.ReadinessHandler())
	mux.Handle("/health/live", hc.LivenessHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/attributes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_ = yaml.NewEncoder(w).Encode(describe(h))
	})
	return mux
}
