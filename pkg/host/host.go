// Package host represents this machine inside the cluster: its identity,
// operating mode, API endpoint and attributes. It wires the ready gate,
// the cluster id coordinator and the leader-only reconciliation scheduler
// together.
package host

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dd0wney/cluso-host/pkg/backoff"
	"github.com/dd0wney/cluso-host/pkg/cluster"
	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
	"github.com/dd0wney/cluso-host/pkg/orchestration"
	"github.com/dd0wney/cluso-host/pkg/readygate"
	"github.com/dd0wney/cluso-host/pkg/scheduler"
)

// Defaults applied by New
const (
	DefaultAPIIP        = "localhost"
	DefaultAPIPort      = 8080
	DefaultOrchestrator = "kubernetes"
)

// Config describes this host
type Config struct {
	HostID           string
	ClusterID        string
	RequireClusterID bool   // refuse to start without a configured cluster id
	Mode             string // "leader" or "follower"
	Orchestrator     string
	APIIP            string
	APIPort          int
	PreferredNIC     string
	PublicAddress    string
	PrivateAddress   string

	// Cluster id negotiation; zero values take the coordinator defaults
	Key            string
	Retry          backoff.Policy
	AttemptTimeout time.Duration

	ReconcileInterval time.Duration // default: scheduler.DefaultInterval
}

// Dependencies are the collaborators a Host is built from
type Dependencies struct {
	Store   kvstore.Store
	API     orchestration.API
	Logger  logging.Logger
	Metrics *metrics.Registry

	// Test hooks
	SleepFunc   backoff.SleepFunc
	IDGenerator func() string
}

// Host is the host identity of one cluster member
type Host struct {
	config Config
	mode   cluster.Mode
	api    orchestration.API
	logger logging.Logger

	gate        *readygate.Gate
	coordinator *cluster.Coordinator
	scheduler   *scheduler.Scheduler

	mu        sync.RWMutex
	clusterID string

	attrMu sync.RWMutex
	attrs  map[string]any

	lifecycleMu sync.Mutex
	closed      bool

	metricsRegistry *metrics.Registry
}

// New validates cfg and builds the host. Nothing runs until Start.
func New(cfg Config, deps Dependencies) (*Host, error) {
	if cfg.HostID == "" {
		return nil, ErrMissingHostID
	}
	mode, err := cluster.ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, cfg.Mode)
	}
	if cfg.RequireClusterID && cfg.ClusterID == "" {
		return nil, ErrMissingClusterID
	}
	if deps.Store == nil {
		return nil, ErrNilStore
	}
	if deps.API == nil {
		return nil, ErrNilAPI
	}

	if cfg.APIIP == "" {
		cfg.APIIP = DefaultAPIIP
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = DefaultAPIPort
	}
	if cfg.Orchestrator == "" {
		cfg.Orchestrator = DefaultOrchestrator
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(logging.HostID(cfg.HostID))

	registry := deps.Metrics
	if registry == nil {
		registry = metrics.DefaultRegistry()
	}

	h := &Host{
		config:          cfg,
		mode:            mode,
		api:             deps.API,
		logger:          logger,
		attrs:           make(map[string]any),
		metricsRegistry: registry,
	}

	h.gate = readygate.New(
		readygate.WithLogger(logger.With(logging.Component("ready-gate"))),
		readygate.WithCallbackHook(registry.ReadyCallbacksTotal.Inc),
	)

	coordConfig := cluster.DefaultCoordinatorConfig(mode)
	coordConfig.ClusterID = cfg.ClusterID
	if cfg.Key != "" {
		coordConfig.Key = cfg.Key
	}
	if cfg.Retry != (backoff.Policy{}) {
		coordConfig.Retry = cfg.Retry
	}
	if cfg.AttemptTimeout > 0 {
		coordConfig.AttemptTimeout = cfg.AttemptTimeout
	}

	opts := []cluster.Option{
		cluster.WithLogger(logger),
		cluster.WithMetrics(registry),
		cluster.WithChangeHook(h.setClusterID),
	}
	if deps.SleepFunc != nil {
		opts = append(opts, cluster.WithSleepFunc(deps.SleepFunc))
	}
	if deps.IDGenerator != nil {
		opts = append(opts, cluster.WithIDGenerator(deps.IDGenerator))
	}
	h.coordinator, err = cluster.NewCoordinator(coordConfig, deps.Store, h.gate, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster id coordinator: %w", err)
	}

	if mode == cluster.ModeLeader {
		h.scheduler = scheduler.New(deps.API, mode,
			scheduler.WithInterval(cfg.ReconcileInterval),
			scheduler.WithLogger(logger),
			scheduler.WithMetrics(registry))
	}

	h.attrs = MergeAttributes(h.attrs, h.identityAttributes())
	registry.SetHostRole(mode.String())
	registry.SetReady(false)

	return h, nil
}

func (h *Host) identityAttributes() map[string]any {
	attrs := map[string]any{
		"id":           h.config.HostID,
		"mode":         h.mode.String(),
		"orchestrator": h.config.Orchestrator,
	}
	address := map[string]any{}
	if h.config.PublicAddress != "" {
		address["public"] = h.config.PublicAddress
	}
	if h.config.PrivateAddress != "" {
		address["private"] = h.config.PrivateAddress
	}
	if len(address) > 0 {
		attrs["address"] = address
	}
	return attrs
}

// Start begins cluster id negotiation. A leader's reconciliation is armed
// here but only starts once the host is ready, so a leader that never
// publishes its id never reconciles.
func (h *Host) Start(ctx context.Context) error {
	if err := h.coordinator.Start(ctx); err != nil {
		return err
	}
	if h.scheduler != nil {
		h.gate.OnReady(func() { h.startReconciliation(ctx) })
	}
	h.logger.Info("host started",
		logging.Mode(h.mode.String()),
		logging.String("orchestrator", h.config.Orchestrator),
		logging.String("api", h.APIEndpoint()))
	return nil
}

func (h *Host) startReconciliation(ctx context.Context) {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()
	if h.closed {
		return
	}
	h.scheduler.Start(ctx)
}

// Close stops everything Start launched. The store is left open.
func (h *Host) Close() {
	h.lifecycleMu.Lock()
	h.closed = true
	h.lifecycleMu.Unlock()

	if h.scheduler != nil {
		h.scheduler.Stop()
	}
	h.coordinator.Stop()
}

func (h *Host) setClusterID(id string) {
	h.mu.Lock()
	h.clusterID = id
	h.mu.Unlock()
}

// ClusterID returns the agreed cluster id, or the configured one until
// agreement is reached
func (h *Host) ClusterID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clusterID != "" {
		return h.clusterID
	}
	return h.config.ClusterID
}

// Attributes returns a deep copy of the attribute store
func (h *Host) Attributes() map[string]any {
	h.attrMu.RLock()
	defer h.attrMu.RUnlock()
	return cloneAttributes(h.attrs)
}

// SetAttributes deep-merges partial into the attribute store
func (h *Host) SetAttributes(partial map[string]any) {
	h.attrMu.Lock()
	defer h.attrMu.Unlock()
	h.attrs = MergeAttributes(h.attrs, partial)
}

// API returns the orchestration API handle
func (h *Host) API() orchestration.API {
	return h.api
}

// OnReady runs cb once the cluster id is known
func (h *Host) OnReady(cb func()) {
	h.gate.OnReady(cb)
}

// Once registers cb for a lifecycle event; only readygate.EventReady is
// supported
func (h *Host) Once(event readygate.Event, cb func()) {
	h.gate.Once(event, cb)
}

// IsReady reports whether the cluster id is known
func (h *Host) IsReady() bool {
	return h.gate.IsReady()
}

// Wait blocks until the host is ready or ctx is done
func (h *Host) Wait(ctx context.Context) error {
	return h.gate.Wait(ctx)
}

// Coordinator exposes the cluster id coordinator
func (h *Host) Coordinator() *cluster.Coordinator {
	return h.coordinator
}

// Reconciling reports whether the reconciliation loops are running
func (h *Host) Reconciling() bool {
	return h.scheduler != nil && h.scheduler.Running()
}

// OperatingMode returns "leader" or "follower"
func (h *Host) OperatingMode() string {
	return h.mode.String()
}

// Mode returns the operating mode
func (h *Host) Mode() cluster.Mode {
	return h.mode
}

// HostID returns the host id
func (h *Host) HostID() string {
	return h.config.HostID
}

// Orchestrator returns the orchestrator name
func (h *Host) Orchestrator() string {
	return h.config.Orchestrator
}

// APIEndpoint returns the host API address as host:port
func (h *Host) APIEndpoint() string {
	return net.JoinHostPort(h.config.APIIP, strconv.Itoa(h.config.APIPort))
}

// APIIP returns the host API address
func (h *Host) APIIP() string {
	return h.config.APIIP
}

// APIPort returns the host API port
func (h *Host) APIPort() int {
	return h.config.APIPort
}

// PreferredNIC returns the preferred network interface, if configured
func (h *Host) PreferredNIC() string {
	return h.config.PreferredNIC
}
