// Package sentinel embeds the AegisSentinel decision engine: telemetry comes
// in from collectors, per-machine agents detect threats, the safety circuit
// tiers them, and every decision is journaled and reported.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/AegisSentinel/internal/adapters/inventory"
	"github.com/ghalamif/AegisSentinel/internal/adapters/journal"
	"github.com/ghalamif/AegisSentinel/internal/adapters/mqttbus"
	"github.com/ghalamif/AegisSentinel/internal/adapters/natsbus"
	"github.com/ghalamif/AegisSentinel/internal/adapters/observability"
	"github.com/ghalamif/AegisSentinel/internal/adapters/opcua"
	"github.com/ghalamif/AegisSentinel/internal/adapters/queue"
	"github.com/ghalamif/AegisSentinel/internal/adapters/sink"
	"github.com/ghalamif/AegisSentinel/internal/adapters/transform"
	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/internal/app/approval"
	"github.com/ghalamif/AegisSentinel/internal/app/dispatch"
	"github.com/ghalamif/AegisSentinel/internal/app/pipeline"
	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
	"github.com/ghalamif/AegisSentinel/internal/safety"
)

// ErrTelemetryRejected wraps transformer failures returned by Ingest.
var ErrTelemetryRejected = errors.New("sentinel: telemetry rejected")

// ErrNoAgents is returned when no configured agent could be built.
var ErrNoAgents = errors.New("sentinel: no agents could be built")

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	collectors    []Collector
	sinks         []IncidentSink
	actuator      Actuator
	transformer   Transformer
	journal       Journal
	observability Observability
	logger        *slog.Logger
	registry      *prometheus.Registry
}

// WithCollector adds a telemetry source next to the configured ones.
func WithCollector(c Collector) Option {
	return func(o *overrides) { o.collectors = append(o.collectors, c) }
}

// WithSink adds an incident sink next to the configured ones.
func WithSink(s IncidentSink) Option {
	return func(o *overrides) { o.sinks = append(o.sinks, s) }
}

// WithActuator replaces the MQTT command path, e.g. with a Modbus or SECS/GEM gateway.
func WithActuator(a Actuator) Option {
	return func(o *overrides) { o.actuator = a }
}

func WithTransformer(t Transformer) Option {
	return func(o *overrides) { o.transformer = t }
}

// WithJournal lets callers bring their own decision journal.
func WithJournal(j Journal) Option {
	return func(o *overrides) { o.journal = j }
}

func WithObservability(obs Observability) Option {
	return func(o *overrides) { o.observability = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *overrides) { o.logger = l }
}

// WithRegistry sets the Prometheus registry metrics are registered on and
// served from.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *overrides) { o.registry = r }
}

// Runtime wires collectors, agents, the safety circuit, approvals and the
// reporting pipeline together and supervises their goroutines.
type Runtime struct {
	cfg         Config
	log         *slog.Logger
	obs         ports.Observability
	registry    *prometheus.Registry
	journal     ports.Journal
	queue       ports.IncidentQueue
	pipe        *pipeline.Pipeline
	dispatcher  *dispatch.Dispatcher
	broker      *approval.Broker
	transformer ports.Transformer
	collectors  []ports.Collector
	sinks       []ports.IncidentSink
	agents      []agents.Agent
	agentTypes  map[string]string
	skipped     []error
	inventory   *inventory.Client
	nats        *nats.Conn
	mqtt        mqtt.Client
	closers     []func() error

	mu           sync.Mutex
	started      bool
	stopped      bool
	raw          chan *domain.Telemetry
	group        *errgroup.Group
	cancelRun    context.CancelFunc
	cancelIntake context.CancelFunc
	intakeDone   chan struct{}
	servers      []*http.Server
	natsSub      *nats.Subscription
}

// NewRuntime connects the configured transports and stores, builds the agent
// fleet and replays unreported journal entries. Agents with a bad
// configuration are skipped and reported through Skipped.
func NewRuntime(ctx context.Context, cfg *Config, opts ...Option) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("sentinel: config is required")
	}
	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := &Runtime{cfg: *cfg, agentTypes: map[string]string{}}
	r.cfg.ApplyDefaults()
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = r.closeAll()
		}
	}()

	r.log = o.logger
	if r.log == nil {
		r.log = slog.Default()
	}
	r.registry = o.registry
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
		r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	r.obs = o.observability
	if r.obs == nil {
		r.obs = observability.NewPromObs(r.registry, r.log)
	}

	r.journal = o.journal
	if r.journal == nil {
		fj, err := journal.Open(r.cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		r.journal = fj
	}
	r.closers = append(r.closers, r.journal.Close)
	r.queue = queue.NewMemQueue(r.cfg.Policy.MaxQueueLen)

	actuator := o.actuator
	if err := r.connectTransports(ctx, &actuator); err != nil {
		return nil, err
	}
	if err := r.openStores(ctx); err != nil {
		return nil, err
	}
	r.collectors = append(r.collectors, o.collectors...)
	r.sinks = append(r.sinks, o.sinks...)

	r.transformer = o.transformer
	if r.transformer == nil {
		r.transformer = transform.Identity()
		if r.cfg.Transform != nil {
			if r.transformer, err = transform.New(*r.cfg.Transform); err != nil {
				return nil, fmt.Errorf("transform config: %w", err)
			}
		}
	}

	if err := r.buildAgents(actuator); err != nil {
		return nil, err
	}

	if r.broker, err = approval.NewBroker(r.cfg.Approvals.Capacity, r.obs); err != nil {
		return nil, err
	}
	r.pipe = pipeline.New(r.journal, r.queue, r.sinks, r.cfg.Policy, r.obs)

	reg := dispatch.NewRegistry()
	for _, a := range r.agents {
		if err := reg.Add(a); err != nil {
			return nil, err
		}
	}
	r.dispatcher = dispatch.New(reg, safety.New(r.cfg.SafetyPolicy()), r.obs,
		dispatch.WithApprovals(r.broker),
		dispatch.WithRecorder(r.pipe),
		dispatch.WithInboxSize(r.cfg.Dispatch.InboxSize),
	)

	if _, err := r.pipe.Replay(); err != nil {
		r.obs.LogError("journal_replay_incomplete", err)
	}
	return r, nil
}

func (r *Runtime) connectTransports(ctx context.Context, actuator *ports.Actuator) error {
	if r.cfg.MQTT != nil {
		client, err := mqttbus.Connect(ctx, *r.cfg.MQTT, r.log)
		if err != nil {
			return err
		}
		r.mqtt = client
		r.closers = append(r.closers, func() error {
			client.Disconnect(250)
			return nil
		})
		col := mqttbus.NewCollector(client, *r.cfg.MQTT, r.log)
		col.OnDrop(func() { r.obs.IncCounter(observability.TelemetryDropped, 1) })
		r.collectors = append(r.collectors, col)
		r.sinks = append(r.sinks, mqttbus.NewIncidentSink(client, *r.cfg.MQTT))
		if *actuator == nil {
			*actuator = mqttbus.NewActuator(client, *r.cfg.MQTT)
		}
	}
	if r.cfg.NATS != nil {
		nc, err := natsbus.Connect(*r.cfg.NATS, r.log)
		if err != nil {
			return err
		}
		r.nats = nc
		r.closers = append(r.closers, nc.Drain)
		r.sinks = append(r.sinks, natsbus.NewIncidentSink(nc, *r.cfg.NATS))
	}
	if r.cfg.OPCUA != nil {
		col, err := opcua.NewCollector(*r.cfg.OPCUA, r.log)
		if err != nil {
			return err
		}
		r.collectors = append(r.collectors, col)
	}
	return nil
}

func (r *Runtime) openStores(ctx context.Context) error {
	if r.cfg.Timescale != nil {
		db, err := sink.OpenTimescale(ctx, r.cfg.Timescale.ConnString)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, db.Close)
		r.sinks = append(r.sinks, sink.NewTimescaleSink(db, r.cfg.Timescale.Table))
	}
	if r.cfg.SQLite != nil {
		s, err := sink.OpenSQLite(r.cfg.SQLite.Path)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, s.Close)
		r.sinks = append(r.sinks, s)
	}
	if r.cfg.Inventory != nil {
		r.inventory = inventory.NewClient(*r.cfg.Inventory, r.log)
		r.sinks = append(r.sinks, r.inventory)
	}
	return nil
}

func (r *Runtime) buildAgents(actuator ports.Actuator) error {
	agentOpts := []agents.Option{agents.WithLogger(r.log)}
	if actuator != nil {
		agentOpts = append(agentOpts, agents.WithActuator(actuator))
	}
	specs := r.cfg.AgentSpecs()
	built, errs := agents.BuildAll(specs, agentOpts...)
	for _, err := range errs {
		r.obs.IncCounter("aegis_agents_skipped_total", 1)
		r.obs.LogError("agent_skipped", err)
	}
	if len(built) == 0 {
		return errors.Join(append([]error{ErrNoAgents}, errs...)...)
	}
	for _, s := range specs {
		r.agentTypes[s.MachineID] = s.Type
	}
	r.agents = built
	r.skipped = errs
	return nil
}

// Start launches the agent workers, collectors, report loop and HTTP
// endpoints and returns. Everything keeps running until Shutdown.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("sentinel: runtime already started")
	}
	r.started = true

	// cancelled by Shutdown, not by ctx
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	intakeCtx, cancelIntake := context.WithCancel(gctx)
	r.group, r.cancelRun, r.cancelIntake = g, cancelRun, cancelIntake

	r.dispatcher.Start(gctx)
	g.Go(func() error { return r.pipe.Run(gctx) })

	r.raw = make(chan *domain.Telemetry, r.cfg.Dispatch.InboxSize)
	r.intakeDone = make(chan struct{})
	g.Go(func() error {
		defer close(r.intakeDone)
		return r.intake(intakeCtx)
	})
	for _, c := range r.collectors {
		if err := c.Start(r.raw); err != nil {
			cancelRun()
			return fmt.Errorf("start collector: %w", err)
		}
	}

	r.serve(g, r.cfg.Approvals.Addr, approval.NewServer(r.broker, r.log).Handler())
	r.serve(g, r.cfg.Metrics.Addr, r.metricsHandler())

	if r.nats != nil {
		sub, err := natsbus.NewDecisionListener(r.broker, r.log).Subscribe(r.nats, *r.cfg.NATS)
		if err != nil {
			cancelRun()
			return err
		}
		r.natsSub = sub
	}
	if r.inventory != nil {
		ids := r.registerAgents(gctx)
		g.Go(func() error { return r.inventory.HeartbeatLoop(gctx, ids) })
	}
	g.Go(func() error {
		r.recordGauges(gctx, time.Second)
		return nil
	})

	r.obs.LogInfo("sentinel started",
		ports.F("agents", len(r.agents)),
		ports.F("skipped", len(r.skipped)),
		ports.F("collectors", len(r.collectors)),
		ports.F("sinks", len(r.sinks)))
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled or a supervised
// goroutine fails, then shuts down.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		_ = r.closeAll()
		return err
	}
	var runErr error
	done := make(chan error, 1)
	go func() { done <- r.group.Wait() }()
	select {
	case <-ctx.Done():
	case runErr = <-done:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Dispatch.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Ingest calibrates t and hands it to every agent that watches its machine.
// It blocks while an agent's inbox is full.
func (r *Runtime) Ingest(ctx context.Context, t *Telemetry) error {
	out, err := r.transformer.Transform(t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTelemetryRejected, err)
	}
	return r.dispatcher.Dispatch(ctx, out)
}

func (r *Runtime) intake(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-r.raw:
			if t == nil {
				continue
			}
			err := r.Ingest(ctx, t)
			switch {
			case err == nil:
			case errors.Is(err, ErrTelemetryRejected):
				r.obs.LogError("telemetry_rejected", err, ports.F("machine_id", t.MachineID))
			case errors.Is(err, dispatch.ErrStopped), ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
	}
}

// Shutdown stops intake first, drains the agents and in-flight executions,
// flushes the report queue and finally closes every connection.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	var errs []error
	for _, c := range r.collectors {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if started {
		if r.natsSub != nil {
			if err := r.natsSub.Unsubscribe(); err != nil {
				errs = append(errs, err)
			}
		}
		r.cancelIntake()
		<-r.intakeDone
		if err := r.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
		for _, srv := range r.servers {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		r.cancelRun()
		if err := r.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, r.closeAll())
	return errors.Join(errs...)
}

func (r *Runtime) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Approve executes a pending Yellow decision on the operator's behalf.
func (r *Runtime) Approve(ctx context.Context, id, operator string) error {
	return r.broker.Approve(ctx, id, operator)
}

func (r *Runtime) Reject(id, operator, reason string) error {
	return r.broker.Reject(id, operator, reason)
}

// PendingApprovals lists Yellow decisions oldest first.
func (r *Runtime) PendingApprovals() []PendingApproval {
	return r.broker.Pending()
}

// Agents returns the agents that were built.
func (r *Runtime) Agents() []Agent {
	return append([]Agent(nil), r.agents...)
}

// Skipped returns the configuration error of every agent that was not built.
func (r *Runtime) Skipped() []error {
	return append([]error(nil), r.skipped...)
}

// Registry is the Prometheus registry the runtime's metrics live on.
func (r *Runtime) Registry() *prometheus.Registry { return r.registry }

func (r *Runtime) serve(g *errgroup.Group, addr string, h http.Handler) {
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	r.servers = append(r.servers, srv)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
}

func (r *Runtime) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (r *Runtime) registerAgents(ctx context.Context) []string {
	ids := make([]string, 0, len(r.agents))
	for _, a := range r.agents {
		reg := inventory.NewRegistration(a.ID(), r.agentTypes[a.ID()], a.Describe())
		if err := r.inventory.Register(ctx, reg); err != nil {
			r.obs.LogError("agent_registration_failed", err, ports.F("agent_id", a.ID()))
			continue
		}
		ids = append(ids, a.ID())
	}
	return ids
}

func (r *Runtime) recordGauges(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.obs.SetGauge("aegis_journal_size_bytes", float64(r.journal.Stats().SizeBytes))
			r.obs.SetGauge("aegis_queue_length", float64(r.queue.Len()))
			r.obs.SetGauge("aegis_pending_approvals", float64(r.broker.Len()))
		}
	}
}
