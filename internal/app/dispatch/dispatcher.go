// Package dispatch routes telemetry to agents and acts on their decisions.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
	"github.com/ghalamif/AegisSentinel/internal/safety"
)

var ErrStopped = errors.New("dispatcher stopped")

type Option func(*Dispatcher)

func WithApprovals(q ports.ApprovalQueue) Option {
	return func(d *Dispatcher) { d.approvals = q }
}

func WithRecorder(r ports.DecisionRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithInboxSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inboxSize = n
		}
	}
}

// WithExecTimeout bounds a single Green execution.
func WithExecTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.execTimeout = timeout
		}
	}
}

type worker struct {
	agent agents.Agent
	inbox chan *domain.Telemetry
}

// Dispatcher gives every agent its own goroutine and inbox, so Analyze is
// only ever called from one goroutine per agent. Green actions run on
// separate goroutines whose context is detached from shutdown.
type Dispatcher struct {
	registry  *Registry
	circuit   *safety.Circuit
	obs       ports.Observability
	approvals ports.ApprovalQueue
	recorder  ports.DecisionRecorder

	inboxSize   int
	execTimeout time.Duration

	mu      sync.RWMutex
	stopped bool
	workers map[string]*worker

	workerWG sync.WaitGroup
	execWG   sync.WaitGroup
}

func New(reg *Registry, circuit *safety.Circuit, obs ports.Observability, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		circuit:     circuit,
		obs:         obs,
		inboxSize:   64,
		execTimeout: 30 * time.Second,
		workers:     map[string]*worker{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches one worker per registered agent.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.registry.Agents() {
		if _, running := d.workers[a.ID()]; running {
			continue
		}
		w := &worker{agent: a, inbox: make(chan *domain.Telemetry, d.inboxSize)}
		d.workers[a.ID()] = w
		d.workerWG.Add(1)
		go d.work(ctx, w)
	}
	d.obs.SetGauge("aegis_agents_active", float64(len(d.workers)))
}

// Dispatch hands t to every agent that routes for its machine. It blocks
// while an inbox is full.
func (d *Dispatcher) Dispatch(ctx context.Context, t *domain.Telemetry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	d.obs.IncCounter("aegis_telemetry_received_total", 1)

	targets := d.registry.Route(t.MachineID)
	if len(targets) == 0 {
		d.obs.IncCounter("aegis_telemetry_unrouted_total", 1)
		return nil
	}
	for _, a := range targets {
		w, ok := d.workers[a.ID()]
		if !ok {
			continue
		}
		select {
		case w.inbox <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run dispatches from in until it is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan *domain.Telemetry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-in:
			if !ok {
				return nil
			}
			if err := d.Dispatch(ctx, t); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Shutdown stops intake, lets every worker drain its inbox and waits for
// in-flight executions until ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		for _, w := range d.workers {
			close(w.inbox)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workerWG.Wait()
		d.execWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context, w *worker) {
	defer d.workerWG.Done()
	for t := range w.inbox {
		start := time.Now()
		threats := w.agent.Analyze(t)
		d.obs.ObserveLatency("aegis_analysis_latency_seconds", time.Since(start).Seconds())
		for _, th := range threats {
			d.obs.IncLabeled("aegis_threats_total", string(th.Kind()), 1)
			d.handle(ctx, w.agent, d.circuit.Evaluate(w.agent, th))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, a agents.Agent, dec domain.Decision) {
	d.obs.IncLabeled("aegis_decisions_total", dec.Tier.String(), 1)
	fields := []ports.Field{
		ports.F("machine_id", dec.Threat.Machine()),
		ports.F("agent_id", dec.AgentID),
		ports.F("threat", string(dec.Threat.Kind())),
		ports.F("severity", dec.Threat.Severity().String()),
		ports.F("tier", dec.Tier.String()),
		ports.F("action", string(dec.Action.Type())),
	}

	if d.recorder != nil {
		if err := d.recorder.Record(context.WithoutCancel(ctx), dec); err != nil {
			if dec.Tier == domain.TierRed {
				d.obs.LogCritical("red decision not recorded", err, fields...)
			} else {
				d.obs.LogError("decision not recorded", err, fields...)
			}
		}
	}

	switch dec.Tier {
	case domain.TierGreen:
		d.execute(ctx, a, dec, fields)
	case domain.TierYellow:
		if d.approvals == nil {
			d.obs.LogError("no approval queue, decision left pending", nil, fields...)
			return
		}
		id, err := d.approvals.Submit(dec, a)
		if err != nil {
			d.obs.LogError("approval submit failed", err, fields...)
			return
		}
		d.obs.SetGauge("aegis_pending_approvals", float64(d.approvals.Len()))
		d.obs.LogInfo("decision awaiting approval", append(fields, ports.F("approval_id", id))...)
	case domain.TierRed:
		d.obs.LogCritical("red tier alert: operator intervention required", nil,
			append(fields, ports.F("detail", dec.Action.Describe()))...)
	}
}

// execute runs a Green action without blocking the agent's worker. The
// command must not be abandoned halfway, so shutdown does not cancel it.
func (d *Dispatcher) execute(ctx context.Context, a agents.Agent, dec domain.Decision, fields []ports.Field) {
	d.execWG.Add(1)
	go func() {
		defer d.execWG.Done()
		execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.execTimeout)
		defer cancel()
		if err := a.Execute(execCtx, dec.Action); err != nil {
			d.obs.IncCounter("aegis_actions_failed_total", 1)
			d.obs.LogError("action execution failed", err, fields...)
			return
		}
		d.obs.IncCounter("aegis_actions_executed_total", 1)
		d.obs.LogInfo("action executed", fields...)
	}()
}
