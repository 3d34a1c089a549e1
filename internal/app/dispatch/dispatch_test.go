package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
	"github.com/ghalamif/AegisSentinel/internal/safety"
)

// scriptedAgent raises one threat per frame whose severity comes from the
// "severity" metric and maps it through a fixed table.
type scriptedAgent struct {
	id     string
	prefix string
	table  map[domain.Severity]struct {
		tier   domain.ResponseTier
		action domain.Action
	}

	mu       sync.Mutex
	seen     []string
	executed []domain.Action
	execErr  error
	execGate chan struct{}
}

func newScripted(id, prefix string) *scriptedAgent {
	a := &scriptedAgent{id: id, prefix: prefix}
	a.table = map[domain.Severity]struct {
		tier   domain.ResponseTier
		action domain.Action
	}{
		domain.SeverityLow:      {domain.TierGreen, domain.AdjustParameter{Name: "feed", Value: 0.9, Unit: "percent"}},
		domain.SeverityMedium:   {domain.TierGreen, domain.ReduceSpeed{Percent: 50}},
		domain.SeverityHigh:     {domain.TierYellow, domain.ScheduleMaintenance{Component: "spindle", Urgency: "high"}},
		domain.SeverityCritical: {domain.TierRed, domain.EmergencyStop{}},
	}
	return a
}

func (a *scriptedAgent) ID() string { return a.id }

func (a *scriptedAgent) Claims(machineID string) bool {
	return machineID == a.id || (a.prefix != "" && strings.HasPrefix(machineID, a.prefix))
}

func (a *scriptedAgent) Analyze(t *domain.Telemetry) []domain.Threat {
	a.mu.Lock()
	a.seen = append(a.seen, t.MachineID)
	a.mu.Unlock()
	sev := domain.Severity(t.Metric("severity", -1))
	if sev < 0 {
		return nil
	}
	return []domain.Threat{domain.BearingFailure{ThreatBase: domain.ThreatBase{MachineID: t.MachineID, Level: sev}, Vibration: 0.03}}
}

func (a *scriptedAgent) Decide(t domain.Threat) (domain.ResponseTier, domain.Action) {
	row := a.table[t.Severity()]
	return row.tier, row.action
}

func (a *scriptedAgent) Execute(ctx context.Context, action domain.Action) error {
	if a.execGate != nil {
		select {
		case <-a.execGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executed = append(a.executed, action)
	return a.execErr
}

func (a *scriptedAgent) Describe() domain.AgentMetadata { return domain.AgentMetadata{Name: "scripted"} }

func (a *scriptedAgent) executedActions() []domain.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Action(nil), a.executed...)
}

var _ agents.Agent = (*scriptedAgent)(nil)

type stubObs struct {
	mu       sync.Mutex
	counters map[string]float64
	labeled  map[string]float64
	critical []string
	errors   []string
}

func newStubObs() *stubObs {
	return &stubObs{counters: map[string]float64{}, labeled: map[string]float64{}}
}

func (s *stubObs) LogInfo(string, ...ports.Field) {}

func (s *stubObs) LogError(msg string, _ error, _ ...ports.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *stubObs) LogCritical(msg string, _ error, _ ...ports.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.critical = append(s.critical, msg)
}

func (s *stubObs) IncCounter(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += v
}

func (s *stubObs) IncLabeled(name, label string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labeled[name+"/"+label] += v
}

func (s *stubObs) ObserveLatency(string, float64)                          {}
func (s *stubObs) SetGauge(string, float64)                                {}
func (s *stubObs) RecordDLQ(ports.JournalEntryID, *domain.Incident, error) {}

func (s *stubObs) counter(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

type stubApprovals struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (s *stubApprovals) Submit(d domain.Decision, _ ports.Executor) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return "appr-1", nil
}

func (s *stubApprovals) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

type stubRecorder struct {
	mu        sync.Mutex
	decisions []domain.Decision
	err       error
}

func (r *stubRecorder) Record(_ context.Context, d domain.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return r.err
}

func frame(machine string, sev float64) *domain.Telemetry {
	return &domain.Telemetry{MachineID: machine, Timestamp: time.Now(), Metrics: map[string]float64{"severity": sev}}
}

func TestRegistryRoutesExactIDBeforePrefix(t *testing.T) {
	reg := NewRegistry()
	cnc1 := newScripted("CNC-001", "CNC-")
	cnc2 := newScripted("CNC-002", "CNC-")
	require.NoError(t, reg.Add(cnc1))
	require.NoError(t, reg.Add(cnc2))
	assert.Error(t, reg.Add(newScripted("CNC-001", "CNC-")))

	got := reg.Route("CNC-002")
	require.Len(t, got, 1)
	assert.Equal(t, "CNC-002", got[0].ID())

	assert.Len(t, reg.Route("CNC-077"), 2)
	assert.Empty(t, reg.Route("FAC-001"))
	assert.Equal(t, 2, reg.Len())
}

func TestDispatcherActsPerTier(t *testing.T) {
	agent := newScripted("CNC-001", "CNC-")
	reg := NewRegistry()
	require.NoError(t, reg.Add(agent))

	obs := newStubObs()
	approvals := &stubApprovals{}
	recorder := &stubRecorder{}
	d := New(reg, safety.New(safety.DefaultPolicy()), obs, WithApprovals(approvals), WithRecorder(recorder))

	ctx := context.Background()
	d.Start(ctx)
	for _, sev := range []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical} {
		require.NoError(t, d.Dispatch(ctx, frame("CNC-001", float64(sev))))
	}
	require.NoError(t, d.Dispatch(ctx, frame("FAC-009", 0)))
	require.NoError(t, d.Shutdown(ctx))

	// only the low-severity adjustment runs; the 50% speed cut is vetoed
	assert.Equal(t, []domain.Action{domain.AdjustParameter{Name: "feed", Value: 0.9, Unit: "percent"}}, agent.executedActions())

	require.Len(t, approvals.decisions, 2)
	assert.Equal(t, domain.ReduceSpeed{Percent: 50}, approvals.decisions[0].Action)
	assert.Equal(t, domain.TierYellow, approvals.decisions[0].Tier)
	assert.True(t, approvals.decisions[0].RequiresApproval)
	assert.Equal(t, domain.ScheduleMaintenance{Component: "spindle", Urgency: "high"}, approvals.decisions[1].Action)

	require.Len(t, recorder.decisions, 4)
	assert.Equal(t, domain.TierRed, recorder.decisions[3].Tier)

	assert.Equal(t, 5.0, obs.counter("aegis_telemetry_received_total"))
	assert.Equal(t, 1.0, obs.counter("aegis_telemetry_unrouted_total"))
	assert.Equal(t, 1.0, obs.counter("aegis_actions_executed_total"))
	assert.Equal(t, 2.0, obs.labeled["aegis_decisions_total/yellow"])
	assert.Equal(t, 4.0, obs.labeled["aegis_threats_total/bearing_failure"])
	assert.Len(t, obs.critical, 1)

	assert.ErrorIs(t, d.Dispatch(ctx, frame("CNC-001", 0)), ErrStopped)
}

func TestDispatcherSerializesPerMachine(t *testing.T) {
	reg := NewRegistry()
	a := newScripted("CNC-001", "")
	b := newScripted("CNC-002", "")
	require.NoError(t, reg.Add(a))
	require.NoError(t, reg.Add(b))

	d := New(reg, safety.New(safety.DefaultPolicy()), newStubObs(), WithInboxSize(4))
	ctx := context.Background()
	d.Start(ctx)

	in := make(chan *domain.Telemetry)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, in) }()
	for i := 0; i < 50; i++ {
		in <- frame("CNC-001", -1)
		in <- frame("CNC-002", -1)
	}
	close(in)
	require.NoError(t, <-done)
	require.NoError(t, d.Shutdown(ctx))

	assert.Len(t, a.seen, 50)
	assert.Len(t, b.seen, 50)
	for _, m := range a.seen {
		assert.Equal(t, "CNC-001", m)
	}
}

func TestShutdownWaitsForInFlightExecution(t *testing.T) {
	agent := newScripted("CNC-001", "")
	agent.execGate = make(chan struct{})
	reg := NewRegistry()
	require.NoError(t, reg.Add(agent))

	obs := newStubObs()
	d := New(reg, safety.New(safety.DefaultPolicy()), obs)

	runCtx, cancel := context.WithCancel(context.Background())
	d.Start(runCtx)
	require.NoError(t, d.Dispatch(runCtx, frame("CNC-001", float64(domain.SeverityLow))))
	cancel()

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- d.Shutdown(context.Background()) }()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned before the execution finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(agent.execGate)
	require.NoError(t, <-shutdownDone)
	assert.Len(t, agent.executedActions(), 1)
	assert.Equal(t, 1.0, obs.counter("aegis_actions_executed_total"))
}

func TestShutdownHonoursDeadline(t *testing.T) {
	agent := newScripted("CNC-001", "")
	agent.execGate = make(chan struct{})
	defer close(agent.execGate)
	reg := NewRegistry()
	require.NoError(t, reg.Add(agent))

	d := New(reg, safety.New(safety.DefaultPolicy()), newStubObs())
	d.Start(context.Background())
	require.NoError(t, d.Dispatch(context.Background(), frame("CNC-001", float64(domain.SeverityLow))))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}

func TestExecutionAndRecordFailuresAreLogged(t *testing.T) {
	agent := newScripted("FAC-001", "")
	agent.execErr = errors.New("actuator offline")
	reg := NewRegistry()
	require.NoError(t, reg.Add(agent))

	obs := newStubObs()
	recorder := &stubRecorder{err: errors.New("journal write failed")}
	d := New(reg, safety.New(safety.DefaultPolicy()), obs, WithRecorder(recorder))

	ctx := context.Background()
	d.Start(ctx)
	require.NoError(t, d.Dispatch(ctx, frame("FAC-001", float64(domain.SeverityLow))))
	require.NoError(t, d.Dispatch(ctx, frame("FAC-001", float64(domain.SeverityCritical))))
	require.NoError(t, d.Shutdown(ctx))

	assert.Equal(t, 1.0, obs.counter("aegis_actions_failed_total"))
	assert.Contains(t, obs.errors, "action execution failed")
	assert.Contains(t, obs.errors, "decision not recorded")
	assert.Contains(t, obs.critical, "red decision not recorded")
}
