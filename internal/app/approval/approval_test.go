package approval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

type stubObs struct {
	mu       sync.Mutex
	critical []string
	gauge    float64
	executed float64
	failed   float64
}

func (s *stubObs) LogInfo(string, ...ports.Field)         {}
func (s *stubObs) LogError(string, error, ...ports.Field) {}

func (s *stubObs) LogCritical(msg string, _ error, _ ...ports.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.critical = append(s.critical, msg)
}

func (s *stubObs) IncCounter(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "aegis_actions_executed_total":
		s.executed += v
	case "aegis_actions_failed_total":
		s.failed += v
	}
}

func (s *stubObs) SetGauge(_ string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauge = v
}

func (s *stubObs) IncLabeled(string, string, float64)                      {}
func (s *stubObs) ObserveLatency(string, float64)                          {}
func (s *stubObs) RecordDLQ(ports.JournalEntryID, *domain.Incident, error) {}

type recordingExecutor struct {
	mu      sync.Mutex
	actions []domain.Action
	err     error
	ctxErr  error
}

func (r *recordingExecutor) Execute(ctx context.Context, a domain.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	r.ctxErr = ctx.Err()
	return r.err
}

func yellowDecision(machine string) domain.Decision {
	return domain.Decision{
		AgentID: machine,
		Threat: domain.ThermalRunaway{
			ThreatBase:  domain.ThreatBase{MachineID: machine, Level: domain.SeverityHigh},
			Temperature: 78,
			RatePerMin:  6,
		},
		Tier:             domain.TierYellow,
		Action:           domain.ReduceSpeed{Percent: 30},
		RequiresApproval: true,
	}
}

func TestBrokerApproveRunsExecutorOnce(t *testing.T) {
	obs := &stubObs{}
	b, err := NewBroker(8, obs)
	require.NoError(t, err)
	exec := &recordingExecutor{}

	id, err := b.Submit(yellowDecision("CNC-003"), exec)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1.0, obs.gauge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Approve(ctx, id, "kim"))
	assert.Equal(t, []domain.Action{domain.ReduceSpeed{Percent: 30}}, exec.actions)
	assert.NoError(t, exec.ctxErr, "execution must not inherit the caller's cancellation")
	assert.Equal(t, 1.0, obs.executed)
	assert.Zero(t, b.Len())
	assert.Zero(t, obs.gauge)

	assert.ErrorIs(t, b.Approve(context.Background(), id, "kim"), ErrApprovalNotFound)
	assert.Len(t, exec.actions, 1)
	assert.Empty(t, obs.critical)
}

func TestBrokerRejectAndFailures(t *testing.T) {
	obs := &stubObs{}
	b, err := NewBroker(8, obs)
	require.NoError(t, err)

	exec := &recordingExecutor{err: errors.New("controller busy")}
	rejected, err := b.Submit(yellowDecision("CNC-001"), exec)
	require.NoError(t, err)
	failing, err := b.Submit(yellowDecision("CNC-002"), exec)
	require.NoError(t, err)

	require.NoError(t, b.Reject(rejected, "kim", "planned downtime"))
	assert.ErrorIs(t, b.Reject(rejected, "kim", ""), ErrApprovalNotFound)

	err = b.Approve(context.Background(), failing, "kim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reduce_speed on CNC-002")
	assert.Equal(t, 1.0, obs.failed)
	assert.Zero(t, b.Len())

	_, err = b.Submit(yellowDecision("CNC-004"), nil)
	assert.Error(t, err)
}

func TestBrokerOverflowEvictsOldest(t *testing.T) {
	obs := &stubObs{}
	b, err := NewBroker(2, obs)
	require.NoError(t, err)
	exec := &recordingExecutor{}

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	b.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, _ := b.Submit(yellowDecision("CNC-001"), exec)
	second, _ := b.Submit(yellowDecision("CNC-002"), exec)
	third, _ := b.Submit(yellowDecision("CNC-003"), exec)

	_, ok := b.Get(first)
	assert.False(t, ok)
	assert.Len(t, obs.critical, 1)

	pending := b.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, second, pending[0].ID)
	assert.Equal(t, third, pending[1].ID)
}

func TestServerRoutes(t *testing.T) {
	obs := &stubObs{}
	b, err := NewBroker(8, obs)
	require.NoError(t, err)
	exec := &recordingExecutor{}
	id, err := b.Submit(yellowDecision("BOND-02"), exec)
	require.NoError(t, err)
	other, err := b.Submit(yellowDecision("BOND-01"), exec)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(b, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/approvals")
	require.NoError(t, err)
	var list []pendingView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 2)
	assert.Equal(t, "thermal_runaway", list[0].Threat)
	assert.Equal(t, "reduce_speed", list[0].Action)
	assert.Equal(t, "yellow", list[0].Tier)

	post := func(path, body string) int {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, post("/approvals/"+id+"/approve", `{}`))
	assert.Equal(t, http.StatusOK, post("/approvals/"+id+"/approve", `{"operator":"kim"}`))
	assert.Equal(t, http.StatusNotFound, post("/approvals/"+id+"/approve", `{"operator":"kim"}`))
	assert.Equal(t, http.StatusOK, post("/approvals/"+other+"/reject", `{"operator":"kim","reason":"sensor glitch"}`))
	assert.Equal(t, http.StatusNotFound, post("/approvals/missing/reject", `{"operator":"kim"}`))

	resp, err = http.Get(srv.URL + "/approvals/" + other)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Len(t, exec.actions, 1)
}
