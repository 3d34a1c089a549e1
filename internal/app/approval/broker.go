// Package approval holds Yellow-tier decisions until an operator resolves them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

var ErrApprovalNotFound = errors.New("approval not found")

// Pending is a decision waiting for an operator.
type Pending struct {
	ID          string
	Decision    domain.Decision
	SubmittedAt time.Time
}

type entry struct {
	Pending
	exec    ports.Executor
	removed bool
}

// Broker keeps pending approvals in a bounded LRU. Nothing expires on a
// timer; only overflow evicts the oldest entry, which is logged as critical.
type Broker struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, *entry]
	obs         ports.Observability
	now         func() time.Time
	execTimeout time.Duration
}

var _ ports.ApprovalQueue = (*Broker)(nil)

func NewBroker(capacity int, obs ports.Observability) (*Broker, error) {
	b := &Broker{obs: obs, now: time.Now, execTimeout: 30 * time.Second}
	cache, err := lru.NewWithEvict[string, *entry](capacity, b.evicted)
	if err != nil {
		return nil, fmt.Errorf("approval cache: %w", err)
	}
	b.cache = cache
	return b, nil
}

func (b *Broker) Submit(d domain.Decision, exec ports.Executor) (string, error) {
	if exec == nil {
		return "", errors.New("approval submit: nil executor")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	b.cache.Add(id, &entry{
		Pending: Pending{ID: id, Decision: d, SubmittedAt: b.now().UTC()},
		exec:    exec,
	})
	b.obs.SetGauge("aegis_pending_approvals", float64(b.cache.Len()))
	return id, nil
}

// Pending lists waiting decisions, oldest first.
func (b *Broker) Pending() []Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Pending, 0, b.cache.Len())
	for _, e := range b.cache.Values() {
		out = append(out, e.Pending)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (b *Broker) Get(id string) (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.cache.Peek(id)
	if !ok {
		return Pending{}, false
	}
	return e.Pending, true
}

func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}

// Approve removes the decision and runs its action. The execution is not
// tied to the caller's cancellation and is not retried on failure.
func (b *Broker) Approve(ctx context.Context, id, operator string) error {
	e, err := b.take(id)
	if err != nil {
		return err
	}
	fields := b.fields(e, operator)
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.execTimeout)
	defer cancel()
	if err := e.exec.Execute(execCtx, e.Decision.Action); err != nil {
		b.obs.IncCounter("aegis_actions_failed_total", 1)
		b.obs.LogError("approved action failed", err, fields...)
		return fmt.Errorf("execute %s on %s: %w", e.Decision.Action.Type(), e.Decision.Threat.Machine(), err)
	}
	b.obs.IncCounter("aegis_actions_executed_total", 1)
	b.obs.LogInfo("approved action executed", fields...)
	return nil
}

func (b *Broker) Reject(id, operator, reason string) error {
	e, err := b.take(id)
	if err != nil {
		return err
	}
	b.obs.LogInfo("approval rejected", append(b.fields(e, operator), ports.F("reason", reason))...)
	return nil
}

func (b *Broker) take(id string) (*entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.cache.Peek(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	e.removed = true
	b.cache.Remove(id)
	b.obs.SetGauge("aegis_pending_approvals", float64(b.cache.Len()))
	return e, nil
}

// evicted is called for every removal; only overflow evictions are reported.
func (b *Broker) evicted(_ string, e *entry) {
	if e.removed {
		return
	}
	b.obs.LogCritical("pending approval evicted before resolution", errors.New("approval queue full"), b.fields(e, "")...)
}

func (b *Broker) fields(e *entry, operator string) []ports.Field {
	d := e.Decision
	fs := []ports.Field{
		ports.F("approval_id", e.ID),
		ports.F("agent_id", d.AgentID),
		ports.F("tier", d.Tier.String()),
	}
	if d.Threat != nil {
		fs = append(fs, ports.F("machine_id", d.Threat.Machine()), ports.F("threat", string(d.Threat.Kind())))
	}
	if d.Action != nil {
		fs = append(fs, ports.F("action", d.Action.Describe()))
	}
	if operator != "" {
		fs = append(fs, ports.F("operator", operator))
	}
	return fs
}
