// Package pipeline keeps the decision record: every decision is journaled,
// queued and then reported to the configured incident sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// ErrQueueFull is returned by Record when the report queue rejected an
// incident under the "reject" policy. The incident is still journaled.
var ErrQueueFull = errors.New("report queue full")

// Pipeline implements ports.DecisionRecorder on top of a journal and a queue.
// Entries that were journaled but could not be delivered are held: the
// journal's commit point stays below them until a later delivery of the
// same entry succeeds, either in this process or after a restart.
type Pipeline struct {
	journal ports.Journal
	queue   ports.IncidentQueue
	sinks   []ports.IncidentSink
	pol     ports.Policy
	obs     ports.Observability

	mu        sync.Mutex
	held      map[ports.JournalEntryID]bool // true while queued for redelivery
	heldAt    time.Time
	delivered ports.JournalEntryID
}

var _ ports.DecisionRecorder = (*Pipeline)(nil)

func New(j ports.Journal, q ports.IncidentQueue, sinks []ports.IncidentSink, pol ports.Policy, obs ports.Observability) *Pipeline {
	if pol.IdleSleep <= 0 {
		pol.IdleSleep = 50 * time.Millisecond
	}
	if pol.MaxAttempts <= 0 {
		pol.MaxAttempts = 1
	}
	if pol.RetryHeldAfter <= 0 {
		pol.RetryHeldAfter = 30 * time.Second
	}
	return &Pipeline{
		journal: j,
		queue:   q,
		sinks:   sinks,
		pol:     pol,
		obs:     obs,
		held:    map[ports.JournalEntryID]bool{},
	}
}

// Record journals the decision's incident and queues it for reporting. A
// journal failure is returned; queue pressure is handled per policy.
func (p *Pipeline) Record(ctx context.Context, d domain.Decision) error {
	inc := domain.NewIncident(d)
	id, err := p.journal.Append(&inc)
	if err != nil {
		return fmt.Errorf("journal append %s: %w", inc.ID, err)
	}
	p.checkJournalSize(&inc)

	if !p.enqueueWithPolicy(ctx, id, &inc) {
		p.obs.IncCounter("aegis_queue_dropped_total", 1)
		p.holdAt(id)
		if p.pol.OnQueueFull == "reject" {
			return ErrQueueFull
		}
	}
	p.obs.SetGauge("aegis_queue_length", float64(p.queue.Len()))
	return nil
}

// Replay queues every journal entry that has not been reported yet. It is
// called once at startup before any new decision is recorded.
func (p *Pipeline) Replay() (int, error) {
	stats := p.journal.Stats()
	if stats.LatestAppended < stats.OldestUnreported {
		return 0, nil
	}
	n, overflow := 0, 0
	err := p.journal.Iterate(stats.OldestUnreported, func(id ports.JournalEntryID, inc *domain.Incident) error {
		if overflow > 0 || !p.queue.Enqueue(id, inc) {
			p.holdAt(id)
			overflow++
			return nil
		}
		n++
		return nil
	})
	p.obs.SetGauge("aegis_queue_length", float64(p.queue.Len()))
	if n > 0 {
		p.obs.LogInfo("journal replayed", ports.F("entries", n), ports.F("from", uint64(stats.OldestUnreported)))
	}
	if err == nil && overflow > 0 {
		err = fmt.Errorf("replay: queue full, %d entries held for redelivery", overflow)
	}
	return n, err
}

var errRedeliverDone = errors.New("redeliver done")

// Redeliver queues held entries again, reading them back from the journal.
// An entry stays held until a batch containing it is delivered.
func (p *Pipeline) Redeliver() (int, error) {
	p.mu.Lock()
	var lo, hi ports.JournalEntryID
	for id, queued := range p.held {
		if queued {
			continue
		}
		if lo == 0 || id < lo {
			lo = id
		}
		hi = max(hi, id)
	}
	p.heldAt = time.Now()
	p.mu.Unlock()
	if lo == 0 {
		return 0, nil
	}

	n := 0
	err := p.journal.Iterate(lo, func(id ports.JournalEntryID, inc *domain.Incident) error {
		if id > hi {
			return errRedeliverDone
		}
		p.mu.Lock()
		queued, ok := p.held[id]
		if ok && !queued {
			p.held[id] = true
		}
		p.mu.Unlock()
		if !ok || queued {
			return nil
		}
		if !p.queue.Enqueue(id, inc) {
			p.holdAt(id)
			return errRedeliverDone
		}
		n++
		return nil
	})
	if errors.Is(err, errRedeliverDone) {
		err = nil
	}
	p.obs.SetGauge("aegis_queue_length", float64(p.queue.Len()))
	if n > 0 {
		p.obs.LogInfo("held incidents requeued", ports.F("entries", n), ports.F("from", uint64(lo)))
	}
	return n, err
}

// redeliverDue reports whether unqueued held entries exist and RetryHeldAfter
// has passed since the last hold or redelivery.
func (p *Pipeline) redeliverDue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.heldAt) < p.pol.RetryHeldAfter {
		return false
	}
	for _, queued := range p.held {
		if !queued {
			return true
		}
	}
	return false
}

func (p *Pipeline) checkJournalSize(inc *domain.Incident) {
	if p.pol.MaxJournalSizeBytes <= 0 {
		return
	}
	stats := p.journal.Stats()
	p.obs.SetGauge("aegis_journal_size_bytes", float64(stats.SizeBytes))
	if stats.SizeBytes >= p.pol.MaxJournalSizeBytes {
		p.obs.LogCritical("journal above size limit",
			fmt.Errorf("size=%d limit=%d", stats.SizeBytes, p.pol.MaxJournalSizeBytes),
			ports.F("incident_id", inc.ID))
	}
}

func (p *Pipeline) enqueueWithPolicy(ctx context.Context, id ports.JournalEntryID, inc *domain.Incident) bool {
	for {
		if p.queue.Enqueue(id, inc) {
			return true
		}
		switch p.pol.OnQueueFull {
		case "block":
			select {
			case <-ctx.Done():
				p.obs.LogError("queue_full_abandoned", ctx.Err(), ports.F("incident_id", inc.ID))
				return false
			case <-time.After(p.pol.IdleSleep):
			}
		case "drop", "reject":
			p.obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", p.pol.MaxQueueLen),
				ports.F("incident_id", inc.ID), ports.F("tier", inc.Tier.String()))
			return false
		default:
			p.obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", p.pol.OnQueueFull))
			return false
		}
	}
}

// holdAt keeps the journal commit point below id until id is delivered.
func (p *Pipeline) holdAt(id ports.JournalEntryID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held[id] = false
	p.heldAt = time.Now()
}

// settle releases the delivered batch and returns the highest id that may be
// committed: everything delivered so far, stopping below the oldest held entry.
func (p *Pipeline) settle(batch []ports.QueuedIncident) ports.JournalEntryID {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range batch {
		delete(p.held, item.ID)
		p.delivered = max(p.delivered, item.ID)
	}
	target := p.delivered
	for id := range p.held {
		if id <= target {
			target = id - 1
		}
	}
	return target
}

// Held returns the number of entries waiting for redelivery.
func (p *Pipeline) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}
