package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Run reports queued incidents until ctx is done, then makes one last pass
// over whatever is still queued.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for p.queue.Len() > 0 {
				if _, err := p.ReportOnce(flushCtx); err != nil || flushCtx.Err() != nil {
					break
				}
			}
			return nil
		default:
		}

		n, _ := p.ReportOnce(ctx)
		if n == 0 && p.queue.Len() == 0 && p.redeliverDue() {
			if _, err := p.Redeliver(); err != nil {
				p.obs.LogError("redeliver_failed", err)
			}
			continue
		}
		if n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.pol.IdleSleep):
			}
		}
	}
}

// ReportOnce delivers one batch to every sink and commits the journal. A
// batch that keeps failing after MaxAttempts goes to the dead letter path
// and is held for redelivery.
func (p *Pipeline) ReportOnce(ctx context.Context) (int, error) {
	batch := p.queue.DequeueBatch(p.pol.MaxBatchSize)
	if len(batch) == 0 {
		return 0, nil
	}
	p.obs.SetGauge("aegis_queue_length", float64(p.queue.Len()))

	incidents := make([]*domain.Incident, 0, len(batch))
	red := false
	for _, item := range batch {
		incidents = append(incidents, item.Incident)
		if item.Incident.Tier == domain.TierRed {
			red = true
		}
	}

	start := time.Now()
	if err := p.deliver(ctx, incidents); err != nil {
		for _, item := range batch {
			p.obs.RecordDLQ(item.ID, item.Incident, err)
			p.holdAt(item.ID)
		}
		if red {
			p.obs.LogCritical("red incident not reported", err, ports.F("batch", len(batch)))
		} else {
			p.obs.LogError("sink_write_failed", err, ports.F("batch", len(batch)))
		}
		return 0, err
	}
	p.obs.ObserveLatency("aegis_report_latency_seconds", time.Since(start).Seconds())
	p.obs.IncCounter("aegis_incidents_reported_total", float64(len(incidents)))

	if target := p.settle(batch); target > 0 {
		if err := p.journal.Commit(target); err != nil {
			p.obs.LogError("journal_commit_failed", err)
		}
	}
	return len(incidents), nil
}

// deliver writes the batch to every sink, retrying only the sinks that
// failed, up to MaxAttempts rounds.
func (p *Pipeline) deliver(ctx context.Context, incidents []*domain.Incident) error {
	pending := p.sinks
	var errs []error
	for attempt := 1; attempt <= p.pol.MaxAttempts && len(pending) > 0; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			case <-time.After(p.pol.IdleSleep * time.Duration(attempt-1)):
			}
		}
		var failed []ports.IncidentSink
		errs = errs[:0]
		for _, s := range pending {
			if err := s.WriteBatch(ctx, incidents); err != nil {
				failed = append(failed, s)
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
		pending = failed
	}
	return errors.Join(errs...)
}
