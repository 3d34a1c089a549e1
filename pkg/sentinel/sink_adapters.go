package sentinel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("sentinel: channel sink closed")

// IncidentBatchFunc receives each reported batch in journal order.
type IncidentBatchFunc func(ctx context.Context, batch []Incident) error

// NewCallbackSink adapts a function into an IncidentSink so callers can
// plug in reporting without defining a type.
func NewCallbackSink(name string, fn IncidentBatchFunc) IncidentSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches on a channel. It returns the sink, the
// read side and a close function the caller invokes during shutdown.
func NewChannelSink(name string, buffer int) (IncidentSink, <-chan []Incident, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Incident, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, s.close
}

type callbackSink struct {
	name string
	fn   IncidentBatchFunc
}

func (s *callbackSink) WriteBatch(ctx context.Context, incidents []*domain.Incident) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(incidents) == 0 {
		return nil
	}
	return s.fn(ctx, copyBatch(incidents))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Incident
	closed chan struct{}
	once   sync.Once
	sendMu sync.RWMutex
}

func (s *channelSink) WriteBatch(ctx context.Context, incidents []*domain.Incident) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}
	if len(incidents) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- copyBatch(incidents):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		// senders leave on closed; wait for them before closing ch
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}

// copyBatch detaches the batch from the queue's records.
func copyBatch(incidents []*domain.Incident) []Incident {
	out := make([]Incident, 0, len(incidents))
	for _, inc := range incidents {
		if inc != nil {
			out = append(out, *inc)
		}
	}
	return out
}
