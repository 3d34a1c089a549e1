package queue

import (
	"sync"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// MemQueue is a bounded FIFO of journaled incidents awaiting delivery.
type MemQueue struct {
	mu    sync.Mutex
	items []ports.QueuedIncident
	limit int
}

var _ ports.IncidentQueue = (*MemQueue)(nil)

func NewMemQueue(limit int) *MemQueue {
	if limit <= 0 {
		limit = 1
	}
	return &MemQueue{
		items: make([]ports.QueuedIncident, 0, limit),
		limit: limit,
	}
}

// Enqueue reports false when the queue is at its limit.
func (q *MemQueue) Enqueue(id ports.JournalEntryID, inc *domain.Incident) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, ports.QueuedIncident{ID: id, Incident: inc})
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedIncident {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}
	batch := make([]ports.QueuedIncident, n)
	copy(batch, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return batch
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
