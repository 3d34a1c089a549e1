package ports

import "github.com/ghalamif/AegisSentinel/internal/domain"

type QueuedIncident struct {
	ID       JournalEntryID
	Incident *domain.Incident
}

// IncidentQueue buffers journaled incidents between dispatch and reporting.
type IncidentQueue interface {
	Enqueue(id JournalEntryID, inc *domain.Incident) bool
	DequeueBatch(max int) []QueuedIncident
	Len() int
}
