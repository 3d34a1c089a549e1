package ports

import "github.com/ghalamif/AegisSentinel/internal/domain"

type JournalEntryID uint64

// Journal is the local, append-only decision record. Entries up to the
// committed id have been delivered to every incident sink.
type Journal interface {
	Append(inc *domain.Incident) (JournalEntryID, error)
	Iterate(from JournalEntryID, fn func(id JournalEntryID, inc *domain.Incident) error) error
	Commit(upto JournalEntryID) error
	Stats() JournalStats
	Close() error
}

type JournalStats struct {
	OldestUnreported JournalEntryID
	LatestAppended   JournalEntryID
	SizeBytes        int64
}
