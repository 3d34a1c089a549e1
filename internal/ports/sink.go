package ports

import (
	"context"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

// IncidentSink persists or forwards a batch of incidents.
type IncidentSink interface {
	WriteBatch(ctx context.Context, incidents []*domain.Incident) error
	Name() string
}
