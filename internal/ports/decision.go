package ports

import (
	"context"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

// DecisionRecorder receives every decision the engine takes, whatever its tier.
type DecisionRecorder interface {
	Record(ctx context.Context, d domain.Decision) error
}
