package ports

import "github.com/ghalamif/AegisSentinel/internal/domain"

// Transformer may calibrate or enrich telemetry before it reaches the agents.
// Returning an error drops the record.
type Transformer interface {
	Transform(*domain.Telemetry) (*domain.Telemetry, error)
	Version() uint16
}
