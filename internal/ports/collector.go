package ports

import "github.com/ghalamif/AegisSentinel/internal/domain"

// Collector delivers telemetry from a transport (MQTT, OPC UA, ...) into the engine.
type Collector interface {
	Start(out chan<- *domain.Telemetry) error
	Stop() error
}
