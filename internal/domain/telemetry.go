package domain

import (
	"math"
	"time"
)

// Telemetry is a single report from one machine. It is treated as immutable
// once it has been handed to the dispatcher.
type Telemetry struct {
	Timestamp time.Time          `json:"timestamp"`
	MachineID string             `json:"machine_id"`
	Metrics   map[string]float64 `json:"metrics"`
	States    map[string]string  `json:"states,omitempty"`
}

// Metric returns the named reading, or def when the reading is absent or not a
// finite number. Detectors never fail on missing data.
func (t *Telemetry) Metric(name string, def float64) float64 {
	if t == nil {
		return def
	}
	v, ok := t.Metrics[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// State returns the named string state reported by the machine.
func (t *Telemetry) State(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	v, ok := t.States[name]
	return v, ok
}
