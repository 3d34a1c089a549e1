// Package transform calibrates telemetry before it reaches the agents.
package transform

import (
	"fmt"
	"math"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Linear maps a raw reading x to x*Scale + Offset. A zero Scale means 1.
type Linear struct {
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

func (l Linear) apply(v float64) float64 {
	scale := l.Scale
	if scale == 0 {
		scale = 1
	}
	return v*scale + l.Offset
}

// Config renames vendor metric names to the names the agents read and then
// applies per-metric calibration. Calibration keys use the renamed metric.
type Config struct {
	Version     uint16            `yaml:"version"`
	Aliases     map[string]string `yaml:"aliases"`
	Calibration map[string]Linear `yaml:"calibration"`

	// RequireMachineID drops frames with no machine id instead of passing them on.
	RequireMachineID bool `yaml:"require_machine_id"`
}

// Calibrator is the configured ports.Transformer. The input frame is never
// modified; a calibrated copy is returned.
type Calibrator struct {
	cfg Config
}

var _ ports.Transformer = (*Calibrator)(nil)

func New(cfg Config) (*Calibrator, error) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	for from, to := range cfg.Aliases {
		if to == "" {
			return nil, fmt.Errorf("alias %q has an empty target", from)
		}
		if _, chained := cfg.Aliases[to]; chained {
			return nil, fmt.Errorf("alias %q -> %q is chained", from, to)
		}
	}
	return &Calibrator{cfg: cfg}, nil
}

// Identity passes telemetry through unchanged.
func Identity() *Calibrator { return &Calibrator{cfg: Config{Version: 1}} }

func (c *Calibrator) Version() uint16 { return c.cfg.Version }

func (c *Calibrator) Transform(t *domain.Telemetry) (*domain.Telemetry, error) {
	if t == nil {
		return nil, fmt.Errorf("nil telemetry")
	}
	if c.cfg.RequireMachineID && t.MachineID == "" {
		return nil, fmt.Errorf("telemetry without machine id")
	}
	if len(c.cfg.Aliases) == 0 && len(c.cfg.Calibration) == 0 {
		return t, nil
	}

	out := &domain.Telemetry{
		Timestamp: t.Timestamp,
		MachineID: t.MachineID,
		Metrics:   make(map[string]float64, len(t.Metrics)),
		States:    t.States,
	}
	for name, v := range t.Metrics {
		if to, ok := c.cfg.Aliases[name]; ok {
			// a canonical name sent alongside its alias wins
			if _, direct := t.Metrics[to]; direct {
				continue
			}
			name = to
		}
		out.Metrics[name] = v
	}
	for name, lin := range c.cfg.Calibration {
		v, ok := out.Metrics[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Metrics[name] = lin.apply(v)
	}
	return out, nil
}
