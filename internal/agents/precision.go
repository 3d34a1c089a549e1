package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/safety"
	"github.com/ghalamif/AegisSentinel/internal/stats"
)

const (
	precisionMetricVibration   = "vibration"
	precisionMetricTemperature = "temperature"
	precisionMetricLoad        = "load_percent"

	loadBaselineSamples = 50

	chatterFactor        = 3.0
	thermalDriftCritical = 0.1

	toolWearCritical = 0.25

	runawayWindow        = 10
	runawayHardLimitC    = 95.0
	runawaySoftLimitC    = 80.0
	runawayRateLimit     = 5.0
	runawayCriticalTempC = 100.0

	// ISO 10816-style RMS limits, mm/s.
	bearingWarning  = 0.02
	bearingCritical = 0.05
)

// Precision watches a CNC machining center: chatter, thermal growth, tool wear,
// thermal runaway and spindle bearings.
type Precision struct {
	base
	cfg PrecisionConfig

	vibration   *stats.Window
	temperature *stats.Window
	load        *stats.Window

	loadBaseline *float64
}

var _ Agent = (*Precision)(nil)

func NewPrecision(machineID string, cfg PrecisionConfig, opts ...Option) (*Precision, error) {
	if machineID == "" {
		return nil, ErrMissingMachineID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Precision{
		base:        newBase(machineID, "mtconnect", []string{"CNC-"}, opts),
		cfg:         cfg,
		vibration:   stats.NewWindow(cfg.HistoryCapacity),
		temperature: stats.NewWindow(cfg.HistoryCapacity),
		load:        stats.NewWindow(cfg.HistoryCapacity),
	}, nil
}

func (p *Precision) Describe() domain.AgentMetadata {
	return domain.AgentMetadata{
		Name:               "Precision Sentinel",
		Version:            "1.0.0",
		SupportedEquipment: []string{"CNC Mill", "CNC Lathe", "Machining Center"},
		Capabilities: []string{
			"chatter_detection",
			"thermal_compensation",
			"tool_wear_tracking",
			"thermal_runaway_detection",
			"bearing_monitoring",
		},
	}
}

// LoadBaseline returns the learned spindle load baseline, if any.
func (p *Precision) LoadBaseline() (float64, bool) {
	if p.loadBaseline == nil {
		return 0, false
	}
	return *p.loadBaseline, true
}

func (p *Precision) Analyze(t *domain.Telemetry) []domain.Threat {
	vibration := t.Metric(precisionMetricVibration, 0)
	temperature := t.Metric(precisionMetricTemperature, p.cfg.BaselineTempC)
	load := t.Metric(precisionMetricLoad, 0)

	p.vibration.Push(vibration)
	p.temperature.Push(temperature)
	p.load.Push(load)

	if p.loadBaseline == nil && p.load.Len() >= loadBaselineSamples {
		b := p.load.Mean()
		p.loadBaseline = &b
		p.logger.Info("load baseline learned", "baseline_percent", b)
	}

	var threats []domain.Threat
	if p.cfg.ChatterDetection {
		if th, ok := p.detectChatter(vibration); ok {
			threats = append(threats, th)
		}
	}
	if p.cfg.ThermalCompensation {
		if th, ok := p.detectThermalDrift(temperature); ok {
			threats = append(threats, th)
		}
	}
	if p.cfg.ToolWearTracking {
		if th, ok := p.detectToolWear(load); ok {
			threats = append(threats, th)
		}
	}
	if th, ok := p.detectThermalRunaway(temperature); ok {
		threats = append(threats, th)
	}
	if th, ok := p.detectBearing(vibration); ok {
		threats = append(threats, th)
	}
	return threats
}

func (p *Precision) detectChatter(vibration float64) (domain.Threat, bool) {
	mean := p.vibration.Mean()
	if vibration <= chatterFactor*mean {
		return nil, false
	}
	sev := domain.SeverityHigh
	if vibration > p.cfg.VibrationCritical {
		sev = domain.SeverityCritical
	}
	return domain.Chatter{ThreatBase: threatBase(p.machineID, sev), Amplitude: vibration}, true
}

func (p *Precision) detectThermalDrift(temperature float64) (domain.Threat, bool) {
	drift := ThermalExpansionMM(p.cfg.MaterialCTE, p.cfg.SpindleLengthMM, temperature-p.cfg.BaselineTempC)
	if math.Abs(drift) <= p.cfg.ThermalDriftMaxMM {
		return nil, false
	}
	sev := domain.SeverityHigh
	if math.Abs(drift) > thermalDriftCritical {
		sev = domain.SeverityCritical
	}
	return domain.ThermalDrift{ThreatBase: threatBase(p.machineID, sev), DriftMM: drift, Axis: "Z"}, true
}

func (p *Precision) detectToolWear(load float64) (domain.Threat, bool) {
	if p.loadBaseline == nil || *p.loadBaseline <= 0 {
		return nil, false
	}
	wear := (load - *p.loadBaseline) / *p.loadBaseline
	if wear <= p.cfg.ToolWearThreshold {
		return nil, false
	}
	sev := domain.SeverityHigh
	if wear > toolWearCritical {
		sev = domain.SeverityCritical
	}
	// Linear extrapolation at 1% wear per minute of cutting.
	remaining := math.Max(0, 60*(toolWearCritical-wear)/0.01)
	return domain.ToolWear{
		ThreatBase:       threatBase(p.machineID, sev),
		WearPercent:      wear * 100,
		RemainingLifeMin: remaining,
	}, true
}

func (p *Precision) detectThermalRunaway(temperature float64) (domain.Threat, bool) {
	if p.temperature.Len() < runawayWindow {
		return nil, false
	}
	recent := p.temperature.Recent(runawayWindow)
	// newest minus tenth-newest, scaled to degrees per minute
	roc := (recent[len(recent)-1] - recent[0]) * 6

	if temperature <= runawayHardLimitC && !(temperature > runawaySoftLimitC && roc > runawayRateLimit) {
		return nil, false
	}
	sev := domain.SeverityHigh
	if temperature > runawayCriticalTempC {
		sev = domain.SeverityCritical
	}
	return domain.ThermalRunaway{ThreatBase: threatBase(p.machineID, sev), Temperature: temperature, RatePerMin: roc}, true
}

func (p *Precision) detectBearing(vibration float64) (domain.Threat, bool) {
	switch {
	case vibration > bearingCritical:
		return domain.BearingFailure{ThreatBase: threatBase(p.machineID, domain.SeverityCritical), Vibration: vibration}, true
	case vibration > bearingWarning:
		return domain.BearingFailure{ThreatBase: threatBase(p.machineID, domain.SeverityHigh), Vibration: vibration}, true
	default:
		return nil, false
	}
}

func (p *Precision) Decide(t domain.Threat) (domain.ResponseTier, domain.Action) {
	switch th := t.(type) {
	case domain.Chatter:
		switch {
		case th.Amplitude < 5.0:
			return domain.TierGreen, domain.AdjustParameter{Name: "spindle_rpm", Value: 0.95, Unit: "percent"}
		case th.Level == domain.SeverityCritical:
			return domain.TierRed, domain.SendAlert{
				Severity:   domain.SeverityCritical,
				Message:    "CRASH SIGNATURE DETECTED - MANUAL STOP REQUIRED",
				EscalateTo: "production_manager",
			}
		default:
			return domain.TierYellow, domain.ReduceSpeed{Percent: 20}
		}
	case domain.ThermalDrift:
		if math.Abs(th.DriftMM) < 0.02 {
			return domain.TierGreen, domain.AdjustParameter{Name: "z_axis_offset", Value: -th.DriftMM, Unit: "mm"}
		}
		return domain.TierYellow, domain.CreateWorkOrder{
			Priority:    "high",
			Description: fmt.Sprintf("Thermal drift: %.3fmm - Run stabilization cycle", th.DriftMM),
			Component:   "spindle",
		}
	case domain.ToolWear:
		if th.WearPercent < 20 {
			return domain.TierGreen, domain.LogOnly{
				Note: fmt.Sprintf("Tool wear at %.1f%% - replace at next tool change", th.WearPercent),
			}
		}
		return domain.TierYellow, domain.ScheduleMaintenance{Component: "cutting_tool", Urgency: "next_safe_stop", EstimatedHours: 0.25}
	case domain.ThermalRunaway:
		if th.Temperature > runawayCriticalTempC {
			return domain.TierRed, domain.EmergencyStop{}
		}
		return domain.TierYellow, domain.ReduceSpeed{Percent: 50}
	case domain.BearingFailure:
		if th.Level == domain.SeverityCritical {
			return domain.TierRed, domain.SendAlert{
				Severity:   domain.SeverityCritical,
				Message:    fmt.Sprintf("Spindle bearing failure imminent: %.3f mm/s RMS", th.Vibration),
				EscalateTo: "maintenance_supervisor",
			}
		}
		return domain.TierYellow, domain.ScheduleMaintenance{Component: "spindle_bearing", Urgency: "within_24h", EstimatedHours: 2.0}
	}
	return safety.Fallback(t)
}

func (p *Precision) Execute(ctx context.Context, a domain.Action) error {
	return p.dispatch(ctx, p.command(a))
}
