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
	assemblyMetricImpedance = "usg_impedance"
	assemblyMetricBondTime  = "bond_time_ms"
	assemblyMetricTemp      = "capillary_temp"
	assemblyMetricShear     = "shear_strength_g"

	// Nominal readings substituted when a bonder omits a metric.
	nominalImpedanceOhm = 50.0
	nominalShearG       = 25.0

	usgBaselineSamples = 20
	usgDegradedRatio   = 0.7

	capillaryDriftMedium = 0.001
	capillaryDriftHigh   = 0.002

	nsopConfidence     = 0.99
	weakBondConfidence = 0.90
)

// Assembly watches a wire bonder: non-stick-on-pad, bond quality, cycle time,
// capillary growth, ultrasonic generator health and OEE performance.
type Assembly struct {
	base
	cfg AssemblyConfig

	bondTime  *stats.Window
	impedance *stats.Window
	shear     *stats.Window

	nsopStreak int
}

var _ Agent = (*Assembly)(nil)

func NewAssembly(machineID string, cfg AssemblyConfig, opts ...Option) (*Assembly, error) {
	if machineID == "" {
		return nil, ErrMissingMachineID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assembly{
		base:      newBase(machineID, "secs-ii", []string{"BOND-", "ASM-", "WB-"}, opts),
		cfg:       cfg,
		bondTime:  stats.NewWindow(cfg.HistoryCapacity),
		impedance: stats.NewWindow(cfg.HistoryCapacity),
		shear:     stats.NewWindow(cfg.HistoryCapacity),
	}, nil
}

func (a *Assembly) Describe() domain.AgentMetadata {
	return domain.AgentMetadata{
		Name:               "Assembly Sentinel",
		Version:            "2.1.0",
		SupportedEquipment: []string{"Wire Bonder", "Ball Bonder", "Wedge Bonder"},
		Capabilities: []string{
			"nsop_detection",
			"cycle_time_monitoring",
			"shear_strength_tracking",
			"capillary_thermal_compensation",
			"usg_health_monitoring",
			"oee_calculation",
		},
	}
}

// OEE returns the performance term over the bond-time history, 1.0 before any data.
func (a *Assembly) OEE() float64 {
	if a.bondTime.Len() == 0 {
		return 1.0
	}
	mean := a.bondTime.Mean()
	if mean <= 0 {
		return 1.0
	}
	return math.Min(1.0, a.cfg.TheoreticalCycleTimeMS/mean)
}

// NSOPStreak is the current count of consecutive low-impedance bonds.
func (a *Assembly) NSOPStreak() int { return a.nsopStreak }

func (a *Assembly) Analyze(t *domain.Telemetry) []domain.Threat {
	impedance := t.Metric(assemblyMetricImpedance, nominalImpedanceOhm)
	bondTime := t.Metric(assemblyMetricBondTime, a.cfg.TheoreticalCycleTimeMS)
	temp := t.Metric(assemblyMetricTemp, a.cfg.BaselineTempC)
	shear := t.Metric(assemblyMetricShear, nominalShearG)

	a.impedance.Push(impedance)
	a.bondTime.Push(bondTime)
	a.shear.Push(shear)

	var threats []domain.Threat

	if impedance < a.cfg.MinUltrasonicImpedance {
		a.nsopStreak++
		if a.nsopStreak >= a.cfg.NSOPThreshold {
			a.nsopStreak = 0
			a.logger.Warn("nsop confirmed", "impedance_ohm", impedance)
			threats = append(threats, domain.QualityDefect{
				ThreatBase: threatBase(a.machineID, domain.SeverityCritical),
				DefectType: domain.DefectNSOP,
				Confidence: nsopConfidence,
			})
		}
	} else {
		a.nsopStreak = 0
		if bondTime > a.cfg.MaxBondTimeMS {
			threats = append(threats, domain.ThroughputDegradation{
				ThreatBase: threatBase(a.machineID, domain.SeverityMedium),
				Issue:      domain.IssueCycleTimeDrift,
				ImpactsOEE: true,
			})
		}
	}

	if shear < a.cfg.MinShearStrengthG {
		threats = append(threats, domain.QualityDefect{
			ThreatBase: threatBase(a.machineID, domain.SeverityHigh),
			DefectType: domain.DefectWeakBond,
			Confidence: weakBondConfidence,
		})
	}

	if th, ok := a.detectCapillaryDrift(temp); ok {
		threats = append(threats, th)
	}
	if th, ok := a.detectGeneratorDegradation(impedance); ok {
		threats = append(threats, th)
	}

	if oee := a.OEE(); oee < a.cfg.TargetOEE {
		threats = append(threats, domain.ThroughputDegradation{
			ThreatBase: threatBase(a.machineID, domain.SeverityMedium),
			Issue:      fmt.Sprintf("OEE Below Target: %.1f%%", oee*100),
			ImpactsOEE: true,
		})
	}
	return threats
}

func (a *Assembly) detectCapillaryDrift(temp float64) (domain.Threat, bool) {
	expansion := ThermalExpansionMM(a.cfg.MaterialCTE, a.cfg.CapillaryLengthMM, temp-a.cfg.BaselineTempC)
	var sev domain.Severity
	switch abs := math.Abs(expansion); {
	case abs > capillaryDriftHigh:
		sev = domain.SeverityHigh
	case abs > capillaryDriftMedium:
		sev = domain.SeverityMedium
	default:
		return nil, false
	}
	return domain.ThermalDrift{ThreatBase: threatBase(a.machineID, sev), DriftMM: expansion, Axis: "Z"}, true
}

// The baseline is the leading slice of the current window, not a trailing mean.
func (a *Assembly) detectGeneratorDegradation(impedance float64) (domain.Threat, bool) {
	if a.impedance.Len() < usgBaselineSamples {
		return nil, false
	}
	baseline := stats.Rolling(a.impedance.Head(usgBaselineSamples)).Mean
	if impedance >= baseline*usgDegradedRatio {
		return nil, false
	}
	return domain.EquipmentDegradation{
		ThreatBase: threatBase(a.machineID, domain.SeverityHigh),
		Component:  domain.ComponentUltrasonicGenerator,
		Metric:     impedance,
	}, true
}

func (a *Assembly) Decide(t domain.Threat) (domain.ResponseTier, domain.Action) {
	switch th := t.(type) {
	case domain.QualityDefect:
		if th.DefectType == domain.DefectNSOP {
			return domain.TierRed, domain.FeedHold{Reason: "CRITICAL: Non-Stick on Pad Detected (NSOP)"}
		}
		return domain.TierYellow, domain.CreateWorkOrder{
			Priority:    "high",
			Description: "Quality defect: " + th.DefectType,
			Component:   "Bonding_Capillary",
		}
	case domain.ThroughputDegradation:
		if th.Issue == domain.IssueCycleTimeDrift {
			return domain.TierGreen, domain.AdjustParameter{Name: "bond_force", Value: 1.05, Unit: "percent"}
		}
		return domain.TierYellow, domain.SendAlert{
			Severity:   domain.SeverityMedium,
			Message:    "OEE below target - review process parameters",
			EscalateTo: "Process_Engineer",
		}
	case domain.EquipmentDegradation:
		if th.Component == domain.ComponentUltrasonicGenerator {
			return domain.TierYellow, domain.ScheduleMaintenance{
				Component:      "ultrasonic_generator",
				Urgency:        "next_shift",
				EstimatedHours: 1.0,
			}
		}
	case domain.ThermalDrift:
		if math.Abs(th.DriftMM) < capillaryDriftHigh {
			return domain.TierGreen, domain.AdjustParameter{Name: "z_offset", Value: -th.DriftMM * 1000, Unit: "micrometers"}
		}
		return domain.TierYellow, domain.SendAlert{
			Severity:   domain.SeverityHigh,
			Message:    "Significant capillary thermal drift",
			EscalateTo: "Maintenance",
		}
	}
	return safety.Fallback(t)
}

// Execute sends the action as a SECS-II S2F41 host command.
func (a *Assembly) Execute(ctx context.Context, act domain.Action) error {
	cmd := a.command(act)
	cmd.Stream, cmd.Function = 2, 41
	return a.dispatch(ctx, cmd)
}
