package agents

import (
	"context"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/safety"
	"github.com/ghalamif/AegisSentinel/internal/stats"
)

const (
	facilityMetricPressure  = "pressure_diff_pa"
	facilityMetricAirflow   = "airflow_mps"
	facilityMetricParticles = "particles_0_5um"
	facilityMetricChemical  = "chemical_ppm"

	filterLoadingFactor      = 1.5
	contaminationWarnRatio   = 0.8
	airflowFailureRatio      = 0.8
	chemicalCriticalMultiple = 2.0
)

// Facility watches cleanroom infrastructure: FFU filters and airflow,
// ISO 14644-1 particle counts and chemical sensors.
type Facility struct {
	base
	cfg FacilityConfig

	pressure  *stats.Window
	particles *stats.Window
	airflow   *stats.Window
}

var _ Agent = (*Facility)(nil)

func NewFacility(machineID string, cfg FacilityConfig, opts ...Option) (*Facility, error) {
	if machineID == "" {
		return nil, ErrMissingMachineID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Facility{
		base:      newBase(machineID, "bacnet", []string{"FAC-"}, opts),
		cfg:       cfg,
		pressure:  stats.NewWindow(cfg.HistoryCapacity),
		particles: stats.NewWindow(cfg.HistoryCapacity),
		airflow:   stats.NewWindow(cfg.HistoryCapacity),
	}
	if _, ok := isoClassMultipliers[cfg.ISOClass]; !ok {
		f.logger.Warn("unknown iso class, using class 5 limits", "iso_class", cfg.ISOClass)
	}
	return f, nil
}

func (f *Facility) Describe() domain.AgentMetadata {
	return domain.AgentMetadata{
		Name:               "Facility Sentinel",
		Version:            "1.2.0",
		SupportedEquipment: []string{"Fan Filter Unit", "Cleanroom Zone", "Chemical Monitor"},
		Capabilities: []string{
			"filter_clog_detection",
			"iso_14644_contamination",
			"airflow_monitoring",
			"chemical_leak_detection",
		},
	}
}

// ContaminationLimit is the configured class limit at 0.5 µm.
func (f *Facility) ContaminationLimit() float64 {
	return ISOClassLimit(f.cfg.ISOClass, ISOMonitoredParticleUM)
}

func (f *Facility) Analyze(t *domain.Telemetry) []domain.Threat {
	pressure := t.Metric(facilityMetricPressure, 0)
	airflow := t.Metric(facilityMetricAirflow, f.cfg.MinAirflowMPS)
	particles := t.Metric(facilityMetricParticles, 0)
	chemical := t.Metric(facilityMetricChemical, 0)

	f.pressure.Push(pressure)
	f.particles.Push(particles)
	f.airflow.Push(airflow)

	var threats []domain.Threat
	for _, detect := range []func() (domain.Threat, bool){
		func() (domain.Threat, bool) { return f.detectFilterClog(pressure, airflow) },
		func() (domain.Threat, bool) { return f.detectContamination(particles) },
		func() (domain.Threat, bool) { return f.detectAirflowFailure(airflow) },
		func() (domain.Threat, bool) { return f.detectChemicalLeak(chemical) },
	} {
		if th, ok := detect(); ok {
			threats = append(threats, th)
		}
	}
	return threats
}

func (f *Facility) detectFilterClog(pressure, airflow float64) (domain.Threat, bool) {
	var impedance float64
	if airflow > 0 {
		impedance = pressure / airflow
	}
	baseline := 100.0
	if f.pressure.Len() > 0 {
		baseline = f.pressure.Mean()
	}

	switch {
	case pressure > f.cfg.MaxFilterDPPa:
		return domain.FacilityIntegrity{
			ThreatBase: threatBase(f.machineID, domain.SeverityHigh),
			Issue:      domain.IssueFilterEndOfLife,
			Metric:     pressure,
		}, true
	case impedance > filterLoadingFactor*baseline:
		return domain.FacilityIntegrity{
			ThreatBase: threatBase(f.machineID, domain.SeverityMedium),
			Issue:      domain.IssueFilterLoading,
			Metric:     impedance,
		}, true
	default:
		return nil, false
	}
}

func (f *Facility) detectContamination(particles float64) (domain.Threat, bool) {
	limit := f.ContaminationLimit()
	var sev domain.Severity
	switch {
	case particles > limit:
		sev = domain.SeverityCritical
	case particles > limit*contaminationWarnRatio:
		sev = domain.SeverityHigh
	default:
		return nil, false
	}
	return domain.Contamination{ThreatBase: threatBase(f.machineID, sev), ParticleCount: particles, Limit: limit}, true
}

func (f *Facility) detectAirflowFailure(airflow float64) (domain.Threat, bool) {
	if airflow >= f.cfg.MinAirflowMPS*airflowFailureRatio {
		return nil, false
	}
	return domain.FacilityIntegrity{
		ThreatBase: threatBase(f.machineID, domain.SeverityCritical),
		Issue:      domain.IssueAirflowFailure,
		Metric:     airflow,
	}, true
}

func (f *Facility) detectChemicalLeak(ppm float64) (domain.Threat, bool) {
	var sev domain.Severity
	switch {
	case ppm > f.cfg.ChemicalThresholdPPM*chemicalCriticalMultiple:
		sev = domain.SeverityCritical
	case ppm > f.cfg.ChemicalThresholdPPM:
		sev = domain.SeverityHigh
	default:
		return nil, false
	}
	return domain.ChemicalLeak{ThreatBase: threatBase(f.machineID, sev), PPM: ppm}, true
}

func (f *Facility) Decide(t domain.Threat) (domain.ResponseTier, domain.Action) {
	switch th := t.(type) {
	case domain.Contamination:
		if th.Level == domain.SeverityCritical {
			return domain.TierRed, domain.SendAlert{
				Severity:   domain.SeverityCritical,
				Message:    "ISO CLASS VIOLATION - STOP WAFER LOADING",
				EscalateTo: "Process_Engineering",
			}
		}
		return domain.TierYellow, domain.CreateWorkOrder{
			Priority:    "high",
			Description: "Particle count elevated - investigate source",
			Component:   "FFU_System",
		}
	case domain.ChemicalLeak:
		if th.Level == domain.SeverityCritical {
			return domain.TierRed, domain.EmergencyStop{}
		}
	case domain.FacilityIntegrity:
		switch th.Issue {
		case domain.IssueFilterEndOfLife:
			return domain.TierYellow, domain.CreateWorkOrder{
				Priority:    "medium",
				Description: "HEPA Filter dP High - Schedule Replacement",
				Component:   "FFU_Filter",
			}
		case domain.IssueAirflowFailure:
			return domain.TierRed, domain.SendAlert{
				Severity:   domain.SeverityCritical,
				Message:    "FFU AIRFLOW FAILURE - CHECK FAN FILTER UNITS",
				EscalateTo: "Facilities_Manager",
			}
		}
	}
	return safety.Fallback(t)
}

func (f *Facility) Execute(ctx context.Context, a domain.Action) error {
	return f.dispatch(ctx, f.command(a))
}
