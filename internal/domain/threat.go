package domain

import "fmt"

// ThreatKind names the phenomenon a Threat describes.
type ThreatKind string

const (
	KindChatter               ThreatKind = "chatter"
	KindThermalDrift          ThreatKind = "thermal_drift"
	KindToolWear              ThreatKind = "tool_wear"
	KindThermalRunaway        ThreatKind = "thermal_runaway"
	KindBearingFailure        ThreatKind = "bearing_failure"
	KindFacilityIntegrity     ThreatKind = "facility_integrity"
	KindContamination         ThreatKind = "contamination"
	KindChemicalLeak          ThreatKind = "chemical_leak"
	KindQualityDefect         ThreatKind = "quality_defect"
	KindThroughputDegradation ThreatKind = "throughput_degradation"
	KindEquipmentDegradation  ThreatKind = "equipment_degradation"
)

// Issue and defect labels carried inside threats. The safety tables match on them.
const (
	IssueFilterEndOfLife = "HEPA Filter End-of-Life"
	IssueFilterLoading   = "Filter Loading Detected"
	IssueAirflowFailure  = "FFU Airflow Failure"
	IssueCycleTimeDrift  = "Cycle Time Drift"

	DefectNSOP     = "NSOP (Non-Stick on Pad)"
	DefectWeakBond = "Weak Bond"

	ComponentUltrasonicGenerator = "Ultrasonic Generator"
)

// Threat is one detected phenomenon. Implementations are plain value types so
// two threats with the same evidence compare equal.
type Threat interface {
	Kind() ThreatKind
	Machine() string
	Severity() Severity
	Summary() string
}

// ThreatBase carries the fields every threat has.
type ThreatBase struct {
	MachineID string   `json:"machine_id"`
	Level     Severity `json:"severity"`
}

func (b ThreatBase) Machine() string    { return b.MachineID }
func (b ThreatBase) Severity() Severity { return b.Level }

// Chatter is regenerative vibration during cutting. Amplitude is RMS mm/s.
type Chatter struct {
	ThreatBase
	Amplitude float64 `json:"amplitude_mm_s"`
}

func (Chatter) Kind() ThreatKind { return KindChatter }
func (t Chatter) Summary() string {
	return fmt.Sprintf("chatter amplitude %.4f mm/s", t.Amplitude)
}

type ThermalDrift struct {
	ThreatBase
	DriftMM float64 `json:"drift_mm"`
	Axis    string  `json:"axis"`
}

func (ThermalDrift) Kind() ThreatKind { return KindThermalDrift }
func (t ThermalDrift) Summary() string {
	return fmt.Sprintf("thermal drift %.4f mm on %s axis", t.DriftMM, t.Axis)
}

type ToolWear struct {
	ThreatBase
	WearPercent      float64 `json:"wear_percent"`
	RemainingLifeMin float64 `json:"remaining_life_min"`
}

func (ToolWear) Kind() ThreatKind { return KindToolWear }
func (t ToolWear) Summary() string {
	return fmt.Sprintf("tool wear %.1f%%, ~%.0f min remaining", t.WearPercent, t.RemainingLifeMin)
}

type ThermalRunaway struct {
	ThreatBase
	Temperature float64 `json:"temperature_c"`
	RatePerMin  float64 `json:"rate_c_per_min"`
}

func (ThermalRunaway) Kind() ThreatKind { return KindThermalRunaway }
func (t ThermalRunaway) Summary() string {
	return fmt.Sprintf("thermal runaway %.1f°C rising %.2f°C/min", t.Temperature, t.RatePerMin)
}

type BearingFailure struct {
	ThreatBase
	Vibration float64 `json:"vibration_mm_s"`
}

func (BearingFailure) Kind() ThreatKind { return KindBearingFailure }
func (t BearingFailure) Summary() string {
	return fmt.Sprintf("bearing vibration %.4f mm/s RMS", t.Vibration)
}

// FacilityIntegrity covers filter and airflow problems of a fan filter unit.
type FacilityIntegrity struct {
	ThreatBase
	Issue  string  `json:"issue"`
	Metric float64 `json:"metric"`
}

func (FacilityIntegrity) Kind() ThreatKind { return KindFacilityIntegrity }
func (t FacilityIntegrity) Summary() string {
	return fmt.Sprintf("%s (%.3f)", t.Issue, t.Metric)
}

type Contamination struct {
	ThreatBase
	ParticleCount float64 `json:"particle_count"`
	Limit         float64 `json:"limit"`
}

func (Contamination) Kind() ThreatKind { return KindContamination }
func (t Contamination) Summary() string {
	return fmt.Sprintf("particle count %.0f against limit %.0f", t.ParticleCount, t.Limit)
}

type ChemicalLeak struct {
	ThreatBase
	PPM float64 `json:"concentration_ppm"`
}

func (ChemicalLeak) Kind() ThreatKind { return KindChemicalLeak }
func (t ChemicalLeak) Summary() string {
	return fmt.Sprintf("chemical concentration %.2f ppm", t.PPM)
}

type QualityDefect struct {
	ThreatBase
	DefectType string  `json:"defect_type"`
	Confidence float64 `json:"confidence"`
}

func (QualityDefect) Kind() ThreatKind { return KindQualityDefect }
func (t QualityDefect) Summary() string {
	return fmt.Sprintf("quality defect %s (confidence %.2f)", t.DefectType, t.Confidence)
}

type ThroughputDegradation struct {
	ThreatBase
	Issue      string `json:"issue"`
	ImpactsOEE bool   `json:"impacts_oee"`
}

func (ThroughputDegradation) Kind() ThreatKind  { return KindThroughputDegradation }
func (t ThroughputDegradation) Summary() string { return t.Issue }

type EquipmentDegradation struct {
	ThreatBase
	Component string  `json:"component"`
	Metric    float64 `json:"metric"`
}

func (EquipmentDegradation) Kind() ThreatKind { return KindEquipmentDegradation }
func (t EquipmentDegradation) Summary() string {
	return fmt.Sprintf("%s degraded (%.2f)", t.Component, t.Metric)
}
