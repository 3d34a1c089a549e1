package agents

import (
	"errors"
	"fmt"
)

// PrecisionConfig thresholds for machining centers.
type PrecisionConfig struct {
	VibrationCritical   float64 `yaml:"vibration_critical"`
	ThermalDriftMaxMM   float64 `yaml:"thermal_drift_max"`
	ToolWearThreshold   float64 `yaml:"tool_wear_threshold"`
	ChatterDetection    bool    `yaml:"chatter_detection_enabled"`
	ThermalCompensation bool    `yaml:"thermal_compensation_enabled"`
	ToolWearTracking    bool    `yaml:"tool_wear_tracking_enabled"`
	BaselineTempC       float64 `yaml:"baseline_temp_c"`
	MaterialCTE         float64 `yaml:"material_cte"`
	SpindleLengthMM     float64 `yaml:"spindle_length_mm"`
	HistoryCapacity     int     `yaml:"history_capacity"`
}

func DefaultPrecisionConfig() PrecisionConfig {
	return PrecisionConfig{
		VibrationCritical:   10.0,
		ThermalDriftMaxMM:   0.05,
		ToolWearThreshold:   0.15,
		ChatterDetection:    true,
		ThermalCompensation: true,
		ToolWearTracking:    true,
		BaselineTempC:       AmbientPrecisionC,
		MaterialCTE:         CTESteel,
		SpindleLengthMM:     500,
		HistoryCapacity:     100,
	}
}

func (c PrecisionConfig) Validate() error {
	var errs []error
	errs = append(errs,
		positive("vibration_critical", c.VibrationCritical),
		positive("thermal_drift_max", c.ThermalDriftMaxMM),
		positive("tool_wear_threshold", c.ToolWearThreshold),
		positive("material_cte", c.MaterialCTE),
		positive("spindle_length_mm", c.SpindleLengthMM),
		positive("history_capacity", float64(c.HistoryCapacity)),
	)
	return errors.Join(errs...)
}

// FacilityConfig thresholds for cleanroom infrastructure.
type FacilityConfig struct {
	ISOClass             int     `yaml:"iso_class"`
	MinAirflowMPS        float64 `yaml:"min_airflow_velocity"`
	MaxFilterDPPa        float64 `yaml:"max_filter_dp"`
	ChemicalThresholdPPM float64 `yaml:"chemical_leak_threshold"`
	HistoryCapacity      int     `yaml:"history_capacity"`
}

func DefaultFacilityConfig() FacilityConfig {
	return FacilityConfig{
		ISOClass:             ISODefaultClass,
		MinAirflowMPS:        0.45,
		MaxFilterDPPa:        250,
		ChemicalThresholdPPM: 10,
		HistoryCapacity:      100,
	}
}

func (c FacilityConfig) Validate() error {
	return errors.Join(
		positive("min_airflow_velocity", c.MinAirflowMPS),
		positive("max_filter_dp", c.MaxFilterDPPa),
		positive("chemical_leak_threshold", c.ChemicalThresholdPPM),
		positive("history_capacity", float64(c.HistoryCapacity)),
	)
}

// AssemblyConfig thresholds for wire bonders.
type AssemblyConfig struct {
	MaxBondTimeMS          float64 `yaml:"max_bond_time_ms"`
	TheoreticalCycleTimeMS float64 `yaml:"theoretical_cycle_time_ms"`
	MinUltrasonicImpedance float64 `yaml:"min_ultrasonic_impedance"`
	NSOPThreshold          int     `yaml:"nsop_threshold"`
	MinShearStrengthG      float64 `yaml:"min_shear_strength_g"`
	TargetOEE              float64 `yaml:"target_oee"`
	MaterialCTE            float64 `yaml:"material_cte"`
	CapillaryLengthMM      float64 `yaml:"capillary_length_mm"`
	BaselineTempC          float64 `yaml:"baseline_temp_c"`
	HistoryCapacity        int     `yaml:"history_capacity"`
}

func DefaultAssemblyConfig() AssemblyConfig {
	return AssemblyConfig{
		MaxBondTimeMS:          20,
		TheoreticalCycleTimeMS: 15,
		MinUltrasonicImpedance: 30,
		NSOPThreshold:          3,
		MinShearStrengthG:      15,
		TargetOEE:              0.85,
		MaterialCTE:            CTECapillary,
		CapillaryLengthMM:      10,
		BaselineTempC:          AmbientAssemblyC,
		HistoryCapacity:        100,
	}
}

func (c AssemblyConfig) Validate() error {
	var errs []error
	errs = append(errs,
		positive("max_bond_time_ms", c.MaxBondTimeMS),
		positive("theoretical_cycle_time_ms", c.TheoreticalCycleTimeMS),
		positive("min_ultrasonic_impedance", c.MinUltrasonicImpedance),
		positive("nsop_threshold", float64(c.NSOPThreshold)),
		positive("min_shear_strength_g", c.MinShearStrengthG),
		positive("material_cte", c.MaterialCTE),
		positive("capillary_length_mm", c.CapillaryLengthMM),
		positive("history_capacity", float64(c.HistoryCapacity)),
	)
	if c.TargetOEE <= 0 || c.TargetOEE > 1 {
		errs = append(errs, fmt.Errorf("target_oee must be in (0, 1], got %g", c.TargetOEE))
	}
	return errors.Join(errs...)
}

func positive(field string, v float64) error {
	if v > 0 {
		return nil
	}
	return fmt.Errorf("%s must be positive, got %g", field, v)
}
