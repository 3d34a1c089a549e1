package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

func newTestFacility(t *testing.T) *Facility {
	t.Helper()
	f, err := NewFacility("FAC-001", DefaultFacilityConfig())
	require.NoError(t, err)
	return f
}

func TestFacilityNormalOperation(t *testing.T) {
	f := newTestFacility(t)
	for i := 0; i < 30; i++ {
		threats := f.Analyze(telemetry("FAC-001",
			"pressure_diff_pa", 120.0,
			"airflow_mps", 0.9,
			"particles_0_5um", 1000.0,
			"chemical_ppm", 2.0,
		))
		require.Empty(t, threats, "reading %d", i)
	}
	assert.Empty(t, f.Analyze(telemetry("FAC-001")), "absent metrics use nominal defaults")
}

func TestFacilityContaminationClass5(t *testing.T) {
	tests := []struct {
		name      string
		particles float64
		want      *domain.Severity
	}{
		{name: "above limit", particles: 5000, want: ptr(domain.SeverityCritical)},
		{name: "within 80 percent band", particles: 3200, want: ptr(domain.SeverityHigh)},
		{name: "3000 is inside the band", particles: 3000, want: ptr(domain.SeverityHigh)},
		{name: "below warning band", particles: 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFacility(t)
			th, ok := findKind(f.Analyze(telemetry("FAC-001", "particles_0_5um", tt.particles)), domain.KindContamination)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, *tt.want, th.Severity())
			assert.InDelta(t, 3513, th.(domain.Contamination).Limit, 10)
		})
	}
}

func TestFacilityFilterClog(t *testing.T) {
	f := newTestFacility(t)
	th, ok := findKind(f.Analyze(telemetry("FAC-001", "pressure_diff_pa", 300.0, "airflow_mps", 0.45)), domain.KindFacilityIntegrity)
	require.True(t, ok)
	integrity := th.(domain.FacilityIntegrity)
	assert.Equal(t, domain.IssueFilterEndOfLife, integrity.Issue)
	assert.Equal(t, domain.SeverityHigh, integrity.Severity())
	assert.Equal(t, 300.0, integrity.Metric)

	f = newTestFacility(t)
	for i := 0; i < 10; i++ {
		require.Empty(t, f.Analyze(telemetry("FAC-001", "pressure_diff_pa", 100.0, "airflow_mps", 0.9)))
	}
	th, ok = findKind(f.Analyze(telemetry("FAC-001", "pressure_diff_pa", 140.0, "airflow_mps", 0.45)), domain.KindFacilityIntegrity)
	require.True(t, ok)
	integrity = th.(domain.FacilityIntegrity)
	assert.Equal(t, domain.IssueFilterLoading, integrity.Issue)
	assert.Equal(t, domain.SeverityMedium, integrity.Severity())
}

func TestFacilityAirflowFailure(t *testing.T) {
	f := newTestFacility(t)
	threats := f.Analyze(telemetry("FAC-001", "airflow_mps", 0.3))
	require.Len(t, threats, 1)
	integrity := threats[0].(domain.FacilityIntegrity)
	assert.Equal(t, domain.IssueAirflowFailure, integrity.Issue)
	assert.Equal(t, domain.SeverityCritical, integrity.Severity())

	assert.Empty(t, f.Analyze(telemetry("FAC-001", "airflow_mps", 0.37)))
}

func TestFacilityChemicalLeak(t *testing.T) {
	f := newTestFacility(t)

	th, ok := findKind(f.Analyze(telemetry("FAC-001", "chemical_ppm", 15.0)), domain.KindChemicalLeak)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityHigh, th.Severity())

	th, ok = findKind(f.Analyze(telemetry("FAC-001", "chemical_ppm", 25.0)), domain.KindChemicalLeak)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, th.Severity())

	_, ok = findKind(f.Analyze(telemetry("FAC-001", "chemical_ppm", 10.0)), domain.KindChemicalLeak)
	assert.False(t, ok)
}

func TestFacilityDecide(t *testing.T) {
	f := newTestFacility(t)
	tb := func(sev domain.Severity) domain.ThreatBase { return threatBase("FAC-001", sev) }

	tests := []struct {
		name       string
		threat     domain.Threat
		wantTier   domain.ResponseTier
		wantAction domain.Action
	}{
		{
			name:     "iso violation",
			threat:   domain.Contamination{ThreatBase: tb(domain.SeverityCritical), ParticleCount: 5000, Limit: 3517},
			wantTier: domain.TierRed,
			wantAction: domain.SendAlert{
				Severity:   domain.SeverityCritical,
				Message:    "ISO CLASS VIOLATION - STOP WAFER LOADING",
				EscalateTo: "Process_Engineering",
			},
		},
		{
			name:     "elevated particles",
			threat:   domain.Contamination{ThreatBase: tb(domain.SeverityHigh), ParticleCount: 3200, Limit: 3517},
			wantTier: domain.TierYellow,
			wantAction: domain.CreateWorkOrder{
				Priority:    "high",
				Description: "Particle count elevated - investigate source",
				Component:   "FFU_System",
			},
		},
		{
			name:       "critical chemical leak",
			threat:     domain.ChemicalLeak{ThreatBase: tb(domain.SeverityCritical), PPM: 25},
			wantTier:   domain.TierRed,
			wantAction: domain.EmergencyStop{},
		},
		{
			name:     "filter end of life",
			threat:   domain.FacilityIntegrity{ThreatBase: tb(domain.SeverityHigh), Issue: domain.IssueFilterEndOfLife, Metric: 300},
			wantTier: domain.TierYellow,
			wantAction: domain.CreateWorkOrder{
				Priority:    "medium",
				Description: "HEPA Filter dP High - Schedule Replacement",
				Component:   "FFU_Filter",
			},
		},
		{
			name:       "filter loading logged",
			threat:     domain.FacilityIntegrity{ThreatBase: tb(domain.SeverityMedium), Issue: domain.IssueFilterLoading, Metric: 311},
			wantTier:   domain.TierGreen,
			wantAction: domain.LogOnly{Note: "Filter Loading Detected (311.000)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, action := f.Decide(tt.threat)
			assert.Equal(t, tt.wantTier, tier)
			assert.Equal(t, tt.wantAction, action)
		})
	}

	tier, action := f.Decide(domain.FacilityIntegrity{ThreatBase: tb(domain.SeverityCritical), Issue: domain.IssueAirflowFailure, Metric: 0.3})
	assert.Equal(t, domain.TierRed, tier)
	assert.Equal(t, "Facilities_Manager", action.(domain.SendAlert).EscalateTo)

	tier, action = f.Decide(domain.ChemicalLeak{ThreatBase: tb(domain.SeverityHigh), PPM: 15})
	assert.Equal(t, domain.TierYellow, tier)
	assert.IsType(t, domain.SendAlert{}, action)
}

func TestFacilityClaims(t *testing.T) {
	f := newTestFacility(t)
	assert.True(t, f.Claims("FAC-001"))
	assert.True(t, f.Claims("FAC-ZONE-B"))
	assert.False(t, f.Claims("CNC-001"))
}

func TestFacilityUnknownClassUsesClass5(t *testing.T) {
	for _, class := range []int{0, 10, 12} {
		cfg := DefaultFacilityConfig()
		cfg.ISOClass = class
		f, err := NewFacility("FAC-009", cfg)
		require.NoError(t, err, "class %d", class)
		assert.InDelta(t, 3517, f.ContaminationLimit(), 1, "class %d", class)

		th, ok := findKind(f.Analyze(telemetry("FAC-009", "particles_0_5um", 5000.0)), domain.KindContamination)
		require.True(t, ok, "class %d", class)
		assert.Equal(t, domain.SeverityCritical, th.Severity())
	}
}

func ptr[T any](v T) *T { return &v }
