package domain

import (
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryMetricDefaults(t *testing.T) {
	tel := &Telemetry{
		MachineID: "CNC-001",
		Metrics:   map[string]float64{"vibration": 0.4, "temperature": math.NaN()},
	}

	assert.Equal(t, 0.4, tel.Metric("vibration", 0))
	assert.Equal(t, 20.0, tel.Metric("temperature", 20), "NaN readings fall back to the default")
	assert.Equal(t, 25.0, tel.Metric("capillary_temp", 25))

	var missing *Telemetry
	assert.Equal(t, 7.0, missing.Metric("anything", 7))
}

func TestSeverityOrderingAndText(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)
	assert.True(t, SeverityHigh < SeverityCritical)

	var s Severity
	require.NoError(t, s.UnmarshalText([]byte("Critical")))
	assert.Equal(t, SeverityCritical, s)
	assert.Error(t, s.UnmarshalText([]byte("catastrophic")))
}

func TestCommandFor(t *testing.T) {
	now := time.Unix(100, 0)

	tests := []struct {
		name   string
		action Action
		want   Command
	}{
		{
			name:   "adjust parameter",
			action: AdjustParameter{Name: "spindle_rpm", Value: 0.95, Unit: "percent"},
			want:   Command{MachineID: "CNC-001", Action: "adjust_parameter", Parameter: "spindle_rpm", Value: 0.95, Unit: "percent", IssuedAt: now},
		},
		{
			name:   "reduce speed",
			action: ReduceSpeed{Percent: 20},
			want:   Command{MachineID: "CNC-001", Action: "reduce_speed", Parameter: "feed_rate", Value: 20, Unit: "percent", IssuedAt: now},
		},
		{
			name:   "emergency stop",
			action: EmergencyStop{},
			want:   Command{MachineID: "CNC-001", Action: "emergency_stop", IssuedAt: now},
		},
		{
			name:   "work order becomes alert",
			action: CreateWorkOrder{Priority: "high", Description: "check", Component: "spindle"},
			want:   Command{MachineID: "CNC-001", Action: "alert", Reason: "work order (high) on spindle: check", IssuedAt: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommandFor("CNC-001", tt.action, now))
		})
	}
}

func TestNewIncident(t *testing.T) {
	d := Decision{
		AgentID: "BOND-01",
		Threat: QualityDefect{
			ThreatBase: ThreatBase{MachineID: "BOND-01", Level: SeverityCritical},
			DefectType: DefectNSOP,
			Confidence: 0.99,
		},
		Tier:   TierRed,
		Action: FeedHold{Reason: "CRITICAL: Non-Stick on Pad Detected"},
	}

	inc := NewIncident(d)

	assert.Regexp(t, regexp.MustCompile(`^INC-[0-9A-F]{8}$`), inc.ID)
	assert.Equal(t, "BOND-01", inc.MachineID)
	assert.Equal(t, KindQualityDefect, inc.Type)
	assert.Equal(t, "alert_only", inc.Status)
	assert.Equal(t, "red", inc.Zone)
	assert.Equal(t, 0.99, inc.Value)
	assert.Equal(t, 0.95, inc.Threshold)
	assert.Equal(t, ActionFeedHold, inc.Action)
	assert.False(t, inc.Timestamp.IsZero())
}

func TestResponseTierHelpers(t *testing.T) {
	assert.True(t, TierGreen.AutoExecute())
	assert.False(t, TierYellow.AutoExecute())
	assert.True(t, TierYellow.NeedsApproval())
	assert.False(t, TierRed.NeedsApproval())
	assert.True(t, TierRed.AlertOnly())
	assert.True(t, ResponseTier(7).AlertOnly())
	assert.False(t, TierGreen.AlertOnly())

	var tier ResponseTier
	require.NoError(t, tier.UnmarshalText([]byte("YELLOW")))
	assert.Equal(t, TierYellow, tier)
	assert.Error(t, tier.UnmarshalText([]byte("amber")))
}
