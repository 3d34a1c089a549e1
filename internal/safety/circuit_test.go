package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

func TestDefaultTier(t *testing.T) {
	tests := []struct {
		sev  domain.Severity
		want domain.ResponseTier
	}{
		{domain.SeverityLow, domain.TierGreen},
		{domain.SeverityMedium, domain.TierGreen},
		{domain.SeverityHigh, domain.TierYellow},
		{domain.SeverityCritical, domain.TierRed},
	}
	for _, tt := range tests {
		t.Run(tt.sev.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultTier(tt.sev))
		})
	}
}

func TestFallbackActions(t *testing.T) {
	leak := func(sev domain.Severity) domain.Threat {
		return domain.ChemicalLeak{ThreatBase: domain.ThreatBase{MachineID: "FAC-001", Level: sev}, PPM: 12}
	}

	tier, action := Fallback(leak(domain.SeverityMedium))
	assert.Equal(t, domain.TierGreen, tier)
	assert.IsType(t, domain.LogOnly{}, action)

	tier, action = Fallback(leak(domain.SeverityHigh))
	assert.Equal(t, domain.TierYellow, tier)
	assert.IsType(t, domain.SendAlert{}, action)

	tier, action = Fallback(leak(domain.SeverityCritical))
	assert.Equal(t, domain.TierRed, tier)
	alert, ok := action.(domain.SendAlert)
	assert.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
}

func TestRequiresApproval(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.RequiresApproval(domain.EmergencyStop{}))
	assert.False(t, p.RequiresApproval(domain.ReduceSpeed{Percent: 20}))
	assert.True(t, p.RequiresApproval(domain.ReduceSpeed{Percent: 21}))
	assert.False(t, p.RequiresApproval(domain.AdjustParameter{Name: "spindle_rpm", Value: 0.95}))
	assert.False(t, p.RequiresApproval(domain.LogOnly{}))
}

type tableDecider struct {
	tier   domain.ResponseTier
	action domain.Action
}

func (d tableDecider) ID() string { return "CNC-001" }
func (d tableDecider) Decide(domain.Threat) (domain.ResponseTier, domain.Action) {
	return d.tier, d.action
}

func TestEvaluateVetoPromotesGreen(t *testing.T) {
	c := New(DefaultPolicy())
	threat := domain.Chatter{ThreatBase: domain.ThreatBase{MachineID: "CNC-001", Level: domain.SeverityHigh}, Amplitude: 1}

	d := c.Evaluate(tableDecider{tier: domain.TierGreen, action: domain.ReduceSpeed{Percent: 40}}, threat)
	assert.Equal(t, domain.TierYellow, d.Tier)
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, "CNC-001", d.AgentID)

	d = c.Evaluate(tableDecider{tier: domain.TierGreen, action: domain.ReduceSpeed{Percent: 10}}, threat)
	assert.Equal(t, domain.TierGreen, d.Tier)
	assert.False(t, d.RequiresApproval)

	d = c.Evaluate(tableDecider{tier: domain.TierRed, action: domain.EmergencyStop{}}, threat)
	assert.Equal(t, domain.TierRed, d.Tier)
	assert.True(t, d.RequiresApproval)
}
