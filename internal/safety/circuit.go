// Package safety maps threats to response tiers and applies the action-level
// approval veto.
package safety

import (
	"fmt"
	"time"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

// DefaultMaxAutoSpeedReductionPct is the largest speed reduction that may run
// without an approval.
const DefaultMaxAutoSpeedReductionPct = 20

// DefaultTier is the generic severity→tier mapping used when no class table matches.
func DefaultTier(s domain.Severity) domain.ResponseTier {
	switch {
	case s >= domain.SeverityCritical:
		return domain.TierRed
	case s >= domain.SeverityHigh:
		return domain.TierYellow
	default:
		return domain.TierGreen
	}
}

// Fallback is the generic decision for a threat no class table covers.
func Fallback(t domain.Threat) (domain.ResponseTier, domain.Action) {
	tier := DefaultTier(t.Severity())
	switch tier {
	case domain.TierGreen:
		return tier, domain.LogOnly{Note: t.Summary()}
	case domain.TierYellow:
		return tier, domain.SendAlert{
			Severity: t.Severity(),
			Message:  fmt.Sprintf("%s on %s needs review: %s", t.Kind(), t.Machine(), t.Summary()),
		}
	default:
		return tier, domain.SendAlert{
			Severity:   t.Severity(),
			Message:    fmt.Sprintf("Unknown threat type %s on %s: %s", t.Kind(), t.Machine(), t.Summary()),
			EscalateTo: "shift_supervisor",
		}
	}
}

// Policy holds the approval veto thresholds.
type Policy struct {
	MaxAutoSpeedReductionPct uint8 `yaml:"max_auto_speed_reduction_pct"`
}

func DefaultPolicy() Policy {
	return Policy{MaxAutoSpeedReductionPct: DefaultMaxAutoSpeedReductionPct}
}

// RequiresApproval reports whether an action class must be approved no matter
// which tier it was assigned.
func (p Policy) RequiresApproval(a domain.Action) bool {
	switch act := a.(type) {
	case domain.EmergencyStop:
		return true
	case domain.ReduceSpeed:
		return act.Percent > p.MaxAutoSpeedReductionPct
	default:
		return false
	}
}

// Decider is the part of an agent the circuit needs.
type Decider interface {
	ID() string
	Decide(t domain.Threat) (domain.ResponseTier, domain.Action)
}

// Circuit combines an agent's table with the approval veto.
type Circuit struct {
	policy Policy
	now    func() time.Time
}

func New(p Policy) *Circuit {
	return &Circuit{policy: p, now: time.Now}
}

func (c *Circuit) Policy() Policy { return c.policy }

// Evaluate asks the agent for its (tier, action) and applies the veto: a Green
// decision whose action needs approval is held as Yellow. Red is never relaxed.
func (c *Circuit) Evaluate(d Decider, t domain.Threat) domain.Decision {
	tier, action := d.Decide(t)
	veto := c.policy.RequiresApproval(action)
	if veto && tier == domain.TierGreen {
		tier = domain.TierYellow
	}
	return domain.Decision{
		AgentID:          d.ID(),
		Threat:           t,
		Tier:             tier,
		Action:           action,
		RequiresApproval: veto || tier == domain.TierYellow,
		DecidedAt:        c.now().UTC(),
	}
}
