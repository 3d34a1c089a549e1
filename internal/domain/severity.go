package domain

import (
	"fmt"
	"strings"
)

// Severity is totally ordered: Low < Medium < High < Critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity accepts the lower-case names produced by String, case-insensitively.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", v)
	}
}

// ResponseTier is the autonomy level assigned to a decision.
type ResponseTier int

const (
	// TierGreen actions execute immediately.
	TierGreen ResponseTier = iota
	// TierYellow actions wait for an external approval.
	TierYellow
	// TierRed threats are alerted on; nothing executes autonomously.
	TierRed
)

func (t ResponseTier) String() string {
	switch t {
	case TierGreen:
		return "green"
	case TierYellow:
		return "yellow"
	case TierRed:
		return "red"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// AutoExecute reports whether the tier's action runs without an operator.
func (t ResponseTier) AutoExecute() bool   { return t == TierGreen }
func (t ResponseTier) NeedsApproval() bool { return t == TierYellow }

// AlertOnly reports whether the tier only raises an alert. Anything outside
// the known tiers is treated as Red.
func (t ResponseTier) AlertOnly() bool { return t != TierGreen && t != TierYellow }

func (t ResponseTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ResponseTier) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "green":
		*t = TierGreen
	case "yellow":
		*t = TierYellow
	case "red":
		*t = TierRed
	default:
		return fmt.Errorf("unknown response tier %q", string(b))
	}
	return nil
}

// Status is the incident status reported for a decision in this tier.
func (t ResponseTier) Status() string {
	switch t {
	case TierGreen:
		return "auto_executed"
	case TierYellow:
		return "pending_approval"
	default:
		return "alert_only"
	}
}
