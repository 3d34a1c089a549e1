package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decision is the safety circuit's verdict for one threat.
type Decision struct {
	AgentID          string
	Threat           Threat
	Tier             ResponseTier
	Action           Action
	RequiresApproval bool
	DecidedAt        time.Time
}

// Incident is the reporting record of a decision. It is what the journal and
// every incident sink persist.
type Incident struct {
	ID               string       `json:"incident_id"`
	Timestamp        time.Time    `json:"timestamp"`
	MachineID        string       `json:"machine_id"`
	AgentID          string       `json:"agent_id"`
	Type             ThreatKind   `json:"incident_type"`
	Severity         Severity     `json:"severity"`
	Tier             ResponseTier `json:"tier"`
	Message          string       `json:"message"`
	Value            float64      `json:"value"`
	Threshold        float64      `json:"threshold"`
	Action           ActionType   `json:"action"`
	ActionDetail     string       `json:"action_detail"`
	Status           string       `json:"action_status"`
	RequiresApproval bool         `json:"requires_approval"`
	Zone             string       `json:"zone"`
}

// NewIncidentID returns an id of the form INC-XXXXXXXX.
func NewIncidentID() string {
	return "INC-" + strings.ToUpper(uuid.NewString()[:8])
}

// NewIncident builds the reporting record for a decision.
func NewIncident(d Decision) Incident {
	value, threshold := Evidence(d.Threat)
	ts := d.DecidedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	inc := Incident{
		ID:               NewIncidentID(),
		Timestamp:        ts,
		AgentID:          d.AgentID,
		Tier:             d.Tier,
		Value:            value,
		Threshold:        threshold,
		Status:           d.Tier.Status(),
		RequiresApproval: d.RequiresApproval,
	}
	if d.Threat != nil {
		inc.MachineID = d.Threat.Machine()
		inc.Type = d.Threat.Kind()
		inc.Severity = d.Threat.Severity()
		inc.Message = fmt.Sprintf("%s detected on %s: %s", d.Threat.Kind(), d.Threat.Machine(), d.Threat.Summary())
		inc.Zone = zoneFor(d.Threat.Severity())
	}
	if d.Action != nil {
		inc.Action = d.Action.Type()
		inc.ActionDetail = d.Action.Describe()
	}
	return inc
}

// Evidence returns the headline value of a threat and the threshold it is
// reported against.
func Evidence(t Threat) (value, threshold float64) {
	switch th := t.(type) {
	case Chatter:
		return th.Amplitude, 0.01
	case ThermalDrift:
		return th.DriftMM, 0.05
	case ToolWear:
		return th.WearPercent, 15.0
	case ThermalRunaway:
		return th.Temperature, 80.0
	case BearingFailure:
		return th.Vibration, 0.02
	case FacilityIntegrity:
		return th.Metric, 250.0
	case Contamination:
		return th.ParticleCount, th.Limit
	case ChemicalLeak:
		return th.PPM, 10.0
	case QualityDefect:
		return th.Confidence, 0.95
	case EquipmentDegradation:
		return th.Metric, 0
	default:
		return 0, 0
	}
}

func zoneFor(s Severity) string {
	switch s {
	case SeverityLow, SeverityMedium:
		return "green"
	case SeverityHigh:
		return "yellow"
	default:
		return "red"
	}
}
