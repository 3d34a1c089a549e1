package domain

import "fmt"

// ActionType is the stable name of an Action variant.
type ActionType string

const (
	ActionAdjustParameter     ActionType = "adjust_parameter"
	ActionReduceSpeed         ActionType = "reduce_speed"
	ActionEmergencyStop       ActionType = "emergency_stop"
	ActionFeedHold            ActionType = "feed_hold"
	ActionCreateWorkOrder     ActionType = "create_work_order"
	ActionScheduleMaintenance ActionType = "schedule_maintenance"
	ActionSendAlert           ActionType = "send_alert"
	ActionLogOnly             ActionType = "log_only"
)

// Action is what the safety circuit proposes for a threat. Variants are value
// types and compare with ==.
type Action interface {
	Type() ActionType
	Describe() string
}

type AdjustParameter struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

func (AdjustParameter) Type() ActionType { return ActionAdjustParameter }
func (a AdjustParameter) Describe() string {
	return fmt.Sprintf("adjust %s to %g %s", a.Name, a.Value, a.Unit)
}

type ReduceSpeed struct {
	Percent uint8 `json:"percent"`
}

func (ReduceSpeed) Type() ActionType { return ActionReduceSpeed }
func (a ReduceSpeed) Describe() string {
	return fmt.Sprintf("reduce speed by %d%%", a.Percent)
}

type EmergencyStop struct{}

func (EmergencyStop) Type() ActionType { return ActionEmergencyStop }
func (EmergencyStop) Describe() string { return "emergency stop" }

type FeedHold struct {
	Reason string `json:"reason"`
}

func (FeedHold) Type() ActionType   { return ActionFeedHold }
func (a FeedHold) Describe() string { return "feed hold: " + a.Reason }

type CreateWorkOrder struct {
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Component   string `json:"component"`
}

func (CreateWorkOrder) Type() ActionType { return ActionCreateWorkOrder }
func (a CreateWorkOrder) Describe() string {
	return fmt.Sprintf("work order (%s) on %s: %s", a.Priority, a.Component, a.Description)
}

type ScheduleMaintenance struct {
	Component      string  `json:"component"`
	Urgency        string  `json:"urgency"`
	EstimatedHours float64 `json:"estimated_hours"`
}

func (ScheduleMaintenance) Type() ActionType { return ActionScheduleMaintenance }
func (a ScheduleMaintenance) Describe() string {
	return fmt.Sprintf("schedule maintenance of %s (%s, %.2fh)", a.Component, a.Urgency, a.EstimatedHours)
}

type SendAlert struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	EscalateTo string   `json:"escalate_to,omitempty"`
}

func (SendAlert) Type() ActionType { return ActionSendAlert }
func (a SendAlert) Describe() string {
	if a.EscalateTo == "" {
		return fmt.Sprintf("%s alert: %s", a.Severity, a.Message)
	}
	return fmt.Sprintf("%s alert to %s: %s", a.Severity, a.EscalateTo, a.Message)
}

type LogOnly struct {
	Note string `json:"note,omitempty"`
}

func (LogOnly) Type() ActionType { return ActionLogOnly }
func (a LogOnly) Describe() string {
	if a.Note == "" {
		return "log only"
	}
	return "log: " + a.Note
}
