package domain

import "time"

// Command is the payload published to a machine's command channel.
type Command struct {
	MachineID string    `json:"machine_id"`
	Action    string    `json:"action"`
	Parameter string    `json:"parameter,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	Stream    int       `json:"stream,omitempty"`
	Function  int       `json:"function,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// CommandFor maps an action onto the machine command vocabulary. Actions that
// do not actuate the machine become "alert" commands carrying their description.
func CommandFor(machineID string, a Action, now time.Time) Command {
	cmd := Command{MachineID: machineID, IssuedAt: now}
	switch act := a.(type) {
	case AdjustParameter:
		cmd.Action = "adjust_parameter"
		cmd.Parameter = act.Name
		cmd.Value = act.Value
		cmd.Unit = act.Unit
	case ReduceSpeed:
		cmd.Action = "reduce_speed"
		cmd.Parameter = "feed_rate"
		cmd.Value = float64(act.Percent)
		cmd.Unit = "percent"
	case EmergencyStop:
		cmd.Action = "emergency_stop"
	case FeedHold:
		cmd.Action = "feed_hold"
		cmd.Reason = act.Reason
	default:
		cmd.Action = "alert"
		if a != nil {
			cmd.Reason = a.Describe()
		}
	}
	return cmd
}

// Actuating reports whether the action changes machine state.
func Actuating(a Action) bool {
	switch a.(type) {
	case AdjustParameter, ReduceSpeed, EmergencyStop, FeedHold:
		return true
	default:
		return false
	}
}
