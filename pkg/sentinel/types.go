package sentinel

import (
	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/internal/app/approval"
	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Telemetry is one report from a machine.
type Telemetry = domain.Telemetry

// Incident is the reporting record of a decision, as every sink receives it.
type Incident = domain.Incident

// Decision is the safety circuit's verdict for one threat.
type Decision = domain.Decision

// Command is the machine-bound payload an executed action turns into.
type Command = domain.Command

// Collector streams telemetry from any transport into the runtime.
type Collector = ports.Collector

// IncidentSink consumes batches of incidents.
type IncidentSink = ports.IncidentSink

// Actuator delivers commands to machines.
type Actuator = ports.Actuator

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc = ports.ActuatorFunc

// Transformer calibrates telemetry before the agents see it.
type Transformer = ports.Transformer

type Journal = ports.Journal

type Observability = ports.Observability

type Field = ports.Field

// Agent is a per-machine detector with its own safety table.
type Agent = agents.Agent

// PendingApproval is a Yellow decision waiting for an operator.
type PendingApproval = approval.Pending

// ErrApprovalNotFound is returned for unknown or already resolved approvals.
var ErrApprovalNotFound = approval.ErrApprovalNotFound
