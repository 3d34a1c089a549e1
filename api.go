package aegissentinel

import (
	"context"
	"log/slog"

	base "github.com/ghalamif/AegisSentinel/pkg/sentinel"
)

// Re-exported errors for convenience.
var (
	ErrTelemetryRejected = base.ErrTelemetryRejected
	ErrNoAgents          = base.ErrNoAgents
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrApprovalNotFound  = base.ErrApprovalNotFound
)

// Type aliases so consumers can import github.com/ghalamif/AegisSentinel directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	AgentSpec         = base.AgentSpec
	MQTTConfig        = base.MQTTConfig
	NATSConfig        = base.NATSConfig
	OPCUAConfig       = base.OPCUAConfig
	OPCUANodeConfig   = base.OPCUANodeConfig
	TimescaleConfig   = base.TimescaleConfig
	SQLiteConfig      = base.SQLiteConfig
	InventoryConfig   = base.InventoryConfig
	TransformConfig   = base.TransformConfig
	JournalConfig     = base.JournalConfig
	MetricsConfig     = base.MetricsConfig
	ApprovalsConfig   = base.ApprovalsConfig
	DispatchConfig    = base.DispatchConfig
	Runtime           = base.Runtime
	Option            = base.Option
	Telemetry         = base.Telemetry
	Incident          = base.Incident
	Decision          = base.Decision
	Command           = base.Command
	Collector         = base.Collector
	IncidentSink      = base.IncidentSink
	IncidentBatchFunc = base.IncidentBatchFunc
	Actuator          = base.Actuator
	ActuatorFunc      = base.ActuatorFunc
	Transformer       = base.Transformer
	Journal           = base.Journal
	Observability     = base.Observability
	Field             = base.Field
	Agent             = base.Agent
	PendingApproval   = base.PendingApproval
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

func DefaultFleet() []AgentSpec {
	return base.DefaultFleet()
}

// Runtime and options.
func NewRuntime(ctx context.Context, cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(ctx, cfg, opts...)
}

func WithCollector(c Collector) Option {
	return base.WithCollector(c)
}

func WithSink(s IncidentSink) Option {
	return base.WithSink(s)
}

func WithActuator(a Actuator) Option {
	return base.WithActuator(a)
}

func WithTransformer(t Transformer) Option {
	return base.WithTransformer(t)
}

func WithJournal(j Journal) Option {
	return base.WithJournal(j)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

// Sink adapters.
func NewCallbackSink(name string, fn IncidentBatchFunc) IncidentSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (IncidentSink, <-chan []Incident, func()) {
	return base.NewChannelSink(name, buffer)
}
