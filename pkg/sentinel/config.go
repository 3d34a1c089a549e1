package sentinel

import (
	"github.com/ghalamif/AegisSentinel/internal/adapters/inventory"
	"github.com/ghalamif/AegisSentinel/internal/adapters/mqttbus"
	"github.com/ghalamif/AegisSentinel/internal/adapters/natsbus"
	"github.com/ghalamif/AegisSentinel/internal/adapters/opcua"
	"github.com/ghalamif/AegisSentinel/internal/adapters/transform"
	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/internal/app/config"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Config re-exports the root configuration struct so embedding programs can
// build or adjust it in code.
type Config = config.Config

type (
	// Policy bounds the reporting queue and batch sizes.
	Policy = ports.Policy
	// AgentSpec declares one monitored machine and its equipment class.
	AgentSpec = agents.Spec
	// MQTTConfig configures the telemetry, command and incident topics.
	MQTTConfig = mqttbus.Config
	// NATSConfig configures the incident bus and approval subjects.
	NATSConfig = natsbus.Config
	// OPCUAConfig holds connection and node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig maps one OPC UA node to a machine metric.
	OPCUANodeConfig = opcua.NodeConfig
	TimescaleConfig = config.TimescaleConfig
	SQLiteConfig    = config.SQLiteConfig
	InventoryConfig = inventory.Config
	// TransformConfig renames and calibrates incoming metrics.
	TransformConfig = transform.Config
	JournalConfig   = config.JournalConfig
	MetricsConfig   = config.MetricsConfig
	ApprovalsConfig = config.ApprovalsConfig
	DispatchConfig  = config.DispatchConfig
)

// LoadConfig reads, defaults and validates a YAML file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}

// DefaultFleet lists the agents started when a configuration names none.
func DefaultFleet() []AgentSpec {
	return agents.DefaultFleet()
}
