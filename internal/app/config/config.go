package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/AegisSentinel/internal/adapters/inventory"
	"github.com/ghalamif/AegisSentinel/internal/adapters/mqttbus"
	"github.com/ghalamif/AegisSentinel/internal/adapters/natsbus"
	"github.com/ghalamif/AegisSentinel/internal/adapters/opcua"
	"github.com/ghalamif/AegisSentinel/internal/adapters/transform"
	"github.com/ghalamif/AegisSentinel/internal/agents"
	"github.com/ghalamif/AegisSentinel/internal/ports"
	"github.com/ghalamif/AegisSentinel/internal/safety"
)

// Config is the on-disk runtime configuration. Optional integrations are
// pointers and stay nil when their section is absent.
type Config struct {
	Policy    ports.Policy      `yaml:"policy"`
	Safety    SafetyConfig      `yaml:"safety"`
	Journal   JournalConfig     `yaml:"journal"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Approvals ApprovalsConfig   `yaml:"approvals"`
	Dispatch  DispatchConfig    `yaml:"dispatch"`
	MQTT      *mqttbus.Config   `yaml:"mqtt"`
	NATS      *natsbus.Config   `yaml:"nats"`
	OPCUA     *opcua.Config     `yaml:"opcua"`
	Timescale *TimescaleConfig  `yaml:"timescale"`
	SQLite    *SQLiteConfig     `yaml:"sqlite"`
	Inventory *inventory.Config `yaml:"inventory"`
	Transform *transform.Config `yaml:"transform"`
	Agents    []agents.Spec     `yaml:"agents"`
}

type SafetyConfig struct {
	MaxAutoSpeedReductionPct uint8 `yaml:"max_auto_speed_reduction_pct"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type ApprovalsConfig struct {
	Addr     string `yaml:"addr"`
	Capacity int    `yaml:"capacity"`
}

type DispatchConfig struct {
	InboxSize       int           `yaml:"inbox_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field. Parse calls it; programmatic
// configurations go through it when handed to the runtime.
func (c *Config) ApplyDefaults() {
	if c.Policy.MaxJournalSizeBytes == 0 {
		c.Policy.MaxJournalSizeBytes = 1 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy.MaxAttempts = 5
	}
	if c.Policy.RetryHeldAfter == 0 {
		c.Policy.RetryHeldAfter = 30 * time.Second
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Safety.MaxAutoSpeedReductionPct == 0 {
		c.Safety.MaxAutoSpeedReductionPct = safety.DefaultMaxAutoSpeedReductionPct
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Approvals.Addr == "" {
		c.Approvals.Addr = ":8088"
	}
	if c.Approvals.Capacity == 0 {
		c.Approvals.Capacity = 1024
	}
	if c.Dispatch.InboxSize == 0 {
		c.Dispatch.InboxSize = 64
	}
	if c.Dispatch.ShutdownTimeout == 0 {
		c.Dispatch.ShutdownTimeout = 10 * time.Second
	}
	if c.MQTT != nil {
		*c.MQTT = c.MQTT.WithDefaults()
	}
	if c.NATS != nil {
		*c.NATS = c.NATS.WithDefaults()
	}
	if c.OPCUA != nil {
		c.OPCUA.ApplyDefaults()
	}
	if c.Timescale != nil && c.Timescale.Table == "" {
		c.Timescale.Table = "incidents"
	}
	if c.Inventory != nil {
		*c.Inventory = c.Inventory.WithDefaults()
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		errs = append(errs, fmt.Errorf("policy.on_queue_full %q: want block, drop or reject", c.Policy.OnQueueFull))
	}
	if c.Policy.MaxQueueLen < 0 || c.Policy.MaxBatchSize < 0 {
		errs = append(errs, errors.New("policy queue and batch sizes must be positive"))
	}
	if c.Safety.MaxAutoSpeedReductionPct > 100 {
		errs = append(errs, fmt.Errorf("safety.max_auto_speed_reduction_pct %d exceeds 100", c.Safety.MaxAutoSpeedReductionPct))
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.NATS != nil && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}
	if c.OPCUA != nil {
		if err := c.OPCUA.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("opcua config: %w", err))
		}
	}
	if c.Timescale != nil && c.Timescale.ConnString == "" {
		errs = append(errs, errors.New("timescale.conn_string is required"))
	}
	if c.SQLite != nil && c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite.path is required"))
	}
	if c.Inventory != nil && c.Inventory.BaseURL == "" {
		errs = append(errs, errors.New("inventory.base_url is required"))
	}
	return errors.Join(errs...)
}

// SafetyPolicy is the approval veto configured for this runtime.
func (c *Config) SafetyPolicy() safety.Policy {
	return safety.Policy{MaxAutoSpeedReductionPct: c.Safety.MaxAutoSpeedReductionPct}
}

// AgentSpecs returns the configured agents, or the default fleet when none are listed.
func (c *Config) AgentSpecs() []agents.Spec {
	if len(c.Agents) == 0 {
		return agents.DefaultFleet()
	}
	return c.Agents
}
