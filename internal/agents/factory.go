package agents

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingMachineID = errors.New("machine_id is required")
	ErrUnknownAgentType = errors.New("unknown agent type")
)

// ConfigError reports an agent that could not be constructed. It only ever
// affects that one agent.
type ConfigError struct {
	MachineID string
	Type      string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("agent %q (%s): %v", e.MachineID, e.Type, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Spec declares one agent. Config holds the class thresholds; omitted fields
// keep their defaults.
type Spec struct {
	MachineID string    `yaml:"machine_id"`
	Type      string    `yaml:"agent_type"`
	Config    yaml.Node `yaml:"config"`
}

// Constructor builds an agent of one class from its spec.
type Constructor func(spec Spec, opts ...Option) (Agent, error)

var (
	registryMu   sync.RWMutex
	constructors = map[string]Constructor{
		"precision": buildPrecision,
		"facility":  buildFacility,
		"assembly":  buildAssembly,
	}
)

// Register adds an equipment class. Registering an existing name replaces it.
func Register(agentType string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	constructors[strings.ToLower(agentType)] = fn
}

// Types lists the registered equipment classes.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs one agent. Any failure is returned as a *ConfigError.
func Build(spec Spec, opts ...Option) (Agent, error) {
	wrap := func(err error) error {
		return &ConfigError{MachineID: spec.MachineID, Type: spec.Type, Err: err}
	}
	if strings.TrimSpace(spec.MachineID) == "" {
		return nil, wrap(ErrMissingMachineID)
	}

	registryMu.RLock()
	fn, ok := constructors[strings.ToLower(spec.Type)]
	registryMu.RUnlock()
	if !ok {
		return nil, wrap(fmt.Errorf("%w %q", ErrUnknownAgentType, spec.Type))
	}

	agent, err := fn(spec, opts...)
	if err != nil {
		return nil, wrap(err)
	}
	return agent, nil
}

// BuildAll constructs every spec it can. Failed specs are skipped and their
// errors returned alongside the agents that were built.
func BuildAll(specs []Spec, opts ...Option) ([]Agent, []error) {
	var (
		out  []Agent
		errs []error
	)
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec.MachineID] && spec.MachineID != "" {
			errs = append(errs, &ConfigError{MachineID: spec.MachineID, Type: spec.Type, Err: errors.New("duplicate machine_id")})
			continue
		}
		agent, err := Build(spec, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seen[spec.MachineID] = true
		out = append(out, agent)
	}
	return out, errs
}

// DefaultFleet is the set of agents started when none are configured.
func DefaultFleet() []Spec {
	var specs []Spec
	for i := 1; i <= 5; i++ {
		specs = append(specs, Spec{MachineID: fmt.Sprintf("CNC-%03d", i), Type: "precision"})
	}
	for i := 1; i <= 2; i++ {
		specs = append(specs, Spec{MachineID: fmt.Sprintf("FAC-%03d", i), Type: "facility"})
	}
	for i := 1; i <= 2; i++ {
		specs = append(specs, Spec{MachineID: fmt.Sprintf("BOND-%02d", i), Type: "assembly"})
	}
	return specs
}

func decodeInto(node *yaml.Node, cfg any) error {
	if node == nil || node.Kind == 0 || node.ShortTag() == "!!null" {
		return nil
	}
	if err := node.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func buildPrecision(spec Spec, opts ...Option) (Agent, error) {
	cfg := DefaultPrecisionConfig()
	if err := decodeInto(&spec.Config, &cfg); err != nil {
		return nil, err
	}
	return NewPrecision(spec.MachineID, cfg, opts...)
}

func buildFacility(spec Spec, opts ...Option) (Agent, error) {
	cfg := DefaultFacilityConfig()
	if err := decodeInto(&spec.Config, &cfg); err != nil {
		return nil, err
	}
	return NewFacility(spec.MachineID, cfg, opts...)
}

func buildAssembly(spec Spec, opts ...Option) (Agent, error) {
	cfg := DefaultAssemblyConfig()
	if err := decodeInto(&spec.Config, &cfg); err != nil {
		return nil, err
	}
	return NewAssembly(spec.MachineID, cfg, opts...)
}
