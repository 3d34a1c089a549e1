package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuildAllSkipsBrokenAgents(t *testing.T) {
	raw := `
- machine_id: BOND-01
  agent_type: assembly
  config:
    nsop_threshold: 2
    min_ultrasonic_impedance: 35
- machine_id: CNC-001
  agent_type: precision
- machine_id: ""
  agent_type: facility
- machine_id: XR-9
  agent_type: xray
- machine_id: FAC-001
  agent_type: facility
  config:
    max_filter_dp: -5
- machine_id: CNC-001
  agent_type: precision
`
	var specs []Spec
	require.NoError(t, yaml.Unmarshal([]byte(raw), &specs))

	built, errs := BuildAll(specs)
	require.Len(t, built, 2)
	require.Len(t, errs, 4)

	assert.Equal(t, "BOND-01", built[0].ID())
	assert.Equal(t, "CNC-001", built[1].ID())

	asm := built[0].(*Assembly)
	assert.Equal(t, 2, asm.cfg.NSOPThreshold)
	assert.Equal(t, 35.0, asm.cfg.MinUltrasonicImpedance)
	assert.Equal(t, 20.0, asm.cfg.MaxBondTimeMS, "unset fields keep defaults")

	assert.ErrorIs(t, errs[0], ErrMissingMachineID)
	assert.ErrorIs(t, errs[1], ErrUnknownAgentType)

	var cfgErr *ConfigError
	require.True(t, errors.As(errs[2], &cfgErr))
	assert.Equal(t, "FAC-001", cfgErr.MachineID)
	assert.Contains(t, errs[3].Error(), "duplicate")
}

func TestBuildNullConfigKeepsDefaults(t *testing.T) {
	var spec Spec
	require.NoError(t, yaml.Unmarshal([]byte("machine_id: CNC-009\nagent_type: Precision\nconfig:\n"), &spec))

	agent, err := Build(spec)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrecisionConfig(), agent.(*Precision).cfg)
}

func TestDefaultFleet(t *testing.T) {
	built, errs := BuildAll(DefaultFleet())
	require.Empty(t, errs)
	require.Len(t, built, 9)

	ids := make([]string, 0, len(built))
	for _, a := range built {
		ids = append(ids, a.ID())
	}
	assert.Equal(t, []string{
		"CNC-001", "CNC-002", "CNC-003", "CNC-004", "CNC-005",
		"FAC-001", "FAC-002",
		"BOND-01", "BOND-02",
	}, ids)
}

func TestRegisterCustomClass(t *testing.T) {
	Register("test-bench", func(spec Spec, opts ...Option) (Agent, error) {
		return NewFacility(spec.MachineID, DefaultFacilityConfig(), opts...)
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(constructors, "test-bench")
		registryMu.Unlock()
	})

	assert.Contains(t, Types(), "test-bench")
	agent, err := Build(Spec{MachineID: "TB-1", Type: "test-bench"})
	require.NoError(t, err)
	assert.Equal(t, "TB-1", agent.ID())
}
