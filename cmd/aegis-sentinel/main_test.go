package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSentinel/internal/adapters/journal"
	"github.com/ghalamif/AegisSentinel/internal/domain"
)

func writeConfig(t *testing.T, body string) (path, journalDir string) {
	t.Helper()
	dir := t.TempDir()
	journalDir = filepath.Join(dir, "journal")
	path = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("journal:\n  dir: %s\n%s", journalDir, body)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, journalDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateDefaultFleet(t *testing.T) {
	path, _ := writeConfig(t, "")
	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    CNC-001")
	assert.Contains(t, out, "9 agents, 0 skipped")
}

func TestValidateReportsSkippedAgents(t *testing.T) {
	path, _ := writeConfig(t, `agents:
  - machine_id: CNC-010
    agent_type: precision
  - machine_id: LASER-1
    agent_type: laser
`)
	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "skip")
	assert.Contains(t, out, "1 agents, 1 skipped")
}

func TestValidateFailsOnBadPolicy(t *testing.T) {
	path, _ := writeConfig(t, "policy:\n  on_queue_full: spill\n")
	_, err := execute(t, "validate", "--config", path)
	assert.Error(t, err)
}

func TestJournalListsNewestFirst(t *testing.T) {
	path, dir := writeConfig(t, "")
	j, err := journal.Open(dir)
	require.NoError(t, err)
	for i, machine := range []string{"CNC-001", "FAC-001", "CNC-001"} {
		_, err := j.Append(&domain.Incident{
			ID:        fmt.Sprintf("INC-0000000%d", i+1),
			Timestamp: time.Now().Add(-time.Hour),
			MachineID: machine,
			Type:      domain.KindBearingFailure,
			Severity:  domain.SeverityHigh,
			Tier:      domain.TierYellow,
			Status:    "pending_approval",
		})
		require.NoError(t, err)
	}
	require.NoError(t, j.Commit(1))
	require.NoError(t, j.Close())

	out, err := execute(t, "journal", "--config", path, "--machine", "CNC-001")
	require.NoError(t, err)
	assert.NotContains(t, out, "INC-00000002")
	require.Contains(t, out, "INC-00000003")
	assert.Less(t, bytes.Index([]byte(out), []byte("INC-00000003")), bytes.Index([]byte(out), []byte("INC-00000001")))

	out, err = execute(t, "journal", "--config", path, "--unreported")
	require.NoError(t, err)
	assert.NotContains(t, out, "INC-00000001")
	assert.Contains(t, out, "INC-00000002")
}

func TestStatsPrintsJournalSummary(t *testing.T) {
	path, dir := writeConfig(t, "")
	j, err := journal.Open(dir)
	require.NoError(t, err)
	_, err = j.Append(&domain.Incident{ID: "INC-00000001", MachineID: "CNC-001"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := execute(t, "stats", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 entries, 1 unreported")
}
