package agents

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

func telemetry(machineID string, kv ...any) *domain.Telemetry {
	t := &domain.Telemetry{
		Timestamp: time.Unix(1_700_000_000, 0),
		MachineID: machineID,
		Metrics:   map[string]float64{},
	}
	for i := 0; i+1 < len(kv); i += 2 {
		t.Metrics[kv[i].(string)] = kv[i+1].(float64)
	}
	return t
}

func findKind(threats []domain.Threat, kind domain.ThreatKind) (domain.Threat, bool) {
	for _, th := range threats {
		if th.Kind() == kind {
			return th, true
		}
	}
	return nil, false
}

type recordingActuator struct {
	mu   sync.Mutex
	cmds []domain.Command
	err  error
}

func (r *recordingActuator) Send(_ context.Context, cmd domain.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cmds = append(r.cmds, cmd)
	return nil
}
