// Package agents implements the per-equipment-class detectors and their
// safety tables.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Agent watches one machine. Analyze mutates detector state and must only be
// called from one goroutine at a time; Decide is pure.
type Agent interface {
	ID() string
	Analyze(t *domain.Telemetry) []domain.Threat
	Decide(t domain.Threat) (domain.ResponseTier, domain.Action)
	Execute(ctx context.Context, a domain.Action) error
	Describe() domain.AgentMetadata
	Claims(machineID string) bool
}

// Option customizes the outward side of an agent.
type Option func(*base)

// WithActuator sets where executed commands are sent. Without one, Execute
// only logs the command.
func WithActuator(a ports.Actuator) Option {
	return func(b *base) { b.actuator = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp commands.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// base holds the identity and execution plumbing shared by every class.
type base struct {
	machineID string
	prefixes  []string
	protocol  string
	actuator  ports.Actuator
	logger    *slog.Logger
	now       func() time.Time
}

func newBase(machineID, protocol string, prefixes []string, opts []Option) base {
	b := base{
		machineID: machineID,
		prefixes:  prefixes,
		protocol:  protocol,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	b.logger = b.logger.With("machine_id", machineID)
	return b
}

func (b *base) ID() string { return b.machineID }

func (b *base) Claims(machineID string) bool {
	if machineID == b.machineID {
		return true
	}
	for _, p := range b.prefixes {
		if strings.HasPrefix(machineID, p) {
			return true
		}
	}
	return false
}

func (b *base) command(a domain.Action) domain.Command {
	cmd := domain.CommandFor(b.machineID, a, b.now().UTC())
	cmd.Protocol = b.protocol
	return cmd
}

func (b *base) dispatch(ctx context.Context, cmd domain.Command) error {
	if b.actuator == nil {
		b.logger.Info("command not sent, no actuator configured",
			"action", cmd.Action, "parameter", cmd.Parameter, "value", cmd.Value)
		return nil
	}
	if err := b.actuator.Send(ctx, cmd); err != nil {
		return fmt.Errorf("%s: send %s: %w", b.machineID, cmd.Action, err)
	}
	b.logger.Info("command sent", "action", cmd.Action, "parameter", cmd.Parameter, "value", cmd.Value)
	return nil
}

func threatBase(machineID string, sev domain.Severity) domain.ThreatBase {
	return domain.ThreatBase{MachineID: machineID, Level: sev}
}
