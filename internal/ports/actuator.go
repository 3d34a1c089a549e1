package ports

import (
	"context"

	"github.com/ghalamif/AegisSentinel/internal/domain"
)

// Actuator carries a command to the machine it names.
type Actuator interface {
	Send(ctx context.Context, cmd domain.Command) error
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, cmd domain.Command) error

func (f ActuatorFunc) Send(ctx context.Context, cmd domain.Command) error { return f(ctx, cmd) }

// Executor runs an approved action against its machine.
type Executor interface {
	Execute(ctx context.Context, action domain.Action) error
}

// ApprovalQueue holds Yellow-tier decisions until someone outside the engine
// approves or rejects them. It never times a decision out.
type ApprovalQueue interface {
	Submit(d domain.Decision, exec Executor) (string, error)
	Len() int
}
