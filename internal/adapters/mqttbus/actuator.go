package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Actuator publishes machine commands to the per-machine command topic.
type Actuator struct {
	client  mqtt.Client
	pattern string
	qos     byte
}

var _ ports.Actuator = (*Actuator)(nil)

func NewActuator(client mqtt.Client, cfg Config) *Actuator {
	cfg = cfg.WithDefaults()
	return &Actuator{client: client, pattern: cfg.CommandTopic, qos: cfg.QoS}
}

func (a *Actuator) Topic(machineID string) string {
	if strings.Contains(a.pattern, "%s") {
		return fmt.Sprintf(a.pattern, machineID)
	}
	return a.pattern + "/" + machineID
}

func (a *Actuator) Send(ctx context.Context, cmd domain.Command) error {
	if !a.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := wait(ctx, a.client.Publish(a.Topic(cmd.MachineID), a.qos, false, payload), 2*time.Second); err != nil {
		return fmt.Errorf("publish %s command: %w", cmd.Action, err)
	}
	return nil
}
