package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// IncidentSink publishes each incident to {incident_topic}/{machine_id}.
type IncidentSink struct {
	client mqtt.Client
	base   string
	qos    byte
}

var _ ports.IncidentSink = (*IncidentSink)(nil)

func NewIncidentSink(client mqtt.Client, cfg Config) *IncidentSink {
	cfg = cfg.WithDefaults()
	return &IncidentSink{client: client, base: cfg.IncidentTopic, qos: cfg.QoS}
}

func (s *IncidentSink) Name() string { return "mqtt" }

func (s *IncidentSink) WriteBatch(ctx context.Context, incidents []*domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	var errs []error
	for _, inc := range incidents {
		payload, err := json.Marshal(inc)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", inc.ID, err))
			continue
		}
		topic := fmt.Sprintf("%s/%s", s.base, inc.MachineID)
		// Red stays retained on the topic.
		retained := inc.Tier == domain.TierRed
		if err := wait(ctx, s.client.Publish(topic, s.qos, retained, payload), 2*time.Second); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", inc.ID, err))
		}
	}
	return errors.Join(errs...)
}
