package mqttbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Collector subscribes to the telemetry topic and forwards decoded frames.
// Frames that cannot be handed over within the deliver timeout are dropped;
// the handler runs on paho's network goroutine and must not block it.
type Collector struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
	onDrop  func()
	dropped atomic.Uint64
}

var _ ports.Collector = (*Collector)(nil)

func NewCollector(client mqtt.Client, cfg Config, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.WithDefaults()
	return &Collector{
		client:  client,
		topic:   cfg.TelemetryTopic,
		qos:     cfg.QoS,
		timeout: cfg.DeliverTimeout,
		log:     log.With("component", "mqtt_collector"),
		now:     time.Now,
	}
}

// OnDrop registers fn to be called for every frame dropped on a full channel.
func (c *Collector) OnDrop(fn func()) { c.onDrop = fn }

// Dropped counts frames dropped since Start.
func (c *Collector) Dropped() uint64 { return c.dropped.Load() }

func (c *Collector) Start(out chan<- *domain.Telemetry) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		t, err := c.decode(msg.Topic(), msg.Payload())
		if err != nil {
			c.log.Warn("dropping malformed telemetry", "topic", msg.Topic(), "error", err)
			return
		}
		select {
		case out <- t:
			return
		default:
		}
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		select {
		case out <- t:
		case <-timer.C:
			c.dropped.Add(1)
			if c.onDrop != nil {
				c.onDrop()
			}
			c.log.Warn("dropping telemetry, intake full", "machine_id", t.MachineID, "timeout", c.timeout)
		}
	}
	return wait(context.Background(), c.client.Subscribe(c.topic, c.qos, handler), 5*time.Second)
}

func (c *Collector) Stop() error {
	return wait(context.Background(), c.client.Unsubscribe(c.topic), 2*time.Second)
}

// decode accepts the JSON telemetry document. The machine id falls back to
// the topic segment in front of "telemetry".
func (c *Collector) decode(topic string, payload []byte) (*domain.Telemetry, error) {
	var t domain.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, err
	}
	if t.MachineID == "" {
		t.MachineID = machineFromTopic(topic)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = c.now().UTC()
	}
	if t.Metrics == nil {
		t.Metrics = map[string]float64{}
	}
	return &t, nil
}

func machineFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] == "telemetry" {
			return parts[i-1]
		}
	}
	return ""
}
