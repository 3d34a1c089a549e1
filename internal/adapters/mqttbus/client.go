// Package mqttbus carries telemetry, machine commands and incidents over an
// MQTT broker.
package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("mqtt not connected")

type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TelemetryTopic string        `yaml:"telemetry_topic"`
	CommandTopic   string        `yaml:"command_topic"`
	IncidentTopic  string        `yaml:"incident_topic"`
	QoS            byte          `yaml:"qos"`
	DeliverTimeout time.Duration `yaml:"deliver_timeout"`
}

// WithDefaults fills unset topics, the client id and the deliver timeout.
func (c Config) WithDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "aegis-sentinel"
	}
	if c.TelemetryTopic == "" {
		c.TelemetryTopic = "factory/+/telemetry"
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "factory/%s/command"
	}
	if c.IncidentTopic == "" {
		c.IncidentTopic = "aegis/incidents"
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 500 * time.Millisecond
	}
	return c
}

// Connect dials the broker with auto-reconnect enabled.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (mqtt.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.WithDefaults()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	log.Info("connecting to mqtt broker", "broker", cfg.Broker)
	if err := wait(ctx, client.Connect(), 5*time.Second); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// wait blocks until the token completes, the timeout elapses or ctx is done.
func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return errors.New("mqtt operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
