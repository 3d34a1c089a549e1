// Package inventory talks to the plant inventory API: agent registration,
// heartbeats and incident intake.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

type Config struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxTries          uint          `yaml:"max_tries"`
}

func (c Config) WithDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	return c
}

// Registration announces one agent to the inventory.
type Registration struct {
	AgentID      string   `json:"agent_id"`
	AgentType    string   `json:"agent_type"`
	MachineID    string   `json:"machine_id"`
	Capabilities []string `json:"capabilities"`
	Protocol     string   `json:"protocol"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// NewRegistration builds the payload from an agent's self-description.
func NewRegistration(agentID, agentType string, meta domain.AgentMetadata) Registration {
	return Registration{
		AgentID:      agentID,
		AgentType:    agentType,
		MachineID:    agentID,
		Capabilities: meta.Capabilities,
		Protocol:     "mqtt",
		Name:         meta.Name,
		Version:      meta.Version,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory: http %d: %s", e.Code, e.Body)
}

// recentIncidents bounds the ids remembered as accepted by the inventory.
const recentIncidents = 4096

// Client reports incidents at least once. Each incident is posted with its id
// as Idempotency-Key; a 409 means the inventory already has it, and ids
// accepted earlier in this process are not posted again.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
	sent *lru.Cache[string, struct{}]
}

var _ ports.IncidentSink = (*Client)(nil)

func NewClient(cfg Config, log *slog.Logger) *Client {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = slog.Default()
	}
	sent, _ := lru.New[string, struct{}](recentIncidents)
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("component", "inventory"),
		sent: sent,
	}
}

func (c *Client) Name() string { return "inventory" }

func (c *Client) Register(ctx context.Context, r Registration) error {
	if err := c.post(ctx, "/api/v1/aegis/agents/register", r, ""); err != nil {
		return fmt.Errorf("register %s: %w", r.AgentID, err)
	}
	c.log.Info("agent registered", "agent_id", r.AgentID, "agent_type", r.AgentType)
	return nil
}

func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	return c.post(ctx, "/api/v1/aegis/agents/"+url.PathEscape(agentID)+"/heartbeat", nil, "")
}

// incidentReport is the intake shape of the inventory API.
type incidentReport struct {
	IncidentID        string  `json:"incident_id"`
	MachineID         string  `json:"machine_id"`
	Severity          string  `json:"severity"`
	IncidentType      string  `json:"incident_type"`
	Message           string  `json:"message"`
	DetectedValue     float64 `json:"detected_value"`
	ThresholdValue    float64 `json:"threshold_value"`
	RecommendedAction string  `json:"recommended_action"`
	ActionStatus      string  `json:"action_status"`
	ActionZone        string  `json:"action_zone"`
}

func (c *Client) WriteBatch(ctx context.Context, incidents []*domain.Incident) error {
	for _, inc := range incidents {
		if c.sent.Contains(inc.ID) {
			continue
		}
		rep := incidentReport{
			IncidentID:        inc.ID,
			MachineID:         inc.MachineID,
			Severity:          inc.Severity.String(),
			IncidentType:      string(inc.Type),
			Message:           inc.Message,
			DetectedValue:     inc.Value,
			ThresholdValue:    inc.Threshold,
			RecommendedAction: string(inc.Action),
			ActionStatus:      inc.Status,
			ActionZone:        inc.Zone,
		}
		err := c.post(ctx, "/api/v1/aegis/incidents", rep, inc.ID)
		var serr *StatusError
		if errors.As(err, &serr) && serr.Code == http.StatusConflict {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("report %s: %w", inc.ID, err)
		}
		c.sent.Add(inc.ID, struct{}{})
	}
	return nil
}

// HeartbeatLoop sends heartbeats for ids until ctx is done. Failures are
// logged and retried on the next tick.
func (c *Client) HeartbeatLoop(ctx context.Context, ids []string) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, id := range ids {
				if err := c.Heartbeat(ctx, id); err != nil {
					c.log.Warn("heartbeat failed", "agent_id", id, "error", err)
				}
			}
		}
	}
}

// post retries transport errors and 5xx responses with exponential backoff.
func (c *Client) post(ctx context.Context, path string, body any, idempotencyKey string) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		}
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(text))}
		if resp.StatusCode >= 500 {
			return struct{}{}, serr
		}
		return struct{}{}, backoff.Permanent(serr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(c.cfg.MaxTries))
	return err
}
