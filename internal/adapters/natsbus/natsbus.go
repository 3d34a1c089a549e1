// Package natsbus publishes incidents on NATS and takes operator approval
// decisions from it.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

const (
	DefaultIncidentSubject = "aegis.incidents"
	DefaultDecisionSubject = "aegis.approvals.decide"
)

type Config struct {
	URL             string `yaml:"url"`
	Name            string `yaml:"name"`
	IncidentSubject string `yaml:"incident_subject"`
	DecisionSubject string `yaml:"decision_subject"`
}

func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = "aegis-sentinel"
	}
	if c.IncidentSubject == "" {
		c.IncidentSubject = DefaultIncidentSubject
	}
	if c.DecisionSubject == "" {
		c.DecisionSubject = DefaultDecisionSubject
	}
	return c
}

func Connect(cfg Config, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.WithDefaults()
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "url", cfg.URL, "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// publisher is the part of *nats.Conn the bus needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// IncidentSink publishes incidents on {subject}.{tier}.
type IncidentSink struct {
	conn    publisher
	subject string
}

var _ ports.IncidentSink = (*IncidentSink)(nil)

func NewIncidentSink(nc *nats.Conn, cfg Config) *IncidentSink {
	return newIncidentSink(nc, cfg)
}

func newIncidentSink(p publisher, cfg Config) *IncidentSink {
	return &IncidentSink{conn: p, subject: cfg.WithDefaults().IncidentSubject}
}

func (s *IncidentSink) Name() string { return "nats" }

func (s *IncidentSink) WriteBatch(_ context.Context, incidents []*domain.Incident) error {
	var errs []error
	for _, inc := range incidents {
		data, err := json.Marshal(inc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.conn.Publish(s.subject+"."+inc.Tier.String(), data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", inc.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Decision is an operator's verdict on a pending approval.
type Decision struct {
	ApprovalID string `json:"approval_id"`
	Approve    bool   `json:"approve"`
	Operator   string `json:"operator"`
	Reason     string `json:"reason,omitempty"`
}

type reply struct {
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Approver resolves pending approvals.
type Approver interface {
	Approve(ctx context.Context, id, operator string) error
	Reject(id, operator, reason string) error
}

// DecisionListener applies decisions received on the decision subject.
type DecisionListener struct {
	conn     publisher
	approver Approver
	log      *slog.Logger
	timeout  time.Duration
}

func NewDecisionListener(approver Approver, log *slog.Logger) *DecisionListener {
	if log == nil {
		log = slog.Default()
	}
	return &DecisionListener{approver: approver, log: log.With("component", "nats_decisions"), timeout: 30 * time.Second}
}

// Subscribe starts delivering decisions. The returned subscription is
// drained by the caller on shutdown.
func (l *DecisionListener) Subscribe(nc *nats.Conn, cfg Config) (*nats.Subscription, error) {
	l.conn = nc
	subject := cfg.WithDefaults().DecisionSubject
	sub, err := nc.Subscribe(subject, l.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	l.log.Info("listening for approval decisions", "subject", subject)
	return sub, nil
}

func (l *DecisionListener) Handle(msg *nats.Msg) {
	var d Decision
	res := reply{Status: "applied"}
	err := json.Unmarshal(msg.Data, &d)
	if err == nil && d.ApprovalID == "" {
		err = errors.New("approval_id is required")
	}
	if err == nil {
		res.ApprovalID = d.ApprovalID
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if d.Approve {
			err = l.approver.Approve(ctx, d.ApprovalID, d.Operator)
		} else {
			err = l.approver.Reject(d.ApprovalID, d.Operator, d.Reason)
		}
		cancel()
	}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		l.log.Warn("approval decision failed", "approval_id", d.ApprovalID, "operator", d.Operator, "error", err)
	} else {
		l.log.Info("approval decision applied", "approval_id", d.ApprovalID, "approve", d.Approve, "operator", d.Operator)
	}

	if msg.Reply == "" || l.conn == nil {
		return
	}
	data, _ := json.Marshal(res)
	if err := l.conn.Publish(msg.Reply, data); err != nil {
		l.log.Warn("approval reply failed", "reply", msg.Reply, "error", err)
	}
}
