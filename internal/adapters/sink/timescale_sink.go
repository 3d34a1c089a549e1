package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

const incidentColumns = "incident_id, ts, machine_id, agent_id, incident_type, severity, tier, message, value, threshold, action, action_detail, action_status, requires_approval, zone"

const incidentColumnCount = 15

// TimescaleSink writes incidents to a Postgres/TimescaleDB hypertable.
type TimescaleSink struct {
	db    *sql.DB
	table string
}

var _ ports.IncidentSink = (*TimescaleSink)(nil)

// OpenTimescale opens a lib/pq connection pool for dsn.
func OpenTimescale(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("timescale ping: %w", err)
	}
	return db, nil
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	if table == "" {
		table = "incidents"
	}
	return &TimescaleSink{db: db, table: table}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// WriteBatch inserts the batch in one statement. Replays are absorbed by the
// incident_id conflict target.
func (t *TimescaleSink) WriteBatch(ctx context.Context, incidents []*domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.table)
	b.WriteString(" (" + incidentColumns + ") VALUES ")

	args := make([]any, 0, len(incidents)*incidentColumnCount)
	for i, inc := range incidents {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 0; c < incidentColumnCount; c++ {
			if c > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c+1)
		}
		b.WriteString(")")
		args = append(args, incidentArgs(inc)...)
	}
	b.WriteString(" ON CONFLICT (incident_id) DO NOTHING")

	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("timescale insert: %w", err)
	}
	return nil
}

func incidentArgs(inc *domain.Incident) []any {
	return []any{
		inc.ID,
		inc.Timestamp,
		inc.MachineID,
		inc.AgentID,
		string(inc.Type),
		inc.Severity.String(),
		inc.Tier.String(),
		inc.Message,
		inc.Value,
		inc.Threshold,
		string(inc.Action),
		inc.ActionDetail,
		inc.Status,
		inc.RequiresApproval,
		inc.Zone,
	}
}
