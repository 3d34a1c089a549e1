package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// SQLiteSink keeps a queryable incident history next to the edge runtime.
type SQLiteSink struct {
	db *sql.DB
}

var _ ports.IncidentSink = (*SQLiteSink)(nil)

// OpenSQLite opens (and creates) the database file at path and migrates it.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteSink{db: db}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			incident_id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			machine_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			incident_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			tier TEXT NOT NULL,
			message TEXT NOT NULL,
			value REAL NOT NULL,
			threshold REAL NOT NULL,
			action TEXT NOT NULL,
			action_detail TEXT NOT NULL,
			action_status TEXT NOT NULL,
			requires_approval INTEGER NOT NULL,
			zone TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_machine_ts ON incidents(machine_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) WriteBatch(ctx context.Context, incidents []*domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO incidents (`+incidentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, inc := range incidents {
		args := incidentArgs(inc)
		args[1] = inc.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", inc.ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit incidents, newest first. An empty machineID
// matches every machine.
func (s *SQLiteSink) Recent(ctx context.Context, machineID string, limit int) ([]domain.Incident, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + incidentColumns + ` FROM incidents`
	args := []any{}
	if machineID != "" {
		q += ` WHERE machine_id = ?`
		args = append(args, machineID)
	}
	q += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var (
			inc            domain.Incident
			ts, kind, act  string
			severity, tier string
		)
		if err := rows.Scan(&inc.ID, &ts, &inc.MachineID, &inc.AgentID, &kind, &severity, &tier,
			&inc.Message, &inc.Value, &inc.Threshold, &act, &inc.ActionDetail, &inc.Status,
			&inc.RequiresApproval, &inc.Zone); err != nil {
			return nil, err
		}
		if inc.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("incident %s timestamp: %w", inc.ID, err)
		}
		if err := inc.Severity.UnmarshalText([]byte(severity)); err != nil {
			return nil, err
		}
		if err := inc.Tier.UnmarshalText([]byte(tier)); err != nil {
			return nil, err
		}
		inc.Type = domain.ThreatKind(kind)
		inc.Action = domain.ActionType(act)
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
