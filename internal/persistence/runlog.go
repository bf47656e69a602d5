// Package persistence records finished workflow runs and the human
// decisions taken on them to a local sqlite database. The log is an audit
// trail only: writes are best-effort and suspension state is never
// persisted, so a restart forgets in-flight runs by design.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	status TEXT NOT NULL,
	vendor TEXT,
	invoice_number TEXT,
	total REAL,
	currency TEXT,
	gl_code TEXT,
	policy_approved INTEGER,
	violation_count INTEGER,
	decisions TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS intervention_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	intervention_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	decision TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// RunRecord summarizes one finished run.
type RunRecord struct {
	Status         string
	Vendor         string
	InvoiceNumber  string
	Total          float64
	Currency       string
	LedgerCode     string
	PolicyApproved bool
	ViolationCount int
	Decisions      []invoice.Decision
}

// RunLog is the sqlite-backed audit log.
type RunLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the run log database at path.
func Open(path string, logger *zap.Logger) (*RunLog, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Run log database opened", zap.String("path", path))
	return &RunLog{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (l *RunLog) Close() error {
	return l.db.Close()
}

// RecordRun inserts one finished run.
func (l *RunLog) RecordRun(ctx context.Context, rec *RunRecord) error {
	decisions, err := json.Marshal(rec.Decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO workflow_runs
			(status, vendor, invoice_number, total, currency, gl_code, policy_approved, violation_count, decisions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Status, rec.Vendor, rec.InvoiceNumber, rec.Total, rec.Currency,
		rec.LedgerCode, rec.PolicyApproved, rec.ViolationCount, string(decisions), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// RecordDecision inserts one human intervention decision.
func (l *RunLog) RecordDecision(ctx context.Context, interventionID, stage, decision string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO intervention_decisions (intervention_id, stage, decision, created_at)
		VALUES (?, ?, ?, ?)`,
		interventionID, stage, decision, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert decision record: %w", err)
	}
	return nil
}
