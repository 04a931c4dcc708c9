package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "signupgate/pkg/platform/audit"
)

//go:embed schema.sql
var schema string

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store. Call Migrate before first use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit_events table and its index if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit_events: %w", err)
	}
	return nil
}

// Append inserts an event. Re-appending the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	codes := event.ErrorCodes
	if codes == nil {
		codes = []string{}
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, subject, decision,
			reason, request_id, device, bot, severity, error_codes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		event.Action,
		event.Subject,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.Device,
		event.Bot,
		string(event.Severity),
		pq.Array(codes),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByAction returns events for one action, newest first.
func (s *Store) ListByAction(ctx context.Context, action audit.AuditEvent) ([]audit.Event, error) {
	query := selectEvents + `
		WHERE action = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(action))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := selectEvents + `
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectEvents = `
	SELECT id, category, timestamp, action, subject, decision,
		   reason, request_id, device, bot, severity, error_codes
	FROM audit_events`

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			severity string
			codes    []string
		)
		if err := rows.Scan(
			&e.ID, &category, &e.Timestamp, &e.Action, &e.Subject, &e.Decision,
			&e.Reason, &e.RequestID, &e.Device, &e.Bot, &severity, pq.Array(&codes),
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Severity = audit.Severity(severity)
		if len(codes) > 0 {
			e.ErrorCodes = codes
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
