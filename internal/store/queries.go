package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Queries is the slice of the store visible inside a transaction. The
// escalation engine runs its read-decide-write cycle against this interface
// so the whole cycle commits or rolls back as one unit.
type Queries interface {
	GetIncident(ctx context.Context, incidentID string) (Incident, error)
	GetIdea(ctx context.Context, ideaID string) (Idea, error)

	// FindHandler picks the target handler for a rung: active users holding
	// the role, same department first when departmentID is set, earliest
	// created wins, nil when nobody qualifies.
	FindHandler(ctx context.Context, role string, departmentID *string) (*User, error)

	ApplyIncidentEscalation(ctx context.Context, incidentID string, level int, handlerID *string) error
	ApplyIdeaEscalation(ctx context.Context, ideaID string, level int, handlerID *string, reason string) error

	InsertEscalationRecord(ctx context.Context, record EscalationRecord) error
	InsertAuditEntry(ctx context.Context, entry AuditEntry) error
}

// InTx runs fn inside a single transaction, rolling back on error or panic.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&txQueries{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

type txQueries struct {
	tx *sql.Tx
}

func (q *txQueries) GetIncident(ctx context.Context, incidentID string) (Incident, error) {
	row := q.tx.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=$1`, incidentID)
	return scanIncident(row)
}

func (q *txQueries) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	row := q.tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1`, ideaID)
	return scanIdea(row)
}

func (q *txQueries) FindHandler(ctx context.Context, role string, departmentID *string) (*User, error) {
	// Without a department hint the earliest-created holder of the role wins
	// outright. The preference term only applies to a concrete hint,
	// otherwise it would favor department-less users.
	var row *sql.Row
	if departmentID == nil {
		row = q.tx.QueryRowContext(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE role=$1 AND is_active=true
			ORDER BY created_at ASC
			LIMIT 1
		`, role)
	} else {
		row = q.tx.QueryRowContext(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE role=$1 AND is_active=true
			ORDER BY (department_id IS NOT DISTINCT FROM $2) DESC, created_at ASC
			LIMIT 1
		`, role, departmentID)
	}
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find handler: %w", err)
	}
	return &user, nil
}

func (q *txQueries) ApplyIncidentEscalation(ctx context.Context, incidentID string, level int, handlerID *string) error {
	_, err := q.tx.ExecContext(ctx, `
		UPDATE incidents
		SET handler_level=$2,
			escalated_to=$3,
			escalation_level=escalation_level+1,
			status='escalated',
			escalated_at=NOW(),
			updated_at=NOW()
		WHERE id=$1
	`, incidentID, level, handlerID)
	if err != nil {
		return fmt.Errorf("apply incident escalation: %w", err)
	}
	return nil
}

func (q *txQueries) ApplyIdeaEscalation(ctx context.Context, ideaID string, level int, handlerID *string, reason string) error {
	_, err := q.tx.ExecContext(ctx, `
		UPDATE ideas
		SET handler_level=$2,
			current_handler_id=$3,
			escalation_level=escalation_level+1,
			escalation_reason=$4,
			status='under_review',
			escalated_at=NOW(),
			updated_at=NOW()
		WHERE id=$1
	`, ideaID, level, handlerID, reason)
	if err != nil {
		return fmt.Errorf("apply idea escalation: %w", err)
	}
	return nil
}

func (q *txQueries) InsertEscalationRecord(ctx context.Context, record EscalationRecord) error {
	_, err := q.tx.ExecContext(ctx, `
		INSERT INTO escalation_history
			(reference_type, reference_id, from_level, to_level, from_handler_id, to_handler_id, reason, is_automatic, escalated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::uuid)
	`, record.ReferenceType, record.ReferenceID, record.FromLevel, record.ToLevel,
		record.FromHandlerID, record.ToHandlerID, record.Reason, record.IsAutomatic, record.EscalatedBy)
	if err != nil {
		return fmt.Errorf("insert escalation record: %w", err)
	}
	return nil
}

func (q *txQueries) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	details := entry.Details
	if details == "" {
		details = "{}"
	}
	_, err := q.tx.ExecContext(ctx, `
		INSERT INTO audit_log (reference_type, reference_id, action, performed_by, details)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5::jsonb)
	`, entry.ReferenceType, entry.ReferenceID, entry.Action, entry.PerformedBy, details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
