package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/audit"
)

const auditColumns = `id, audit_id, entity_type, entity_id, action, actor, actor_roles, old_values, new_values, reason, risk_level, tags, signature, trace_id, session_id, created_at`

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Create joins the caller's transaction when the context carries one.
func (r *AuditRepository) Create(ctx context.Context, entry *audit.AuditLog) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO audit_logs
		(audit_id, entity_type, entity_id, action, actor, actor_roles, old_values, new_values, reason, risk_level, tags, signature, trace_id, session_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`, entry.AuditID, entry.EntityType, entry.EntityID, entry.Action, entry.Actor, nonNil(entry.ActorRoles), entry.OldValues, entry.NewValues,
		entry.Reason, entry.RiskLevel, nonNil(entry.Tags), entry.Signature, entry.TraceID, entry.SessionID, entry.CreatedAt)
	return row.Scan(&entry.ID)
}

func (r *AuditRepository) GetByID(ctx context.Context, auditID uuid.UUID) (*audit.AuditLog, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE audit_id=$1`, auditID)
	return scanAudit(row)
}

func (r *AuditRepository) Query(ctx context.Context, filter audit.QueryFilter, cursor *audit.Cursor, limit int) ([]*audit.AuditLog, *audit.Cursor, error) {
	var w where
	if filter.EntityType != nil {
		w.add("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		w.add("entity_id = ?", *filter.EntityID)
	}
	if filter.Action != nil {
		w.add("action = ?", *filter.Action)
	}
	if filter.Actor != nil {
		w.add("actor = ?", *filter.Actor)
	}
	if filter.RiskLevel != nil {
		w.add("risk_level = ?", *filter.RiskLevel)
	}
	if filter.StartTime != nil {
		w.add("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		w.add("created_at <= ?", *filter.EndTime)
	}
	if len(filter.Tags) > 0 {
		w.add("tags @> ?", filter.Tags)
	}
	if filter.TraceID != nil {
		w.add("trace_id = ?", *filter.TraceID)
	}
	if cursor != nil {
		w.add("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + w.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + w.param(limit)
	args := w.args

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var logs []*audit.AuditLog
	for rows.Next() {
		log, err := scanAudit(rows)
		if err != nil {
			return nil, nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *audit.Cursor
	if len(logs) == limit {
		last := logs[len(logs)-1]
		nextCursor = &audit.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return logs, nextCursor, nil
}

func (r *AuditRepository) GetByEntityID(ctx context.Context, entityType audit.EntityType, entityID string) ([]*audit.AuditLog, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_logs WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at DESC, id DESC
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []*audit.AuditLog
	for rows.Next() {
		log, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanAudit(row pgx.Row) (*audit.AuditLog, error) {
	var log audit.AuditLog
	if err := row.Scan(&log.ID, &log.AuditID, &log.EntityType, &log.EntityID, &log.Action, &log.Actor, &log.ActorRoles,
		&log.OldValues, &log.NewValues, &log.Reason, &log.RiskLevel, &log.Tags, &log.Signature, &log.TraceID,
		&log.SessionID, &log.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
