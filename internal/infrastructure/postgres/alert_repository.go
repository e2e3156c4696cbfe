package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/alert"
)

const alertColumns = `id, alert_id, kind, severity, title, message, entity_type, entity_id, payload, target_group, dedupe_key, occurrences, status, created_at, last_seen_at, acknowledged_at, acknowledged_by, trace_id`

// AlertRepository implements alert.Repository.
type AlertRepository struct {
	pool *pgxpool.Pool
}

func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// Create returns alert.ErrDuplicateOpen when an open alert already holds the
// dedupe key.
func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO operator_alerts
		(alert_id, kind, severity, title, message, entity_type, entity_id, payload, target_group, dedupe_key, occurrences, status, created_at, last_seen_at, acknowledged_at, acknowledged_by, trace_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`, a.AlertID, a.Kind, a.Severity, a.Title, a.Message, a.EntityType, a.EntityID, a.Payload, a.TargetGroup, a.DedupeKey,
		a.Occurrences, a.Status, a.CreatedAt, a.LastSeenAt, a.AcknowledgedAt, a.AcknowledgedBy, a.TraceID)
	if err := row.Scan(&a.ID); err != nil {
		if uniqueViolationOn(err, "operator_alerts_open_dedupe") {
			return alert.ErrDuplicateOpen
		}
		return err
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, alertID uuid.UUID) (*alert.Alert, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertColumns+` FROM operator_alerts WHERE alert_id=$1`, alertID)
	return scanAlert(row)
}

func (r *AlertRepository) RecordRepeat(ctx context.Context, dedupeKey string, at time.Time) (*alert.Alert, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE operator_alerts SET occurrences = occurrences + 1, last_seen_at=$2
		WHERE dedupe_key=$1 AND status='OPEN'
		RETURNING `+alertColumns, dedupeKey, at)
	return scanAlert(row)
}

func (r *AlertRepository) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, error) {
	var w where
	if filter.Kind != nil {
		w.add("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		w.add("status = ?", *filter.Status)
	}
	if filter.TargetGroup != nil {
		w.add("target_group = ?", *filter.TargetGroup)
	}
	if filter.Since != nil {
		w.add("created_at >= ?", *filter.Since)
	}
	query := `SELECT ` + alertColumns + ` FROM operator_alerts` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.param(limit) + ` OFFSET ` + w.param(offset)
	args := w.args

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) Acknowledge(ctx context.Context, alertID uuid.UUID, by string, at time.Time) (*alert.Alert, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE operator_alerts SET status='ACKNOWLEDGED', acknowledged_at=$2, acknowledged_by=$3
		WHERE alert_id=$1 AND status='OPEN'
		RETURNING `+alertColumns, alertID, at, by)
	return scanAlert(row)
}

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var a alert.Alert
	if err := row.Scan(&a.ID, &a.AlertID, &a.Kind, &a.Severity, &a.Title, &a.Message, &a.EntityType, &a.EntityID, &a.Payload,
		&a.TargetGroup, &a.DedupeKey, &a.Occurrences, &a.Status, &a.CreatedAt, &a.LastSeenAt, &a.AcknowledgedAt,
		&a.AcknowledgedBy, &a.TraceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
