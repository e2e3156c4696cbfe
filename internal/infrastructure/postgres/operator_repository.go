package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/operator"
)

// OperatorRepository implements operator.Repository.
type OperatorRepository struct {
	pool *pgxpool.Pool
}

func NewOperatorRepository(pool *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{pool: pool}
}

func (r *OperatorRepository) Create(ctx context.Context, o *operator.Operator) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO operators
		(operator_id, username, password_hash, role, groups, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, o.OperatorID, o.Username, o.PasswordHash, o.Role, nonNil(o.Groups), o.Status, o.CreatedAt, o.UpdatedAt)
	if err := row.Scan(&o.ID); err != nil {
		if uniqueViolationOn(err, "operators_username_key") {
			return operator.ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (r *OperatorRepository) GetByID(ctx context.Context, operatorID uuid.UUID) (*operator.Operator, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, operator_id, username, password_hash, role, groups, status, created_at, updated_at
		FROM operators WHERE operator_id=$1
	`, operatorID)
	return scanOperator(row)
}

func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*operator.Operator, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, operator_id, username, password_hash, role, groups, status, created_at, updated_at
		FROM operators WHERE username=$1
	`, username)
	return scanOperator(row)
}

func (r *OperatorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM operators`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanOperator(row pgx.Row) (*operator.Operator, error) {
	var o operator.Operator
	if err := row.Scan(&o.ID, &o.OperatorID, &o.Username, &o.PasswordHash, &o.Role, &o.Groups, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
