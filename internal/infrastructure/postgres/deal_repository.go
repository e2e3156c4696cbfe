package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/deal"
)

const dealColumns = `id, deal_id, title, brand_name, stage, value, currency, contract_signed_at, deliverables_completed_at, created_by, created_at, updated_at`

// DealRepository implements deal.Repository.
type DealRepository struct {
	pool *pgxpool.Pool
}

func NewDealRepository(pool *pgxpool.Pool) *DealRepository {
	return &DealRepository{pool: pool}
}

func (r *DealRepository) Create(ctx context.Context, d *deal.Deal) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO deals
		(deal_id, title, brand_name, stage, value, currency, contract_signed_at, deliverables_completed_at, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, d.DealID, d.Title, d.BrandName, d.Stage, d.Value, d.Currency, d.ContractSignedAt, d.DeliverablesCompletedAt, d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return row.Scan(&d.ID)
}

func (r *DealRepository) GetByID(ctx context.Context, dealID uuid.UUID) (*deal.Deal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE deal_id=$1`, dealID)
	return scanDeal(row)
}

func (r *DealRepository) GetByIDForUpdate(ctx context.Context, dealID uuid.UUID) (*deal.Deal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE deal_id=$1 FOR UPDATE`, dealID)
	return scanDeal(row)
}

func (r *DealRepository) Update(ctx context.Context, d *deal.Deal) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE deals
		SET stage=$1, contract_signed_at=$2, deliverables_completed_at=$3, updated_at=$4
		WHERE deal_id=$5
	`, d.Stage, d.ContractSignedAt, d.DeliverablesCompletedAt, d.UpdatedAt, d.DealID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return deal.ErrNotFound
	}
	return nil
}

func (r *DealRepository) List(ctx context.Context, filter deal.Filter, limit, offset int) ([]*deal.Deal, error) {
	var w where
	if filter.Stage != nil {
		w.add("stage = ?", *filter.Stage)
	}
	query := `SELECT ` + dealColumns + ` FROM deals` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.param(limit) + ` OFFSET ` + w.param(offset)
	args := w.args

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deals []*deal.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func scanDeal(row pgx.Row) (*deal.Deal, error) {
	var d deal.Deal
	if err := row.Scan(&d.ID, &d.DealID, &d.Title, &d.BrandName, &d.Stage, &d.Value, &d.Currency,
		&d.ContractSignedAt, &d.DeliverablesCompletedAt, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}
