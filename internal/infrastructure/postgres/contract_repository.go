package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/contract"
)

const contractColumns = `id, contract_id, deal_id, title, status, sent_at, talent_signed_at, brand_signed_at, fully_signed_at, pdf_url, signed_pdf_url, metadata, created_at, updated_at`

// ContractRepository implements contract.Repository.
type ContractRepository struct {
	pool *pgxpool.Pool
}

func NewContractRepository(pool *pgxpool.Pool) *ContractRepository {
	return &ContractRepository{pool: pool}
}

func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO contracts
		(contract_id, deal_id, title, status, sent_at, talent_signed_at, brand_signed_at, fully_signed_at, pdf_url, signed_pdf_url, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, c.ContractID, c.DealID, c.Title, c.Status, c.SentAt, c.TalentSignedAt, c.BrandSignedAt, c.FullySignedAt, c.PdfURL, c.SignedPdfURL, metadata, c.CreatedAt, c.UpdatedAt)
	return row.Scan(&c.ID)
}

func (r *ContractRepository) GetByID(ctx context.Context, contractID uuid.UUID) (*contract.Contract, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE contract_id=$1`, contractID)
	return scanContract(row)
}

func (r *ContractRepository) GetByIDForUpdate(ctx context.Context, contractID uuid.UUID) (*contract.Contract, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE contract_id=$1 FOR UPDATE`, contractID)
	return scanContract(row)
}

func (r *ContractRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*contract.Contract, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+contractColumns+` FROM contracts WHERE deal_id=$1 ORDER BY created_at`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contracts []*contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// UpdateSigning never clears a signature timestamp already stored.
func (r *ContractRepository) UpdateSigning(ctx context.Context, c *contract.Contract) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE contracts
		SET status=$1,
			sent_at=COALESCE(sent_at, $2),
			talent_signed_at=COALESCE(talent_signed_at, $3),
			brand_signed_at=COALESCE(brand_signed_at, $4),
			fully_signed_at=COALESCE(fully_signed_at, $5),
			metadata=$6,
			updated_at=$7
		WHERE contract_id=$8
	`, c.Status, c.SentAt, c.TalentSignedAt, c.BrandSignedAt, c.FullySignedAt, c.Metadata, c.UpdatedAt, c.ContractID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contract.ErrNotFound
	}
	return nil
}

func (r *ContractRepository) SetSignedPdfURL(ctx context.Context, contractID uuid.UUID, url string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `UPDATE contracts SET signed_pdf_url=$1, updated_at=now() WHERE contract_id=$2`, url, contractID)
	return err
}

func scanContract(row pgx.Row) (*contract.Contract, error) {
	var c contract.Contract
	if err := row.Scan(&c.ID, &c.ContractID, &c.DealID, &c.Title, &c.Status, &c.SentAt, &c.TalentSignedAt,
		&c.BrandSignedAt, &c.FullySignedAt, &c.PdfURL, &c.SignedPdfURL, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
