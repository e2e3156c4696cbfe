package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

const signatureColumns = `id, request_id, contract_id, provider, envelope_id, signer_email, signer_role, status, signed_pdf_url, signed_at, created_at, updated_at`

// SignatureRepository implements signature.Repository.
type SignatureRepository struct {
	pool *pgxpool.Pool
}

func NewSignatureRepository(pool *pgxpool.Pool) *SignatureRepository {
	return &SignatureRepository{pool: pool}
}

func (r *SignatureRepository) Create(ctx context.Context, req *signature.Request) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO signature_requests
		(request_id, contract_id, provider, envelope_id, signer_email, signer_role, status, signed_pdf_url, signed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, req.RequestID, req.ContractID, req.Provider, req.EnvelopeID, req.SignerEmail, req.SignerRole, req.Status, req.SignedPdfURL, req.SignedAt, req.CreatedAt, req.UpdatedAt)
	if err := row.Scan(&req.ID); err != nil {
		if uniqueViolationOn(err, "signature_requests_envelope_id_key") {
			return signature.ErrEnvelopeExists
		}
		return err
	}
	return nil
}

func (r *SignatureRepository) GetByEnvelopeID(ctx context.Context, envelopeID string) (*signature.Request, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+signatureColumns+` FROM signature_requests WHERE envelope_id=$1`, envelopeID)
	return scanSignatureRequest(row)
}

func (r *SignatureRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*signature.Request, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+signatureColumns+` FROM signature_requests WHERE contract_id=$1 ORDER BY created_at`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*signature.Request
	for rows.Next() {
		req, err := scanSignatureRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ApplyStatus is a single conditional UPDATE. Of any number of concurrent
// callers with the same envelope and status, at most one gets the row back.
func (r *SignatureRepository) ApplyStatus(ctx context.Context, envelopeID string, status signature.Status, at time.Time) (*signature.Request, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE signature_requests
		SET status=$2,
			signed_at=CASE WHEN $2 = 'signed' THEN COALESCE(signed_at, $3) ELSE signed_at END,
			updated_at=$3
		WHERE envelope_id=$1
			AND status <> $2
			AND status NOT IN ('signed', 'declined', 'voided')
		RETURNING `+signatureColumns, envelopeID, status, at)
	return scanSignatureRequest(row)
}

func (r *SignatureRepository) SetSignedDocument(ctx context.Context, requestID uuid.UUID, url string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `UPDATE signature_requests SET signed_pdf_url=$1, updated_at=now() WHERE request_id=$2`, url, requestID)
	return err
}

func scanSignatureRequest(row pgx.Row) (*signature.Request, error) {
	var req signature.Request
	if err := row.Scan(&req.ID, &req.RequestID, &req.ContractID, &req.Provider, &req.EnvelopeID, &req.SignerEmail,
		&req.SignerRole, &req.Status, &req.SignedPdfURL, &req.SignedAt, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
