package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdesk/dealdesk/internal/domain/invoice"
)

const invoiceColumns = `id, invoice_id, deal_id, invoice_number, amount, currency, status, issued_at, due_at, voided_at, void_reason, created_by, created_at`

// InvoiceRepository implements invoice.Repository.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Create maps violations of invoices_one_active_per_deal and
// invoices_invoice_number_key to domain errors. The surrounding transaction
// is aborted by either and must be rolled back by the caller.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoices
		(invoice_id, deal_id, invoice_number, amount, currency, status, issued_at, due_at, voided_at, void_reason, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, inv.InvoiceID, inv.DealID, inv.InvoiceNumber, inv.Amount, inv.Currency, inv.Status, inv.IssuedAt, inv.DueAt, inv.VoidedAt, inv.VoidReason, inv.CreatedBy, inv.CreatedAt)
	if err := row.Scan(&inv.ID); err != nil {
		switch {
		case uniqueViolationOn(err, "invoices_one_active_per_deal"):
			return invoice.ErrDuplicateForDeal
		case uniqueViolationOn(err, "invoices_invoice_number_key"):
			return invoice.ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_id=$1`, invoiceID)
	return scanInvoice(row)
}

func (r *InvoiceRepository) GetActiveByDeal(ctx context.Context, dealID uuid.UUID) (*invoice.Invoice, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE deal_id=$1 AND status <> 'void'`, dealID)
	return scanInvoice(row)
}

func (r *InvoiceRepository) Void(ctx context.Context, invoiceID uuid.UUID, reason string, at time.Time) (*invoice.Invoice, error) {
	var voidReason *string
	if reason != "" {
		voidReason = &reason
	}
	row := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE invoices SET status='void', voided_at=$2, void_reason=$3
		WHERE invoice_id=$1 AND status <> 'void'
		RETURNING `+invoiceColumns, invoiceID, at, voidReason)
	return scanInvoice(row)
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := row.Scan(&inv.ID, &inv.InvoiceID, &inv.DealID, &inv.InvoiceNumber, &inv.Amount, &inv.Currency, &inv.Status,
		&inv.IssuedAt, &inv.DueAt, &inv.VoidedAt, &inv.VoidReason, &inv.CreatedBy, &inv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}
