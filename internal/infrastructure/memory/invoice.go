package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/invoice"
)

// InvoiceRepository implements invoice.Repository.
type InvoiceRepository struct {
	s *Store
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	out := *inv
	out.VoidedAt = copyPtr(inv.VoidedAt)
	out.VoidReason = copyPtr(inv.VoidReason)
	return &out
}

// Create enforces one active invoice per deal and unique numbers.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.invoices {
		if inv.IsActive() && existing.IsActive() && existing.DealID == inv.DealID {
			return invoice.ErrDuplicateForDeal
		}
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return invoice.ErrDuplicateNumber
		}
	}
	inv.ID = r.s.nextID()
	r.s.invoices[inv.InvoiceID] = cloneInvoice(inv)
	r.s.onRollback(ctx, func() { delete(r.s.invoices, inv.InvoiceID) })
	return nil
}

func (r *InvoiceRepository) GetByID(_ context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(inv), nil
}

func (r *InvoiceRepository) GetActiveByDeal(_ context.Context, dealID uuid.UUID) (*invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invoices {
		if inv.DealID == dealID && inv.IsActive() {
			return cloneInvoice(inv), nil
		}
	}
	return nil, nil
}

// ListByDeal returns every invoice of a deal, void ones included.
func (r *InvoiceRepository) ListByDeal(dealID uuid.UUID) []*invoice.Invoice {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*invoice.Invoice
	for _, inv := range r.s.invoices {
		if inv.DealID == dealID {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out
}

func (r *InvoiceRepository) Void(ctx context.Context, invoiceID uuid.UUID, reason string, at time.Time) (*invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[invoiceID]
	if !ok || !inv.IsActive() {
		return nil, nil
	}
	prev := cloneInvoice(inv)
	_ = inv.MarkVoid(reason, at)
	r.s.onRollback(ctx, func() { r.s.invoices[invoiceID] = prev })
	return cloneInvoice(inv), nil
}
