package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines persistence for invoices.
type Repository interface {
	// Create returns ErrDuplicateForDeal or ErrDuplicateNumber on the
	// corresponding unique constraint.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)
	// GetActiveByDeal returns the non-void invoice of a deal, or nil.
	GetActiveByDeal(ctx context.Context, dealID uuid.UUID) (*Invoice, error)
	// Void returns nil, nil when the invoice does not exist or is already void.
	Void(ctx context.Context, invoiceID uuid.UUID, reason string, at time.Time) (*Invoice, error)
}
