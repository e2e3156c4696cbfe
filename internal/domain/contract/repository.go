package contract

import (
	"context"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines persistence for contracts.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, contractID uuid.UUID) (*Contract, error)
	// GetByIDForUpdate locks the row for the rest of the surrounding transaction.
	GetByIDForUpdate(ctx context.Context, contractID uuid.UUID) (*Contract, error)
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*Contract, error)
	// UpdateSigning writes status, signature timestamps and metadata.
	UpdateSigning(ctx context.Context, c *Contract) error
	SetSignedPdfURL(ctx context.Context, contractID uuid.UUID, url string) error
}
