package deal

import (
	"context"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Filter controls deal listing.
type Filter struct {
	Stage *Stage
}

// Repository defines persistence for deals.
type Repository interface {
	Create(ctx context.Context, d *Deal) error
	GetByID(ctx context.Context, dealID uuid.UUID) (*Deal, error)
	// GetByIDForUpdate locks the row for the rest of the surrounding transaction.
	GetByIDForUpdate(ctx context.Context, dealID uuid.UUID) (*Deal, error)
	// Update writes stage and lifecycle timestamps.
	Update(ctx context.Context, d *Deal) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Deal, error)
}
