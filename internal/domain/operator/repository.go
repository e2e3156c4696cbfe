package operator

import (
	"context"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines persistence for operators.
type Repository interface {
	// Create returns ErrUsernameTaken on a duplicate username.
	Create(ctx context.Context, o *Operator) error
	GetByID(ctx context.Context, operatorID uuid.UUID) (*Operator, error)
	GetByUsername(ctx context.Context, username string) (*Operator, error)
	Count(ctx context.Context) (int, error)
}
