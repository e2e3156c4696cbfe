package signature

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines persistence for signature requests.
type Repository interface {
	// Create returns ErrEnvelopeExists when the envelope id is taken.
	Create(ctx context.Context, r *Request) error
	GetByEnvelopeID(ctx context.Context, envelopeID string) (*Request, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*Request, error)
	// ApplyStatus writes status only if the stored status differs and is not
	// terminal. It returns nil, nil when no row changed.
	ApplyStatus(ctx context.Context, envelopeID string, status Status, at time.Time) (*Request, error)
	SetSignedDocument(ctx context.Context, requestID uuid.UUID, url string) error
}
