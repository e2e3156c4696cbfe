package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

type Repository interface {
	Create(ctx context.Context, s *Session) error
	// GetByTokenHash returns nil, nil when no session holds the hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	// DeleteExpired removes sessions that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}
