package alert

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,SSEHub

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for operator alerts.
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, alertID uuid.UUID) (*Alert, error)
	// RecordRepeat bumps the occurrence count of the open alert with the
	// dedupe key. It returns nil, nil when there is none.
	RecordRepeat(ctx context.Context, dedupeKey string, at time.Time) (*Alert, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Alert, error)
	// Acknowledge returns nil, nil when the alert is missing or already acknowledged.
	Acknowledge(ctx context.Context, alertID uuid.UUID, by string, at time.Time) (*Alert, error)
}

// SSEHub fans alerts out to connected operators.
type SSEHub interface {
	Register(client *SSEClient)
	Unregister(clientID string)
	ClientCount() int
	// Publish delivers message to clients in any of groups, or to every
	// client when groups is empty, and returns how many received it.
	Publish(message *SSEMessage, groups ...string) int
}
