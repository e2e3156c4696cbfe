package httpapi

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/operator"
)

type authContextKey string

const authOperatorKey authContextKey = "authOperator"

// AuthOperator is the operator behind an authenticated request, with the
// session it presented.
type AuthOperator struct {
	*operator.Operator
	SessionID        uuid.UUID
	SessionExpiresAt time.Time
}

func withAuthOperator(ctx context.Context, o *AuthOperator) context.Context {
	if o == nil {
		return ctx
	}
	return context.WithValue(ctx, authOperatorKey, o)
}

func authOperatorFromContext(ctx context.Context) *AuthOperator {
	if v, ok := ctx.Value(authOperatorKey).(*AuthOperator); ok {
		return v
	}
	return nil
}

// actorFromRequest names the caller in audit entries.
func actorFromRequest(ctx context.Context) string {
	if o := authOperatorFromContext(ctx); o != nil {
		return o.ActorString()
	}
	return "system"
}
