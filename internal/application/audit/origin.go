package audit

import (
	"context"

	"github.com/dealdesk/dealdesk/internal/domain/audit"
)

type originKey struct{}

// Origin identifies the request, session and roles a change was made under.
type Origin struct {
	TraceID    string
	SessionID  string
	ActorRoles []string
}

// WithOrigin attaches o to ctx, replacing any origin already there.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the origin carried by ctx, or the zero Origin.
func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}

// TraceID returns the request id carried by ctx.
func TraceID(ctx context.Context) string {
	return OriginFrom(ctx).TraceID
}

// FromContext fills the trace, session and role fields entry leaves empty.
func FromContext(ctx context.Context, entry *audit.AuditEntry) *audit.AuditEntry {
	o := OriginFrom(ctx)
	if entry.TraceID == "" {
		entry.TraceID = o.TraceID
	}
	if entry.SessionID == "" {
		entry.SessionID = o.SessionID
	}
	if len(entry.ActorRoles) == 0 && len(o.ActorRoles) > 0 {
		entry.ActorRoles = append([]string(nil), o.ActorRoles...)
	}
	return entry
}
