package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appAuth "github.com/dealdesk/dealdesk/internal/application/auth"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
)

// traceOrigin stamps the chi request id onto ctx so audit entries and alerts
// written while serving the request can be found by traceId.
func (s *Server) traceOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o := appAudit.OriginFrom(r.Context())
		o.TraceID = middleware.GetReqID(r.Context())
		next.ServeHTTP(w, r.WithContext(appAudit.WithOrigin(r.Context(), o)))
	})
}

// requireOperator resolves the session token to an active operator. Every
// change made further down the chain is attributed to that operator's
// session and role.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, sess, err := s.authSvc.Authenticate(r.Context(), extractToken(r, s.opts.SessionCookieName))
		if err != nil {
			if !errors.Is(err, appAuth.ErrUnauthenticated) {
				s.logger.Error().Err(err).Msg("session lookup failed")
			}
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}

		ctx := withAuthOperator(r.Context(), &AuthOperator{
			Operator:         op,
			SessionID:        sess.SessionID,
			SessionExpiresAt: sess.ExpiresAt,
		})
		origin := appAudit.OriginFrom(ctx)
		origin.SessionID = sess.SessionID.String()
		origin.ActorRoles = []string{string(op.Role)}
		ctx = appAudit.WithOrigin(ctx, origin)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole admits operators holding one of roles.
func (s *Server) requireRole(roles ...operator.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var op *operator.Operator
			if o := authOperatorFromContext(r.Context()); o != nil {
				op = o.Operator
			}
			switch err := appAuth.Authorize(op, roles...); {
			case errors.Is(err, appAuth.ErrUnauthenticated):
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
			case err != nil:
				respondError(w, http.StatusForbidden, "FORBIDDEN", "role "+string(op.Role)+" may not do this")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// extractToken reads the session token from a bearer header, falling back to
// the session cookie.
func extractToken(r *http.Request, cookieName string) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
