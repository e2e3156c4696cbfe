package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appAuth "github.com/dealdesk/dealdesk/internal/application/auth"
	appDeal "github.com/dealdesk/dealdesk/internal/application/deal"
	appInvoice "github.com/dealdesk/dealdesk/internal/application/invoice"
	appSigning "github.com/dealdesk/dealdesk/internal/application/signing"
	appWebhook "github.com/dealdesk/dealdesk/internal/application/webhook"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/invoice"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

// Options configures the HTTP surface.
type Options struct {
	SessionCookieName   string
	SessionCookieSecure bool
	CORSOrigins         []string
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// MaxWebhookBody caps a provider callback body. Zero means 25 MiB.
	MaxWebhookBody int64
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	dealSvc     *appDeal.Service
	signingSvc  *appSigning.Service
	invoiceSvc  *appInvoice.Service
	alertSvc    *appAlert.Service
	auditSvc    *appAudit.Service
	authSvc     *appAuth.Service
	webhookAuth *appWebhook.Authenticator
	providers   *signature.Registry
	logger      zerolog.Logger
	opts        Options
}

func NewServer(
	dealSvc *appDeal.Service,
	signingSvc *appSigning.Service,
	invoiceSvc *appInvoice.Service,
	alertSvc *appAlert.Service,
	auditSvc *appAudit.Service,
	authSvc *appAuth.Service,
	webhookAuth *appWebhook.Authenticator,
	providers *signature.Registry,
	logger zerolog.Logger,
	opts Options,
) *Server {
	return &Server{
		dealSvc:     dealSvc,
		signingSvc:  signingSvc,
		invoiceSvc:  invoiceSvc,
		alertSvc:    alertSvc,
		auditSvc:    auditSvc,
		authSvc:     authSvc,
		webhookAuth: webhookAuth,
		providers:   providers,
		logger:      logger.With().Str("component", "http").Logger(),
		opts:        opts,
	}
}

var mutators = []operator.Role{operator.RoleOperator, operator.RoleAdmin}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.traceOrigin)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   s.opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	r.Get("/healthz", s.healthz)
	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/signature", s.signatureWebhook)
		r.Post("/webhooks/signature", s.signatureWebhook)
		r.Post("/webhooks/signature/{provider}", s.signatureWebhook)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Group(func(r chi.Router) {
				r.Use(s.requireOperator)
				r.Post("/logout", s.logout)
				r.Get("/me", s.me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireOperator)

			// The stream outlives the request timeout.
			r.Get("/alerts/stream", s.alertStream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))

				r.Route("/deals", func(r chi.Router) {
					r.With(s.requireRole(mutators...)).Post("/", s.createDeal)
					r.Get("/", s.listDeals)
					r.Get("/{dealId}", s.getDeal)
					r.With(s.requireRole(mutators...)).Post("/{dealId}/stage", s.transitionDeal)
					r.Get("/{dealId}/invoice", s.getDealInvoice)
					r.With(s.requireRole(mutators...)).Post("/{dealId}/invoice", s.reissueInvoice)
					r.Get("/{dealId}/contracts", s.listContracts)
					r.With(s.requireRole(mutators...)).Post("/{dealId}/contracts", s.createContract)
				})

				r.Route("/contracts", func(r chi.Router) {
					r.Get("/{contractId}", s.getContract)
					r.With(s.requireRole(mutators...)).Post("/{contractId}/signature-requests", s.registerSignatureRequest)
					r.With(s.requireRole(mutators...)).Post("/{contractId}/sign", s.signContract)
				})

				r.Route("/invoices", func(r chi.Router) {
					r.Get("/{invoiceId}", s.getInvoice)
					r.With(s.requireRole(mutators...)).Post("/{invoiceId}/void", s.voidInvoice)
				})

				r.Route("/alerts", func(r chi.Router) {
					r.Get("/", s.listAlerts)
					r.With(s.requireRole(mutators...)).Post("/{alertId}/ack", s.acknowledgeAlert)
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(s.requireRole(operator.RoleAdmin))
					r.Get("/audit", s.queryAudit)
					r.Get("/audit/entity/{entityType}/{entityId}", s.entityHistory)
					r.Get("/audit/{auditId}", s.getAudit)
					r.Get("/audit/{auditId}/verify", s.verifyAudit)
				})
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "providers": s.providers.Names()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondServiceError maps domain errors to statuses. Unrecognized errors get
// fallback.
func respondServiceError(w http.ResponseWriter, err error, fallback int) {
	switch {
	case errors.Is(err, deal.ErrNotFound),
		errors.Is(err, contract.ErrNotFound),
		errors.Is(err, invoice.ErrNotFound),
		errors.Is(err, alert.ErrNotFound),
		errors.Is(err, appAudit.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, invoice.ErrAlreadyVoid),
		errors.Is(err, alert.ErrAlreadyAcknowledged),
		errors.Is(err, appDeal.ErrNotCompleted),
		errors.Is(err, signature.ErrEnvelopeExists):
		respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, deal.ErrInvalidStage),
		errors.Is(err, deal.ErrTitleMissing),
		errors.Is(err, contract.ErrInvalidRole),
		errors.Is(err, contract.ErrTitleMissing),
		errors.Is(err, signature.ErrUnknownProvider),
		errors.Is(err, signature.ErrEnvelopeRequired):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case fallback >= http.StatusInternalServerError:
		respondError(w, fallback, "INTERNAL_ERROR", err.Error())
	default:
		respondError(w, fallback, "INVALID_PARAM", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
