package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
)

// Transactor runs fn in a transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Input describes a failure to raise.
type Input struct {
	Kind       alert.Kind
	Severity   alert.Severity
	Title      string
	Message    string
	EntityType string
	EntityID   string
	Payload    map[string]interface{}
	TraceID    string
	Err        error
}

// Service raises, lists and acknowledges operator alerts.
type Service struct {
	repo     alert.Repository
	hub      alert.SSEHub
	router   *Router
	tx       Transactor
	auditSvc *appAudit.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewService creates an alert service. router may be nil.
func NewService(
	repo alert.Repository,
	hub alert.SSEHub,
	router *Router,
	tx Transactor,
	auditSvc *appAudit.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		hub:      hub,
		router:   router,
		tx:       tx,
		auditSvc: auditSvc,
		metrics:  m,
		logger:   logger.With().Str("service", "alert").Logger(),
	}
}

// Raise records a failure that nothing will retry. A repeat of an open alert
// for the same kind and entity bumps its occurrence count instead of opening
// a new one. The alert is logged and broadcast even if it cannot be stored.
func (s *Service) Raise(ctx context.Context, in Input) (*alert.Alert, error) {
	if in.Severity == "" {
		in.Severity = alert.SeverityCritical
	}
	if in.TraceID == "" {
		in.TraceID = appAudit.TraceID(ctx)
	}
	if in.Err != nil {
		if in.Payload == nil {
			in.Payload = map[string]interface{}{}
		}
		in.Payload["error"] = in.Err.Error()
	}
	var payload json.RawMessage
	if in.Payload != nil {
		if data, err := json.Marshal(in.Payload); err == nil {
			payload = data
		}
	}

	a := alert.NewAlert(in.Kind, in.Severity, in.Title, in.Message, payload)
	a.SetEntity(in.EntityType, in.EntityID)
	a.SetTraceID(in.TraceID)
	a.SetTarget(s.route(a))

	s.metrics.IncAlert(string(a.Kind))
	s.logger.Error().
		Err(in.Err).
		Bool("critical", a.Severity == alert.SeverityCritical).
		Str("alertId", a.AlertID.String()).
		Str("kind", string(a.Kind)).
		Str("entityType", a.EntityType).
		Str("entityId", a.EntityID).
		Str("targetGroup", deref(a.TargetGroup)).
		Msg(a.Title)

	stored, err := s.persist(context.WithoutCancel(ctx), a)
	if err != nil {
		s.logUnstored(a, err)
		s.broadcast(a, "alert")
		return a, fmt.Errorf("store alert: %w", err)
	}
	s.broadcast(stored, "alert")
	return stored, nil
}

func (s *Service) persist(ctx context.Context, a *alert.Alert) (*alert.Alert, error) {
	if a.DedupeKey == nil {
		return a, s.repo.Create(ctx, a)
	}
	repeated, err := s.repo.RecordRepeat(ctx, *a.DedupeKey, a.LastSeenAt)
	if err != nil || repeated != nil {
		return repeated, err
	}
	err = s.repo.Create(ctx, a)
	if errors.Is(err, alert.ErrDuplicateOpen) {
		repeated, err = s.repo.RecordRepeat(ctx, *a.DedupeKey, a.LastSeenAt)
		if err == nil && repeated == nil {
			err = errors.New("open alert disappeared during dedupe")
		}
		return repeated, err
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) route(a *alert.Alert) string {
	ctxJSON, err := json.Marshal(map[string]interface{}{
		"kind":       string(a.Kind),
		"severity":   string(a.Severity),
		"entityType": a.EntityType,
		"entityId":   a.EntityID,
		"payload":    a.Payload,
	})
	if err != nil {
		return ""
	}
	group, errs := s.router.Route(ctxJSON)
	for _, err := range errs {
		s.logger.Warn().Err(err).Str("kind", string(a.Kind)).Msg("alert rule evaluation failed")
	}
	return group
}

// logUnstored writes every field so the alert survives in logs alone.
func (s *Service) logUnstored(a *alert.Alert, err error) {
	s.logger.Error().
		Err(err).
		Bool("critical", true).
		Str("alertId", a.AlertID.String()).
		Str("kind", string(a.Kind)).
		Str("severity", string(a.Severity)).
		Str("title", a.Title).
		Str("message", a.Message).
		Str("entityType", a.EntityType).
		Str("entityId", a.EntityID).
		RawJSON("payload", a.Payload).
		Str("targetGroup", deref(a.TargetGroup)).
		Str("dedupeKey", deref(a.DedupeKey)).
		Str("traceId", deref(a.TraceID)).
		Time("createdAt", a.CreatedAt).
		Msg("failed to store operator alert")
}

func (s *Service) broadcast(a *alert.Alert, event string) {
	if s.hub == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	var groups []string
	if a.TargetGroup != nil {
		groups = append(groups, *a.TargetGroup)
	}
	n := s.hub.Publish(alert.NewSSEMessage(event, data), groups...)
	s.logger.Debug().Str("alertId", a.AlertID.String()).Str("event", event).Int("delivered", n).Msg("alert published")
}

// List returns alerts newest first.
func (s *Service) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// Acknowledge closes an open alert.
func (s *Service) Acknowledge(ctx context.Context, alertID uuid.UUID, actor string) (*alert.Alert, error) {
	var acked *alert.Alert
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.Acknowledge(ctx, alertID, actor, time.Now().UTC())
		if err != nil {
			return err
		}
		if a == nil {
			current, err := s.repo.GetByID(ctx, alertID)
			if err != nil {
				return err
			}
			if current == nil {
				return alert.ErrNotFound
			}
			return alert.ErrAlreadyAcknowledged
		}
		acked = a
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeAlert,
			EntityID:   a.AlertID.String(),
			Action:     audit.ActionAcknowledge,
			Actor:      actor,
			OldValues:  map[string]string{"status": string(alert.StatusOpen)},
			NewValues:  map[string]string{"status": string(a.Status)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("alertId", alertID.String()).Str("actor", actor).Msg("alert acknowledged")
	s.broadcast(acked, "alert.acknowledged")
	return acked, nil
}

// Subscribe registers an operator on the alert stream. Callers must
// Unsubscribe when the connection ends.
func (s *Service) Subscribe(userID string, groups []string) *alert.SSEClient {
	client := alert.NewSSEClient(uuid.NewString(), &userID, groups)
	s.hub.Register(client)
	return client
}

func (s *Service) Unsubscribe(clientID string) {
	s.hub.Unregister(clientID)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
