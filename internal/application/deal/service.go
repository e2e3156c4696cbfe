package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/application/outcome"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/invoice"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
)

// ErrNotCompleted is returned when an invoice is requested for a deal that
// has not reached COMPLETED.
var ErrNotCompleted = errors.New("deal is not completed")

// Transactor runs fn in a transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InvoiceIssuer guarantees one active invoice per completed deal.
type InvoiceIssuer interface {
	EnsureForDeal(ctx context.Context, dealID uuid.UUID, actor string) (*invoice.Invoice, bool, error)
}

// Alerter surfaces failures to operators.
type Alerter interface {
	Raise(ctx context.Context, in appAlert.Input) (*alert.Alert, error)
}

// Result reports a stage transition and its invoice handoff.
type Result struct {
	Deal          *deal.Deal       `json:"deal"`
	PreviousStage deal.Stage       `json:"previousStage"`
	Invoice       *invoice.Invoice `json:"invoice,omitempty"`
	Outcome       outcome.Outcome  `json:"-"`
}

// CreateInput holds the fields of a new deal.
type CreateInput struct {
	Title     string
	BrandName string
	Value     decimal.NullDecimal
	Currency  string
}

// Service manages deals and their stage transitions.
type Service struct {
	dealRepo deal.Repository
	tx       Transactor
	invoices InvoiceIssuer
	alerts   Alerter
	auditSvc *appAudit.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewService creates a deal service.
func NewService(
	dealRepo deal.Repository,
	tx Transactor,
	invoices InvoiceIssuer,
	alerts Alerter,
	auditSvc *appAudit.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		dealRepo: dealRepo,
		tx:       tx,
		invoices: invoices,
		alerts:   alerts,
		auditSvc: auditSvc,
		metrics:  m,
		logger:   logger.With().Str("service", "deal").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (*deal.Deal, error) {
	d, err := deal.NewDeal(in.Title, in.Value, in.Currency, actor)
	if err != nil {
		return nil, err
	}
	if brand := strings.TrimSpace(in.BrandName); brand != "" {
		d.BrandName = &brand
	}
	if d.Value.Valid && d.Value.Decimal.IsNegative() {
		return nil, fmt.Errorf("deal value must not be negative")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.dealRepo.Create(ctx, d); err != nil {
			return err
		}
		newValues := map[string]interface{}{
			"title":    d.Title,
			"stage":    d.Stage,
			"currency": d.Currency,
		}
		if d.Value.Valid {
			newValues["value"] = d.Value.Decimal.StringFixed(2)
		}
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeDeal,
			EntityID:   d.DealID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			NewValues:  newValues,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}
	s.logger.Info().Str("dealId", d.DealID.String()).Str("actor", actor).Msg("deal created")
	return d, nil
}

func (s *Service) Get(ctx context.Context, dealID uuid.UUID) (*deal.Deal, error) {
	d, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, deal.ErrNotFound
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, stage *deal.Stage, limit, offset int) ([]*deal.Deal, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.dealRepo.List(ctx, deal.Filter{Stage: stage}, limit, max(offset, 0))
}

// Transition sets the deal's stage. Any stage may follow any other. Once the
// stage is committed and it is COMPLETED, the invoice is ensured; a failure
// there leaves the stage in place, raises an alert and yields a fatal
// outcome. The returned error is non-nil only when the stage was not applied.
func (s *Service) Transition(ctx context.Context, dealID uuid.UUID, target deal.Stage, actor string) (*Result, error) {
	if err := deal.ValidateStage(target); err != nil {
		return nil, err
	}

	result := &Result{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		d, err := s.dealRepo.GetByIDForUpdate(ctx, dealID)
		if err != nil {
			return err
		}
		if d == nil {
			return deal.ErrNotFound
		}
		result.Deal = d
		result.PreviousStage = d.Stage
		if d.Stage == target {
			result.Outcome = outcome.Duplicate("stage unchanged")
			return nil
		}

		d.ApplyStage(target, time.Now().UTC())
		if err := s.dealRepo.Update(ctx, d); err != nil {
			return err
		}
		result.Outcome = outcome.Applied("stage changed")
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeDeal,
			EntityID:   d.DealID.String(),
			Action:     audit.ActionStageChange,
			Actor:      actor,
			OldValues:  map[string]string{"stage": string(result.PreviousStage)},
			NewValues:  map[string]string{"stage": string(d.Stage)},
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome.Changed() {
		s.metrics.IncStageTransition(string(target))
		s.logger.Info().
			Str("dealId", dealID.String()).
			Str("from", string(result.PreviousStage)).
			Str("to", string(target)).
			Str("actor", actor).
			Msg("deal stage changed")
	}

	if result.Deal.Stage == deal.StageCompleted {
		s.handoff(ctx, result, actor)
	}
	return result, nil
}

// ReissueInvoice re-runs the completion handoff, typically after the deal's
// invoice was voided.
func (s *Service) ReissueInvoice(ctx context.Context, dealID uuid.UUID, actor string) (*Result, error) {
	d, err := s.Get(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if d.Stage != deal.StageCompleted {
		return nil, ErrNotCompleted
	}
	result := &Result{Deal: d, PreviousStage: d.Stage, Outcome: outcome.Duplicate("stage unchanged")}
	s.handoff(ctx, result, actor)
	return result, nil
}

// handoff runs after the stage commit, detached from caller cancellation.
func (s *Service) handoff(ctx context.Context, result *Result, actor string) {
	ctx = context.WithoutCancel(ctx)
	dealID := result.Deal.DealID

	inv, created, err := s.invoices.EnsureForDeal(ctx, dealID, actor)
	if err != nil {
		result.Outcome = outcome.Worst(result.Outcome, outcome.Fatal("invoice issuance failed", err))
		s.logger.Error().
			Err(err).
			Bool("critical", true).
			Str("dealId", dealID.String()).
			Msg("invoice issuance failed after deal completion")
		_, _ = s.alerts.Raise(ctx, appAlert.Input{
			Kind:       alert.KindInvoiceIssuanceFailed,
			Severity:   alert.SeverityCritical,
			Title:      "Invoice issuance failed",
			Message:    fmt.Sprintf("Deal %q is COMPLETED but has no invoice.", result.Deal.Title),
			EntityType: string(audit.EntityTypeDeal),
			EntityID:   dealID.String(),
			Payload: map[string]interface{}{
				"dealId":   dealID.String(),
				"actor":    actor,
				"currency": result.Deal.Currency,
				"amount":   result.Deal.InvoiceAmount().StringFixed(2),
			},
			Err: err,
		})
		return
	}

	result.Invoice = inv
	if created {
		result.Outcome = outcome.Worst(result.Outcome, outcome.Applied("invoice issued"))
	}
}
