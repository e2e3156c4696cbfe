package invoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/invoice"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
)

// maxNumberAttempts bounds regeneration after an invoice number collision.
const maxNumberAttempts = 3

// ErrNumberExhausted is returned when every generated number collided.
var ErrNumberExhausted = errors.New("could not allocate a unique invoice number")

// Transactor runs fn in a transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service issues and voids invoices.
type Service struct {
	invoiceRepo invoice.Repository
	dealRepo    deal.Repository
	tx          Transactor
	auditSvc    *appAudit.Service
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	now func() time.Time
	rnd io.Reader
}

// NewService creates an invoice service.
func NewService(
	invoiceRepo invoice.Repository,
	dealRepo deal.Repository,
	tx Transactor,
	auditSvc *appAudit.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		invoiceRepo: invoiceRepo,
		dealRepo:    dealRepo,
		tx:          tx,
		auditSvc:    auditSvc,
		metrics:     m,
		logger:      logger.With().Str("service", "invoice").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// EnsureForDeal returns the deal's active invoice, issuing one if there is
// none. created is false when an existing invoice was returned, including
// the case where a concurrent caller won the insert.
func (s *Service) EnsureForDeal(ctx context.Context, dealID uuid.UUID, actor string) (inv *invoice.Invoice, created bool, err error) {
	existing, err := s.invoiceRepo.GetActiveByDeal(ctx, dealID)
	if err != nil {
		s.metrics.IncInvoiceIssuance("failed")
		return nil, false, fmt.Errorf("lookup active invoice: %w", err)
	}
	if existing != nil {
		s.metrics.IncInvoiceIssuance("existing")
		return existing, false, nil
	}

	d, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		s.metrics.IncInvoiceIssuance("failed")
		return nil, false, fmt.Errorf("load deal: %w", err)
	}
	if d == nil {
		s.metrics.IncInvoiceIssuance("failed")
		return nil, false, deal.ErrNotFound
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := invoice.GenerateNumber(s.now(), s.rnd)
		if err != nil {
			s.metrics.IncInvoiceIssuance("failed")
			return nil, false, err
		}
		candidate := invoice.NewInvoice(d.DealID, number, d.InvoiceAmount(), d.Currency, actor, s.now())

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.invoiceRepo.Create(ctx, candidate); err != nil {
				return err
			}
			return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
				EntityType: audit.EntityTypeInvoice,
				EntityID:   candidate.InvoiceID.String(),
				Action:     audit.ActionIssue,
				Actor:      actor,
				NewValues: map[string]interface{}{
					"dealId":        d.DealID.String(),
					"invoiceNumber": candidate.InvoiceNumber,
					"amount":        candidate.Amount.StringFixed(2),
					"currency":      candidate.Currency,
					"dueAt":         candidate.DueAt,
				},
			})
		})

		switch {
		case err == nil:
			s.metrics.IncInvoiceIssuance("issued")
			s.logger.Info().
				Str("dealId", d.DealID.String()).
				Str("invoiceId", candidate.InvoiceID.String()).
				Str("invoiceNumber", candidate.InvoiceNumber).
				Str("amount", candidate.Amount.StringFixed(2)).
				Str("currency", candidate.Currency).
				Msg("invoice issued")
			return candidate, true, nil

		case errors.Is(err, invoice.ErrDuplicateForDeal):
			winner, lookupErr := s.invoiceRepo.GetActiveByDeal(ctx, dealID)
			if lookupErr != nil {
				s.metrics.IncInvoiceIssuance("failed")
				return nil, false, fmt.Errorf("load concurrent invoice: %w", lookupErr)
			}
			if winner == nil {
				s.metrics.IncInvoiceIssuance("failed")
				return nil, false, fmt.Errorf("active invoice for deal %s vanished after conflict", dealID)
			}
			s.metrics.IncInvoiceIssuance("existing")
			s.logger.Info().
				Str("dealId", dealID.String()).
				Str("invoiceNumber", winner.InvoiceNumber).
				Msg("invoice already issued by concurrent completion")
			return winner, false, nil

		case errors.Is(err, invoice.ErrDuplicateNumber):
			s.logger.Warn().
				Str("dealId", dealID.String()).
				Str("invoiceNumber", number).
				Int("attempt", attempt).
				Msg("invoice number collision, regenerating")
			continue

		default:
			s.metrics.IncInvoiceIssuance("failed")
			return nil, false, fmt.Errorf("issue invoice: %w", err)
		}
	}

	s.metrics.IncInvoiceIssuance("failed")
	return nil, false, ErrNumberExhausted
}

// Void marks an invoice void. The deal may then be issued a fresh invoice.
func (s *Service) Void(ctx context.Context, invoiceID uuid.UUID, actor, reason string) (*invoice.Invoice, error) {
	var voided *invoice.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.invoiceRepo.Void(ctx, invoiceID, reason, s.now())
		if err != nil {
			return err
		}
		if inv == nil {
			current, err := s.invoiceRepo.GetByID(ctx, invoiceID)
			if err != nil {
				return err
			}
			if current == nil {
				return invoice.ErrNotFound
			}
			return invoice.ErrAlreadyVoid
		}
		voided = inv
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeInvoice,
			EntityID:   inv.InvoiceID.String(),
			Action:     audit.ActionVoid,
			Actor:      actor,
			OldValues:  map[string]string{"status": string(invoice.StatusIssued)},
			NewValues:  map[string]string{"status": string(inv.Status)},
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn().
		Str("invoiceId", voided.InvoiceID.String()).
		Str("dealId", voided.DealID.String()).
		Str("actor", actor).
		Msg("invoice voided")
	return voided, nil
}

func (s *Service) Get(ctx context.Context, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoice.ErrNotFound
	}
	return inv, nil
}

// GetActiveByDeal returns invoice.ErrNotFound when the deal has no active invoice.
func (s *Service) GetActiveByDeal(ctx context.Context, dealID uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.GetActiveByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoice.ErrNotFound
	}
	return inv, nil
}
