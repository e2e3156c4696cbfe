package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/application/outcome"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
)

// ErrOrphanRequest is returned when a signature request points at a
// contract or deal that no longer exists.
var ErrOrphanRequest = errors.New("signature request has no contract")

// Transactor runs fn in a transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DocumentStore keeps signed contract artifacts and returns their URL.
type DocumentStore interface {
	Store(ctx context.Context, data []byte, filename, contentType, folder, ownerID string) (string, error)
}

// Alerter surfaces failures to operators.
type Alerter interface {
	Raise(ctx context.Context, in appAlert.Input) (*alert.Alert, error)
}

// Service drives contracts through signature and applies provider events.
type Service struct {
	sigRepo      signature.Repository
	contractRepo contract.Repository
	dealRepo     deal.Repository
	tx           Transactor
	providers    *signature.Registry
	documents    DocumentStore
	alerts       Alerter
	auditSvc     *appAudit.Service
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	now func() time.Time
}

// NewService creates a signing service.
func NewService(
	sigRepo signature.Repository,
	contractRepo contract.Repository,
	dealRepo deal.Repository,
	tx Transactor,
	providers *signature.Registry,
	documents DocumentStore,
	alerts Alerter,
	auditSvc *appAudit.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sigRepo:      sigRepo,
		contractRepo: contractRepo,
		dealRepo:     dealRepo,
		tx:           tx,
		providers:    providers,
		documents:    documents,
		alerts:       alerts,
		auditSvc:     auditSvc,
		metrics:      m,
		logger:       logger.With().Str("service", "signing").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// signingResult is what one committed signing transaction changed.
type signingResult struct {
	request           *signature.Request
	contract          *contract.Contract
	becameFullySigned bool
}

// HandleEvent applies one provider webhook event. Duplicate, stale and
// unknown events change nothing. The status write, contract, deal and audit
// entry commit together; the signed document is fetched afterwards and its
// failure is recoverable.
func (s *Service) HandleEvent(ctx context.Context, ev signature.Event) outcome.Outcome {
	start := time.Now()
	out := s.handleEvent(ctx, ev)
	s.metrics.ObserveWebhook(ev.Provider, string(out.Kind), time.Since(start))
	return out
}

func (s *Service) handleEvent(ctx context.Context, ev signature.Event) outcome.Outcome {
	log := s.logger.With().
		Str("provider", ev.Provider).
		Str("envelopeId", ev.EnvelopeID).
		Str("status", string(ev.Status)).
		Logger()

	if err := ev.Validate(); err != nil {
		log.Warn().Err(err).Msg("ignoring webhook event")
		return outcome.Ignored(err.Error())
	}

	var (
		res  *signingResult
		miss signature.Miss
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		req, err := s.sigRepo.ApplyStatus(ctx, ev.EnvelopeID, ev.Status, now)
		if err != nil {
			return fmt.Errorf("apply status: %w", err)
		}
		if req == nil {
			current, err := s.sigRepo.GetByEnvelopeID(ctx, ev.EnvelopeID)
			if err != nil {
				return fmt.Errorf("classify event: %w", err)
			}
			miss = signature.ClassifyMiss(current, ev.Status)
			return nil
		}
		res, err = s.applyToContract(ctx, req, ev, now)
		return err
	})

	if err != nil {
		log.Error().Err(err).Msg("webhook event processing failed")
		_, _ = s.alerts.Raise(context.WithoutCancel(ctx), appAlert.Input{
			Kind:       alert.KindWebhookProcessingFailed,
			Severity:   alert.SeverityCritical,
			Title:      "Signature webhook processing failed",
			Message:    fmt.Sprintf("Envelope %s status %s was acknowledged but not applied.", ev.EnvelopeID, ev.Status),
			EntityType: string(audit.EntityTypeSignatureRequest),
			EntityID:   ev.EnvelopeID,
			Payload: map[string]interface{}{
				"provider":   ev.Provider,
				"envelopeId": ev.EnvelopeID,
				"status":     string(ev.Status),
				"rawStatus":  ev.RawStatus,
			},
			Err: err,
		})
		return outcome.Fatal("webhook processing failed", err)
	}

	switch miss {
	case signature.MissDuplicate:
		log.Info().Msg("duplicate webhook event")
		return outcome.Duplicate(string(miss))
	case signature.MissUnknownEnvelope:
		log.Warn().Msg("webhook event for unknown envelope")
		return outcome.Ignored(string(miss))
	case signature.MissStale:
		log.Warn().Msg("stale webhook event after terminal status")
		return outcome.Ignored(string(miss))
	}

	log.Info().
		Str("contractId", res.contract.ContractID.String()).
		Str("contractStatus", string(res.contract.Status)).
		Msg("webhook event applied")

	if res.becameFullySigned {
		return s.storeSignedDocument(ctx, res.request, res.contract)
	}
	return outcome.Applied(string(ev.Status))
}

// applyToContract runs inside the event transaction once the status write won.
func (s *Service) applyToContract(ctx context.Context, req *signature.Request, ev signature.Event, now time.Time) (*signingResult, error) {
	c, err := s.contractRepo.GetByIDForUpdate(ctx, req.ContractID)
	if err != nil {
		return nil, fmt.Errorf("lock contract: %w", err)
	}
	if c == nil {
		return nil, ErrOrphanRequest
	}
	res := &signingResult{request: req, contract: c}
	oldStatus := c.Status

	entry := &audit.AuditEntry{
		EntityType: audit.EntityTypeSignatureRequest,
		EntityID:   req.RequestID.String(),
		Action:     audit.ActionStatusChange,
		Actor:      "provider:" + req.Provider,
		NewValues: map[string]interface{}{
			"envelopeId": req.EnvelopeID,
			"status":     string(ev.Status),
			"rawStatus":  ev.RawStatus,
		},
	}

	switch ev.Status {
	case signature.StatusSigned:
		res.becameFullySigned, err = s.sign(ctx, c, req.SignerRole, now)
		if err != nil {
			return nil, err
		}
		entry.EntityType = audit.EntityTypeContract
		entry.EntityID = c.ContractID.String()
		entry.Action = audit.ActionSign
		entry.OldValues = map[string]string{"status": string(oldStatus)}
		entry.NewValues = signValues(c, req, res.becameFullySigned)
	case signature.StatusSent:
		c.MarkSent(req.EnvelopeID, now)
		if err := s.contractRepo.UpdateSigning(ctx, c); err != nil {
			return nil, fmt.Errorf("update contract: %w", err)
		}
	}

	if err := s.auditSvc.LogSync(ctx, entry); err != nil {
		return nil, err
	}
	return res, nil
}

// sign records role's signature on a locked contract and, on full
// signature, stamps and advances the deal. Callers hold the transaction.
func (s *Service) sign(ctx context.Context, c *contract.Contract, role contract.SignerRole, now time.Time) (bool, error) {
	became, err := c.RecordSignature(role, now)
	if err != nil {
		return false, err
	}
	if err := s.contractRepo.UpdateSigning(ctx, c); err != nil {
		return false, fmt.Errorf("update contract: %w", err)
	}
	if !became {
		return false, nil
	}

	d, err := s.dealRepo.GetByIDForUpdate(ctx, c.DealID)
	if err != nil {
		return false, fmt.Errorf("lock deal: %w", err)
	}
	if d == nil {
		return false, fmt.Errorf("%w: deal %s", ErrOrphanRequest, c.DealID)
	}
	stageChanged := d.MarkContractSigned(now)
	if err := s.dealRepo.Update(ctx, d); err != nil {
		return false, fmt.Errorf("update deal: %w", err)
	}
	if stageChanged {
		s.metrics.IncStageTransition(string(d.Stage))
	}
	return true, nil
}

func signValues(c *contract.Contract, req *signature.Request, fullySigned bool) map[string]interface{} {
	v := map[string]interface{}{
		"status":         string(c.Status),
		"signerRole":     string(req.SignerRole),
		"talentSignedAt": c.TalentSignedAt,
		"brandSignedAt":  c.BrandSignedAt,
	}
	if req.EnvelopeID != "" {
		v["envelopeId"] = req.EnvelopeID
	}
	if fullySigned {
		v["fullySignedAt"] = c.FullySignedAt
		v["dealStage"] = string(deal.StageContractSigned)
	}
	return v
}

// storeSignedDocument runs after commit. Failures are logged and counted
// but never undo the signature.
func (s *Service) storeSignedDocument(ctx context.Context, req *signature.Request, c *contract.Contract) outcome.Outcome {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With().
		Str("provider", req.Provider).
		Str("envelopeId", req.EnvelopeID).
		Str("contractId", c.ContractID.String()).
		Logger()

	fail := func(step string, err error) outcome.Outcome {
		s.metrics.IncArtifactFailure(req.Provider, step)
		log.Error().Err(err).Str("step", step).Msg("signed document not stored")
		return outcome.Recoverable("signed document "+step+" failed", err)
	}

	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return fail("fetch", err)
	}
	data, err := provider.GetSignedDocument(ctx, req.EnvelopeID)
	if err != nil {
		return fail("fetch", err)
	}
	if len(data) == 0 {
		return fail("fetch", errors.New("provider returned no document"))
	}
	if s.documents == nil {
		return fail("store", errors.New("document storage is not configured"))
	}

	filename := fmt.Sprintf("%s-signed.pdf", req.EnvelopeID)
	url, err := s.documents.Store(ctx, data, filename, "application/pdf", "signed-contracts", c.DealID.String())
	if err != nil {
		return fail("store", err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.sigRepo.SetSignedDocument(ctx, req.RequestID, url); err != nil {
			return err
		}
		return s.contractRepo.SetSignedPdfURL(ctx, c.ContractID, url)
	})
	if err != nil {
		return fail("record", err)
	}
	log.Info().Str("url", url).Msg("signed document stored")
	return outcome.Applied("fully signed")
}

// RecordOperatorSignature applies a signature entered by an operator. It goes
// through the same state machine as provider events.
func (s *Service) RecordOperatorSignature(ctx context.Context, contractID uuid.UUID, role contract.SignerRole, actor string) (*contract.Contract, outcome.Outcome, error) {
	var res *signingResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.contractRepo.GetByIDForUpdate(ctx, contractID)
		if err != nil {
			return err
		}
		if c == nil {
			return contract.ErrNotFound
		}
		res = &signingResult{contract: c}
		if alreadySigned(c, role) {
			return nil
		}

		oldStatus := c.Status
		res.becameFullySigned, err = s.sign(ctx, c, role, s.now())
		if err != nil {
			return err
		}
		res.request = &signature.Request{SignerRole: role}
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeContract,
			EntityID:   c.ContractID.String(),
			Action:     audit.ActionSign,
			Actor:      actor,
			OldValues:  map[string]string{"status": string(oldStatus)},
			NewValues:  signValues(c, res.request, res.becameFullySigned),
		})
	})
	if err != nil {
		return nil, outcome.Outcome{}, err
	}
	if res.request == nil {
		return res.contract, outcome.Duplicate("already signed"), nil
	}

	s.logger.Info().
		Str("contractId", contractID.String()).
		Str("role", string(role)).
		Str("status", string(res.contract.Status)).
		Str("actor", actor).
		Msg("operator recorded signature")

	if !res.becameFullySigned {
		return res.contract, outcome.Applied(string(res.contract.Status)), nil
	}
	req, err := s.latestRequest(ctx, contractID)
	if err != nil || req == nil {
		return res.contract, outcome.Applied("fully signed"), nil
	}
	out := s.storeSignedDocument(ctx, req, res.contract)
	if c, err := s.contractRepo.GetByID(ctx, contractID); err == nil && c != nil {
		res.contract = c
	}
	return res.contract, out, nil
}

func alreadySigned(c *contract.Contract, role contract.SignerRole) bool {
	switch role {
	case contract.SignerTalent:
		return c.TalentSignedAt != nil
	case contract.SignerBrand:
		return c.BrandSignedAt != nil
	case contract.SignerAll:
		return c.TalentSignedAt != nil && c.BrandSignedAt != nil
	}
	return false
}

func (s *Service) latestRequest(ctx context.Context, contractID uuid.UUID) (*signature.Request, error) {
	reqs, err := s.sigRepo.ListByContract(ctx, contractID)
	if err != nil || len(reqs) == 0 {
		return nil, err
	}
	return reqs[len(reqs)-1], nil
}
