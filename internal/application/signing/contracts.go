package signing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

// RequestInput registers a provider signature session for a contract.
type RequestInput struct {
	Provider    string
	EnvelopeID  string
	SignerEmail string
	SignerRole  string
}

// ContractView is a contract with its signature requests.
type ContractView struct {
	*contract.Contract
	Requests []*signature.Request `json:"signatureRequests"`
}

// CreateContract adds a draft contract to a deal.
func (s *Service) CreateContract(ctx context.Context, dealID uuid.UUID, title string, pdfURL *string, actor string) (*contract.Contract, error) {
	c, err := contract.NewContract(dealID, title, pdfURL)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		d, err := s.dealRepo.GetByID(ctx, dealID)
		if err != nil {
			return err
		}
		if d == nil {
			return deal.ErrNotFound
		}
		if err := s.contractRepo.Create(ctx, c); err != nil {
			return err
		}
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeContract,
			EntityID:   c.ContractID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			NewValues: map[string]string{
				"dealId": dealID.String(),
				"title":  c.Title,
				"status": string(c.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("contractId", c.ContractID.String()).Str("dealId", dealID.String()).Msg("contract created")
	return c, nil
}

// RegisterRequest records that a contract was sent for signature under an
// envelope id and marks the contract sent.
func (s *Service) RegisterRequest(ctx context.Context, contractID uuid.UUID, in RequestInput, actor string) (*signature.Request, error) {
	providerName := strings.ToLower(strings.TrimSpace(in.Provider))
	if providerName == "" {
		providerName = s.providers.Default()
	}
	if _, err := s.providers.Get(providerName); err != nil {
		return nil, err
	}
	role, err := contract.ParseSignerRole(in.SignerRole)
	if err != nil {
		return nil, err
	}

	var req *signature.Request
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.contractRepo.GetByIDForUpdate(ctx, contractID)
		if err != nil {
			return err
		}
		if c == nil {
			return contract.ErrNotFound
		}
		req, err = signature.NewRequest(c.ContractID, providerName, in.EnvelopeID, in.SignerEmail, role)
		if err != nil {
			return err
		}
		if err := s.sigRepo.Create(ctx, req); err != nil {
			return err
		}
		oldStatus := c.Status
		c.MarkSent(req.EnvelopeID, s.now())
		if err := s.contractRepo.UpdateSigning(ctx, c); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeSignatureRequest,
			EntityID:   req.RequestID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			OldValues:  map[string]string{"contractStatus": string(oldStatus)},
			NewValues: map[string]string{
				"contractId":     c.ContractID.String(),
				"provider":       req.Provider,
				"envelopeId":     req.EnvelopeID,
				"signerRole":     string(req.SignerRole),
				"contractStatus": string(c.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("contractId", contractID.String()).
		Str("envelopeId", req.EnvelopeID).
		Str("provider", req.Provider).
		Msg("signature request registered")
	return req, nil
}

func (s *Service) GetContract(ctx context.Context, contractID uuid.UUID) (*ContractView, error) {
	c, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, contract.ErrNotFound
	}
	reqs, err := s.sigRepo.ListByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return &ContractView{Contract: c, Requests: reqs}, nil
}

func (s *Service) ListContracts(ctx context.Context, dealID uuid.UUID) ([]*contract.Contract, error) {
	return s.contractRepo.ListByDeal(ctx, dealID)
}
