package signature

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/contract"
)

// Status is the normalized state of a signature session.
type Status string

const (
	StatusSent     Status = "sent"
	StatusSigned   Status = "signed"
	StatusDeclined Status = "declined"
	StatusVoided   Status = "voided"
)

// IsTerminal reports whether no further status may be applied.
func (s Status) IsTerminal() bool {
	return s == StatusSigned || s == StatusDeclined || s == StatusVoided
}

// NormalizeStatus lower-cases a provider status. Providers map their own
// vocabulary before calling it.
func NormalizeStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

var (
	ErrUnknownEnvelope  = errors.New("unknown envelope")
	ErrEnvelopeExists   = errors.New("envelope already registered")
	ErrMissingEnvelope  = errors.New("webhook payload has no envelope id")
	ErrMissingStatus    = errors.New("webhook payload has no status")
	ErrUnknownProvider  = errors.New("unknown signature provider")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrEnvelopeRequired = errors.New("envelope id is required")
	ErrDocumentTooLarge = errors.New("signed document too large")
)

// Event is a provider webhook reduced to the fields the core acts on.
type Event struct {
	Provider   string
	EnvelopeID string
	Status     Status
	// RawStatus is the provider's value before mapping.
	RawStatus string
}

// Validate checks the fields every provider must supply.
func (e Event) Validate() error {
	if e.EnvelopeID == "" {
		return ErrMissingEnvelope
	}
	if e.Status == "" {
		return ErrMissingStatus
	}
	return nil
}

// Request is one external signature session for a contract. Its
// (envelope id, status) pair is the webhook idempotency key.
type Request struct {
	ID           int64               `json:"id"`
	RequestID    uuid.UUID           `json:"requestId"`
	ContractID   uuid.UUID           `json:"contractId"`
	Provider     string              `json:"provider"`
	EnvelopeID   string              `json:"envelopeId"`
	SignerEmail  string              `json:"signerEmail"`
	SignerRole   contract.SignerRole `json:"signerRole"`
	Status       Status              `json:"status"`
	SignedPdfURL *string             `json:"signedPdfUrl,omitempty"`
	SignedAt     *time.Time          `json:"signedAt,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// NewRequest creates a request in the sent state.
func NewRequest(contractID uuid.UUID, provider, envelopeID, signerEmail string, role contract.SignerRole) (*Request, error) {
	envelopeID = strings.TrimSpace(envelopeID)
	if envelopeID == "" {
		return nil, ErrEnvelopeRequired
	}
	now := time.Now().UTC()
	return &Request{
		RequestID:   uuid.New(),
		ContractID:  contractID,
		Provider:    provider,
		EnvelopeID:  envelopeID,
		SignerEmail: strings.TrimSpace(signerEmail),
		SignerRole:  role,
		Status:      StatusSent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanApply is the predicate the conditional status write enforces.
func (r *Request) CanApply(status Status) bool {
	return r.Status != status && !r.Status.IsTerminal()
}

// Miss explains why a conditional status write changed nothing.
type Miss string

const (
	MissUnknownEnvelope Miss = "unknown_envelope"
	MissDuplicate       Miss = "duplicate"
	MissStale           Miss = "stale"
)

// ClassifyMiss inspects the current row after a write affected zero rows.
func ClassifyMiss(current *Request, incoming Status) Miss {
	switch {
	case current == nil:
		return MissUnknownEnvelope
	case current.Status == incoming:
		return MissDuplicate
	default:
		return MissStale
	}
}
