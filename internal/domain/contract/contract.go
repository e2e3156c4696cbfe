package contract

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is one of the four legal contract states.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusSent            Status = "sent"
	StatusPartiallySigned Status = "partially_signed"
	StatusFullySigned     Status = "fully_signed"
)

// SignerRole identifies which party a signature belongs to.
type SignerRole string

const (
	SignerTalent SignerRole = "talent"
	SignerBrand  SignerRole = "brand"
	// SignerAll is used by single-envelope sessions that collect both signatures.
	SignerAll SignerRole = "all"
)

var (
	ErrNotFound     = errors.New("contract not found")
	ErrInvalidRole  = errors.New("invalid signer role")
	ErrTitleMissing = errors.New("contract title is required")
)

func ParseSignerRole(raw string) (SignerRole, error) {
	r := SignerRole(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case SignerTalent, SignerBrand, SignerAll:
		return r, nil
	case "":
		return SignerAll, nil
	default:
		return "", ErrInvalidRole
	}
}

// DeriveStatus is the only place contract status is computed.
func DeriveStatus(sent bool, talentSignedAt, brandSignedAt *time.Time) Status {
	switch {
	case talentSignedAt != nil && brandSignedAt != nil:
		return StatusFullySigned
	case talentSignedAt != nil || brandSignedAt != nil:
		return StatusPartiallySigned
	case sent:
		return StatusSent
	default:
		return StatusDraft
	}
}

// Contract tracks the two-party signature process of one deal.
type Contract struct {
	ID             int64          `json:"id"`
	ContractID     uuid.UUID      `json:"contractId"`
	DealID         uuid.UUID      `json:"dealId"`
	Title          string         `json:"title"`
	Status         Status         `json:"status"`
	SentAt         *time.Time     `json:"sentAt,omitempty"`
	TalentSignedAt *time.Time     `json:"talentSignedAt,omitempty"`
	BrandSignedAt  *time.Time     `json:"brandSignedAt,omitempty"`
	FullySignedAt  *time.Time     `json:"fullySignedAt,omitempty"`
	PdfURL         *string        `json:"pdfUrl,omitempty"`
	SignedPdfURL   *string        `json:"signedPdfUrl,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// NewContract creates a draft contract for a deal.
func NewContract(dealID uuid.UUID, title string, pdfURL *string) (*Contract, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleMissing
	}
	now := time.Now().UTC()
	return &Contract{
		ContractID: uuid.New(),
		DealID:     dealID,
		Title:      title,
		Status:     StatusDraft,
		PdfURL:     pdfURL,
		Metadata:   map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// EnvelopeID returns the provider correlation key, if one was recorded.
func (c *Contract) EnvelopeID() string {
	if c.Metadata == nil {
		return ""
	}
	v, _ := c.Metadata["envelopeId"].(string)
	return v
}

func (c *Contract) IsFullySigned() bool {
	return c.Status == StatusFullySigned
}

// MarkSent records that a signature session was opened. It never moves a
// contract backwards.
func (c *Contract) MarkSent(envelopeID string, at time.Time) {
	if c.SentAt == nil {
		t := at
		c.SentAt = &t
	}
	if envelopeID != "" {
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		c.Metadata["envelopeId"] = envelopeID
	}
	c.recompute(at)
}

// RecordSignature sets the per-party timestamp for role and recomputes status.
// Timestamps already set are kept. It reports whether the contract became
// fully signed by this call.
func (c *Contract) RecordSignature(role SignerRole, at time.Time) (becameFullySigned bool, err error) {
	wasFullySigned := c.IsFullySigned()
	switch role {
	case SignerTalent:
		c.TalentSignedAt = stamp(c.TalentSignedAt, at)
	case SignerBrand:
		c.BrandSignedAt = stamp(c.BrandSignedAt, at)
	case SignerAll:
		c.TalentSignedAt = stamp(c.TalentSignedAt, at)
		c.BrandSignedAt = stamp(c.BrandSignedAt, at)
	default:
		return false, ErrInvalidRole
	}
	c.recompute(at)
	return !wasFullySigned && c.IsFullySigned(), nil
}

func (c *Contract) recompute(at time.Time) {
	c.Status = DeriveStatus(c.SentAt != nil, c.TalentSignedAt, c.BrandSignedAt)
	if c.Status == StatusFullySigned && c.FullySignedAt == nil {
		t := at
		c.FullySignedAt = &t
	}
	c.UpdatedAt = at
}

func stamp(current *time.Time, at time.Time) *time.Time {
	if current != nil {
		return current
	}
	t := at
	return &t
}
