package deal

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stage is a step of the deal pipeline.
type Stage string

const (
	StageNewLead                Stage = "NEW_LEAD"
	StageNegotiation            Stage = "NEGOTIATION"
	StageContractSent           Stage = "CONTRACT_SENT"
	StageContractSigned         Stage = "CONTRACT_SIGNED"
	StageDeliverablesInProgress Stage = "DELIVERABLES_IN_PROGRESS"
	StageLive                   Stage = "LIVE"
	StagePaymentPending         Stage = "PAYMENT_PENDING"
	StagePaymentReceived        Stage = "PAYMENT_RECEIVED"
	StageCompleted              Stage = "COMPLETED"
	StageLost                   Stage = "LOST"
)

var stageOrder = []Stage{
	StageNewLead,
	StageNegotiation,
	StageContractSent,
	StageContractSigned,
	StageDeliverablesInProgress,
	StageLive,
	StagePaymentPending,
	StagePaymentReceived,
	StageCompleted,
	StageLost,
}

// PreSignatureStages are the stages a deal leaves when its contract is fully signed.
var PreSignatureStages = []Stage{StageNewLead, StageNegotiation, StageContractSent}

var (
	ErrNotFound     = errors.New("deal not found")
	ErrInvalidStage = errors.New("invalid deal stage")
	ErrTitleMissing = errors.New("deal title is required")
)

// Stages returns the pipeline in display order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage accepts stage names case-insensitively.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	if err := ValidateStage(s); err != nil {
		return "", err
	}
	return s, nil
}

func ValidateStage(s Stage) error {
	for _, known := range stageOrder {
		if s == known {
			return nil
		}
	}
	return ErrInvalidStage
}

// IsPreSignature reports whether s comes before CONTRACT_SIGNED.
func (s Stage) IsPreSignature() bool {
	for _, p := range PreSignatureStages {
		if s == p {
			return true
		}
	}
	return false
}

// Deal is a brand/talent engagement tracked through the pipeline.
type Deal struct {
	ID                      int64               `json:"id"`
	DealID                  uuid.UUID           `json:"dealId"`
	Title                   string              `json:"title"`
	BrandName               *string             `json:"brandName,omitempty"`
	Stage                   Stage               `json:"stage"`
	Value                   decimal.NullDecimal `json:"value"`
	Currency                string              `json:"currency"`
	ContractSignedAt        *time.Time          `json:"contractSignedAt,omitempty"`
	DeliverablesCompletedAt *time.Time          `json:"deliverablesCompletedAt,omitempty"`
	CreatedBy               string              `json:"createdBy"`
	CreatedAt               time.Time           `json:"createdAt"`
	UpdatedAt               time.Time           `json:"updatedAt"`
}

// NewDeal creates a deal in NEW_LEAD.
func NewDeal(title string, value decimal.NullDecimal, currency, createdBy string) (*Deal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleMissing
	}
	if currency == "" {
		currency = "GBP"
	}
	now := time.Now().UTC()
	return &Deal{
		DealID:    uuid.New(),
		Title:     title,
		Stage:     StageNewLead,
		Value:     value,
		Currency:  strings.ToUpper(currency),
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// InvoiceAmount is the deal value, or zero when no value was recorded.
func (d *Deal) InvoiceAmount() decimal.Decimal {
	if d.Value.Valid {
		return d.Value.Decimal
	}
	return decimal.Zero
}

// ApplyStage moves the deal to stage. Reaching COMPLETED stamps the
// deliverables completion time once.
func (d *Deal) ApplyStage(stage Stage, at time.Time) {
	d.Stage = stage
	d.UpdatedAt = at
	if stage == StageCompleted && d.DeliverablesCompletedAt == nil {
		t := at
		d.DeliverablesCompletedAt = &t
	}
}

// MarkContractSigned records the signing time once and advances early stages.
// It reports whether the stage changed.
func (d *Deal) MarkContractSigned(at time.Time) bool {
	if d.ContractSignedAt == nil {
		t := at
		d.ContractSignedAt = &t
		d.UpdatedAt = at
	}
	if d.Stage.IsPreSignature() {
		d.Stage = StageContractSigned
		d.UpdatedAt = at
		return true
	}
	return false
}
