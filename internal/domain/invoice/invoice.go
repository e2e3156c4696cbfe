package invoice

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusIssued Status = "issued"
	StatusPaid   Status = "paid"
	StatusVoid   Status = "void"
)

const (
	// PaymentTermDays is the gap between issue and due date.
	PaymentTermDays = 30
	numberPrefix    = "INV"
	suffixLength    = 5
	suffixAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NumberPattern matches every generated invoice number.
var NumberPattern = regexp.MustCompile(`^INV-\d{8}-[A-Z0-9]{5}$`)

var (
	ErrNotFound = errors.New("invoice not found")
	// ErrDuplicateForDeal means a non-void invoice already exists for the deal.
	ErrDuplicateForDeal = errors.New("deal already has an active invoice")
	// ErrDuplicateNumber means the invoice number is taken.
	ErrDuplicateNumber = errors.New("invoice number already in use")
	ErrAlreadyVoid     = errors.New("invoice is already void")
)

// Invoice is the financial artifact issued when a deal completes.
type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceID     uuid.UUID       `json:"invoiceId"`
	DealID        uuid.UUID       `json:"dealId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        Status          `json:"status"`
	IssuedAt      time.Time       `json:"issuedAt"`
	DueAt         time.Time       `json:"dueAt"`
	VoidedAt      *time.Time      `json:"voidedAt,omitempty"`
	VoidReason    *string         `json:"voidReason,omitempty"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewInvoice builds an issued invoice due PaymentTermDays after issuedAt.
func NewInvoice(dealID uuid.UUID, number string, amount decimal.Decimal, currency, createdBy string, issuedAt time.Time) *Invoice {
	issuedAt = issuedAt.UTC()
	return &Invoice{
		InvoiceID:     uuid.New(),
		DealID:        dealID,
		InvoiceNumber: number,
		Amount:        amount.Round(2),
		Currency:      strings.ToUpper(currency),
		Status:        StatusIssued,
		IssuedAt:      issuedAt,
		DueAt:         issuedAt.AddDate(0, 0, PaymentTermDays),
		CreatedBy:     createdBy,
		CreatedAt:     issuedAt,
	}
}

func (i *Invoice) IsActive() bool {
	return i.Status != StatusVoid
}

// MarkVoid voids the invoice. A void invoice no longer counts against the
// one-per-deal rule.
func (i *Invoice) MarkVoid(reason string, at time.Time) error {
	if i.Status == StatusVoid {
		return ErrAlreadyVoid
	}
	i.Status = StatusVoid
	t := at.UTC()
	i.VoidedAt = &t
	if reason != "" {
		i.VoidReason = &reason
	}
	return nil
}

// GenerateNumber returns INV-<YYYYMMDD>-<5 chars of [A-Z0-9]> using rnd as
// the entropy source. Pass nil for crypto/rand.
func GenerateNumber(now time.Time, rnd io.Reader) (string, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	max := big.NewInt(int64(len(suffixAlphabet)))
	suffix := make([]byte, suffixLength)
	for i := range suffix {
		n, err := rand.Int(rnd, max)
		if err != nil {
			return "", fmt.Errorf("generate invoice number: %w", err)
		}
		suffix[i] = suffixAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", numberPrefix, now.UTC().Format("20060102"), suffix), nil
}
