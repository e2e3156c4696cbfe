package deal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	s, err := ParseStage(" completed ")
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, s)

	_, err = ParseStage("ARCHIVED")
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestNewDeal(t *testing.T) {
	_, err := NewDeal("   ", decimal.NullDecimal{}, "", "user:alice")
	assert.ErrorIs(t, err, ErrTitleMissing)

	d, err := NewDeal("Spring launch", decimal.NewNullDecimal(decimal.RequireFromString("1500.00")), "eur", "user:alice")
	require.NoError(t, err)
	assert.Equal(t, StageNewLead, d.Stage)
	assert.Equal(t, "EUR", d.Currency)
	assert.True(t, d.InvoiceAmount().Equal(decimal.RequireFromString("1500")))
}

func TestInvoiceAmountDefaultsToZero(t *testing.T) {
	d := &Deal{}
	assert.True(t, d.InvoiceAmount().IsZero())
}

func TestApplyStage(t *testing.T) {
	d := &Deal{Stage: StageLive}
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d.ApplyStage(StageCompleted, first)
	require.NotNil(t, d.DeliverablesCompletedAt)
	assert.Equal(t, first, *d.DeliverablesCompletedAt)

	d.ApplyStage(StageLive, first.Add(time.Hour))
	d.ApplyStage(StageCompleted, first.Add(2*time.Hour))
	assert.Equal(t, first, *d.DeliverablesCompletedAt, "completion time is set only once")

	// moving backwards is allowed
	d.ApplyStage(StageNewLead, first.Add(3*time.Hour))
	assert.Equal(t, StageNewLead, d.Stage)
}

func TestMarkContractSigned(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, s := range PreSignatureStages {
		d := &Deal{Stage: s}
		assert.True(t, d.MarkContractSigned(at), s)
		assert.Equal(t, StageContractSigned, d.Stage)
		require.NotNil(t, d.ContractSignedAt)
	}

	d := &Deal{Stage: StageLive}
	assert.False(t, d.MarkContractSigned(at))
	assert.Equal(t, StageLive, d.Stage)
	require.NotNil(t, d.ContractSignedAt)

	later := at.Add(time.Hour)
	d.MarkContractSigned(later)
	assert.Equal(t, at, *d.ContractSignedAt)
}

func TestNewDealDefaultsCurrency(t *testing.T) {
	d, err := NewDeal("Untitled collab", decimal.NullDecimal{}, "", "system")
	require.NoError(t, err)
	assert.Equal(t, "GBP", d.Currency)
	assert.False(t, d.Value.Valid)
}
