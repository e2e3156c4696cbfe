package contract

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name   string
		sent   bool
		talent *time.Time
		brand  *time.Time
		want   Status
	}{
		{"nothing", false, nil, nil, StatusDraft},
		{"sent", true, nil, nil, StatusSent},
		{"talent only", true, &now, nil, StatusPartiallySigned},
		{"brand only unsent", false, nil, &now, StatusPartiallySigned},
		{"both", true, &now, &now, StatusFullySigned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.sent, tc.talent, tc.brand))
		})
	}
}

func TestRecordSignatureOrderIndependent(t *testing.T) {
	t1 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	orders := [][]SignerRole{
		{SignerTalent, SignerBrand},
		{SignerBrand, SignerTalent},
	}
	for _, order := range orders {
		c, err := NewContract(uuid.New(), "Usage rights", nil)
		require.NoError(t, err)
		c.MarkSent("env_1", t1)

		full, err := c.RecordSignature(order[0], t1)
		require.NoError(t, err)
		assert.False(t, full)
		assert.Equal(t, StatusPartiallySigned, c.Status)
		assert.Nil(t, c.FullySignedAt)

		full, err = c.RecordSignature(order[1], t2)
		require.NoError(t, err)
		assert.True(t, full)
		assert.Equal(t, StatusFullySigned, c.Status)
		require.NotNil(t, c.FullySignedAt)
		assert.Equal(t, t2, *c.FullySignedAt)
		assert.NotNil(t, c.TalentSignedAt)
		assert.NotNil(t, c.BrandSignedAt)
	}
}

func TestRecordSignatureIsIdempotent(t *testing.T) {
	t1 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	c, err := NewContract(uuid.New(), "Usage rights", nil)
	require.NoError(t, err)

	full, err := c.RecordSignature(SignerAll, t1)
	require.NoError(t, err)
	assert.True(t, full)

	full, err = c.RecordSignature(SignerTalent, t1.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, full)
	assert.Equal(t, t1, *c.TalentSignedAt)
	assert.Equal(t, t1, *c.FullySignedAt)
}

func TestMarkSentDoesNotRegress(t *testing.T) {
	now := time.Now().UTC()
	c, err := NewContract(uuid.New(), "Usage rights", nil)
	require.NoError(t, err)
	_, err = c.RecordSignature(SignerTalent, now)
	require.NoError(t, err)

	c.MarkSent("env_9", now)
	assert.Equal(t, StatusPartiallySigned, c.Status)
	assert.Equal(t, "env_9", c.EnvelopeID())
}

func TestParseSignerRole(t *testing.T) {
	r, err := ParseSignerRole("Brand")
	require.NoError(t, err)
	assert.Equal(t, SignerBrand, r)

	r, err = ParseSignerRole("")
	require.NoError(t, err)
	assert.Equal(t, SignerAll, r)

	_, err = ParseSignerRole("agent")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
