package outcome

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorst(t *testing.T) {
	applied := Applied("contract signed")
	artifact := Recoverable("document not stored", errors.New("minio down"))
	invoice := Fatal("invoice not issued", errors.New("db down"))

	assert.Equal(t, artifact, Worst(applied, artifact))
	assert.Equal(t, invoice, Worst(artifact, invoice))
	assert.Equal(t, invoice, Worst(invoice, applied))
	assert.Equal(t, applied, Worst(Duplicate("same status"), applied))
}

func TestChanged(t *testing.T) {
	assert.True(t, Applied("x").Changed())
	assert.True(t, Recoverable("x", nil).Changed())
	assert.False(t, Duplicate("x").Changed())
	assert.False(t, Ignored("x").Changed())
	assert.False(t, Fatal("x", nil).Changed())
}

func TestString(t *testing.T) {
	assert.Equal(t, "duplicate: already sent", Duplicate("already sent").String())
	assert.Equal(t, "fatal: invoice: boom", Fatal("invoice", errors.New("boom")).String())
	assert.True(t, Fatal("x", nil).IsFatal())
}
