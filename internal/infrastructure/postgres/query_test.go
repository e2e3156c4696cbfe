package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWhere(t *testing.T) {
	var empty where
	assert.Equal(t, "", empty.String())
	assert.Equal(t, "$1", empty.param(10))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var w where
	w.add("stage = ?", "COMPLETED")
	w.add("(created_at, id) < (?, ?)", at, int64(7))
	limit := w.param(50)

	assert.Equal(t, " WHERE stage = $1 AND (created_at, id) < ($2, $3)", w.String())
	assert.Equal(t, "$4", limit)
	assert.Equal(t, []interface{}{"COMPLETED", at, int64(7), 50}, w.args)
}
