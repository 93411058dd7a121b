package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?"
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3", DialectPostgres.rebind(q))
	assert.Equal(t, q, DialectSQLite.rebind(q))
}

func TestDialect_DateArg(t *testing.T) {
	ts := time.Date(2024, 2, 29, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "2024-02-29", DialectSQLite.dateArg(ts))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), DialectPostgres.dateArg(ts))
}

func TestDateValue_Scan(t *testing.T) {
	want := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	for _, src := range []interface{}{"2024-01-31", []byte("2024-01-31"), "2024-01-31 00:00:00 +0000 UTC", want} {
		var v dateValue
		require.NoError(t, v.Scan(src))
		assert.True(t, v.valid)
		assert.Equal(t, want, v.t)
	}

	var v dateValue
	require.NoError(t, v.Scan(nil))
	assert.False(t, v.valid)
	assert.Error(t, v.Scan(42))
}
