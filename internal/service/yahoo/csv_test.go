package yahoo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHistoryCSV(t *testing.T) {
	body := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2024-01-30,9.5,10.2,9.1,10,9.9,1200\n" +
		"2024-01-31,10,11.5,9.8,11,10.9,1500\n" +
		"2024-02-01,null,null,null,null,null,null\n" +
		"2024-02-28,11,12.5,10.5,12,11.9,\n"

	rows, err := ParseHistoryCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "2024-01-31", rows[1].Date.Format("2006-01-02"))
	assert.Equal(t, "11", rows[1].Close.Decimal.String())
	assert.True(t, rows[1].AdjClose.Valid)
	assert.Equal(t, "10.9", rows[1].AdjClose.Decimal.String())
	require.NotNil(t, rows[1].Volume)
	assert.Equal(t, int64(1500), *rows[1].Volume)
	assert.Nil(t, rows[2].Volume)
}

func TestParseHistoryCSV_CanonicalHeaders(t *testing.T) {
	body := "date,CLOSE,open,Low,HIGH\n2024-03-01,5,4,3,6\n"

	rows, err := ParseHistoryCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "5", rows[0].Close.Decimal.String())
	assert.Equal(t, "6", rows[0].High.String())
	assert.False(t, rows[0].AdjClose.Valid)
}

func TestParseHistoryCSV_Errors(t *testing.T) {
	_, err := ParseHistoryCSV(strings.NewReader("Date,Open,High,Low\n2024-01-01,1,1,1\n"))
	assert.Error(t, err, "close column is required")

	_, err = ParseHistoryCSV(strings.NewReader("Date,Open,High,Low,Close\n01/02/2024,1,1,1,1\n"))
	assert.Error(t, err, "bad date")

	_, err = ParseHistoryCSV(strings.NewReader("Date,Open,High,Low,Close\n2024-01-02,1,1,1,abc\n"))
	assert.Error(t, err, "bad close")

	rows, err := ParseHistoryCSV(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, rows)
}
