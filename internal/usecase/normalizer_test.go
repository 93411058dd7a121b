package usecase

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
)

func TestNormalizer_MonthlyAlignsToCalendarMonthEnd(t *testing.T) {
	n := NewNormalizer(fixedClock(day(2024, 6, 15)), false)

	bars, err := n.Monthly("AAA", []models.DailyBar{
		daily(day(2024, 1, 30), 10),
		daily(day(2024, 1, 31), 11),
		daily(day(2024, 2, 28), 12),
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, day(2024, 1, 31), bars[0].PeriodEnd)
	assert.True(t, decimal.NewFromInt(11).Equal(bars[0].Close))
	// 2024 is a leap year: the bar is dated to the 29th even though the last trading row is the 28th
	assert.Equal(t, day(2024, 2, 29), bars[1].PeriodEnd)
	assert.True(t, decimal.NewFromInt(12).Equal(bars[1].Close))
	assert.Equal(t, "AAA", bars[1].Symbol)
}

func TestNormalizer_DropsNullClosesAndDuplicates(t *testing.T) {
	n := NewNormalizer(fixedClock(day(2024, 6, 15)), false)

	noClose := daily(day(2024, 3, 29), 99)
	noClose.Close = decimal.NullDecimal{}

	bars, err := n.Monthly("AAA", []models.DailyBar{
		daily(day(2024, 2, 29), 5),
		daily(day(2024, 3, 28), 6),
		noClose,
		daily(day(2024, 3, 28), 7),
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, day(2024, 3, 31), bars[1].PeriodEnd)
	assert.True(t, decimal.NewFromInt(7).Equal(bars[1].Close), "later duplicate row wins")
}

func TestNormalizer_SkipOpenMonth(t *testing.T) {
	rows := []models.DailyBar{
		daily(day(2024, 4, 30), 1),
		daily(day(2024, 5, 31), 2),
		daily(day(2024, 6, 3), 3),
	}

	kept, err := NewNormalizer(fixedClock(day(2024, 6, 15)), false).Monthly("AAA", rows)
	require.NoError(t, err)
	assert.Len(t, kept, 3)
	assert.Equal(t, day(2024, 6, 30), kept[2].PeriodEnd)

	closed, err := NewNormalizer(fixedClock(day(2024, 6, 15)), true).Monthly("AAA", rows)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, day(2024, 5, 31), closed[1].PeriodEnd)
}

func TestNormalizer_TooFewPeriods(t *testing.T) {
	n := NewNormalizer(fixedClock(day(2024, 6, 15)), false)

	_, err := n.Monthly("AAA", []models.DailyBar{
		daily(day(2024, 5, 2), 1),
		daily(day(2024, 5, 3), 2),
	})
	assert.ErrorIs(t, err, models.ErrTooFewPeriods)

	_, err = n.Monthly("AAA", nil)
	assert.ErrorIs(t, err, models.ErrTooFewPeriods)
}

func TestNormalizer_DailyKeepsTradingDates(t *testing.T) {
	n := NewNormalizer(fixedClock(day(2024, 6, 15)), false)

	bars, err := n.Normalize(drepo.Daily, "AAA", []models.DailyBar{
		daily(time.Date(2024, 5, 3, 13, 30, 0, 0, time.UTC), 2),
		daily(day(2024, 5, 2), 1),
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, day(2024, 5, 2), bars[0].PeriodEnd)
	assert.Equal(t, day(2024, 5, 3), bars[1].PeriodEnd)
}
