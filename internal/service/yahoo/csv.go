package yahoo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"BarSync/internal/domain/models"
	"BarSync/pkg/util"
)

// ParseHistoryCSV decodes a Date,Open,High,Low,Close,Adj Close,Volume download.
// Header names are canonicalized, so column order and casing do not matter.
// Rows whose close is empty or "null" are skipped.
func ParseHistoryCSV(r io.Reader) ([]models.DailyBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[util.CanonicalName(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	adjIdx, hasAdj := col["adj_close"]
	volIdx, hasVol := col["volume"]

	field := func(rec []string, idx int) string {
		if idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	var rows []models.DailyBar
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		closeVal, ok, err := parseNullable(field(rec, col["close"]))
		if err != nil {
			return nil, fmt.Errorf("close: %w", err)
		}
		if !ok {
			continue
		}

		date, err := time.Parse(util.DateLayout, field(rec, col["date"]))
		if err != nil {
			return nil, fmt.Errorf("date: %w", err)
		}

		row := models.DailyBar{
			Date:  date,
			Close: decimal.NewNullDecimal(closeVal),
		}
		if row.Open, err = parseOrZero(field(rec, col["open"])); err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		if row.High, err = parseOrZero(field(rec, col["high"])); err != nil {
			return nil, fmt.Errorf("high: %w", err)
		}
		if row.Low, err = parseOrZero(field(rec, col["low"])); err != nil {
			return nil, fmt.Errorf("low: %w", err)
		}
		if hasAdj {
			adj, ok, err := parseNullable(field(rec, adjIdx))
			if err != nil {
				return nil, fmt.Errorf("adj close: %w", err)
			}
			row.AdjClose = decimal.NullDecimal{Decimal: adj, Valid: ok}
		}
		if hasVol {
			if row.Volume, err = parseVolume(field(rec, volIdx)); err != nil {
				return nil, fmt.Errorf("volume: %w", err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isNull(s string) bool {
	return s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan")
}

func parseNullable(s string) (decimal.Decimal, bool, error) {
	if isNull(s) {
		return decimal.Decimal{}, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return d, true, nil
}

func parseOrZero(s string) (decimal.Decimal, error) {
	d, _, err := parseNullable(s)
	return d, err
}

func parseVolume(s string) (*int64, error) {
	if isNull(s) {
		return nil, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	v := int64(f)
	return &v, nil
}
