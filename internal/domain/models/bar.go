package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is the canonical OHLCV record. (Symbol, PeriodEnd) is unique in the store.
type Bar struct {
	Symbol    string              `json:"symbol"`
	PeriodEnd time.Time           `json:"period_end"`
	Open      decimal.Decimal     `json:"open"`
	High      decimal.Decimal     `json:"high"`
	Low       decimal.Decimal     `json:"low"`
	Close     decimal.Decimal     `json:"close"`
	AdjClose  decimal.NullDecimal `json:"adjusted_close"`
	Volume    *int64              `json:"volume,omitempty"`
}

// DailyBar is a raw trading-day row as a backend returned it.
// Close is nullable: providers emit placeholder rows for halted days.
type DailyBar struct {
	Date     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.NullDecimal
	AdjClose decimal.NullDecimal
	Volume   *int64
}

// MonthlyChange is a row of the month-over-month change view.
type MonthlyChange struct {
	Symbol       string              `json:"symbol"`
	Group        string              `json:"group"`
	PeriodEnd    time.Time           `json:"period_end"`
	Close        decimal.Decimal     `json:"close"`
	PrevClose    decimal.NullDecimal `json:"prev_close"`
	ChangeAmount decimal.NullDecimal `json:"change_amount"`
	ChangePct    decimal.NullDecimal `json:"change_pct"`
}
