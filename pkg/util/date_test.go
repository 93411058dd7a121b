package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-02-29")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Day() != 29 || got.Month() != time.February {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestMonthEnd(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 1, 30, 15, 0, 0, 0, time.UTC), "2024-01-31"},
		{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "2024-02-29"},
		{time.Date(2023, 2, 14, 0, 0, 0, 0, time.UTC), "2023-02-28"},
		{time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), "2024-12-31"},
	}
	for _, c := range cases {
		if got := MonthEnd(c.in).Format(DateLayout); got != c.want {
			t.Fatalf("MonthEnd(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestPreviousMonthEnd(t *testing.T) {
	got := PreviousMonthEnd(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	if got.Format(DateLayout) != "2024-12-31" {
		t.Fatalf("unexpected %v", got)
	}
	if PeriodLabel(got) != "2024.12" {
		t.Fatalf("unexpected label %s", PeriodLabel(got))
	}
}

func TestSameMonth(t *testing.T) {
	cases := []struct {
		a, b time.Time
		want bool
	}{
		{time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		if got := SameMonth(c.a, c.b); got != c.want {
			t.Fatalf("SameMonth(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
