package util

import "testing"

func TestCanonicalName(t *testing.T) {
	cases := map[string]string{
		"Adj Close":      "adj_close",
		"adj_close":      "adj_close",
		"ADJ-CLOSE":      "adj_close",
		" Volume ":       "volume",
		"BRK-B":          "brk_b",
		"BRK.B":          "brk_b",
		"0700.HK":        "0700_hk",
		"Close*":         "close",
		"a  --  b":       "a_b",
		"__x__":          "x",
		"Period/End":     "period_end",
		"Ünïcode Tícker": "ncode_tcker",
		"":               "",
	}
	for in, want := range cases {
		if got := CanonicalName(in); got != want {
			t.Errorf("CanonicalName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	for _, s := range []string{"1", "yes", "YES", " true ", "y"} {
		if !ParseFlag(s) {
			t.Errorf("ParseFlag(%q) = false", s)
		}
	}
	for _, s := range []string{"0", "no", "", "inactive"} {
		if ParseFlag(s) {
			t.Errorf("ParseFlag(%q) = true", s)
		}
	}
}
