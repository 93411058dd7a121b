package models

import (
	"encoding/json"
	"sort"
	"time"
)

type AuditStatus string

const (
	AuditOK    AuditStatus = "OK"
	AuditStale AuditStatus = "Stale"
	AuditEmpty AuditStatus = "Empty"
	AuditError AuditStatus = "Error"
)

// Classification is the audit verdict for one stored series.
type Classification struct {
	Symbol   string      `json:"symbol"`
	Group    string      `json:"group"`
	LastDate *time.Time  `json:"last_date"`
	Status   AuditStatus `json:"status"`
	Detail   string      `json:"detail,omitempty"`
}

// GroupSummary is the per-group QC line.
type GroupSummary struct {
	Group     string `json:"group"`
	Expected  int    `json:"expected"`
	Threshold int    `json:"threshold"`
	Stored    int    `json:"stored"`
	UpToDate  int    `json:"up_to_date"`
}

// SeriesDetail holds the most recent bars of a series that needs attention.
type SeriesDetail struct {
	Bars      []Bar `json:"bars"`
	Truncated bool  `json:"truncated"`
}

type AuditReport struct {
	Today          time.Time               `json:"today"`
	Threshold      time.Duration           `json:"threshold"`
	All            []Classification        `json:"all"`
	NeedsAttention []Classification        `json:"needs_attention"`
	Summary        []GroupSummary          `json:"summary"`
	Details        map[Series]SeriesDetail `json:"-"`
	Artifacts      []string                `json:"artifacts,omitempty"`
}

// Count returns how many series got status s.
func (r *AuditReport) Count(s AuditStatus) int {
	n := 0
	for _, c := range r.All {
		if c.Status == s {
			n++
		}
	}
	return n
}

// MarshalJSON renders Details as a list ordered by group, then symbol.
func (r AuditReport) MarshalJSON() ([]byte, error) {
	type seriesDetail struct {
		Series
		SeriesDetail
	}
	type plain AuditReport
	out := struct {
		plain
		Details []seriesDetail `json:"details,omitempty"`
	}{plain: plain(r)}

	for s, d := range r.Details {
		out.Details = append(out.Details, seriesDetail{Series: s, SeriesDetail: d})
	}
	sort.Slice(out.Details, func(i, j int) bool {
		a, b := out.Details[i].Series, out.Details[j].Series
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Symbol < b.Symbol
	})
	return json.Marshal(out)
}
