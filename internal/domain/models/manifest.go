package models

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	ReasonDownloadFailed = "download failed"
	ReasonPersistFailed  = "persist failed"
)

type ManifestEntry struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Manifest lists failed symbols per group, in the order they were reported.
// It is not safe for concurrent use; one aggregator owns it during a run.
type Manifest struct {
	entries map[string][]ManifestEntry
	seen    map[string]struct{}
}

func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string][]ManifestEntry),
		seen:    make(map[string]struct{}),
	}
}

// Add records symbol under group. A symbol already present in the group is ignored.
func (m *Manifest) Add(group, symbol, reason string) bool {
	key := group + "\x00" + symbol
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}
	m.entries[group] = append(m.entries[group], ManifestEntry{Symbol: symbol, Reason: reason})
	return true
}

// Groups returns the groups with at least one failure, sorted.
func (m *Manifest) Groups() []string {
	groups := make([]string, 0, len(m.entries))
	for g := range m.entries {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func (m *Manifest) Entries(group string) []ManifestEntry {
	return m.entries[group]
}

func (m *Manifest) Len() int {
	return len(m.seen)
}

func (m *Manifest) MarshalJSON() ([]byte, error) {
	if m == nil || m.entries == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.entries)
}

// RunReport summarises one sync pass.
type RunReport struct {
	RunID      string             `json:"run_id"`
	Manifest   *Manifest          `json:"manifest"`
	Counts     map[SyncStatus]int `json:"counts"`
	Selected   int                `json:"selected"`
	Target     time.Time          `json:"target_period_end"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Artifacts  []string           `json:"artifacts,omitempty"`
}
