package models

import "fmt"

// BackendName identifies a source adapter.
type BackendName string

const (
	// BackendHistory is the structured client (session + CSV download).
	BackendHistory BackendName = "history"
	// BackendChart is the raw HTTP/JSON chart endpoint.
	BackendChart BackendName = "chart"
)

type FetchKind int

const (
	FetchSuccess FetchKind = iota
	FetchEmpty
	FetchSourceError
)

func (k FetchKind) String() string {
	switch k {
	case FetchSuccess:
		return "success"
	case FetchEmpty:
		return "empty"
	case FetchSourceError:
		return "source_error"
	default:
		return fmt.Sprintf("FetchKind(%d)", int(k))
	}
}

// FetchOutcome is the transient result of one fetch attempt against one backend.
type FetchOutcome struct {
	Kind    FetchKind
	Backend BackendName
	Rows    []DailyBar
	Err     error
}

func Success(backend BackendName, rows []DailyBar) FetchOutcome {
	return FetchOutcome{Kind: FetchSuccess, Backend: backend, Rows: rows}
}

func Empty(backend BackendName, detail string) FetchOutcome {
	return FetchOutcome{
		Kind:    FetchEmpty,
		Backend: backend,
		Err:     NewSourceError(backend, ErrSourceUnavailable, "%s", detail),
	}
}

func Failure(backend BackendName, err error) FetchOutcome {
	return FetchOutcome{Kind: FetchSourceError, Backend: backend, Err: err}
}

// SyncStatus is the per-symbol result of one sync pass.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusSkipped SyncStatus = "skipped"
	StatusFailed  SyncStatus = "failed"
)

// Outcome is what a sync worker reports for one identifier.
type Outcome struct {
	Identifier Identifier  `json:"identifier"`
	Status     SyncStatus  `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	Backend    BackendName `json:"backend,omitempty"`
	Bars       int         `json:"bars"`
	Err        error       `json:"-"`
}
