package models

// Identifier is one row of the tracked universe. The engine never writes it.
type Identifier struct {
	Symbol string `json:"symbol"`
	Group  string `json:"group"`
	Active bool   `json:"active"`
}

// Series is a (symbol, group) pair that has rows in the bar store.
type Series struct {
	Symbol string `json:"symbol"`
	Group  string `json:"group"`
}
