package models

// Requests for the ops HTTP endpoints.

type ChangesRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" json:"limit" default:"24" validate:"gte=1,lte=600"`
}

type AuditRequest struct {
	Status string `query:"status" json:"status" validate:"omitempty,oneof=OK Stale Empty Error"`
}
