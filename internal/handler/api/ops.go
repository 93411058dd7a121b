package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"BarSync/internal/domain/models"
	drepo "BarSync/internal/domain/repository"
	xhttp "BarSync/pkg/http"
	xlogger "BarSync/pkg/logger"
)

// RunSource exposes the last completed sync pass.
type RunSource interface {
	LastRun() *models.RunReport
}

// AuditSource exposes the last audit scan.
type AuditSource interface {
	LastAudit() *models.AuditReport
}

// OpsHandler serves health, the latest run and audit reports, and the
// month-over-month change read model.
type OpsHandler struct {
	logger *xlogger.Logger
	store  drepo.BarStore
	runs   RunSource
	audits AuditSource
}

func NewOpsHandler(logger *xlogger.Logger, store drepo.BarStore, runs RunSource, audits AuditSource) *OpsHandler {
	return &OpsHandler{logger: logger, store: store, runs: runs, audits: audits}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/v1")
	g.GET("/runs/last", h.LastRun)
	g.GET("/audit/last", h.LastAudit)
	g.GET("/series/:symbol/changes", h.Changes)
}

func (h *OpsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Health(ctx); err != nil {
		h.logger.Warn("store health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("store unreachable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *OpsHandler) LastRun(c echo.Context) error {
	if h.runs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no sync run recorded"))
	}
	r := h.runs.LastRun()
	if r == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no sync run recorded"))
	}
	return xhttp.SuccessResponse(c, r)
}

// LastAudit returns the latest audit; ?status= narrows the classification list.
func (h *OpsHandler) LastAudit(c echo.Context) error {
	req := &models.AuditRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.audits == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no audit recorded"))
	}
	r := h.audits.LastAudit()
	if r == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no audit recorded"))
	}
	if req.Status == "" {
		return xhttp.SuccessResponse(c, r)
	}

	rows := make([]models.Classification, 0)
	for _, cl := range r.All {
		if cl.Status == models.AuditStatus(req.Status) {
			rows = append(rows, cl)
		}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *OpsHandler) Changes(c echo.Context) error {
	req := &models.ChangesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.store.MonthlyChanges(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("monthly changes query failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
	if len(rows) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no bars stored for %s", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.DataResponse(c, http.StatusOK, &xhttp.ListDataResponse{Rows: rows, Total: int64(len(rows))})
}
