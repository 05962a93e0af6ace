package handler

import (
	"fmt"
	"net/http"
	"strings"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/middleware"
	"systeminvoice/internal/report"
	"systeminvoice/internal/service"

	"github.com/gin-gonic/gin"
)

type ClosureHandler struct{ svc service.ClosureService }

func NewClosureHandler(svc service.ClosureService) *ClosureHandler {
	return &ClosureHandler{svc: svc}
}

// Preview godoc
// @Summary Previsualiza la conciliacion sin cerrar la sesion
// @Tags closures
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "ID de sesion"
// @Success 200 {object} model.ClosureSummary
// @Router /v1/cash-registers/closures/{sessionId}/preview [get]
func (h *ClosureHandler) Preview(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "sessionId")
	if !ok {
		return
	}
	summary, err := h.svc.Preview(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Report godoc
// @Summary Reporte de cierre persistido
// @Tags closures
// @Produce json
// @Produce text/csv
// @Security BearerAuth
// @Param sessionId path string true "ID de sesion"
// @Param format query string false "json | csv | xlsx | pdf"
// @Success 200 {object} model.ClosureSummary
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-registers/closures/{sessionId}/report [get]
func (h *ClosureHandler) Report(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	h.serve(c, c.DefaultQuery("format", report.FormatJSON), service.ReportAccess{Actor: &actor}, true)
}

// Reporte godoc
// @Summary Reporte de cierre legible (HTML)
// @Description Acepta un Bearer token o un token de reporte en ?token=.
// @Tags closures
// @Produce html
// @Param sessionId path string true "ID de sesion"
// @Param format query string false "html (por defecto)"
// @Param token query string false "Token de reporte"
// @Success 200 {string} string "HTML"
// @Failure 401 {object} apierror.APIError
// @Router /v1/cash-registers/closures/{sessionId}/reporte [get]
func (h *ClosureHandler) Reporte(c *gin.Context) {
	var access service.ReportAccess
	if raw := c.Query("token"); raw != "" {
		claims, err := h.svc.VerifyReportToken(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		access.Token = claims
	} else if claims := middleware.GetClaims(c); claims != nil {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		access.Actor = &actor
	} else {
		respondError(c, apperr.Unauthenticated("Autenticacion requerida"))
		return
	}
	h.serve(c, c.DefaultQuery("format", report.FormatHTML), access, false)
}

// ReportToken godoc
// @Summary Emite un token temporal para ver el reporte
// @Tags closures
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "ID de sesion"
// @Success 201 {object} dto.ReportTokenResponse
// @Router /v1/cash-registers/closures/{sessionId}/report-token [post]
func (h *ClosureHandler) ReportToken(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "sessionId")
	if !ok {
		return
	}
	resp, err := h.svc.IssueReportToken(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ClosureHandler) serve(c *gin.Context, format string, access service.ReportAccess, attachment bool) {
	id, ok := uuidParam(c, "sessionId")
	if !ok {
		return
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == report.FormatJSON {
		summary, err := h.svc.Report(c.Request.Context(), id, access)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
		return
	}
	doc, err := h.svc.Export(c.Request.Context(), id, format, access)
	if err != nil {
		respondError(c, err)
		return
	}
	if attachment {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}
