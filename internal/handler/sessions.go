package handler

import (
	"net/http"
	"strconv"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct{ svc service.SessionService }

func NewSessionHandler(svc service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Open godoc
// @Summary Abre una sesion de caja
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Datos de apertura"
// @Success 201 {object} dto.SessionResponse
// @Failure 403 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-registers/sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Open(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary Cierra la sesion con el arqueo declarado
// @Description Devuelve el resumen de conciliacion. Una diferencia distinta de cero no es un error.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Param body body dto.CloseSessionRequest true "Declaracion"
// @Success 200 {object} model.ClosureSummary
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-registers/sessions/{id}/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	summary, err := h.svc.Close(c.Request.Context(), id, actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Cancel godoc
// @Summary Anula una sesion abierta sin conciliar
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Param body body dto.CancelSessionRequest false "Motivo"
// @Success 200 {object} dto.SessionResponse
// @Router /v1/cash-registers/sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.CancelSessionRequest
	if c.Request.ContentLength != 0 && !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Cancel(c.Request.Context(), id, actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Active godoc
// @Summary Estado de caja del operador autenticado
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.ActiveSessionResponse
// @Router /v1/cash-registers/sessions/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	resp, err := h.svc.ActiveOverview(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Recent godoc
// @Summary Ultimas sesiones del operador autenticado
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Cantidad (por defecto 10, maximo 100)"
// @Success 200 {array} dto.SessionResponse
// @Router /v1/cash-registers/sessions/recent [get]
func (h *SessionHandler) Recent(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, apperr.Validation("limit invalido"))
			return
		}
		limit = n
	}
	resp, err := h.svc.ListRecentSessions(c.Request.Context(), actor.AdminUserID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// NextInvoiceNumber godoc
// @Summary Reserva el siguiente numero de factura de la sesion
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Success 200 {object} dto.SequenceNumberResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-registers/sessions/{id}/invoice-numbers [post]
func (h *SessionHandler) NextInvoiceNumber(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.NextInvoiceNumber(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PreviewInvoiceNumber godoc
// @Summary Muestra el proximo numero de factura sin consumirlo
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Success 200 {object} dto.SequenceNumberResponse
// @Router /v1/cash-registers/sessions/{id}/invoice-numbers/next [get]
func (h *SessionHandler) PreviewInvoiceNumber(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.PreviewInvoiceNumber(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
