package handler

import (
	"net/http"
	"strings"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CashRegisterHandler struct{ svc service.CashRegisterService }

func NewCashRegisterHandler(svc service.CashRegisterService) *CashRegisterHandler {
	return &CashRegisterHandler{svc: svc}
}

// Create godoc
// @Summary Da de alta una caja
// @Tags cash-registers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateCashRegisterRequest true "Caja"
// @Success 201 {object} dto.CashRegisterResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-registers [post]
func (h *CashRegisterHandler) Create(c *gin.Context) {
	var req dto.CreateCashRegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary Lista cajas
// @Tags cash-registers
// @Produce json
// @Security BearerAuth
// @Param include_inactive query bool false "Incluir inactivas"
// @Success 200 {array} dto.CashRegisterResponse
// @Router /v1/cash-registers [get]
func (h *CashRegisterHandler) List(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"
	resp, err := h.svc.List(c.Request.Context(), includeInactive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Obtiene una caja por codigo
// @Tags cash-registers
// @Produce json
// @Security BearerAuth
// @Param code path string true "Codigo de caja"
// @Success 200 {object} dto.CashRegisterResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash-registers/{code} [get]
func (h *CashRegisterHandler) Get(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update godoc
// @Summary Modifica una caja
// @Description Campo ausente = sin cambios; null = limpiar (solo campos opcionales).
// @Tags cash-registers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Codigo de caja"
// @Param body body dto.UpdateCashRegisterRequest true "Cambios"
// @Success 200 {object} dto.CashRegisterResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash-registers/{code} [patch]
func (h *CashRegisterHandler) Update(c *gin.Context) {
	var req dto.UpdateCashRegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListAssignments godoc
// @Summary Lista las cajas asignadas a administradores
// @Description Sin admin_user_id devuelve las del usuario autenticado. Solo un administrador puede consultar a otros.
// @Tags cash-registers
// @Produce json
// @Security BearerAuth
// @Param admin_user_id query []string false "IDs de administrador"
// @Success 200 {array} dto.AdminAssignments
// @Router /v1/cash-registers/assignments [get]
func (h *CashRegisterHandler) ListAssignments(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var ids []uuid.UUID
	for _, raw := range c.QueryArray("admin_user_id") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				respondError(c, apperr.Validation("admin_user_id invalido: %q", part))
				return
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = []uuid.UUID{actor.AdminUserID}
	}
	if !actor.IsAdministrator() {
		for _, id := range ids {
			if id != actor.AdminUserID {
				respondError(c, apperr.Forbidden("Solo un administrador puede consultar asignaciones ajenas"))
				return
			}
		}
	}
	resp, err := h.svc.ListAssignments(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ApplyAssignment godoc
// @Summary Asigna, desasigna o marca por defecto una caja
// @Tags cash-registers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.AssignmentActionRequest true "Accion"
// @Success 200 {object} dto.SuccessResponse
// @Router /v1/cash-registers/assignments [post]
func (h *CashRegisterHandler) ApplyAssignment(c *gin.Context) {
	var req dto.AssignmentActionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.ApplyAssignmentAction(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}
