package handler

import (
	"net/http"
	"strings"

	"systeminvoice/internal/dto"
	"systeminvoice/internal/model"
	"systeminvoice/internal/service"

	"github.com/gin-gonic/gin"
)

type SequenceHandler struct{ svc service.SequenceService }

func NewSequenceHandler(svc service.SequenceService) *SequenceHandler {
	return &SequenceHandler{svc: svc}
}

// Create godoc
// @Summary Crea una definicion de secuencia
// @Tags sequences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateSequenceRequest true "Definicion"
// @Success 201 {object} dto.SequenceResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/sequences [post]
func (h *SequenceHandler) Create(c *gin.Context) {
	var req dto.CreateSequenceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	def, err := h.svc.CreateDefinition(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSequenceResponse(def))
}

// List godoc
// @Summary Lista definiciones de secuencia
// @Tags sequences
// @Produce json
// @Security BearerAuth
// @Param scope query string false "INVOICE | INVENTORY"
// @Success 200 {array} dto.SequenceResponse
// @Router /v1/sequences [get]
func (h *SequenceHandler) List(c *gin.Context) {
	scope := model.SequenceScope(strings.ToUpper(strings.TrimSpace(c.Query("scope"))))
	defs, err := h.svc.ListDefinitions(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]dto.SequenceResponse, 0, len(defs))
	for i := range defs {
		out = append(out, toSequenceResponse(&defs[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Get godoc
// @Summary Obtiene una definicion de secuencia
// @Tags sequences
// @Produce json
// @Security BearerAuth
// @Param code path string true "Codigo"
// @Success 200 {object} dto.SequenceResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/sequences/{code} [get]
func (h *SequenceHandler) Get(c *gin.Context) {
	def, err := h.svc.GetDefinition(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSequenceResponse(def))
}

// Update godoc
// @Summary Modifica una definicion de secuencia
// @Description start_value y step quedan fijos una vez que existe algun contador.
// @Tags sequences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Codigo"
// @Param body body dto.UpdateSequenceRequest true "Cambios"
// @Success 200 {object} dto.SequenceResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/sequences/{code} [patch]
func (h *SequenceHandler) Update(c *gin.Context) {
	var req dto.UpdateSequenceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	def, err := h.svc.UpdateDefinition(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSequenceResponse(def))
}

// Preview godoc
// @Summary Muestra el proximo numero sin consumirlo
// @Tags sequences
// @Produce json
// @Security BearerAuth
// @Param code path string true "Codigo"
// @Param scope_type query string true "GLOBAL | CASH_REGISTER | INVENTORY_TYPE"
// @Param scope_key query string false "Clave del ambito"
// @Success 200 {object} dto.SequenceNumberResponse
// @Router /v1/sequences/{code}/preview [get]
func (h *SequenceHandler) Preview(c *gin.Context) {
	ctx := c.Request.Context()
	def, err := h.svc.GetDefinition(ctx, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	scopeType := model.CounterScopeType(c.DefaultQuery("scope_type", string(model.CounterScopeGlobal)))
	resp, err := h.svc.NextPreview(ctx, def.ID, scopeType, c.Query("scope_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Allocate godoc
// @Summary Reserva el siguiente numero de la secuencia
// @Tags sequences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Codigo"
// @Param body body dto.AllocateRequest true "Ambito"
// @Success 200 {object} dto.SequenceNumberResponse
// @Router /v1/sequences/{code}/allocate [post]
func (h *SequenceHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()
	def, err := h.svc.GetDefinition(ctx, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.svc.AllocateFormatted(ctx, def.ID, model.CounterScopeType(req.ScopeType), req.ScopeKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func toSequenceResponse(def *model.SequenceDefinition) dto.SequenceResponse {
	return dto.SequenceResponse{
		ID:         def.ID.String(),
		Code:       def.Code,
		Scope:      string(def.Scope),
		Prefix:     def.Prefix,
		Suffix:     def.Suffix,
		Padding:    def.Padding,
		StartValue: def.StartValue,
		Step:       def.Step,
	}
}
