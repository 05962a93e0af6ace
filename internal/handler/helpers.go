package handler

import (
	"errors"
	"net/http"
	"reflect"

	"systeminvoice/internal/apierror"
	"systeminvoice/internal/apperr"
	"systeminvoice/internal/middleware"
	"systeminvoice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0 or required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// recordcode: identifiers that also end up in file names.
	_ = validate.RegisterValidation("recordcode", func(fl validator.FieldLevel) bool {
		return service.ValidRecordCode(fl.Field().String())
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewTagged(string(apperr.KindValidation), string(apperr.KindValidation), "JSON invalido: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondError(c, apperr.Validation("Solicitud invalida"))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// respondError writes the envelope for err. Server-side failures are logged with
// their cause; the client only sees the generic message.
func respondError(c *gin.Context, err error) {
	status, body := apierror.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

// actorFrom builds the service actor from the JWT claims.
func actorFrom(c *gin.Context) (service.Actor, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		respondError(c, apperr.Unauthenticated("Autenticacion requerida"))
		return service.Actor{}, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		respondError(c, apperr.Unauthenticated("Token sin usuario valido"))
		return service.Actor{}, false
	}
	return service.Actor{AdminUserID: id, Role: claims.Rol}, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("%s invalido", name))
		return uuid.Nil, false
	}
	return id, true
}
