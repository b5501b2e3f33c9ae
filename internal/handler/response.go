package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// envelope is the uniform response shape. Data is set on success,
// Errors on validation failure.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Success: true, Message: msg})
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: msg})
}

// internalError logs the cause and hides it behind a generic 500.
func (h *Handler) internalError(c *gin.Context, err error) {
	zctx.From(c.Request.Context()).Error("request failed", zap.Error(err))
	respondError(c, http.StatusInternalServerError, "internal error")
}

// respondBindError turns a gin binding failure into a 400 with
// per-field messages when the failure came from validation tags.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fieldError(fe)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
			Success: false,
			Message: "validation failed",
			Errors:  msgs,
		})
		return
	}
	respondError(c, http.StatusBadRequest, "invalid request body")
}

func fieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
