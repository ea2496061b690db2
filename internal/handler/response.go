package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kyde/internal/core"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps domain errors onto HTTP statuses.
func Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrState):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, core.ErrImbalance):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
