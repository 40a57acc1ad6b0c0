package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case apierr.KindNotFound:
		RespondError(c, http.StatusNotFound, "not_found", err)
	case apierr.KindConflict:
		RespondError(c, http.StatusConflict, "conflict", err)
	case apierr.KindState:
		RespondError(c, http.StatusUnprocessableEntity, "invalid_state", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
