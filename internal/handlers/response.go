package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the wire shape for every response: success with data, or
// failure with a coded error.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: payload})
}

// RespondError maps the error's taxonomy code onto an HTTP status.
// Internal errors get a generic message so server detail stays out of
// the response body.
func RespondError(c *gin.Context, err error) {
	code := apierr.CodeOf(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if code == apierr.CodeInternal {
		msg = "internal error"
	}
	c.JSON(apierr.HTTPStatus(code), Envelope{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}
