package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classcount/classcount-go/internal/errors"
)

// envelope is the uniform response body for all API endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: status < 400, Message: message, Data: data})
}

// respondError maps an error category to an HTTP status.
func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsConflict(err):
		status = http.StatusConflict
	}
	return c.JSON(status, envelope{Success: false, Message: err.Error()})
}
