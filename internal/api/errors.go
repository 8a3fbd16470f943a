package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-service/internal/apperr"
	"storefront-service/internal/service"
)

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	SignIn    string `json:"sign_in,omitempty"`
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(err error) int {
	if errors.Is(err, service.ErrOrderNotFound) {
		return http.StatusNotFound
	}
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusUnprocessableEntity
	case apperr.BusinessRule:
		return http.StatusConflict
	case apperr.Remote:
		return http.StatusServiceUnavailable
	case apperr.Authorization:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, signInURL string, err error) error {
	body := errorBody{Error: "internal error"}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
		body.Kind = string(appErr.Kind)
		body.Retryable = appErr.Retryable()
		if appErr.Kind == apperr.Authorization {
			body.SignIn = signInURL
		}
	} else {
		logger.Error().Err(err).Msgf("Unhandled error on %s %s", c.Request().Method, c.Path())
	}
	return c.JSON(statusOf(err), body)
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request payload"})
}
