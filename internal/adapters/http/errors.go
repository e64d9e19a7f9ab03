package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/planty/core/internal/application/services"
	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
)

// StatusFor maps service and domain errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrTaskNotFound),
		errors.Is(err, entities.ErrSectionNotFound),
		errors.Is(err, entities.ErrAttachmentNotFound),
		errors.Is(err, entities.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrWrongOwner),
		errors.Is(err, entities.ErrRootProtected),
		errors.Is(err, entities.ErrSectionNotEmpty),
		errors.Is(err, entities.ErrDuplicateChild),
		errors.Is(err, entities.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, entities.ErrIndexOutOfRange),
		errors.Is(err, entities.ErrMutualExclusion),
		errors.Is(err, entities.ErrHierarchyCycle),
		errors.Is(err, entities.ErrRecurrenceRequiresDueDate),
		errors.Is(err, entities.ErrInvalidRecurrence),
		errors.Is(err, entities.ErrIncorrectDateInterval),
		errors.Is(err, entities.ErrEmptyTitle),
		errors.Is(err, dates.ErrInvalidDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrRefreshTokenExpired),
		errors.Is(err, services.ErrRefreshTokenRevoked):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// apiError converts a service error into an echo error. Internal failures
// keep their cause out of the response body.
func apiError(err error) error {
	code := StatusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}
