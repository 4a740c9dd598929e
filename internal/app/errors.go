package app

import (
	"errors"
	"fmt"
	"net/http"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/authpw"
	"screenplay/api/internal/editor"
	"screenplay/api/internal/export"
	"screenplay/api/internal/screenplay"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errRouteNotFound = domainError(http.StatusNotFound, "NOT_FOUND", "Route not found", nil)

func invalidBody(err error) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, screenplay.ErrAuthRequired),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, screenplay.ErrPermission):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, screenplay.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, editor.ErrLoadInProgress):
		return http.StatusConflict, "LOAD_IN_PROGRESS", "Another load is in progress", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, screenplay.ErrInvalidInput), errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing),
		errors.Is(err, export.ErrDOCXDependencyMissing),
		errors.Is(err, export.ErrArtifactsDisabled):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, screenplay.ErrStore):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Document store unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
