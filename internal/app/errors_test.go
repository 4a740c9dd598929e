package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/authpw"
	"screenplay/api/internal/editor"
	"screenplay/api/internal/export"
	"screenplay/api/internal/screenplay"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"auth required", screenplay.ErrAuthRequired, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad credentials", authpw.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"permission", fmt.Errorf("delete script s1: %w", screenplay.ErrPermission), http.StatusForbidden, "FORBIDDEN"},
		{"not found", fmt.Errorf("get script: %w", screenplay.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"load in progress", editor.ErrLoadInProgress, http.StatusConflict, "LOAD_IN_PROGRESS"},
		{"email taken", authpw.ErrEmailTaken, http.StatusConflict, "EMAIL_EXISTS"},
		{"invalid input", fmt.Errorf("reorder: %w", screenplay.ErrInvalidInput), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unsupported format", export.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"pdf missing", export.ErrPDFDependencyMissing, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE"},
		{"store", fmt.Errorf("%w: %w", screenplay.ErrSave, fmt.Errorf("update: %w", screenplay.ErrStore)), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"invalid body", invalidBody(errors.New("unexpected EOF")), http.StatusBadRequest, "INVALID_BODY"},
		{"missing field", validationError("scriptId is required"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown route", errRouteNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"wrapped domain", fmt.Errorf("decode: %w", invalidBody(errors.New("bad json"))), http.StatusBadRequest, "INVALID_BODY"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("mapError() = %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/health":                      "/api/health",
		"/api/scripts/abc":                 "/api/scripts/:id",
		"/api/scripts/abc/sharing/a@b.com": "/api/scripts/:id/sharing/:id",
		"/api/scripts/abc/versions":        "/api/scripts/:id/versions",
		"/api/versions/compare":            "/api/versions/compare",
		"/api/versions/v1/restore":         "/api/versions/:id/restore",
		"/api/editor/scenes/scene_1":       "/api/editor/scenes/:id",
		"/api/admin/scripts":               "/api/admin/scripts",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
