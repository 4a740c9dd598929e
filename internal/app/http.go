package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/authpw"
	"screenplay/api/internal/export"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/scripts"
)

const viewerSessionHeader = "X-Viewer-Session"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, log *zap.Logger) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     logger.OrNop(log).Named("http"),
		metrics:    promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/password" {
		var body struct {
			Current string `json:"currentPassword"`
			Next    string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if err := s.service.ChangePassword(r.Context(), body.Current, body.Next); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout" {
		if err := s.service.SignOut(r.Context()); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		identity, ok := auth.FromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        identity.UID,
			"email":         identity.Email,
			"userName":      identity.DisplayName,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		offset, _ := strconv.Atoi(query.Get("offset"))
		resp, err := s.service.Search(r.Context(), strings.TrimSpace(query.Get("q")), limit, offset)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/scripts" {
		list, err := s.service.AllScripts(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scripts": list})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/reindex" {
		if err := s.service.Reindex(r.Context()); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "backend": s.service.SearchBackend()})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "editor":
			s.handleEditor(w, r, parts)
			return
		case "scripts":
			s.handleScripts(w, r, parts)
			return
		case "versions":
			s.handleVersions(w, r, parts)
			return
		}
	}

	s.writeServiceError(w, r, errRouteNotFound)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	checks["search"] = map[string]any{"status": "ok", "backend": s.service.SearchBackend()}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// /api/editor/...
func (s *HTTPServer) handleEditor(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()
	ed, err := s.service.Editor(ctx)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "reset" {
		ed.Reset()
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "load" {
		var body struct {
			ScriptID string `json:"scriptId"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if strings.TrimSpace(body.ScriptID) == "" {
			s.writeServiceError(w, r, validationError("scriptId is required"))
			return
		}
		if err := ed.Load(ctx, body.ScriptID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "save" {
		var body struct {
			Visibility *screenplay.Visibility `json:"visibility"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		scriptID, err := s.service.SaveEditor(ctx, body.Visibility)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scriptId": scriptID, "state": ed.State()})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "reorder" {
		var body struct {
			From int `json:"from"`
			To   int `json:"to"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if err := ed.ReorderScenes(body.From, body.To); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPut && (parts[2] == "title" || parts[2] == "author") {
		var body struct {
			Value string `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if parts[2] == "title" {
			err = ed.SetTitle(body.Value)
		} else {
			err = ed.SetAuthor(body.Value)
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "scenes" {
		sceneID, err := ed.AddScene()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sceneId": sceneID, "state": ed.State()})
		return
	}

	if len(parts) == 4 && parts[2] == "scenes" && r.Method == http.MethodPut {
		var body struct {
			Elements []screenplay.Element `json:"elements"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if err := ed.UpdateScene(parts[3], body.Elements); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 4 && parts[2] == "scenes" && r.Method == http.MethodDelete {
		if err := ed.DeleteScene(parts[3]); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ed.State())
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet && parts[2] == "export" {
		s.handleExport(w, r)
		return
	}

	s.writeServiceError(w, r, errRouteNotFound)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format, err := export.ParseFormat(query.Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	publish := query.Get("store") == "1" || query.Get("store") == "true"

	result, link, err := s.service.Export(r.Context(), format, publish)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if publish {
		writeJSON(w, http.StatusOK, map[string]any{"url": link, "filename": result.Filename})
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// /api/scripts/...
func (s *HTTPServer) handleScripts(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	if len(parts) == 2 && r.Method == http.MethodGet {
		shared := r.URL.Query().Get("shared")
		list, err := s.service.ListScripts(ctx, shared == "1" || shared == "true")
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scripts": list})
		return
	}
	if len(parts) < 3 {
		s.writeServiceError(w, r, errRouteNotFound)
		return
	}
	scriptID := parts[2]

	if len(parts) == 3 && r.Method == http.MethodGet {
		script, err := s.service.GetScript(ctx, scriptID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"script": script})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.DeleteScript(ctx, scriptID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[3] == "visibility" && r.Method == http.MethodPut {
		var body struct {
			Visibility screenplay.Visibility `json:"visibility"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if err := s.service.SetVisibility(ctx, scriptID, body.Visibility); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "visibility": body.Visibility})
		return
	}

	if len(parts) == 4 && parts[3] == "sharing" && r.Method == http.MethodGet {
		shares, err := s.service.Sharing(ctx, scriptID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sharing": shares})
		return
	}

	if len(parts) == 4 && parts[3] == "sharing" && r.Method == http.MethodPost {
		var body ShareInput
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		if err := s.service.Share(ctx, scriptID, body); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 5 && parts[3] == "sharing" && r.Method == http.MethodDelete {
		if err := s.service.Unshare(ctx, scriptID, parts[4]); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[3] == "versions" && r.Method == http.MethodGet {
		order := scripts.ParseSortOrder(r.URL.Query().Get("order"))
		versions, err := s.service.Versions(ctx, scriptID, order)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
		return
	}

	if len(parts) == 4 && parts[3] == "archive" && r.Method == http.MethodGet {
		limit := 50
		if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
			if parsedLimit, err := strconv.Atoi(rawLimit); err == nil && parsedLimit > 0 {
				limit = parsedLimit
			}
		}
		commits, err := s.service.Archive(ctx, scriptID, limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
		return
	}

	if len(parts) == 4 && parts[3] == "view" && r.Method == http.MethodPost {
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeServiceError(w, r, invalidBody(err))
			return
		}
		result, err := s.service.ViewScript(ctx, ViewRequest{
			ScriptID:      scriptID,
			ViewerSession: r.Header.Get(viewerSessionHeader),
			Password:      body.Password,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 4 && parts[3] == "view" && r.Method == http.MethodDelete {
		err := s.service.CloseView(ctx, ViewRequest{
			ScriptID:      scriptID,
			ViewerSession: r.Header.Get(viewerSessionHeader),
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	s.writeServiceError(w, r, errRouteNotFound)
}

// /api/versions/...
func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	if len(parts) == 3 && parts[2] == "compare" && r.Method == http.MethodGet {
		from := strings.TrimSpace(r.URL.Query().Get("from"))
		to := strings.TrimSpace(r.URL.Query().Get("to"))
		if from == "" {
			s.writeServiceError(w, r, validationError("from version id is required"))
			return
		}
		diff, err := s.service.Compare(ctx, from, to)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"diff": diff})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet {
		version, err := s.service.Version(ctx, parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": version})
		return
	}

	if len(parts) == 4 && parts[3] == "restore" && r.Method == http.MethodPost {
		state, err := s.service.Restore(ctx, parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	s.writeServiceError(w, r, errRouteNotFound)
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignUpRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeServiceError(w, r, invalidBody(err))
		return
	}
	result, err := s.service.SignUp(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignInRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeServiceError(w, r, invalidBody(err))
		return
	}
	result, err := s.service.SignIn(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

// withMiddleware tags the request, resolves the bearer token to an identity
// and logs one line per request. An invalid token leaves the request
// anonymous; routes that need an identity reject it themselves.
func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		if token := bearerToken(r); token != "" {
			identity, err := s.service.Authenticate(ctx, token)
			if err == nil {
				ctx = auth.WithIdentity(ctx, identity)
			} else {
				s.logger.Debug("bearer token rejected", zap.String("request_id", id), zap.Error(err))
			}
		}
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		route := routeLabel(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(writer.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+viewerSessionHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
