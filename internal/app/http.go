package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parchment/api/internal/apikey"
	"parchment/api/internal/content"
	"parchment/api/internal/render"
	"parchment/api/internal/search"
	"parchment/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	keys       *apikey.Service
	corsOrigin string
	requireKey bool
}

func NewHTTPServer(service *Service, keys *apikey.Service, corsOrigin string, requireKey bool) *HTTPServer {
	return &HTTPServer{service: service, keys: keys, corsOrigin: corsOrigin, requireKey: requireKey && keys != nil}
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
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"sessions": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		if err := s.service.PingRegistry(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if !s.authorize(w, r) {
		return
	}

	if r.URL.Path == "/api/templates" {
		if r.Method == http.MethodGet {
			workspaceID := strings.TrimSpace(r.URL.Query().Get("workspaceId"))
			items, err := s.service.ListTemplates(r.Context(), workspaceID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list templates", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"templates": items})
			return
		}
		if r.Method == http.MethodPost {
			var body struct {
				Name        string `json:"name"`
				WorkspaceID string `json:"workspaceId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			tpl, err := s.service.CreateTemplate(r.Context(), body.WorkspaceID, body.Name)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, tpl)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := search.Query{
			Text:           strings.TrimSpace(r.URL.Query().Get("q")),
			FilterType:     search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
			FilterTemplate: strings.TrimSpace(r.URL.Query().Get("templateId")),
			FilterStatus:   strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:          20,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			q.Limit = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			q.Offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.Search(q))
		return
	}

	if r.URL.Path == "/api/documents" && r.Method == http.MethodPost {
		var body struct {
			VersionID string            `json:"versionId"`
			Title     string            `json:"title"`
			Variables map[string]string `json:"variables"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.VersionID) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "versionId is required", nil)
			return
		}
		doc, err := s.service.CreateDocument(r.Context(), body.VersionID, body.Title, body.Variables)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
		return
	}

	if r.URL.Path == "/api/keys" && r.Method == http.MethodPost {
		s.handleIssueKey(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "keys" && r.Method == http.MethodDelete {
		s.handleRevokeKey(w, r, parts[2])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "templates" {
		s.handleTemplates(w, r, parts[2], parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "sessions" {
		s.handleSessions(w, r, parts[2], parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts[2], parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTemplates(w http.ResponseWriter, r *http.Request, templateID string, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodGet {
		tpl, err := s.service.GetTemplate(r.Context(), templateID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, tpl)
		return
	}

	if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				limit = parsed
			}
		}
		commits, err := s.service.TemplateHistory(r.Context(), templateID, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
		return
	}

	if len(parts) == 4 && parts[3] == "versions" && r.Method == http.MethodPost {
		var body struct {
			Name     string `json:"name"`
			Language string `json:"language"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		version, err := s.service.CreateVersion(r.Context(), templateID, body.Name, body.Language)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, versionPayload(version))
		return
	}

	if len(parts) >= 5 && parts[3] == "versions" {
		s.handleVersions(w, r, templateID, parts[4], parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, templateID, versionID string, parts []string) {
	if len(parts) == 5 && r.Method == http.MethodGet {
		detail, err := s.service.GetVersionDetail(r.Context(), templateID, versionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, versionDetailPayload(detail))
		return
	}

	if len(parts) == 6 && parts[5] == "content" && r.Method == http.MethodPut {
		var body struct {
			Content   json.RawMessage    `json:"content"`
			Variables []content.Variable `json:"variables"`
			Meta      VersionMeta        `json:"meta"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if len(body.Content) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
			return
		}
		result, err := s.service.SaveVersionContent(r.Context(), templateID, versionID, body.Content, body.Variables, body.Meta)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
		return
	}

	if len(parts) == 6 && parts[5] == "publish" && r.Method == http.MethodPost {
		version, err := s.service.PublishVersion(r.Context(), templateID, versionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, versionPayload(version))
		return
	}

	if len(parts) == 6 && parts[5] == "preview.pdf" && r.Method == http.MethodPost {
		var body struct {
			Variables map[string]string `json:"variables"`
		}
		if r.ContentLength > 0 {
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
		}
		result, err := s.service.PreviewPDF(r.Context(), templateID, versionID, body.Variables)
		if err != nil {
			if errors.Is(err, render.ErrPDFDependencyMissing) {
				writeError(w, http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is unavailable", nil)
				return
			}
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Write(result.Data)
		return
	}

	if len(parts) == 6 && parts[5] == "sessions" && r.Method == http.MethodPost {
		var body struct {
			Editor    string             `json:"editor"`
			Variables []content.Variable `json:"variables"`
		}
		if r.ContentLength > 0 {
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
		}
		state, err := s.service.OpenSession(r.Context(), templateID, versionID, body.Editor, body.Variables)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, state)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request, sessionID string, parts []string) {
	if len(parts) == 3 {
		if r.Method == http.MethodGet {
			state, err := s.service.GetSessionState(r.Context(), sessionID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, state)
			return
		}
		if r.Method == http.MethodDelete {
			if err := s.service.CloseSession(r.Context(), sessionID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "edits" && r.Method == http.MethodPost {
		var body struct {
			Content json.RawMessage `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if len(body.Content) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
			return
		}
		state, err := s.service.ApplyEdits(r.Context(), sessionID, EditPayload{Content: body.Content})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	if len(parts) == 4 && parts[3] == "save" && r.Method == http.MethodPost {
		state, err := s.service.SaveSession(r.Context(), sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	if len(parts) == 4 && parts[3] == "import-retry" && r.Method == http.MethodPost {
		state, err := s.service.RetryImport(r.Context(), sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, documentID string, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodGet {
		doc, err := s.service.GetDocument(r.Context(), documentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	if len(parts) == 4 && parts[3] == "pdf" && r.Method == http.MethodGet {
		url, err := s.service.DocumentPDFURL(r.Context(), documentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeError(w, http.StatusServiceUnavailable, "KEYS_UNAVAILABLE", "API key service not configured", nil)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
		return
	}
	key, record, err := s.keys.Issue(r.Context(), strings.TrimSpace(body.Name))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":   record.ID,
		"name": record.Name,
		// Shown once; only the hash is stored.
		"key": key,
	})
}

func (s *HTTPServer) handleRevokeKey(w http.ResponseWriter, r *http.Request, id string) {
	if s.keys == nil {
		writeError(w, http.StatusServiceUnavailable, "KEYS_UNAVAILABLE", "API key service not configured", nil)
		return
	}
	if err := s.keys.Revoke(r.Context(), id); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// authorize enforces API key auth when enabled. The key travels in
// X-API-Key or as a bearer token.
func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !s.requireKey {
		return true
	}
	presented := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if presented == "" {
		presented = bearerToken(r)
	}
	if presented == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required", nil)
		return false
	}
	if _, err := s.keys.Verify(r.Context(), presented); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key invalid", nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
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
		if errors.Is(err, http.ErrBodyReadAfterClose) {
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

// versionPayload shapes a version for the wire. Content is stored as raw
// JSON, so it is re-emitted as-is instead of base64.
func versionPayload(v store.TemplateVersion) map[string]any {
	payload := map[string]any{
		"id":            v.ID,
		"templateId":    v.TemplateID,
		"versionNumber": v.VersionNumber,
		"name":          v.Name,
		"language":      v.Language,
		"status":        v.Status,
		"createdAt":     v.CreatedAt,
		"updatedAt":     v.UpdatedAt,
	}
	if len(v.Content) > 0 {
		payload["content"] = json.RawMessage(v.Content)
	}
	if v.PublishedAt != nil {
		payload["publishedAt"] = v.PublishedAt
	}
	return payload
}

// versionDetailPayload extends the version payload with the signer roles
// and injectables extracted at publish time. Both are always arrays; drafts
// carry them empty.
func versionDetailPayload(d VersionDetail) map[string]any {
	payload := versionPayload(d.Version)
	roles := d.SignerRoles
	if roles == nil {
		roles = []store.VersionSignerRole{}
	}
	injectables := d.Injectables
	if injectables == nil {
		injectables = []store.VersionInjectable{}
	}
	payload["signerRoles"] = roles
	payload["injectables"] = injectables
	return payload
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, apikey.ErrInvalidKey) || errors.Is(err, apikey.ErrRevokedKey) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
