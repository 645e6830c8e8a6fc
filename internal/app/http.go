package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guardrail/api/internal/auth"
	"guardrail/api/internal/search"
)

// maxUploadBytes caps evidence upload size (32 MiB).
const maxUploadBytes = 32 << 20

// filterParams are the query parameters forwarded to the search core as
// structured filters; the core validates their values.
var filterParams = []string{
	"systemType", "lifecycleStatus", "riskTier",
	"status", "frameworkId",
	"category", "treatmentStatus", "minResidualScore",
	"reviewStatus", "mimeType",
}

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), s.corsOrigin)
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("http: %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":     false,
				"checks": map[string]any{"database": map[string]any{"status": "error", "error": err.Error()}},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"checks": map[string]any{"database": map[string]any{"status": "ok"}},
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/token" {
		var body struct {
			Organization string `json:"organization"`
			APIKey       string `json:"apiKey"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.IssueToken(r.Context(), body.Organization, body.APIKey)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search/recent" {
		queries, err := s.service.RecentSearches(r.Context(), session.OrganizationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load recent searches", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/summary" {
		payload, err := s.service.Summary(r.Context(), session.OrganizationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load summary", nil)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/systems
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "systems" {
		switch {
		case r.Method == http.MethodGet && len(parts) == 2:
			items, err := s.service.ListAISystems(r.Context(), session.OrganizationID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list AI systems", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"aiSystems": items})
			return
		case r.Method == http.MethodPost && len(parts) == 2:
			var body AISystemInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateAISystem(r.Context(), session.OrganizationID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, item)
			return
		case r.Method == http.MethodGet && len(parts) == 3:
			item, err := s.service.GetAISystem(r.Context(), session.OrganizationID, parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
	}

	// /api/assessments
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "assessments" {
		switch {
		case r.Method == http.MethodGet && len(parts) == 2:
			items, err := s.service.ListAssessments(r.Context(), session.OrganizationID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list assessments", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"assessments": items})
			return
		case r.Method == http.MethodPost && len(parts) == 2:
			var body AssessmentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateAssessment(r.Context(), session.OrganizationID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, item)
			return
		case r.Method == http.MethodGet && len(parts) == 3:
			item, err := s.service.GetAssessment(r.Context(), session.OrganizationID, parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
	}

	// /api/risks
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "risks" {
		switch {
		case r.Method == http.MethodGet && len(parts) == 2:
			items, err := s.service.ListRisks(r.Context(), session.OrganizationID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list risks", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"risks": items})
			return
		case r.Method == http.MethodPost && len(parts) == 2:
			var body RiskInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateRisk(r.Context(), session.OrganizationID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, item)
			return
		case r.Method == http.MethodGet && len(parts) == 3:
			item, err := s.service.GetRisk(r.Context(), session.OrganizationID, parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
	}

	// /api/evidence
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "evidence" {
		switch {
		case r.Method == http.MethodGet && len(parts) == 2:
			items, err := s.service.ListEvidence(r.Context(), session.OrganizationID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list evidence", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"evidence": items})
			return
		case r.Method == http.MethodPost && len(parts) == 2:
			s.handleEvidenceUpload(w, r, session)
			return
		case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "download":
			payload, err := s.service.EvidenceDownloadURL(r.Context(), session.OrganizationID, parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "review":
			var body struct {
				Status string `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.ReviewEvidence(r.Context(), session.OrganizationID, parts[2], body.Status)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		case r.Method == http.MethodDelete && len(parts) == 3:
			if err := s.service.DeleteEvidence(r.Context(), session.OrganizationID, parts[2]); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		case r.Method == http.MethodGet && len(parts) == 3:
			item, err := s.service.GetEvidence(r.Context(), session.OrganizationID, parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	params := r.URL.Query()

	q := search.Query{
		Text:           params.Get("q"),
		OrganizationID: session.OrganizationID,
		Page:           1,
		PageSize:       0,
	}

	if raw := strings.TrimSpace(params.Get("types")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			q.EntityTypes = append(q.EntityTypes, search.EntityType(value))
		}
	}

	if raw := strings.TrimSpace(params.Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be a positive integer", nil)
			return
		}
		q.Page = parsed
	}

	if raw := strings.TrimSpace(params.Get("pageSize")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "pageSize must be a positive integer", nil)
			return
		}
		q.PageSize = parsed
	}

	filters := make(map[string]string)
	for _, key := range filterParams {
		if value := strings.TrimSpace(params.Get(key)); value != "" {
			filters[key] = value
		}
	}
	if len(filters) > 0 {
		q.Filters = filters
	}

	payload, err := s.service.Search(r.Context(), q)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleEvidenceUpload(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not parse multipart form", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	item, err := s.service.UploadEvidence(r.Context(), session.OrganizationID, EvidenceUpload{
		AssessmentID: r.FormValue("assessmentId"),
		OriginalName: header.Filename,
		Description:  r.FormValue("description"),
		MimeType:     mimeType,
		SizeBytes:    header.Size,
		UploadedBy:   session.OrganizationName,
		Content:      file,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var filterErr *search.FilterError
	if errors.As(err, &filterErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", filterErr.Error(), nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "SEARCH_TIMEOUT", "Search timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
