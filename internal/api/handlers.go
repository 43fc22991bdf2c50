package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/health"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/project"
	"github.com/terra-clan/estimate-engine/internal/storage"
)

// Response helpers

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

// respondServiceError maps service errors to HTTP responses
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var providersErr *project.InvalidProvidersError

	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Project not found")
	case errors.Is(err, project.ErrNoUpdatableFields):
		respondError(w, http.StatusBadRequest, "no_fields", "No valid fields to update")
	case errors.Is(err, project.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.As(err, &providersErr):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "invalid_providers",
			Message: providersErr.Error(),
			Details: providersErr.Issues,
		})
	case errors.Is(err, project.ErrInvalidEstimate),
		errors.Is(err, estimate.ErrSectionExists),
		errors.Is(err, estimate.ErrSectionNotFound),
		errors.Is(err, estimate.ErrUnknownSection),
		errors.Is(err, estimate.ErrUnknownField),
		errors.Is(err, estimate.ErrRowOutOfRange):
		respondError(w, http.StatusBadRequest, "invalid_estimate", err.Error())
	default:
		slog.Error("request failed",
			"action", action,
			"error", err,
			"path", r.URL.Path,
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid project id")
		return 0, false
	}
	return id, true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.checks.HealthCheckAll(r.Context())

	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	if !health.Healthy(results) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": checks,
	})
}

// Project handlers

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := storage.ParseListQuery(r.URL.Query())

	projects, total, err := s.projects.List(r.Context(), q)
	if err != nil {
		respondServiceError(w, r, err, "list projects")
		return
	}

	w.Header().Set("Content-Range", contentRange(q.Offset, len(projects), total))
	respondJSON(w, http.StatusOK, projects)
}

// contentRange formats "projects first-last/total"
func contentRange(offset, count, total int) string {
	if count == 0 {
		return fmt.Sprintf("projects */%d", total)
	}
	return fmt.Sprintf("projects %d-%d/%d", offset, offset+count-1, total)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	p, err := s.projects.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get project")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.projects.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "create project")
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if !decodeJSON(w, r, &fields) {
		return
	}

	p, err := s.projects.Update(r.Context(), id, fields)
	if err != nil {
		respondServiceError(w, r, err, "update project")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := s.projects.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete project")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Project deleted successfully",
		"id":      id,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	columns, err := s.projects.Schema(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "describe projects")
		return
	}

	respondJSON(w, http.StatusOK, columns)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.projects.Dashboard(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "build dashboard")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// Section catalog handlers

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sections": s.sections.List(),
		"headers":  s.sections.Headers(),
	})
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	section := s.sections.Get(chi.URLParam(r, "id"))
	if section == nil {
		respondError(w, http.StatusNotFound, "not_found", "Section not found")
		return
	}

	respondJSON(w, http.StatusOK, section)
}
