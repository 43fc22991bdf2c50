package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/project"
)

func (s *Server) handleGetEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	est, p, err := s.projects.LoadEstimate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "load estimate")
		return
	}

	respondJSON(w, http.StatusOK, s.projects.View(id, p.EstimateRevision, est))
}

func (s *Server) handleSaveEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	var req models.SaveEstimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	est, err := project.FromSections(req.Sections, s.projects.Catalog())
	if err != nil {
		respondServiceError(w, r, err, "save estimate")
		return
	}

	p, err := s.projects.SaveEstimate(r.Context(), id, est)
	if err != nil {
		respondServiceError(w, r, err, "save estimate")
		return
	}

	respondJSON(w, http.StatusOK, s.projects.View(id, p.EstimateRevision, est))
}

func (s *Server) handleExportEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	est, _, err := s.projects.LoadEstimate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "export estimate")
		return
	}

	var buf bytes.Buffer
	if err := estimate.ExportCSV(est, s.projects.Catalog(), &buf); err != nil {
		respondServiceError(w, r, err, "export estimate")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%d-estimate.csv"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req models.CalculateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.projects.Calculate(req.Sections)
	if err != nil {
		respondServiceError(w, r, err, "calculate estimate")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidateProviders(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateProvidersRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Blank or unnamed entries still count toward the total here so the
	// caller sees the sum the editor will show for the row.
	respondJSON(w, http.StatusOK, estimate.ValidateProviders(req.Providers))
}
