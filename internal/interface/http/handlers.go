package http

import (
	"encoding/json"
	"net/http"

	"github.com/alem-hub/attainment-engine/internal/application/query"
	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Outcome Attainment Engine",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":     "/health",
			"attainment": "/api/v1/course-offerings/{id}/attainment",
			"roster":     "/api/v1/course-offerings/{id}/outcomes/{outcomeID}/roster",
			"clusters":   "/api/v1/clusters",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		s.writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTAINMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetOutcomeSummary handles GET /api/v1/course-offerings/{id}/attainment
func (s *Server) handleGetOutcomeSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetOutcomeSummaryHandler == nil {
		s.writeError(w, r, http.StatusNotImplemented, "not_implemented", "Summary handler not configured", "")
		return
	}

	var (
		req summaryRequest
		err error
	)
	if req.CourseOfferingID, err = pathInt64(r, "id"); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Thresholds, err = parseThresholds(r); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Filter, err = parseFilter(r); err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.handleError(w, r, err)
		return
	}
	filter, err := req.Filter.filter()
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	result, err := s.deps.GetOutcomeSummaryHandler.Handle(r.Context(), query.GetOutcomeSummaryQuery{
		CourseOfferingID: req.CourseOfferingID,
		Thresholds:       req.Thresholds.apply(s.deps.Thresholds),
		Filter:           filter,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// handleGetOutcomeRoster handles GET /api/v1/course-offerings/{id}/outcomes/{outcomeID}/roster
func (s *Server) handleGetOutcomeRoster(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetOutcomeRosterHandler == nil {
		s.writeError(w, r, http.StatusNotImplemented, "not_implemented", "Roster handler not configured", "")
		return
	}

	var (
		req rosterRequest
		err error
	)
	if req.CourseOfferingID, err = pathInt64(r, "id"); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.OutcomeID, err = pathInt64(r, "outcomeID"); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Thresholds, err = parseThresholds(r); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Filter, err = parseFilter(r); err != nil {
		s.handleError(w, r, err)
		return
	}
	req.Performance = r.URL.Query().Get("performance")
	req.IncludeClusters = queryBool(r, "clusters")
	req.ForceRefresh = queryBool(r, "force_refresh")

	if err := s.validate.Struct(req); err != nil {
		s.handleError(w, r, err)
		return
	}
	filter, err := req.Filter.filter()
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	result, err := s.deps.GetOutcomeRosterHandler.Handle(r.Context(), query.GetOutcomeRosterQuery{
		CourseOfferingID: req.CourseOfferingID,
		OutcomeID:        req.OutcomeID,
		Thresholds:       req.Thresholds.apply(s.deps.Thresholds),
		Performance:      attainment.PerformanceFilter(req.Performance),
		Filter:           filter,
		IncludeClusters:  req.IncludeClusters,
		ForceRefresh:     req.ForceRefresh,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLUSTERING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handlePostClusters handles POST /api/v1/clusters. Clustering failures come
// back as 200 with unavailable/error metadata.
func (s *Server) handlePostClusters(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudentClustersHandler == nil {
		s.writeError(w, r, http.StatusNotImplemented, "not_implemented", "Clusters handler not configured", "")
		return
	}

	var req clustersRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.handleError(w, r, errBadRequest("invalid JSON body: %v", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.handleError(w, r, err)
		return
	}

	result, err := s.deps.GetStudentClustersHandler.Handle(r.Context(), req.query())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}
