package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/attainment-engine/internal/application/query"
	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// newValidator reports errors under JSON field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type thresholdParams struct {
	Pass *float64 `json:"pass" validate:"omitempty,gte=0,lte=100"`
	High *float64 `json:"high" validate:"omitempty,gte=0,lte=100"`
	Low  *float64 `json:"low" validate:"omitempty,gte=0,lte=100"`
}

// apply overrides the defaults with any supplied value. Nil means no override.
func (p thresholdParams) apply(defaults attainment.Thresholds) *attainment.Thresholds {
	if p.Pass == nil && p.High == nil && p.Low == nil {
		return nil
	}
	th := defaults
	if p.Pass != nil {
		th.Pass = *p.Pass
	}
	if p.High != nil {
		th.High = *p.High
	}
	if p.Low != nil {
		th.Low = *p.Low
	}
	return &th
}

type filterParams struct {
	Family string `json:"family" validate:"omitempty,oneof=SO SDG IGA CDIO"`
	Target *int64 `json:"target" validate:"omitnil,gt=0"`
}

func (p filterParams) filter() (*outcome.StandardFilter, error) {
	if p.Family == "" && p.Target == nil {
		return nil, nil
	}
	if p.Family == "" || p.Target == nil {
		return nil, errBadRequest("family and target must be given together")
	}
	return &outcome.StandardFilter{Family: outcome.Family(p.Family), TargetID: *p.Target}, nil
}

type summaryRequest struct {
	CourseOfferingID int64           `json:"id" validate:"gt=0"`
	Thresholds       thresholdParams `json:"thresholds"`
	Filter           filterParams    `json:"filter"`
}

type rosterRequest struct {
	CourseOfferingID int64           `json:"id" validate:"gt=0"`
	OutcomeID        int64           `json:"outcome_id" validate:"gt=0"`
	Thresholds       thresholdParams `json:"thresholds"`
	Filter           filterParams    `json:"filter"`
	Performance      string          `json:"performance" validate:"omitempty,oneof=all high low"`
	IncludeClusters  bool            `json:"clusters"`
	ForceRefresh     bool            `json:"force_refresh"`
}

type clustersRequest struct {
	TermID           int64              `json:"term_id" validate:"gte=0"`
	CourseOfferingID *int64             `json:"course_offering_id" validate:"omitnil,gt=0"`
	StandardFilter   string             `json:"standard_filter" validate:"max=64"`
	ForceRefresh     bool               `json:"force_refresh"`
	TTLSeconds       *int64             `json:"ttl_seconds" validate:"omitnil,gt=0"`
	Students         []cluster.Features `json:"students" validate:"max=10000"`
}

func (c clustersRequest) query() query.GetStudentClustersQuery {
	q := query.GetStudentClustersQuery{
		TermID:           c.TermID,
		CourseOfferingID: c.CourseOfferingID,
		StandardFilter:   c.StandardFilter,
		Students:         c.Students,
		ForceRefresh:     c.ForceRefresh,
	}
	if c.TTLSeconds != nil {
		q.TTL = time.Duration(*c.TTLSeconds) * time.Second
	}
	return q
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

// badRequestError is a malformed parameter caught before validation.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func errBadRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errBadRequest("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errBadRequest("%s must be a number, got %q", key, raw)
	}
	return &v, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errBadRequest("%s must be an integer, got %q", key, raw)
	}
	return &v, nil
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseThresholds(r *http.Request) (thresholdParams, error) {
	var (
		p   thresholdParams
		err error
	)
	if p.Pass, err = queryFloat(r, "pass"); err != nil {
		return p, err
	}
	if p.High, err = queryFloat(r, "high"); err != nil {
		return p, err
	}
	if p.Low, err = queryFloat(r, "low"); err != nil {
		return p, err
	}
	return p, nil
}

func parseFilter(r *http.Request) (filterParams, error) {
	target, err := queryInt64(r, "target")
	if err != nil {
		return filterParams{}, err
	}
	return filterParams{
		Family: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("family"))),
		Target: target,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// handleError maps an error onto the response envelope:
// InvalidArgument -> 400, NotFound -> 404, UpstreamUnavailable -> 503,
// anything else -> 500.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad  *badRequestError
		verr validator.ValidationErrors
		de   *shared.DomainError
	)
	switch {
	case errors.As(err, &bad):
		s.writeError(w, r, http.StatusBadRequest, "invalid_argument", bad.msg, "")
		return
	case errors.As(err, &verr):
		fields := make([]string, 0, len(verr))
		for _, fe := range verr {
			fields = append(fields, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid_argument", "Request validation failed", strings.Join(fields, "; "))
		return
	}

	message, details := "", ""
	if errors.As(err, &de) {
		message, details = de.Message, de.Scope
	}

	switch {
	case shared.IsInvalidArgument(err):
		s.writeError(w, r, http.StatusBadRequest, "invalid_argument", message, details)
	case shared.IsNotFound(err):
		s.writeError(w, r, http.StatusNotFound, "not_found", message, details)
	case shared.IsUpstreamUnavailable(err):
		s.writeError(w, r, http.StatusServiceUnavailable, "upstream_unavailable", message, details)
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "Internal error", "")
	}
}
