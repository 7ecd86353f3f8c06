package query

import (
	"context"
	"time"

	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET OUTCOME SUMMARY QUERY
// Attainment summary of every outcome in a course offering.
// ══════════════════════════════════════════════════════════════════════════════

// GetOutcomeSummaryQuery contains parameters for the attainment summary.
type GetOutcomeSummaryQuery struct {
	CourseOfferingID int64

	// Thresholds overrides the configured defaults when set.
	Thresholds *attainment.Thresholds

	// Filter restricts the summary to outcomes mapped to one family target.
	Filter *outcome.StandardFilter
}

// Validate validates the query parameters.
func (q GetOutcomeSummaryQuery) Validate() error {
	if q.CourseOfferingID <= 0 {
		return shared.NewDomainError("query", "GetOutcomeSummary", shared.ErrInvalidArgument,
			"course_offering_id must be positive")
	}
	if q.Thresholds != nil {
		if err := q.Thresholds.Validate(); err != nil {
			return err
		}
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OfferingInfo identifies the course offering in a result.
type OfferingInfo struct {
	CourseOfferingID int64  `json:"section_course_id"`
	TermID           int64  `json:"term_id"`
	CourseCode       string `json:"course_code"`
	CourseTitle      string `json:"course_title"`
	SectionCode      string `json:"section_code"`
	SyllabusID       *int64 `json:"syllabus_id"`
}

func offeringInfo(snap *outcome.Snapshot) OfferingInfo {
	info := OfferingInfo{
		CourseOfferingID: snap.Offering.ID,
		TermID:           snap.Offering.TermID,
		CourseCode:       snap.Offering.CourseCode,
		CourseTitle:      snap.Offering.CourseTitle,
		SectionCode:      snap.Offering.SectionCode,
	}
	if snap.Syllabus != nil {
		id := snap.Syllabus.ID
		info.SyllabusID = &id
	}
	return info
}

// GetOutcomeSummaryResult contains the summary and the offering it belongs to.
type GetOutcomeSummaryResult struct {
	OfferingInfo
	*attainment.Summary

	// Filter echoes the standard filter key, empty when none was applied.
	Filter string `json:"standard_filter,omitempty"`
}

// GetOutcomeSummaryHandler handles the attainment summary query.
type GetOutcomeSummaryHandler struct {
	loader     *SnapshotLoader
	resolver   *outcome.Resolver
	thresholds attainment.Thresholds
	log        *logger.Logger
}

// NewGetOutcomeSummaryHandler creates a new handler.
func NewGetOutcomeSummaryHandler(
	loader *SnapshotLoader,
	resolver *outcome.Resolver,
	thresholds attainment.Thresholds,
	log *logger.Logger,
) *GetOutcomeSummaryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetOutcomeSummaryHandler{
		loader:     loader,
		resolver:   resolver,
		thresholds: thresholds,
		log:        log.With(logger.Component("get_outcome_summary")),
	}
}

// Handle executes the query.
func (h *GetOutcomeSummaryHandler) Handle(ctx context.Context, query GetOutcomeSummaryQuery) (*GetOutcomeSummaryResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	th := h.thresholds
	if query.Thresholds != nil {
		th = *query.Thresholds
	}

	snap, err := h.loader.Load(ctx, query.CourseOfferingID)
	if err != nil {
		return nil, err
	}

	conns, err := h.resolver.Resolve(snap, outcome.ResolveRequest{Filter: query.Filter})
	if err != nil {
		return nil, err
	}

	summary, err := attainment.Summarize(snap, conns, th)
	if err != nil {
		return nil, err
	}

	result := &GetOutcomeSummaryResult{
		OfferingInfo: offeringInfo(snap),
		Summary:      summary,
	}
	if query.Filter != nil {
		result.Filter = query.Filter.Key()
	}

	h.log.Info("outcome summary computed",
		logger.CourseOfferingID(query.CourseOfferingID),
		logger.Int("outcomes", len(summary.Outcomes)),
		logger.Int("connections", len(conns)),
		logger.Float64("overall_attainment_rate", summary.OverallAttainmentRate),
		logger.Latency(time.Since(start)),
	)
	return result, nil
}
