package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT CLUSTERS QUERY
// Cluster labels for a caller-supplied feature set.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentClustersQuery contains parameters for a clustering lookup.
type GetStudentClustersQuery struct {
	TermID int64

	// CourseOfferingID scopes the cache to an offering. When nil the scope is
	// the hashed set of student ids.
	CourseOfferingID *int64
	StandardFilter   string

	Students     []cluster.Features
	ForceRefresh bool
	TTL          time.Duration
}

// Validate validates the query parameters.
func (q GetStudentClustersQuery) Validate() error {
	invalid := func(msg string) error {
		return shared.NewDomainError("query", "GetStudentClusters", shared.ErrInvalidArgument, msg)
	}
	if q.TermID < 0 {
		return invalid("term_id must not be negative")
	}
	if q.CourseOfferingID != nil && *q.CourseOfferingID <= 0 {
		return invalid("course_offering_id must be positive")
	}
	if q.TTL < 0 {
		return invalid("ttl must not be negative")
	}
	seen := make(map[int64]bool, len(q.Students))
	for _, s := range q.Students {
		if s.StudentID <= 0 {
			return invalid("student_id must be positive")
		}
		if seen[s.StudentID] {
			return invalid(fmt.Sprintf("student_id %d listed twice", s.StudentID))
		}
		seen[s.StudentID] = true
	}
	return nil
}

// Scope returns the cache scope of the query.
func (q GetStudentClustersQuery) Scope() cluster.Scope {
	if q.CourseOfferingID != nil {
		return cluster.OfferingScope(*q.CourseOfferingID, q.TermID, q.StandardFilter)
	}
	ids := make([]int64, len(q.Students))
	for i, s := range q.Students {
		ids[i] = s.StudentID
	}
	return cluster.StudentSetScope(ids, q.TermID, q.StandardFilter)
}

// GetStudentClustersResult is the gateway result plus its label distribution.
type GetStudentClustersResult struct {
	cluster.Result
	Distribution []cluster.LabelCount `json:"distribution"`
}

// GetStudentClustersHandler handles clustering lookups.
type GetStudentClustersHandler struct {
	gateway ClusterGateway
	log     *logger.Logger
}

// NewGetStudentClustersHandler creates a new handler.
func NewGetStudentClustersHandler(gateway ClusterGateway, log *logger.Logger) *GetStudentClustersHandler {
	if log == nil {
		log = logger.Nop()
	}
	if gateway == nil {
		gateway = cluster.NewGateway(nil, nil, cluster.Config{})
	}
	return &GetStudentClustersHandler{
		gateway: gateway,
		log:     log.With(logger.Component("get_student_clusters")),
	}
}

// Handle executes the query. Clustering failures are reported in the result,
// only invalid input returns an error.
func (h *GetStudentClustersHandler) Handle(ctx context.Context, query GetStudentClustersQuery) (*GetStudentClustersResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	res := h.gateway.GetStudentClusters(ctx, query.Students, cluster.Options{
		TTL:          query.TTL,
		ForceRefresh: query.ForceRefresh,
		Scope:        query.Scope(),
	})

	h.log.Debug("student clusters resolved",
		logger.ScopeKey(res.ScopeKey),
		logger.Int("students", len(query.Students)),
		logger.Int("clustered", len(res.Clusters)),
		logger.String("state", string(res.State)),
		logger.Bool("cache_used", res.CacheUsed),
		logger.Bool("api_called", res.APICalled),
	)
	return &GetStudentClustersResult{Result: res, Distribution: cluster.Distribution(res)}, nil
}
