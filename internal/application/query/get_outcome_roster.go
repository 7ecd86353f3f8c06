package query

import (
	"context"
	"time"

	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET OUTCOME ROSTER QUERY
// Per-student attainment of one outcome, optionally annotated with clusters.
// ══════════════════════════════════════════════════════════════════════════════

// ClusterGateway is the part of cluster.Gateway the queries use.
type ClusterGateway interface {
	Enabled() bool
	GetStudentClusters(ctx context.Context, students []cluster.Features, opts cluster.Options) cluster.Result
}

// GetOutcomeRosterQuery contains parameters for the outcome roster.
type GetOutcomeRosterQuery struct {
	CourseOfferingID int64
	OutcomeID        int64

	Thresholds  *attainment.Thresholds
	Performance attainment.PerformanceFilter
	Filter      *outcome.StandardFilter

	// IncludeClusters attaches cluster labels to every student row.
	IncludeClusters bool
	ForceRefresh    bool

	// ClusterTTL overrides the gateway freshness window when positive.
	ClusterTTL time.Duration
}

// Validate validates the query parameters.
func (q GetOutcomeRosterQuery) Validate() error {
	if q.CourseOfferingID <= 0 {
		return shared.NewDomainError("query", "GetOutcomeRoster", shared.ErrInvalidArgument,
			"course_offering_id must be positive")
	}
	if q.OutcomeID <= 0 {
		return shared.NewDomainError("query", "GetOutcomeRoster", shared.ErrInvalidArgument,
			"outcome_id must be positive")
	}
	if q.Thresholds != nil {
		if err := q.Thresholds.Validate(); err != nil {
			return err
		}
	}
	if q.Performance != "" {
		if _, err := attainment.ParsePerformanceFilter(string(q.Performance)); err != nil {
			return err
		}
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return err
		}
	}
	if q.ClusterTTL < 0 {
		return shared.NewDomainError("query", "GetOutcomeRoster", shared.ErrInvalidArgument,
			"cluster ttl must not be negative")
	}
	return nil
}

// ClusteringInfo reports how cluster labels were obtained. Clustering
// failures never fail the roster; they surface here instead.
type ClusteringInfo struct {
	Enabled         bool                 `json:"enabled"`
	CacheUsed       bool                 `json:"cache_used"`
	APICalled       bool                 `json:"api_called"`
	Unavailable     bool                 `json:"unavailable"`
	Error           *string              `json:"error"`
	State           cluster.State        `json:"state"`
	GeneratedAt     *time.Time           `json:"generated_at,omitempty"`
	SilhouetteScore *float64             `json:"silhouette_score,omitempty"`
	Distribution    []cluster.LabelCount `json:"distribution"`
}

func clusteringInfo(enabled bool, res cluster.Result) *ClusteringInfo {
	return &ClusteringInfo{
		Enabled:         enabled,
		CacheUsed:       res.CacheUsed,
		APICalled:       res.APICalled,
		Unavailable:     res.Unavailable,
		Error:           res.Error,
		State:           res.State,
		GeneratedAt:     res.GeneratedAt,
		SilhouetteScore: res.SilhouetteScore,
		Distribution:    cluster.Distribution(res),
	}
}

// GetOutcomeRosterResult is the roster plus clustering metadata.
type GetOutcomeRosterResult struct {
	*attainment.Roster

	// Clustering is nil unless clusters were requested.
	Clustering *ClusteringInfo `json:"clustering,omitempty"`
}

// GetOutcomeRosterHandler handles the outcome roster query.
type GetOutcomeRosterHandler struct {
	loader     *SnapshotLoader
	resolver   *outcome.Resolver
	gateway    ClusterGateway
	thresholds attainment.Thresholds
	log        *logger.Logger
}

// NewGetOutcomeRosterHandler creates a new handler. A nil gateway behaves as
// clustering disabled.
func NewGetOutcomeRosterHandler(
	loader *SnapshotLoader,
	resolver *outcome.Resolver,
	gateway ClusterGateway,
	thresholds attainment.Thresholds,
	log *logger.Logger,
) *GetOutcomeRosterHandler {
	if log == nil {
		log = logger.Nop()
	}
	if gateway == nil {
		gateway = cluster.NewGateway(nil, nil, cluster.Config{})
	}
	return &GetOutcomeRosterHandler{
		loader:     loader,
		resolver:   resolver,
		gateway:    gateway,
		thresholds: thresholds,
		log:        log.With(logger.Component("get_outcome_roster")),
	}
}

// Handle executes the query.
func (h *GetOutcomeRosterHandler) Handle(ctx context.Context, query GetOutcomeRosterQuery) (*GetOutcomeRosterResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	th := h.thresholds
	if query.Thresholds != nil {
		th = *query.Thresholds
	}
	perf := query.Performance
	if perf == "" {
		perf = attainment.FilterAll
	}

	snap, err := h.loader.Load(ctx, query.CourseOfferingID)
	if err != nil {
		return nil, err
	}

	outcomeID := query.OutcomeID
	conns, err := h.resolver.Resolve(snap, outcome.ResolveRequest{OutcomeID: &outcomeID, Filter: query.Filter})
	if err != nil {
		return nil, err
	}
	o, _ := snap.FindOutcome(outcomeID)

	roster, err := attainment.BuildRoster(snap, o, conns, attainment.RosterParams{
		Thresholds:  th,
		Performance: perf,
	})
	if err != nil {
		return nil, err
	}

	result := &GetOutcomeRosterResult{Roster: roster}
	if query.IncludeClusters {
		result.Clustering = h.attachClusters(ctx, snap, roster, query)
	}

	h.log.Info("outcome roster computed",
		logger.CourseOfferingID(query.CourseOfferingID),
		logger.OutcomeID(outcomeID),
		logger.Int("students", roster.TotalStudents),
		logger.Int("attained", roster.AttainedCount),
		logger.Bool("clusters", query.IncludeClusters),
		logger.Latency(time.Since(start)),
	)
	return result, nil
}

// attachClusters clusters the whole class of the offering. Features do not
// depend on the outcome, so every roster of an offering shares one scope.
func (h *GetOutcomeRosterHandler) attachClusters(
	ctx context.Context,
	snap *outcome.Snapshot,
	roster *attainment.Roster,
	query GetOutcomeRosterQuery,
) *ClusteringInfo {
	res := h.gateway.GetStudentClusters(ctx, StudentFeatures(snap), cluster.Options{
		TTL:          query.ClusterTTL,
		ForceRefresh: query.ForceRefresh,
		Scope:        cluster.OfferingScope(snap.Offering.ID, snap.Offering.TermID, ""),
	})
	cluster.ApplyRoster(roster, res)
	return clusteringInfo(h.gateway.Enabled(), res)
}
