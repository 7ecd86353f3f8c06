package cluster

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/attainment-engine/internal/domain/shared"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// FetchResult is what the clustering service returned.
type FetchResult struct {
	Assignments     []Assignment
	SilhouetteScore *float64
}

// Fetcher calls the remote clustering service.
type Fetcher interface {
	Fetch(ctx context.Context, students []Features) (*FetchResult, error)
}

// Store persists cache entries by scope key.
type Store interface {
	// Load returns nil without error when nothing is cached for key.
	Load(ctx context.Context, key string) (*Entry, error)
	// Save replaces whatever is stored under the entry's key.
	Save(ctx context.Context, entry *Entry) error
}

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY
// ══════════════════════════════════════════════════════════════════════════════

// Default gateway settings.
const (
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 30 * time.Second
)

// Config is fixed at construction.
type Config struct {
	// Enabled is false when clustering is switched off or no URL is configured.
	Enabled bool

	// TTL is the default freshness window.
	TTL time.Duration

	// Timeout bounds one remote refresh.
	Timeout time.Duration

	// CoalesceRefreshes collapses concurrent refreshes of the same scope into
	// one remote call. When false, concurrent refreshes race and the last
	// write wins.
	CoalesceRefreshes bool
}

// Options are per-call settings.
type Options struct {
	// TTL overrides Config.TTL when positive.
	TTL          time.Duration
	ForceRefresh bool
	Scope        Scope
}

// Result is the cluster map plus metadata. It never carries a Go error out of
// the gateway; failures are described by Error.
type Result struct {
	Clusters        map[int64]Assignment `json:"clusters"`
	CacheUsed       bool                 `json:"cache_used"`
	APICalled       bool                 `json:"api_called"`
	Error           *string              `json:"error"`
	State           State                `json:"state"`
	GeneratedAt     *time.Time           `json:"generated_at,omitempty"`
	SilhouetteScore *float64             `json:"silhouette_score,omitempty"`
	ScopeKey        string               `json:"scope_key"`

	// Unavailable is true when Clusters is empty because clustering failed or
	// is disabled, as opposed to the service clustering nobody.
	Unavailable bool `json:"unavailable"`

	// Err is the classified failure, kind shared.ErrUpstreamUnavailable.
	Err error `json:"-"`
}

// Gateway serves cluster assignments from the cache, refreshing through the
// Fetcher when the entry is missing, stale or a refresh is forced.
type Gateway struct {
	fetcher Fetcher
	store   Store
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
	flight  singleflight.Group
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) GatewayOption {
	return func(g *Gateway) { g.log = log }
}

// NewGateway creates a gateway. A nil fetcher disables clustering.
func NewGateway(fetcher Fetcher, store Store, cfg Config, opts ...GatewayOption) *Gateway {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	g := &Gateway{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logger.Component("cluster_gateway"))
	return g
}

// Enabled reports whether remote clustering is configured.
func (g *Gateway) Enabled() bool {
	return g.cfg.Enabled && g.fetcher != nil
}

// GetStudentClusters returns cluster assignments for the students in scope.
//
//	Empty             -> call the service
//	Fresh             -> serve the cache, no call (unless ForceRefresh)
//	Stale or forced   -> call the service; on failure serve the cached entry
//	                     with Error set
func (g *Gateway) GetStudentClusters(ctx context.Context, students []Features, opts Options) Result {
	key := opts.Scope.Key()
	log := g.log.With(logger.ScopeKey(key))

	if !g.Enabled() {
		return unavailable(key, StateEmpty, false, shared.ErrClusteringDisabled)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = g.cfg.TTL
	}

	cached := g.load(ctx, key, log)
	state := Classify(cached, g.now(), ttl)

	if state == StateFresh && !opts.ForceRefresh {
		log.Debug("serving fresh clusters", logger.Int("students", len(cached.Assignments)))
		return fromEntry(cached, state, true, false)
	}

	if len(students) == 0 {
		if cached != nil {
			return fromEntry(cached, state, true, false)
		}
		return Result{Clusters: map[int64]Assignment{}, State: state, ScopeKey: key}
	}

	fresh, err := g.refresh(ctx, key, opts.Scope, students)
	if err != nil {
		upErr := shared.WrapError("cluster", "Refresh", shared.ErrUpstreamUnavailable, "clustering service unavailable", err).
			WithScope(key)
		log.Warn("cluster refresh failed",
			logger.String("state", string(state)),
			logger.Bool("force_refresh", opts.ForceRefresh),
			logger.Err(err),
		)
		if cached != nil {
			res := fromEntry(cached, state, true, true)
			res.Error = errString(upErr)
			res.Err = upErr
			return res
		}
		return unavailable(key, state, true, upErr)
	}

	return fromEntry(fresh, StateFresh, false, true)
}

func (g *Gateway) load(ctx context.Context, key string, log *logger.Logger) *Entry {
	if g.store == nil {
		return nil
	}
	e, err := g.store.Load(ctx, key)
	if err != nil {
		log.Warn("cluster cache read failed", logger.Err(err))
		return nil
	}
	return e
}

// refresh calls the service under the configured timeout and stores the new
// entry. With coalescing, concurrent callers for one key share a single call;
// the shared call is bounded only by Config.Timeout and each caller stops
// waiting when its own ctx is done.
func (g *Gateway) refresh(ctx context.Context, key string, scope Scope, students []Features) (*Entry, error) {
	if !g.cfg.CoalesceRefreshes {
		return g.fetchAndSave(ctx, scope, students)
	}
	ch := g.flight.DoChan(key, func() (any, error) {
		return g.fetchAndSave(context.WithoutCancel(ctx), scope, students)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			g.log.Debug("cluster refresh coalesced", logger.ScopeKey(key))
		}
		return r.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) fetchAndSave(ctx context.Context, scope Scope, students []Features) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	fr, err := g.fetcher.Fetch(ctx, students)
	if err != nil {
		return nil, err
	}
	if fr == nil || len(fr.Assignments) == 0 {
		return nil, errors.New("clustering service returned no assignments")
	}

	byID := make(map[int64]Features, len(students))
	for _, s := range students {
		byID[s.StudentID] = s
	}
	assignments := make([]Assignment, 0, len(fr.Assignments))
	for _, a := range fr.Assignments {
		if f, ok := byID[a.StudentID]; ok {
			a.Features = f
		}
		assignments = append(assignments, a)
	}

	entry := NewEntry(scope, assignments, fr.SilhouetteScore, g.now())
	g.log.Info("clusters refreshed",
		logger.ScopeKey(entry.Key()),
		logger.Int("assignments", len(assignments)),
		logger.Latency(time.Since(start)),
	)

	if g.store != nil {
		// A failed write still serves the fresh result to this caller.
		if err := g.store.Save(context.WithoutCancel(ctx), entry); err != nil {
			g.log.Warn("cluster cache write failed", logger.ScopeKey(entry.Key()), logger.Err(err))
		}
	}
	return entry, nil
}

func fromEntry(e *Entry, state State, cacheUsed, apiCalled bool) Result {
	at := e.GeneratedAt
	return Result{
		Clusters:        e.Clusters(),
		CacheUsed:       cacheUsed,
		APICalled:       apiCalled,
		State:           state,
		GeneratedAt:     &at,
		SilhouetteScore: copyFloat(e.SilhouetteScore),
		ScopeKey:        e.Key(),
	}
}

func unavailable(key string, state State, apiCalled bool, err error) Result {
	return Result{
		Clusters:    map[int64]Assignment{},
		APICalled:   apiCalled,
		State:       state,
		ScopeKey:    key,
		Unavailable: true,
		Error:       errString(err),
		Err:         err,
	}
}

func errString(err error) *string {
	var de *shared.DomainError
	msg := err.Error()
	if errors.As(err, &de) && de.Err == nil {
		msg = de.Message
	}
	return &msg
}
