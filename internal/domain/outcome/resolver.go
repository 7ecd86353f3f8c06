package outcome

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME MAPPING RESOLVER
// Decides which assessments count toward which outcomes. Each (assessment,
// outcome) pair is offered to an ordered list of strategies; the first one that
// links the pair wins.
// ══════════════════════════════════════════════════════════════════════════════

// StrategyName identifies a resolution strategy in configuration.
type StrategyName string

const (
	StrategyExplicitWeight   StrategyName = "explicit_weight"
	StrategyRubric           StrategyName = "rubric"
	StrategyTaskCode         StrategyName = "task_code"
	StrategySyllabusFallback StrategyName = "syllabus_fallback"
)

// DefaultStrategyOrder is explicit link, rubric, task code, syllabus fallback.
var DefaultStrategyOrder = []StrategyName{
	StrategyExplicitWeight,
	StrategyRubric,
	StrategyTaskCode,
	StrategySyllabusFallback,
}

// FallbackPolicy controls the syllabus fallback strategy.
type FallbackPolicy string

const (
	// FallbackInclusive connects any same-syllabus assessment no other
	// strategy linked, so no graded assessment is left without an outcome.
	FallbackInclusive FallbackPolicy = "inclusive"

	// FallbackDisabled drops the fallback strategy.
	FallbackDisabled FallbackPolicy = "disabled"
)

// ParseFallbackPolicy parses a policy name. Empty means inclusive.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackInclusive:
		return FallbackInclusive, nil
	case FallbackDisabled:
		return FallbackDisabled, nil
	}
	return "", shared.NewDomainError("outcome", "ParseFallbackPolicy", shared.ErrInvalidArgument,
		fmt.Sprintf("unknown syllabus fallback policy %q", s))
}

// ──────────────────────────────────────────────────────────────────────────────
// Strategy contract
// ──────────────────────────────────────────────────────────────────────────────

// ResolveInput is one (assessment, outcome) pair plus the lookups strategies need.
type ResolveInput struct {
	Assessment Assessment
	Outcome    Outcome
	TaskCode   string
	Index      *Index
}

// Strategy links an assessment to an outcome or declines.
type Strategy interface {
	Name() StrategyName
	Resolve(in ResolveInput) (Connection, bool)
}

// Index holds the lookups built from a snapshot.
type Index struct {
	explicit   map[[2]int64]ExplicitWeight
	rubrics    map[[2]int64]struct{}
	edges      map[int64][]Edge
	syllabusID int64
}

// NewIndex builds lookups from a snapshot.
func NewIndex(snap *Snapshot) *Index {
	idx := &Index{
		explicit: make(map[[2]int64]ExplicitWeight, len(snap.ExplicitWeights)),
		rubrics:  make(map[[2]int64]struct{}, len(snap.Rubrics)),
		edges:    make(map[int64][]Edge),
	}
	if snap.Syllabus != nil {
		idx.syllabusID = snap.Syllabus.ID
	}
	for _, w := range snap.ExplicitWeights {
		idx.explicit[[2]int64{w.AssessmentID, w.OutcomeID}] = w
	}
	for _, r := range snap.Rubrics {
		idx.rubrics[[2]int64{r.AssessmentID, r.OutcomeID}] = struct{}{}
	}
	for _, e := range snap.Edges {
		idx.edges[e.OutcomeID] = append(idx.edges[e.OutcomeID], e)
	}
	return idx
}

// Edges returns the family edges of an outcome.
func (idx *Index) Edges(outcomeID int64) []Edge {
	return idx.edges[outcomeID]
}

// assessmentSyllabus treats a missing syllabus id as the offering's syllabus,
// since assessments are loaded per offering.
func (idx *Index) assessmentSyllabus(a Assessment) int64 {
	if a.SyllabusID != nil {
		return *a.SyllabusID
	}
	return idx.syllabusID
}

// ──────────────────────────────────────────────────────────────────────────────
// Strategies
// ──────────────────────────────────────────────────────────────────────────────

// ExplicitWeightStrategy uses assessment_ilo_weights rows.
type ExplicitWeightStrategy struct{}

func (ExplicitWeightStrategy) Name() StrategyName { return StrategyExplicitWeight }

func (ExplicitWeightStrategy) Resolve(in ResolveInput) (Connection, bool) {
	w, ok := in.Index.explicit[[2]int64{in.Assessment.ID, in.Outcome.ID}]
	if !ok {
		return Connection{}, false
	}
	weight := in.Assessment.Weight()
	if w.WeightPercentage != nil {
		weight = *w.WeightPercentage
	}
	return connect(in, weight, SourceExplicitWeight), true
}

// RubricStrategy uses rubric rows.
type RubricStrategy struct{}

func (RubricStrategy) Name() StrategyName { return StrategyRubric }

func (RubricStrategy) Resolve(in ResolveInput) (Connection, bool) {
	if _, ok := in.Index.rubrics[[2]int64{in.Assessment.ID, in.Outcome.ID}]; !ok {
		return Connection{}, false
	}
	return connect(in, in.Assessment.Weight(), SourceRubric), true
}

// TaskCodeStrategy matches the extracted task code against the task lists of
// the outcome's family edges.
type TaskCodeStrategy struct{}

func (TaskCodeStrategy) Name() StrategyName { return StrategyTaskCode }

func (TaskCodeStrategy) Resolve(in ResolveInput) (Connection, bool) {
	if in.TaskCode == "" {
		return Connection{}, false
	}
	for _, e := range in.Index.Edges(in.Outcome.ID) {
		if e.ListsTask(in.TaskCode) {
			return connect(in, in.Assessment.Weight(), SourceTaskCode), true
		}
	}
	return Connection{}, false
}

// SyllabusFallbackStrategy connects any assessment of the outcome's syllabus.
type SyllabusFallbackStrategy struct{}

func (SyllabusFallbackStrategy) Name() StrategyName { return StrategySyllabusFallback }

func (SyllabusFallbackStrategy) Resolve(in ResolveInput) (Connection, bool) {
	if in.Index.assessmentSyllabus(in.Assessment) != in.Outcome.SyllabusID {
		return Connection{}, false
	}
	return connect(in, in.Assessment.Weight(), SourceSyllabusFallback), true
}

func connect(in ResolveInput, weight float64, src Source) Connection {
	return Connection{
		AssessmentID:    in.Assessment.ID,
		OutcomeID:       in.Outcome.ID,
		EffectiveWeight: weight,
		Source:          src,
		TaskCode:        in.TaskCode,
	}
}

// StrategiesFor builds strategies in the given order. The fallback strategy is
// skipped when the policy is disabled.
func StrategiesFor(order []StrategyName, policy FallbackPolicy) ([]Strategy, error) {
	if len(order) == 0 {
		order = DefaultStrategyOrder
	}
	seen := make(map[StrategyName]bool, len(order))
	out := make([]Strategy, 0, len(order))
	for _, name := range order {
		if seen[name] {
			return nil, shared.NewDomainError("outcome", "StrategiesFor", shared.ErrInvalidArgument,
				fmt.Sprintf("strategy %q listed twice", name))
		}
		seen[name] = true

		switch name {
		case StrategyExplicitWeight:
			out = append(out, ExplicitWeightStrategy{})
		case StrategyRubric:
			out = append(out, RubricStrategy{})
		case StrategyTaskCode:
			out = append(out, TaskCodeStrategy{})
		case StrategySyllabusFallback:
			if policy != FallbackDisabled {
				out = append(out, SyllabusFallbackStrategy{})
			}
		default:
			return nil, shared.NewDomainError("outcome", "StrategiesFor", shared.ErrInvalidArgument,
				fmt.Sprintf("unknown strategy %q", name))
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolver
// ──────────────────────────────────────────────────────────────────────────────

// Resolver runs strategies over a snapshot.
type Resolver struct {
	strategies []Strategy
}

// NewResolver creates a resolver with the given strategies.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// DefaultResolver uses the default order and inclusive fallback.
func DefaultResolver() *Resolver {
	s, _ := StrategiesFor(DefaultStrategyOrder, FallbackInclusive)
	return NewResolver(s...)
}

// Strategies returns the strategy names in evaluation order.
func (r *Resolver) Strategies() []StrategyName {
	out := make([]StrategyName, len(r.strategies))
	for i, s := range r.strategies {
		out[i] = s.Name()
	}
	return out
}

// ResolveRequest selects outcomes and an optional family filter.
type ResolveRequest struct {
	// OutcomeID restricts resolution to one outcome. Nil means all outcomes.
	OutcomeID *int64
	Filter    *StandardFilter
}

// Resolve returns connections sorted by (outcome id, assessment id).
//
// An offering without an approved syllabus yields no connections. A requested
// outcome that is not in the approved syllabus yields shared.ErrNotFound.
func (r *Resolver) Resolve(snap *Snapshot, req ResolveRequest) ([]Connection, error) {
	if req.Filter != nil {
		if err := req.Filter.Validate(); err != nil {
			return nil, err
		}
	}

	outcomes := snap.Outcomes
	if req.OutcomeID != nil {
		o, ok := snap.FindOutcome(*req.OutcomeID)
		if !ok || !o.IsActive || !snap.HasSyllabus() {
			return nil, shared.ErrOutcomeNotFound.WithScope(
				fmt.Sprintf("course_offering=%d outcome=%d", snap.Offering.ID, *req.OutcomeID))
		}
		outcomes = []Outcome{o}
	}
	if !snap.HasSyllabus() {
		return []Connection{}, nil
	}

	idx := NewIndex(snap)
	framework := snap.Framework()
	out := make([]Connection, 0)

	for _, a := range snap.Assessments {
		if !a.Eligible() || a.CourseOfferingID != snap.Offering.ID {
			continue
		}
		code := ExtractTaskCode(a, framework)
		for _, o := range outcomes {
			if !o.IsActive {
				continue
			}
			in := ResolveInput{Assessment: a, Outcome: o, TaskCode: code, Index: idx}
			for _, s := range r.strategies {
				if c, ok := s.Resolve(in); ok {
					out = append(out, c)
					break
				}
			}
		}
	}

	if req.Filter != nil {
		out = applyFilter(out, idx, *req.Filter)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OutcomeID != out[j].OutcomeID {
			return out[i].OutcomeID < out[j].OutcomeID
		}
		return out[i].AssessmentID < out[j].AssessmentID
	})
	return out, nil
}

// applyFilter keeps connections whose outcome maps to the filter target and,
// when that edge lists tasks, whose task code is listed.
func applyFilter(conns []Connection, idx *Index, f StandardFilter) []Connection {
	kept := conns[:0]
	for _, c := range conns {
		for _, e := range idx.Edges(c.OutcomeID) {
			if e.Family == f.Family && e.TargetID == f.TargetID && e.AppliesToTask(c.TaskCode) {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept
}

// GroupByOutcome splits sorted connections per outcome.
func GroupByOutcome(conns []Connection) map[int64][]Connection {
	out := make(map[int64][]Connection)
	for _, c := range conns {
		out[c.OutcomeID] = append(out[c.OutcomeID], c)
	}
	return out
}
