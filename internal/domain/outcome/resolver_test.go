package outcome

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

func i64(v int64) *int64 { return &v }

// fixture: syllabus 10 with outcomes 100 and 200 and four assessments.
//
//	1 "Written Assessment WA1" explicit weight for outcome 100 (override 15)
//	2 "Quiz"                   rubric link to outcome 200
//	3 "Lab Exercise LB2"       task code LB2 listed on outcome 200's SO edge
//	4 "Final Exam"             nothing explicit: fallback only
//	5 unpublished, 6 zero weight: never considered
func fixture() *Snapshot {
	a := func(id int64, title string, weight float64) Assessment {
		x := assessment(id, 100, weight)
		x.Title = title
		x.SyllabusID = i64(10)
		return x
	}
	unpublished := a(5, "Draft", 10)
	unpublished.IsPublished = false

	return &Snapshot{
		Offering: CourseOffering{ID: 1, TermID: 7},
		Syllabus: &Syllabus{ID: 10, CourseOfferingID: 1},
		Outcomes: []Outcome{
			{ID: 100, Code: "ILO1", SyllabusID: 10, IsActive: true},
			{ID: 200, Code: "ILO2", SyllabusID: 10, IsActive: true},
		},
		Edges: []Edge{
			{OutcomeID: 100, Family: FamilySO, TargetID: 1},
			{OutcomeID: 200, Family: FamilySO, TargetID: 2, AssessmentTasks: []string{"LB2"}},
			{OutcomeID: 200, Family: FamilySDG, TargetID: 9},
		},
		Assessments: []Assessment{
			a(1, "Written Assessment WA1", 30),
			a(2, "Quiz", 20),
			a(3, "Lab Exercise LB2", 25),
			a(4, "Final Exam", 25),
			unpublished,
			a(6, "Ungraded", 0),
		},
		ExplicitWeights: []ExplicitWeight{{AssessmentID: 1, OutcomeID: 100, WeightPercentage: f64(15)}},
		Rubrics:         []RubricLink{{AssessmentID: 2, OutcomeID: 200}},
	}
}

func sources(conns []Connection) map[[2]int64]Source {
	out := make(map[[2]int64]Source, len(conns))
	for _, c := range conns {
		out[[2]int64{c.OutcomeID, c.AssessmentID}] = c.Source
	}
	return out
}

func TestResolver_CascadeWithFallback(t *testing.T) {
	conns, err := DefaultResolver().Resolve(fixture(), ResolveRequest{})
	require.NoError(t, err)

	want := map[[2]int64]Source{
		{100, 1}: SourceExplicitWeight,
		{100, 2}: SourceSyllabusFallback,
		{100, 3}: SourceSyllabusFallback,
		{100, 4}: SourceSyllabusFallback,
		{200, 1}: SourceSyllabusFallback,
		{200, 2}: SourceRubric,
		{200, 3}: SourceTaskCode,
		{200, 4}: SourceSyllabusFallback,
	}
	if diff := cmp.Diff(want, sources(conns)); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}

	for _, c := range conns {
		if c.OutcomeID == 100 && c.AssessmentID == 1 {
			assert.Equal(t, 15.0, c.EffectiveWeight)
		}
		if c.OutcomeID == 200 && c.AssessmentID == 3 {
			assert.Equal(t, 25.0, c.EffectiveWeight)
			assert.Equal(t, "LB2", c.TaskCode)
		}
	}
}

func TestResolver_FallbackDisabled(t *testing.T) {
	strategies, err := StrategiesFor(DefaultStrategyOrder, FallbackDisabled)
	require.NoError(t, err)

	conns, err := NewResolver(strategies...).Resolve(fixture(), ResolveRequest{})
	require.NoError(t, err)

	want := map[[2]int64]Source{
		{100, 1}: SourceExplicitWeight,
		{200, 2}: SourceRubric,
		{200, 3}: SourceTaskCode,
	}
	assert.Equal(t, want, sources(conns))
}

func TestResolver_SortedAndIdempotent(t *testing.T) {
	snap := fixture()
	r := DefaultResolver()

	first, err := r.Resolve(snap, ResolveRequest{})
	require.NoError(t, err)
	second, err := r.Resolve(snap, ResolveRequest{})
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		assert.True(t, prev.OutcomeID < cur.OutcomeID ||
			(prev.OutcomeID == cur.OutcomeID && prev.AssessmentID < cur.AssessmentID))
	}
}

func TestResolver_SingleOutcome(t *testing.T) {
	conns, err := DefaultResolver().Resolve(fixture(), ResolveRequest{OutcomeID: i64(200)})
	require.NoError(t, err)
	require.Len(t, conns, 4)
	for _, c := range conns {
		assert.Equal(t, int64(200), c.OutcomeID)
	}
}

func TestResolver_UnknownOutcome(t *testing.T) {
	_, err := DefaultResolver().Resolve(fixture(), ResolveRequest{OutcomeID: i64(999)})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestResolver_NoSyllabus(t *testing.T) {
	snap := fixture()
	snap.Syllabus = nil
	snap.Outcomes = nil

	conns, err := DefaultResolver().Resolve(snap, ResolveRequest{})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestResolver_StandardFilter(t *testing.T) {
	r := DefaultResolver()

	t.Run("edge with task list keeps only listed codes", func(t *testing.T) {
		conns, err := r.Resolve(fixture(), ResolveRequest{Filter: &StandardFilter{Family: FamilySO, TargetID: 2}})
		require.NoError(t, err)
		assert.Equal(t, map[[2]int64]Source{{200, 3}: SourceTaskCode}, sources(conns))
	})

	t.Run("edge without task list keeps all of the outcome", func(t *testing.T) {
		conns, err := r.Resolve(fixture(), ResolveRequest{Filter: &StandardFilter{Family: FamilySDG, TargetID: 9}})
		require.NoError(t, err)
		assert.Len(t, conns, 4)
		for _, c := range conns {
			assert.Equal(t, int64(200), c.OutcomeID)
		}
	})

	t.Run("unmapped target", func(t *testing.T) {
		conns, err := r.Resolve(fixture(), ResolveRequest{Filter: &StandardFilter{Family: FamilyIGA, TargetID: 1}})
		require.NoError(t, err)
		assert.Empty(t, conns)
	})

	t.Run("invalid family", func(t *testing.T) {
		_, err := r.Resolve(fixture(), ResolveRequest{Filter: &StandardFilter{Family: "XYZ", TargetID: 1}})
		assert.True(t, shared.IsInvalidArgument(err))
	})
}

func TestStrategiesFor_Errors(t *testing.T) {
	_, err := StrategiesFor([]StrategyName{StrategyRubric, StrategyRubric}, FallbackInclusive)
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = StrategiesFor([]StrategyName{"magic"}, FallbackInclusive)
	assert.True(t, shared.IsInvalidArgument(err))

	s, err := StrategiesFor([]StrategyName{StrategyTaskCode, StrategyExplicitWeight}, FallbackInclusive)
	require.NoError(t, err)
	assert.Equal(t, []StrategyName{StrategyTaskCode, StrategyExplicitWeight}, NewResolver(s...).Strategies())
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FallbackInclusive, p)

	p, err = ParseFallbackPolicy("Disabled")
	require.NoError(t, err)
	assert.Equal(t, FallbackDisabled, p)

	_, err = ParseFallbackPolicy("sometimes")
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestSnapshot_MappedToOrder(t *testing.T) {
	snap := fixture()
	snap.Edges = append(snap.Edges,
		Edge{OutcomeID: 200, Family: FamilyCDIO, TargetID: 4},
		Edge{OutcomeID: 200, Family: FamilyIGA, TargetID: 5},
	)
	snap.References = map[Family]map[int64]Reference{
		FamilySO:   {2: {Family: FamilySO, ID: 2, Code: "SO2"}},
		FamilySDG:  {9: {Family: FamilySDG, ID: 9, Code: "SDG9"}},
		FamilyCDIO: {4: {Family: FamilyCDIO, ID: 4, Code: "C4"}},
		FamilyIGA:  {5: {Family: FamilyIGA, ID: 5, Code: "IGA5"}},
	}

	var got []string
	for _, r := range snap.MappedTo(200) {
		got = append(got, string(r.Family)+":"+r.Code)
	}
	assert.Equal(t, []string{"SO:SO2", "CDIO:C4", "SDG:SDG9", "IGA:IGA5"}, got)
	assert.Empty(t, snap.MappedTo(100))
}
