package attainment

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

func f64(v float64) *float64 { return &v }

// snapshot builds one offering with outcome 100 connected to assessments 1
// (weight 30) and 2 (weight 20), both out of 100 points.
func snapshot(enrollments []outcome.Enrollment, subs []outcome.Submission) *outcome.Snapshot {
	syl := int64(10)
	mk := func(id int64, title string, weight float64) outcome.Assessment {
		return outcome.Assessment{
			ID: id, SyllabusID: &syl, CourseOfferingID: 1, Title: title,
			TotalPoints: f64(100), WeightPercentage: f64(weight), IsPublished: true,
		}
	}
	return &outcome.Snapshot{
		Offering:    outcome.CourseOffering{ID: 1, TermID: 3, CourseCode: "CS101", CourseTitle: "Programming", SectionCode: "A"},
		Syllabus:    &outcome.Syllabus{ID: 10, CourseOfferingID: 1},
		Outcomes:    []outcome.Outcome{{ID: 100, Code: "ILO1", Description: "Write programs", SyllabusID: 10, IsActive: true}},
		Edges:       []outcome.Edge{{OutcomeID: 100, Family: outcome.FamilySO, TargetID: 1}},
		References:  map[outcome.Family]map[int64]outcome.Reference{outcome.FamilySO: {1: {Family: outcome.FamilySO, ID: 1, Code: "SO1"}}},
		Assessments: []outcome.Assessment{mk(1, "Essay", 30), mk(2, "Quiz", 20)},
		Enrollments: enrollments,
		Submissions: subs,
	}
}

func enrolled(id int64, name string) outcome.Enrollment {
	return outcome.Enrollment{EnrollmentID: id * 10, StudentID: id, StudentNumber: name, FullName: name, Status: outcome.EnrollmentStatusEnrolled}
}

func scored(enrollmentID, assessmentID int64, score float64) outcome.Submission {
	return outcome.Submission{SubmissionID: enrollmentID*100 + assessmentID, EnrollmentID: enrollmentID, AssessmentID: assessmentID, TotalScore: f64(score)}
}

func resolve(t *testing.T, snap *outcome.Snapshot) []outcome.Connection {
	t.Helper()
	conns, err := outcome.DefaultResolver().Resolve(snap, outcome.ResolveRequest{})
	require.NoError(t, err)
	return conns
}

func defaultParams() RosterParams {
	return RosterParams{Thresholds: DefaultThresholds(), Performance: FilterAll}
}

func TestBuildRoster_EndToEndExample(t *testing.T) {
	snap := snapshot(
		[]outcome.Enrollment{enrolled(1, "Ana")},
		[]outcome.Submission{scored(10, 1, 80), scored(10, 2, 50)},
	)

	r, err := BuildRoster(snap, snap.Outcomes[0], resolve(t, snap), defaultParams())
	require.NoError(t, err)
	require.Len(t, r.Students, 1)

	st := r.Students[0]
	// ((80/100)*62.5+37.5)*0.30 = 26.25 and ((50/100)*62.5+37.5)*0.20 = 13.75
	assert.Equal(t, 40.0, st.ILOScore)
	assert.Equal(t, 65.0, st.OverallAttainmentRate)
	assert.Equal(t, Range60to69, st.PercentageRange)
	assert.Equal(t, StatusNotAttained, st.AttainmentStatus)
	assert.Equal(t, LevelMedium, st.PerformanceLevel)
	assert.Equal(t, 50.0, st.TotalILOWeight)
	assert.Equal(t, 2, st.AssessmentsCount)
	require.Len(t, st.AssessmentScores, 2)
	assert.InDelta(t, 26.25, st.AssessmentScores[0].TransmutedScore, 1e-9)
	assert.InDelta(t, 13.75, st.AssessmentScores[1].TransmutedScore, 1e-9)

	assert.Equal(t, []MappedRef{{Type: "SO", Code: "SO1"}}, r.MappedTo)
	assert.Equal(t, "CS101", r.CourseCode)
	assert.Equal(t, 0, r.AttainedCount)
	assert.Equal(t, 2, r.AssessmentCount)
	assert.Equal(t, 80.0, r.Assessments[0].AveragePercentage)
	assert.Equal(t, 1, r.Assessments[0].SubmissionsCount)
}

func TestBuildRoster_BoundaryAt80(t *testing.T) {
	snap := snapshot(
		[]outcome.Enrollment{enrolled(1, "Ana")},
		[]outcome.Submission{scored(10, 1, 80), scored(10, 2, 80)},
	)

	r, err := BuildRoster(snap, snap.Outcomes[0], resolve(t, snap), defaultParams())
	require.NoError(t, err)

	st := r.Students[0]
	assert.Equal(t, 80.0, st.OverallAttainmentRate)
	assert.Equal(t, Range80to89, st.PercentageRange)
	assert.Equal(t, LevelHigh, st.PerformanceLevel)
	assert.Equal(t, StatusAttained, st.AttainmentStatus)
}

func TestBuildRoster_NoDisappearance(t *testing.T) {
	dropped := enrolled(3, "Cid")
	dropped.Status = "dropped"
	snap := snapshot(
		[]outcome.Enrollment{enrolled(1, "Ana"), enrolled(2, "Ben"), dropped},
		[]outcome.Submission{scored(10, 1, 95)},
	)

	r, err := BuildRoster(snap, snap.Outcomes[0], resolve(t, snap), defaultParams())
	require.NoError(t, err)

	require.Len(t, r.Students, 2)
	assert.Equal(t, 2, r.TotalStudents)

	ben := r.Students[1]
	assert.Equal(t, "Ben", ben.FullName)
	assert.Equal(t, 0.0, ben.OverallAttainmentRate)
	assert.Equal(t, 0.0, ben.ILOScore)
	assert.Equal(t, Range0to49, ben.PercentageRange)
	assert.Empty(t, ben.AssessmentScores)
	assert.NotNil(t, ben.AssessmentScores)
}

func TestBuildRoster_FilterAfterBucketing(t *testing.T) {
	snap := snapshot(
		[]outcome.Enrollment{enrolled(1, "Ana"), enrolled(2, "Ben"), enrolled(3, "Cid")},
		[]outcome.Submission{
			scored(10, 1, 95), scored(10, 2, 92),
			scored(20, 1, 70), scored(20, 2, 66),
			scored(30, 1, 30), scored(30, 2, 20),
		},
	)
	params := defaultParams()
	params.Performance = FilterHigh

	r, err := BuildRoster(snap, snap.Outcomes[0], resolve(t, snap), params)
	require.NoError(t, err)

	require.Len(t, r.Students, 1)
	assert.Equal(t, "Ana", r.Students[0].FullName)

	want := map[string]int{Range90to100: 1, Range80to89: 0, Range70to79: 0, Range60to69: 1, Range50to59: 0, Range0to49: 1}
	if diff := cmp.Diff(want, r.RangeDistribution); diff != "" {
		t.Fatalf("range distribution (-want +got):\n%s", diff)
	}

	require.Len(t, r.StudentsByRange, 1)
	assert.Equal(t, Range90to100, r.StudentsByRange[0].Range)
	assert.Equal(t, 1, r.StudentsByRange[0].Count)

	assert.Len(t, r.HighPerformanceStudents, 1)
	assert.Len(t, r.LowPerformanceStudents, 1)
	assert.Equal(t, 3, r.TotalStudents)
}

func TestBuildRoster_InvalidInputs(t *testing.T) {
	snap := snapshot(nil, nil)
	conns := resolve(t, snap)

	_, err := BuildRoster(snap, snap.Outcomes[0], conns, RosterParams{Thresholds: DefaultThresholds(), Performance: "medium"})
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = BuildRoster(snap, snap.Outcomes[0], conns, RosterParams{Thresholds: Thresholds{Pass: 75, High: 50, Low: 60}})
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestSummarize(t *testing.T) {
	snap := snapshot(
		[]outcome.Enrollment{enrolled(1, "Ana"), enrolled(2, "Ben"), enrolled(3, "Cid")},
		[]outcome.Submission{
			// Ana: precomputed 30 and 20 -> mean 25
			{SubmissionID: 8, EnrollmentID: 10, AssessmentID: 1, TransmutedScore: f64(30)},
			{SubmissionID: 9, EnrollmentID: 10, AssessmentID: 2, TransmutedScore: f64(20)},
			// Ben: only assessment 1 at 100 -> 30
			scored(20, 1, 100),
		},
	)

	th := Thresholds{Pass: 25, High: 28, Low: 10}
	s, err := Summarize(snap, resolve(t, snap), th)
	require.NoError(t, err)
	require.Len(t, s.Outcomes, 1)

	o := s.Outcomes[0]
	assert.Equal(t, 3, o.TotalStudents)
	assert.Equal(t, 2, o.AttainedCount)
	assert.Equal(t, 1, o.HighCount)
	assert.Equal(t, 1, o.LowCount)
	assert.Equal(t, 66.67, o.AttainmentPercentage)
	assert.Equal(t, 18.33, o.AverageScore)
	assert.Equal(t, 2, o.AssessmentsCount)
	assert.False(t, o.NoMappings)
	assert.Equal(t, 66.67, s.OverallAttainmentRate)
}

func TestSummarize_SkipsUnconnectedAndFlagsNoMappings(t *testing.T) {
	snap := snapshot([]outcome.Enrollment{enrolled(1, "Ana")}, nil)
	snap.Edges = nil
	snap.Outcomes = append(snap.Outcomes, outcome.Outcome{ID: 200, Code: "ILO2", SyllabusID: 99, IsActive: true})

	s, err := Summarize(snap, resolve(t, snap), DefaultThresholds())
	require.NoError(t, err)
	require.Len(t, s.Outcomes, 1)
	assert.True(t, s.Outcomes[0].NoMappings)
	assert.Empty(t, s.Outcomes[0].MappedTo)
	assert.Equal(t, 0.0, s.Outcomes[0].AttainmentPercentage)
}

func TestSummarize_OrdersByCode(t *testing.T) {
	snap := snapshot([]outcome.Enrollment{enrolled(1, "Ana")}, nil)
	snap.Outcomes = []outcome.Outcome{
		{ID: 100, Code: "ILO3", SyllabusID: 10, IsActive: true},
		{ID: 300, Code: "ILO1", SyllabusID: 10, IsActive: true},
		{ID: 200, Code: "ILO1", SyllabusID: 10, IsActive: true},
		{ID: 400, Code: "ILO2", SyllabusID: 10, IsActive: true},
	}
	var conns []outcome.Connection
	for _, o := range snap.Outcomes {
		conns = append(conns, outcome.Connection{AssessmentID: 1, OutcomeID: o.ID, EffectiveWeight: 30, Source: outcome.SourceExplicitWeight})
	}

	s, err := Summarize(snap, conns, DefaultThresholds())
	require.NoError(t, err)

	var got []int64
	for _, o := range s.Outcomes {
		got = append(got, o.OutcomeID)
	}
	if diff := cmp.Diff([]int64{200, 300, 400, 100}, got); diff != "" {
		t.Errorf("outcome order (-want +got):\n%s", diff)
	}
}

func TestThresholds(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Pass: 101, High: 80, Low: 60}.Validate())
	assert.Error(t, Thresholds{Pass: 75, High: 80, Low: -1}.Validate())
	assert.NoError(t, Thresholds{Pass: 0, High: 50, Low: 50}.Validate())

	th := DefaultThresholds()
	assert.Equal(t, LevelHigh, th.Level(80))
	assert.Equal(t, LevelMedium, th.Level(60))
	assert.Equal(t, LevelLow, th.Level(59.99))
}

func TestRangeFor(t *testing.T) {
	cases := map[float64]string{
		100: Range90to100, 90: Range90to100, 89.99: Range80to89, 80: Range80to89,
		79.99: Range70to79, 70: Range70to79, 60: Range60to69, 50: Range50to59, 49.99: Range0to49, 0: Range0to49,
	}
	for rate, want := range cases {
		assert.Equal(t, want, RangeFor(rate), "rate %v", rate)
	}
}

func TestParsePerformanceFilter(t *testing.T) {
	f, err := ParsePerformanceFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParsePerformanceFilter("HIGH")
	require.NoError(t, err)
	assert.Equal(t, FilterHigh, f)

	_, err = ParsePerformanceFilter("top")
	assert.True(t, shared.IsInvalidArgument(err))
}
