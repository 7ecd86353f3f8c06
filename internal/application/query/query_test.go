package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ──────────────────────────────────────────────────────────────────────────────
// fakes
// ──────────────────────────────────────────────────────────────────────────────

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

type fakeRepo struct {
	mu    sync.Mutex
	calls []string

	offering *outcome.CourseOffering
	syllabus *outcome.Syllabus

	outcomes    []outcome.Outcome
	edges       map[outcome.Family][]outcome.Edge
	refs        map[outcome.Family][]outcome.Reference
	assessments []outcome.Assessment
	weights     []outcome.ExplicitWeight
	rubrics     []outcome.RubricLink
	enrollments []outcome.Enrollment
	submissions []outcome.Submission

	failEdges outcome.Family
}

func (r *fakeRepo) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *fakeRepo) called(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (r *fakeRepo) GetCourseOffering(_ context.Context, id int64) (*outcome.CourseOffering, error) {
	r.record("offering")
	if r.offering == nil || r.offering.ID != id {
		return nil, shared.ErrCourseOfferingNotFound
	}
	o := *r.offering
	return &o, nil
}

func (r *fakeRepo) GetApprovedSyllabus(context.Context, int64) (*outcome.Syllabus, error) {
	r.record("syllabus")
	return r.syllabus, nil
}

func (r *fakeRepo) ListOutcomes(context.Context, int64) ([]outcome.Outcome, error) {
	r.record("outcomes")
	return r.outcomes, nil
}

func (r *fakeRepo) ListEdges(_ context.Context, f outcome.Family, _ int64) ([]outcome.Edge, error) {
	r.record("edges:" + f.String())
	if f == r.failEdges {
		return nil, errors.New("connection reset")
	}
	return r.edges[f], nil
}

func (r *fakeRepo) ListReferences(_ context.Context, f outcome.Family, _ int64) ([]outcome.Reference, error) {
	r.record("references:" + f.String())
	return r.refs[f], nil
}

func (r *fakeRepo) ListAssessments(context.Context, int64) ([]outcome.Assessment, error) {
	r.record("assessments")
	return r.assessments, nil
}

func (r *fakeRepo) ListExplicitWeights(context.Context, int64) ([]outcome.ExplicitWeight, error) {
	r.record("weights")
	return r.weights, nil
}

func (r *fakeRepo) ListRubricLinks(context.Context, int64) ([]outcome.RubricLink, error) {
	r.record("rubrics")
	return r.rubrics, nil
}

func (r *fakeRepo) ListEnrollments(context.Context, int64) ([]outcome.Enrollment, error) {
	r.record("enrollments")
	return r.enrollments, nil
}

func (r *fakeRepo) ListSubmissions(context.Context, int64) ([]outcome.Submission, error) {
	r.record("submissions")
	return r.submissions, nil
}

// newFixture is one offering with outcome ILO1 mapped to SO1, two assessments
// and two enrolled students. Ana scored 80/100 and 50/100, Ben submitted nothing.
func newFixture() *fakeRepo {
	return &fakeRepo{
		offering: &outcome.CourseOffering{ID: 12, TermID: 3, CourseCode: "CS101", CourseTitle: "Intro", SectionCode: "A"},
		syllabus: &outcome.Syllabus{ID: 7, CourseOfferingID: 12},
		outcomes: []outcome.Outcome{{ID: 4, Code: "ILO1", Description: "Design programs", SyllabusID: 7, IsActive: true}},
		edges: map[outcome.Family][]outcome.Edge{
			outcome.FamilySO: {{OutcomeID: 4, Family: outcome.FamilySO, TargetID: 1}},
		},
		refs: map[outcome.Family][]outcome.Reference{
			outcome.FamilySO: {{Family: outcome.FamilySO, ID: 1, Code: "SO1"}},
		},
		assessments: []outcome.Assessment{
			{ID: 101, SyllabusID: i64(7), CourseOfferingID: 12, Title: "Written Assessment 1", TotalPoints: f64(100), WeightPercentage: f64(30), IsPublished: true},
			{ID: 102, SyllabusID: i64(7), CourseOfferingID: 12, Title: "Lab 2", TotalPoints: f64(100), WeightPercentage: f64(20), IsPublished: true},
		},
		enrollments: []outcome.Enrollment{
			{EnrollmentID: 1002, StudentID: 2, FullName: "Ben", Status: outcome.EnrollmentStatusEnrolled},
			{EnrollmentID: 1001, StudentID: 1, FullName: "Ana", Status: outcome.EnrollmentStatusEnrolled},
		},
		submissions: []outcome.Submission{
			{SubmissionID: 1, EnrollmentID: 1001, AssessmentID: 101, TotalScore: f64(80)},
			{SubmissionID: 2, EnrollmentID: 1001, AssessmentID: 102, TotalScore: f64(50)},
		},
	}
}

type fakeGateway struct {
	mu       sync.Mutex
	opts     []cluster.Options
	students [][]cluster.Features
	result   cluster.Result
}

func (g *fakeGateway) Enabled() bool { return true }

func (g *fakeGateway) GetStudentClusters(_ context.Context, students []cluster.Features, opts cluster.Options) cluster.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opts = append(g.opts, opts)
	g.students = append(g.students, students)
	res := g.result
	res.ScopeKey = opts.Scope.Key()
	return res
}

func label(s string) *string { return &s }

// ──────────────────────────────────────────────────────────────────────────────
// snapshot loader
// ──────────────────────────────────────────────────────────────────────────────

func TestSnapshotLoader_LoadsEverything(t *testing.T) {
	repo := newFixture()
	snap, err := NewSnapshotLoader(repo, nil).Load(context.Background(), 12)
	require.NoError(t, err)

	assert.Equal(t, int64(7), snap.Syllabus.ID)
	assert.Len(t, snap.Outcomes, 1)
	assert.Len(t, snap.Edges, 1)
	assert.Len(t, snap.Assessments, 2)
	assert.Len(t, snap.Enrollments, 2)
	assert.Len(t, snap.Submissions, 2)
	assert.Equal(t, "SO1", snap.References[outcome.FamilySO][1].Code)
	for _, f := range outcome.Families {
		assert.NotNil(t, snap.References[f], f)
		assert.True(t, repo.called("edges:"+f.String()), f)
		assert.True(t, repo.called("references:"+f.String()), f)
	}
}

func TestSnapshotLoader_NoSyllabusSkipsOutcomeReads(t *testing.T) {
	repo := newFixture()
	repo.syllabus = nil

	snap, err := NewSnapshotLoader(repo, nil).Load(context.Background(), 12)
	require.NoError(t, err)

	assert.False(t, snap.HasSyllabus())
	assert.Empty(t, snap.Outcomes)
	assert.False(t, repo.called("outcomes"))
	assert.False(t, repo.called("edges:SO"))
	assert.True(t, repo.called("assessments"))
}

func TestSnapshotLoader_MissingOffering(t *testing.T) {
	_, err := NewSnapshotLoader(newFixture(), nil).Load(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))

	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "course_offering=99", de.Scope)
	assert.Equal(t, "load_offering", de.Stage)
}

func TestSnapshotLoader_RepositoryFailureCarriesStage(t *testing.T) {
	repo := newFixture()
	repo.failEdges = outcome.FamilyCDIO

	_, err := NewSnapshotLoader(repo, nil).Load(context.Background(), 12)
	require.Error(t, err)
	assert.True(t, shared.IsInternal(err))

	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "load_edges:CDIO", de.Stage)
	assert.Equal(t, "course_offering=12", de.Scope)
	assert.Contains(t, err.Error(), "connection reset")
}

// ──────────────────────────────────────────────────────────────────────────────
// summary
// ──────────────────────────────────────────────────────────────────────────────

func newSummaryHandler(repo outcome.Repository) *GetOutcomeSummaryHandler {
	return NewGetOutcomeSummaryHandler(
		NewSnapshotLoader(repo, nil),
		outcome.DefaultResolver(),
		attainment.DefaultThresholds(),
		nil,
	)
}

func TestGetOutcomeSummary(t *testing.T) {
	res, err := newSummaryHandler(newFixture()).Handle(context.Background(), GetOutcomeSummaryQuery{CourseOfferingID: 12})
	require.NoError(t, err)

	assert.Equal(t, "CS101", res.CourseCode)
	assert.Equal(t, i64(7), res.SyllabusID)
	assert.Equal(t, 2, res.TotalStudents)
	require.Len(t, res.Outcomes, 1)

	o := res.Outcomes[0]
	assert.Equal(t, "ILO1", o.Code)
	assert.Equal(t, 2, o.AssessmentsCount)
	assert.Equal(t, 0, o.AttainedCount)
	// Ana averages (26.25+13.75)/2, Ben contributes 0.
	assert.InDelta(t, 10.0, o.AverageScore, 1e-9)
	if diff := cmp.Diff([]attainment.MappedRef{{Type: "SO", Code: "SO1"}}, o.MappedTo); diff != "" {
		t.Errorf("mapped_to mismatch (-want +got):\n%s", diff)
	}
}

func TestGetOutcomeSummary_FilterWithoutMatchesIsEmpty(t *testing.T) {
	res, err := newSummaryHandler(newFixture()).Handle(context.Background(), GetOutcomeSummaryQuery{
		CourseOfferingID: 12,
		Filter:           &outcome.StandardFilter{Family: outcome.FamilySDG, TargetID: 5},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, "SDG:5", res.Filter)
}

func TestGetOutcomeSummary_Validation(t *testing.T) {
	h := newSummaryHandler(newFixture())

	tests := []struct {
		name  string
		query GetOutcomeSummaryQuery
	}{
		{"zero offering", GetOutcomeSummaryQuery{}},
		{"low above high", GetOutcomeSummaryQuery{CourseOfferingID: 12, Thresholds: &attainment.Thresholds{Pass: 75, High: 60, Low: 80}}},
		{"threshold above 100", GetOutcomeSummaryQuery{CourseOfferingID: 12, Thresholds: &attainment.Thresholds{Pass: 101, High: 80, Low: 60}}},
		{"unknown family", GetOutcomeSummaryQuery{CourseOfferingID: 12, Filter: &outcome.StandardFilter{Family: "XYZ", TargetID: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.query)
			require.Error(t, err)
			assert.True(t, shared.IsInvalidArgument(err), err)
		})
	}
}

func TestGetOutcomeSummary_NoSyllabus(t *testing.T) {
	repo := newFixture()
	repo.syllabus = nil

	res, err := newSummaryHandler(repo).Handle(context.Background(), GetOutcomeSummaryQuery{CourseOfferingID: 12})
	require.NoError(t, err)
	assert.Nil(t, res.SyllabusID)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, 0.0, res.OverallAttainmentRate)
}

// ──────────────────────────────────────────────────────────────────────────────
// roster
// ──────────────────────────────────────────────────────────────────────────────

func newRosterHandler(repo outcome.Repository, gw ClusterGateway) *GetOutcomeRosterHandler {
	return NewGetOutcomeRosterHandler(
		NewSnapshotLoader(repo, nil),
		outcome.DefaultResolver(),
		gw,
		attainment.DefaultThresholds(),
		nil,
	)
}

func TestGetOutcomeRoster(t *testing.T) {
	res, err := newRosterHandler(newFixture(), nil).Handle(context.Background(), GetOutcomeRosterQuery{
		CourseOfferingID: 12,
		OutcomeID:        4,
	})
	require.NoError(t, err)

	assert.Equal(t, "ILO1", res.OutcomeCode)
	assert.Equal(t, 2, res.TotalStudents)
	assert.Nil(t, res.Clustering)
	require.Len(t, res.Students, 2)

	ana := res.Students[0]
	assert.Equal(t, "Ana", ana.FullName)
	assert.InDelta(t, 40.0, ana.ILOScore, 1e-9)
	assert.Equal(t, attainment.StatusNotAttained, ana.AttainmentStatus)

	ben := res.Students[1]
	assert.Equal(t, "Ben", ben.FullName)
	assert.Equal(t, 0.0, ben.OverallAttainmentRate)
}

func TestGetOutcomeRoster_UnknownOutcome(t *testing.T) {
	_, err := newRosterHandler(newFixture(), nil).Handle(context.Background(), GetOutcomeRosterQuery{
		CourseOfferingID: 12,
		OutcomeID:        40,
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestGetOutcomeRoster_InvalidPerformance(t *testing.T) {
	_, err := newRosterHandler(newFixture(), nil).Handle(context.Background(), GetOutcomeRosterQuery{
		CourseOfferingID: 12,
		OutcomeID:        4,
		Performance:      "medium",
	})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestGetOutcomeRoster_AttachesClusters(t *testing.T) {
	generated := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{result: cluster.Result{
		Clusters: map[int64]cluster.Assignment{
			1: {StudentID: 1, Label: label("Excelling")},
		},
		APICalled:   true,
		State:       cluster.StateFresh,
		GeneratedAt: &generated,
	}}

	res, err := newRosterHandler(newFixture(), gw).Handle(context.Background(), GetOutcomeRosterQuery{
		CourseOfferingID: 12,
		OutcomeID:        4,
		IncludeClusters:  true,
		ForceRefresh:     true,
	})
	require.NoError(t, err)

	require.Len(t, gw.opts, 1)
	assert.True(t, gw.opts[0].ForceRefresh)
	assert.Equal(t, cluster.OfferingScope(12, 3, "").Key(), gw.opts[0].Scope.Key())

	want := []cluster.Features{
		{StudentID: 1, AverageScore: f64(65), SubmissionRate: f64(100)},
		{StudentID: 2, SubmissionRate: f64(0)},
	}
	if diff := cmp.Diff(want, gw.students[0]); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.Students, 2)
	require.NotNil(t, res.Students[0].ClusterLabel)
	assert.Equal(t, "Excelling", *res.Students[0].ClusterLabel)
	assert.Nil(t, res.Students[1].ClusterLabel)

	require.NotNil(t, res.Clustering)
	assert.True(t, res.Clustering.Enabled)
	assert.True(t, res.Clustering.APICalled)
	assert.Equal(t, []cluster.LabelCount{{Label: "Excelling", Count: 1}}, res.Clustering.Distribution)
}

func TestGetOutcomeRoster_ClusteringDisabledIsMetadata(t *testing.T) {
	res, err := newRosterHandler(newFixture(), nil).Handle(context.Background(), GetOutcomeRosterQuery{
		CourseOfferingID: 12,
		OutcomeID:        4,
		IncludeClusters:  true,
	})
	require.NoError(t, err)

	require.NotNil(t, res.Clustering)
	assert.False(t, res.Clustering.Enabled)
	assert.True(t, res.Clustering.Unavailable)
	require.NotNil(t, res.Clustering.Error)
	assert.Equal(t, "clustering disabled", *res.Clustering.Error)
	assert.Len(t, res.Students, 2)
}

// ──────────────────────────────────────────────────────────────────────────────
// student clusters
// ──────────────────────────────────────────────────────────────────────────────

func TestGetStudentClusters_StudentSetScope(t *testing.T) {
	gw := &fakeGateway{result: cluster.Result{
		Clusters: map[int64]cluster.Assignment{
			5: {StudentID: 5, Label: label("At Risk")},
			6: {StudentID: 6, Label: label("At Risk")},
			7: {StudentID: 7},
		},
		State: cluster.StateFresh,
	}}
	h := NewGetStudentClustersHandler(gw, nil)

	q := GetStudentClustersQuery{
		TermID:   3,
		Students: []cluster.Features{{StudentID: 7}, {StudentID: 5}, {StudentID: 6}},
	}
	res, err := h.Handle(context.Background(), q)
	require.NoError(t, err)

	want := cluster.StudentSetScope([]int64{5, 6, 7}, 3, "").Key()
	assert.Equal(t, want, res.ScopeKey)
	assert.Equal(t, []cluster.LabelCount{
		{Label: "At Risk", Count: 2},
		{Label: cluster.UnclusteredLabel, Count: 1},
	}, res.Distribution)
}

func TestGetStudentClusters_OfferingScope(t *testing.T) {
	gw := &fakeGateway{}
	h := NewGetStudentClustersHandler(gw, nil)

	_, err := h.Handle(context.Background(), GetStudentClustersQuery{
		TermID:           3,
		CourseOfferingID: i64(12),
		StandardFilter:   "SO:1",
		Students:         []cluster.Features{{StudentID: 1}},
		TTL:              time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, gw.opts, 1)
	assert.Equal(t, cluster.OfferingScope(12, 3, "SO:1").Key(), gw.opts[0].Scope.Key())
	assert.Equal(t, time.Hour, gw.opts[0].TTL)
}

func TestGetStudentClusters_Validation(t *testing.T) {
	h := NewGetStudentClustersHandler(&fakeGateway{}, nil)

	tests := []struct {
		name  string
		query GetStudentClustersQuery
	}{
		{"duplicate student", GetStudentClustersQuery{Students: []cluster.Features{{StudentID: 1}, {StudentID: 1}}}},
		{"zero student", GetStudentClustersQuery{Students: []cluster.Features{{StudentID: 0}}}},
		{"bad offering", GetStudentClustersQuery{CourseOfferingID: i64(0)}},
		{"negative ttl", GetStudentClustersQuery{TTL: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.query)
			require.Error(t, err)
			assert.True(t, shared.IsInvalidArgument(err))
		})
	}
}

func TestGetStudentClusters_Disabled(t *testing.T) {
	res, err := NewGetStudentClustersHandler(nil, nil).Handle(context.Background(), GetStudentClustersQuery{
		TermID:   3,
		Students: []cluster.Features{{StudentID: 1}},
	})
	require.NoError(t, err)
	assert.True(t, res.Unavailable)
	assert.Empty(t, res.Clusters)
	assert.False(t, res.APICalled)
}
