package attainment

import (
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-OUTCOME STUDENT ROSTER
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentScore is one scored assessment of one student.
type AssessmentScore struct {
	AssessmentID        int64   `json:"assessment_id"`
	Title               string  `json:"assessment_title"`
	RawScore            float64 `json:"raw_score"`
	MaxScore            float64 `json:"max_score"`
	ScorePercentage     float64 `json:"score_percentage"`
	TransmutedScore     float64 `json:"transmuted_score"`
	WeightPercentage    float64 `json:"weight_percentage"`
	ILOWeightPercentage float64 `json:"ilo_weight_percentage"`
}

// StudentRow is one enrolled student in a roster.
type StudentRow struct {
	StudentID             int64             `json:"student_id"`
	EnrollmentID          int64             `json:"enrollment_id"`
	StudentNumber         string            `json:"student_number"`
	FullName              string            `json:"full_name"`
	ILOScore              float64           `json:"ilo_score"`
	OverallAttainmentRate float64           `json:"overall_attainment_rate"`
	AssessmentsCount      int               `json:"assessments_count"`
	TotalILOWeight        float64           `json:"total_ilo_weight"`
	AttainmentStatus      Status            `json:"attainment_status"`
	PerformanceLevel      PerformanceLevel  `json:"performance_level"`
	PercentageRange       string            `json:"percentage_range"`
	AssessmentScores      []AssessmentScore `json:"assessment_scores"`

	ClusterNumber *int    `json:"cluster_number,omitempty"`
	ClusterLabel  *string `json:"cluster_label,omitempty"`
}

// AssessmentStat describes one connected assessment across the class.
type AssessmentStat struct {
	AssessmentID        int64   `json:"assessment_id"`
	Title               string  `json:"title"`
	TotalPoints         float64 `json:"total_points"`
	WeightPercentage    float64 `json:"weight_percentage"`
	ILOWeightPercentage float64 `json:"ilo_weight_percentage"`
	TotalStudents       int     `json:"total_students"`
	SubmissionsCount    int     `json:"submissions_count"`
	AveragePercentage   float64 `json:"average_percentage"`
}

// RangeGroup lists the students of one percentage range.
type RangeGroup struct {
	Range    string       `json:"range"`
	Count    int          `json:"count"`
	Students []StudentRow `json:"students"`
}

// Roster is the per-student report of one outcome.
type Roster struct {
	OutcomeID        int64       `json:"ilo_id"`
	OutcomeCode      string      `json:"ilo_code"`
	Description      string      `json:"description"`
	CourseOfferingID int64       `json:"section_course_id"`
	CourseTitle      string      `json:"course_title"`
	CourseCode       string      `json:"course_code"`
	SectionCode      string      `json:"section_code"`
	MappedTo         []MappedRef `json:"mapped_to"`

	TotalStudents   int              `json:"total_students"`
	AttainedCount   int              `json:"attained_count"`
	Assessments     []AssessmentStat `json:"assessments"`
	AssessmentCount int              `json:"assessment_count"`

	Students                []StudentRow   `json:"students"`
	HighPerformanceStudents []StudentRow   `json:"high_performance_students"`
	LowPerformanceStudents  []StudentRow   `json:"low_performance_students"`
	StudentsByRange         []RangeGroup   `json:"students_by_range"`
	RangeDistribution       map[string]int `json:"range_distribution"`

	Thresholds  Thresholds        `json:"thresholds"`
	Performance PerformanceFilter `json:"performance_filter"`
}

// RosterParams controls roster classification and filtering.
type RosterParams struct {
	Thresholds  Thresholds
	Performance PerformanceFilter
}

// BuildRoster computes the roster of one outcome from its connections.
//
// Every enrolled student appears, even with no scored assessment (rate 0).
// Students are bucketed before the performance filter runs, so
// RangeDistribution always counts the whole class.
func BuildRoster(snap *outcome.Snapshot, o outcome.Outcome, conns []outcome.Connection, p RosterParams) (*Roster, error) {
	if err := p.Thresholds.Validate(); err != nil {
		return nil, err
	}
	filter, err := ParsePerformanceFilter(string(p.Performance))
	if err != nil {
		return nil, err
	}

	students := snap.ActiveEnrollments()
	assessments := snap.AssessmentByID()
	subs := snap.IndexSubmissions()

	var own []outcome.Connection
	for _, c := range conns {
		if c.OutcomeID == o.ID {
			if _, ok := assessments[c.AssessmentID]; ok {
				own = append(own, c)
			}
		}
	}

	r := &Roster{
		OutcomeID:        o.ID,
		OutcomeCode:      o.Code,
		Description:      o.Description,
		CourseOfferingID: snap.Offering.ID,
		CourseTitle:      snap.Offering.CourseTitle,
		CourseCode:       snap.Offering.CourseCode,
		SectionCode:      snap.Offering.SectionCode,
		MappedTo:         MappedRefs(snap.MappedTo(o.ID)),
		TotalStudents:    len(students),
		Assessments:      assessmentStats(students, own, assessments, subs),
		Thresholds:       p.Thresholds,
		Performance:      filter,
	}
	r.AssessmentCount = len(r.Assessments)

	all := make([]StudentRow, 0, len(students))
	for _, st := range students {
		row := studentRow(st, own, assessments, subs, p.Thresholds)
		if row.AttainmentStatus == StatusAttained {
			r.AttainedCount++
		}
		all = append(all, row)
	}

	r.Students = make([]StudentRow, 0, len(all))
	r.HighPerformanceStudents = make([]StudentRow, 0)
	r.LowPerformanceStudents = make([]StudentRow, 0)
	for _, row := range all {
		if filter.Keeps(row.PerformanceLevel) {
			r.Students = append(r.Students, row)
		}
		switch row.PerformanceLevel {
		case LevelHigh:
			r.HighPerformanceStudents = append(r.HighPerformanceStudents, row)
		case LevelLow:
			r.LowPerformanceStudents = append(r.LowPerformanceStudents, row)
		}
	}

	r.StudentsByRange = GroupByRange(r.Students)
	r.RangeDistribution = RangeDistribution(all)
	return r, nil
}

func studentRow(
	st outcome.Enrollment,
	conns []outcome.Connection,
	assessments map[int64]outcome.Assessment,
	subs outcome.SubmissionIndex,
	th Thresholds,
) StudentRow {
	row := StudentRow{
		StudentID:        st.StudentID,
		EnrollmentID:     st.EnrollmentID,
		StudentNumber:    st.StudentNumber,
		FullName:         st.FullName,
		AssessmentScores: make([]AssessmentScore, 0, len(conns)),
	}

	var rawSum, maxSum, transmutedSum, weightSum float64
	for _, c := range conns {
		a := assessments[c.AssessmentID]
		sub, ok := subs.Lookup(st.EnrollmentID, c.AssessmentID)
		if !ok || !outcome.Scored(sub, a) {
			continue
		}

		score := AssessmentScore{
			AssessmentID:        a.ID,
			Title:               a.Title,
			RawScore:            outcome.RawScore(sub),
			MaxScore:            a.Points(),
			WeightPercentage:    a.Weight(),
			ILOWeightPercentage: c.EffectiveWeight,
		}
		if pct := outcome.DisplayPercentage(sub, a); pct != nil {
			score.ScorePercentage = *pct
		}
		if tr := outcome.Transmute(sub, a); tr != nil {
			score.TransmutedScore = *tr
		}
		row.AssessmentScores = append(row.AssessmentScores, score)

		rawSum += score.RawScore
		maxSum += score.MaxScore
		transmutedSum += score.TransmutedScore
		weightSum += score.ILOWeightPercentage
	}

	if maxSum > 0 {
		row.OverallAttainmentRate = outcome.Round2(rawSum / maxSum * 100)
	}
	row.ILOScore = outcome.Round2(transmutedSum)
	row.TotalILOWeight = outcome.Round2(weightSum)
	row.AssessmentsCount = len(row.AssessmentScores)

	row.AttainmentStatus = StatusNotAttained
	if th.Attained(row.OverallAttainmentRate) {
		row.AttainmentStatus = StatusAttained
	}
	row.PerformanceLevel = th.Level(row.OverallAttainmentRate)
	row.PercentageRange = RangeFor(row.OverallAttainmentRate)
	return row
}

func assessmentStats(
	students []outcome.Enrollment,
	conns []outcome.Connection,
	assessments map[int64]outcome.Assessment,
	subs outcome.SubmissionIndex,
) []AssessmentStat {
	out := make([]AssessmentStat, 0, len(conns))
	for _, c := range conns {
		a := assessments[c.AssessmentID]
		stat := AssessmentStat{
			AssessmentID:        a.ID,
			Title:               a.Title,
			TotalPoints:         a.Points(),
			WeightPercentage:    a.Weight(),
			ILOWeightPercentage: c.EffectiveWeight,
			TotalStudents:       len(students),
		}

		var pctSum float64
		var pctN int
		for _, st := range students {
			sub, ok := subs.Lookup(st.EnrollmentID, a.ID)
			if !ok || !sub.HasScore() {
				continue
			}
			stat.SubmissionsCount++
			if pct := outcome.DisplayPercentage(sub, a); pct != nil {
				pctSum += *pct
				pctN++
			}
		}
		if pctN > 0 {
			stat.AveragePercentage = outcome.Round2(pctSum / float64(pctN))
		}
		out = append(out, stat)
	}
	return out
}

// GroupByRange groups students by percentage range, highest first, dropping
// empty ranges.
func GroupByRange(rows []StudentRow) []RangeGroup {
	byRange := make(map[string][]StudentRow, len(RangeOrder))
	for _, row := range rows {
		byRange[row.PercentageRange] = append(byRange[row.PercentageRange], row)
	}
	out := make([]RangeGroup, 0, len(RangeOrder))
	for _, label := range RangeOrder {
		if members := byRange[label]; len(members) > 0 {
			out = append(out, RangeGroup{Range: label, Count: len(members), Students: members})
		}
	}
	return out
}

// RangeDistribution counts students per range, including empty ranges.
func RangeDistribution(rows []StudentRow) map[string]int {
	out := make(map[string]int, len(RangeOrder))
	for _, label := range RangeOrder {
		out[label] = 0
	}
	for _, row := range rows {
		out[row.PercentageRange]++
	}
	return out
}
