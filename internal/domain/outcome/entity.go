// Package outcome contains the learning-outcome taxonomy and the rules that
// connect assessments to outcomes.
package outcome

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Outcome is an intended learning outcome owned by one syllabus.
type Outcome struct {
	ID          int64
	Code        string
	Description string
	SyllabusID  int64
	IsActive    bool
}

// Edge maps an outcome to one target in a standard family.
// AssessmentTasks optionally restricts the edge to specific task codes.
type Edge struct {
	OutcomeID       int64
	Family          Family
	TargetID        int64
	AssessmentTasks []string
}

// AppliesToTask reports whether the edge accepts the given task code.
// An edge with no task list accepts every task.
func (e Edge) AppliesToTask(code string) bool {
	if len(e.AssessmentTasks) == 0 {
		return true
	}
	return e.ListsTask(code)
}

// ListsTask reports whether code appears in the edge's task list.
func (e Edge) ListsTask(code string) bool {
	code = NormalizeCode(code)
	if code == "" {
		return false
	}
	for _, t := range e.AssessmentTasks {
		if NormalizeCode(t) == code {
			return true
		}
	}
	return false
}

// Reference describes a target in a standard family, e.g. SO 3.
type Reference struct {
	Family      Family
	ID          int64
	Code        string
	Description string
}

// Assessment is a graded item in a course offering.
type Assessment struct {
	ID               int64
	SyllabusID       *int64
	CourseOfferingID int64
	Title            string
	Type             string
	ContentData      map[string]any
	TotalPoints      *float64
	WeightPercentage *float64
	DueDate          *time.Time
	IsPublished      bool
}

// Weight returns the weight percentage, or 0 when absent.
func (a Assessment) Weight() float64 {
	if a.WeightPercentage == nil {
		return 0
	}
	return *a.WeightPercentage
}

// Points returns the total points, or 0 when absent.
func (a Assessment) Points() float64 {
	if a.TotalPoints == nil {
		return 0
	}
	return *a.TotalPoints
}

// Eligible reports whether the assessment may contribute to any outcome.
// Only published assessments with a positive weight qualify.
func (a Assessment) Eligible() bool {
	return a.IsPublished && a.Weight() > 0
}

// Submission is one student's result on one assessment.
type Submission struct {
	SubmissionID    int64
	EnrollmentID    int64
	AssessmentID    int64
	TotalScore      *float64
	AdjustedScore   *float64
	TransmutedScore *float64
}

// HasScore reports whether any score column is set.
func (s Submission) HasScore() bool {
	return s.TotalScore != nil || s.AdjustedScore != nil || s.TransmutedScore != nil
}

// EnrollmentStatusEnrolled is the only status that counts for aggregation.
const EnrollmentStatusEnrolled = "enrolled"

// Enrollment links a student to a course offering.
type Enrollment struct {
	EnrollmentID  int64
	StudentID     int64
	StudentNumber string
	FullName      string
	Status        string
}

// Active reports whether the enrollment counts for aggregation.
func (e Enrollment) Active() bool {
	return e.Status == EnrollmentStatusEnrolled
}

// CourseOffering is one section of a course in a term.
type CourseOffering struct {
	ID          int64
	TermID      int64
	CourseCode  string
	CourseTitle string
	SectionCode string
}

// Syllabus is the approved syllabus of a course offering.
type Syllabus struct {
	ID                  int64
	CourseOfferingID    int64
	AssessmentFramework map[string]any
}

// ExplicitWeight is a row linking an assessment to an outcome with its own weight.
type ExplicitWeight struct {
	AssessmentID     int64
	OutcomeID        int64
	WeightPercentage *float64
}

// RubricLink ties an assessment to an outcome through a grading rubric.
type RubricLink struct {
	AssessmentID int64
	OutcomeID    int64
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Source names the strategy that produced a connection.
type Source string

const (
	SourceExplicitWeight   Source = "explicit_weight"
	SourceRubric           Source = "rubric"
	SourceTaskCode         Source = "task_code"
	SourceSyllabusFallback Source = "syllabus_fallback"
)

// Connection says an assessment counts toward an outcome with an effective weight.
type Connection struct {
	AssessmentID    int64
	OutcomeID       int64
	EffectiveWeight float64
	Source          Source
	TaskCode        string
}
