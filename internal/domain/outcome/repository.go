package outcome

import (
	"context"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository reads the data of one course offering.
// The implementation lives in the infrastructure layer (PostgreSQL).
// All reads are side-effect free.
type Repository interface {
	// GetCourseOffering returns shared.ErrNotFound when the offering is missing.
	GetCourseOffering(ctx context.Context, courseOfferingID int64) (*CourseOffering, error)

	// GetApprovedSyllabus returns the latest approved syllabus, or nil without
	// error when the offering has none.
	GetApprovedSyllabus(ctx context.Context, courseOfferingID int64) (*Syllabus, error)

	// ListOutcomes returns the active outcomes of a syllabus ordered by id.
	ListOutcomes(ctx context.Context, syllabusID int64) ([]Outcome, error)

	// ListEdges returns the family edges of every outcome in a syllabus.
	ListEdges(ctx context.Context, family Family, syllabusID int64) ([]Edge, error)

	// ListReferences returns the family targets referenced by a syllabus' outcomes.
	ListReferences(ctx context.Context, family Family, syllabusID int64) ([]Reference, error)

	// ListAssessments returns every assessment of the offering.
	ListAssessments(ctx context.Context, courseOfferingID int64) ([]Assessment, error)

	// ListExplicitWeights returns assessment_ilo_weights rows of the offering.
	ListExplicitWeights(ctx context.Context, courseOfferingID int64) ([]ExplicitWeight, error)

	// ListRubricLinks returns rubric rows that tie assessments to outcomes.
	ListRubricLinks(ctx context.Context, courseOfferingID int64) ([]RubricLink, error)

	// ListEnrollments returns enrollments with status 'enrolled'.
	ListEnrollments(ctx context.Context, courseOfferingID int64) ([]Enrollment, error)

	// ListSubmissions returns submissions of the offering's assessments.
	ListSubmissions(ctx context.Context, courseOfferingID int64) ([]Submission, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is everything the resolver and aggregator need for one offering.
// It is built once per request and treated as read-only.
type Snapshot struct {
	Offering        CourseOffering
	Syllabus        *Syllabus
	Outcomes        []Outcome
	Edges           []Edge
	References      map[Family]map[int64]Reference
	Assessments     []Assessment
	ExplicitWeights []ExplicitWeight
	Rubrics         []RubricLink
	Enrollments     []Enrollment
	Submissions     []Submission
}

// HasSyllabus reports whether the offering has an approved syllabus.
func (s *Snapshot) HasSyllabus() bool {
	return s.Syllabus != nil
}

// Framework returns the syllabus assessment framework, or nil.
func (s *Snapshot) Framework() map[string]any {
	if s.Syllabus == nil {
		return nil
	}
	return s.Syllabus.AssessmentFramework
}

// FindOutcome returns the outcome with the given id.
func (s *Snapshot) FindOutcome(id int64) (Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// AssessmentByID indexes assessments by id.
func (s *Snapshot) AssessmentByID() map[int64]Assessment {
	out := make(map[int64]Assessment, len(s.Assessments))
	for _, a := range s.Assessments {
		out[a.ID] = a
	}
	return out
}

// ActiveEnrollments returns the enrolled students ordered by full name then id.
func (s *Snapshot) ActiveEnrollments() []Enrollment {
	out := make([]Enrollment, 0, len(s.Enrollments))
	for _, e := range s.Enrollments {
		if e.Active() {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// SubmissionIndex maps (enrollment, assessment) to its submission.
type SubmissionIndex map[[2]int64]Submission

// IndexSubmissions builds a SubmissionIndex. When duplicates exist the
// highest submission id wins.
func (s *Snapshot) IndexSubmissions() SubmissionIndex {
	idx := make(SubmissionIndex, len(s.Submissions))
	for _, sub := range s.Submissions {
		key := [2]int64{sub.EnrollmentID, sub.AssessmentID}
		if prev, ok := idx[key]; ok && prev.SubmissionID > sub.SubmissionID {
			continue
		}
		idx[key] = sub
	}
	return idx
}

// Lookup returns the submission for an enrollment and assessment.
func (idx SubmissionIndex) Lookup(enrollmentID, assessmentID int64) (Submission, bool) {
	sub, ok := idx[[2]int64{enrollmentID, assessmentID}]
	return sub, ok
}

// MappedTo returns the family references of an outcome in mapped_to order.
func (s *Snapshot) MappedTo(outcomeID int64) []Reference {
	var out []Reference
	seen := make(map[[2]string]bool)
	for _, e := range s.Edges {
		if e.OutcomeID != outcomeID {
			continue
		}
		ref, ok := s.References[e.Family][e.TargetID]
		if !ok {
			continue
		}
		key := [2]string{string(ref.Family), ref.Code}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Family.Order() != out[j].Family.Order() {
			return out[i].Family.Order() < out[j].Family.Order()
		}
		return out[i].Code < out[j].Code
	})
	return out
}
