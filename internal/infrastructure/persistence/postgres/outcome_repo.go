package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OutcomeRepository implements outcome.Repository for PostgreSQL.
type OutcomeRepository struct {
	db Querier
}

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(db Querier) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

var _ outcome.Repository = (*OutcomeRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Offering and syllabus
// ─────────────────────────────────────────────────────────────────────────────

// GetCourseOffering returns the section course with its course and section.
func (r *OutcomeRepository) GetCourseOffering(ctx context.Context, courseOfferingID int64) (*outcome.CourseOffering, error) {
	query := `
		SELECT sc.section_course_id, COALESCE(sc.term_id, 0), c.title, c.course_code, s.section_code
		FROM section_courses sc
		INNER JOIN courses c ON sc.course_id = c.course_id
		INNER JOIN sections s ON sc.section_id = s.section_id
		WHERE sc.section_course_id = $1
	`

	var co outcome.CourseOffering
	err := r.db.QueryRow(ctx, query, courseOfferingID).Scan(
		&co.ID,
		&co.TermID,
		&co.CourseTitle,
		&co.CourseCode,
		&co.SectionCode,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseOfferingNotFound.WithScope(offeringScope(courseOfferingID))
		}
		return nil, stageError("GetCourseOffering", "load_offering", err)
	}
	return &co, nil
}

// GetApprovedSyllabus returns the newest syllabus that passed both review and
// approval, or nil when there is none.
func (r *OutcomeRepository) GetApprovedSyllabus(ctx context.Context, courseOfferingID int64) (*outcome.Syllabus, error) {
	query := `
		SELECT syllabus_id, section_course_id, assessment_framework
		FROM syllabi
		WHERE section_course_id = $1
		  AND review_status = 'approved'
		  AND approval_status = 'approved'
		ORDER BY syllabus_id DESC
		LIMIT 1
	`

	var (
		s   outcome.Syllabus
		raw []byte
	)
	err := r.db.QueryRow(ctx, query, courseOfferingID).Scan(&s.ID, &s.CourseOfferingID, &raw)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, stageError("GetApprovedSyllabus", "load_syllabus", err)
	}

	framework, err := decodeObject(raw)
	if err != nil {
		return nil, stageError("GetApprovedSyllabus", "decode_framework", err)
	}
	s.AssessmentFramework = framework
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Outcomes and family mappings
// ─────────────────────────────────────────────────────────────────────────────

// ListOutcomes returns the active outcomes of a syllabus.
func (r *OutcomeRepository) ListOutcomes(ctx context.Context, syllabusID int64) ([]outcome.Outcome, error) {
	query := `
		SELECT ilo_id, code, COALESCE(description, ''), syllabus_id, is_active
		FROM ilos
		WHERE syllabus_id = $1 AND is_active = TRUE
		ORDER BY ilo_id
	`

	rows, err := r.db.Query(ctx, query, syllabusID)
	if err != nil {
		return nil, stageError("ListOutcomes", "load_outcomes", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.Outcome, error) {
		var o outcome.Outcome
		err := row.Scan(&o.ID, &o.Code, &o.Description, &o.SyllabusID, &o.IsActive)
		return o, err
	})
	if err != nil {
		return nil, stageError("ListOutcomes", "scan_outcomes", err)
	}
	return out, nil
}

// edgesQuery builds the mapping query of one family. Only identifiers from
// outcome.Layout are interpolated; values are bound as parameters.
func edgesQuery(l outcome.Layout) string {
	return fmt.Sprintf(`
		SELECT m.ilo_id, m.%[2]s, COALESCE(m.assessment_tasks, '{}'::text[])
		FROM %[1]s m
		INNER JOIN ilos i ON i.ilo_id = m.ilo_id
		WHERE i.syllabus_id = $1
		ORDER BY m.ilo_id, m.%[2]s
	`, l.MappingTable, l.TargetColumn)
}

func referencesQuery(l outcome.Layout) string {
	return fmt.Sprintf(`
		SELECT DISTINCT ref.%[3]s, ref.%[4]s, COALESCE(ref.%[5]s, '')
		FROM %[2]s ref
		INNER JOIN %[1]s m ON m.%[3]s = ref.%[3]s
		INNER JOIN ilos i ON i.ilo_id = m.ilo_id
		WHERE i.syllabus_id = $1
		ORDER BY ref.%[4]s
	`, l.MappingTable, l.ReferenceTable, l.TargetColumn, l.CodeColumn, l.DescColumn)
}

// ListEdges returns the family mappings of a syllabus' outcomes.
func (r *OutcomeRepository) ListEdges(ctx context.Context, family outcome.Family, syllabusID int64) ([]outcome.Edge, error) {
	if !family.IsValid() {
		return nil, shared.ErrInvalidFamily.WithScope(fmt.Sprintf("family=%q", family))
	}
	stage := "load_edges:" + family.String()

	rows, err := r.db.Query(ctx, edgesQuery(family.Layout()), syllabusID)
	if err != nil {
		return nil, stageError("ListEdges", stage, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.Edge, error) {
		e := outcome.Edge{Family: family}
		err := row.Scan(&e.OutcomeID, &e.TargetID, &e.AssessmentTasks)
		return e, err
	})
	if err != nil {
		return nil, stageError("ListEdges", stage, err)
	}
	return out, nil
}

// ListReferences returns the family targets a syllabus' outcomes map to.
func (r *OutcomeRepository) ListReferences(ctx context.Context, family outcome.Family, syllabusID int64) ([]outcome.Reference, error) {
	if !family.IsValid() {
		return nil, shared.ErrInvalidFamily.WithScope(fmt.Sprintf("family=%q", family))
	}
	stage := "load_references:" + family.String()

	rows, err := r.db.Query(ctx, referencesQuery(family.Layout()), syllabusID)
	if err != nil {
		return nil, stageError("ListReferences", stage, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.Reference, error) {
		ref := outcome.Reference{Family: family}
		err := row.Scan(&ref.ID, &ref.Code, &ref.Description)
		return ref, err
	})
	if err != nil {
		return nil, stageError("ListReferences", stage, err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Assessments and links
// ─────────────────────────────────────────────────────────────────────────────

// ListAssessments returns every assessment of the offering, published or not.
func (r *OutcomeRepository) ListAssessments(ctx context.Context, courseOfferingID int64) ([]outcome.Assessment, error) {
	query := `
		SELECT
			assessment_id, syllabus_id, section_course_id, title, COALESCE(type, ''),
			content_data, total_points::float8, weight_percentage::float8, due_date,
			COALESCE(is_published, FALSE)
		FROM assessments
		WHERE section_course_id = $1
		ORDER BY assessment_id
	`

	rows, err := r.db.Query(ctx, query, courseOfferingID)
	if err != nil {
		return nil, stageError("ListAssessments", "load_assessments", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.Assessment, error) {
		var (
			a   outcome.Assessment
			raw []byte
		)
		if err := row.Scan(
			&a.ID,
			&a.SyllabusID,
			&a.CourseOfferingID,
			&a.Title,
			&a.Type,
			&raw,
			&a.TotalPoints,
			&a.WeightPercentage,
			&a.DueDate,
			&a.IsPublished,
		); err != nil {
			return a, err
		}
		content, err := decodeObject(raw)
		if err != nil {
			return a, fmt.Errorf("assessment %d content_data: %w", a.ID, err)
		}
		a.ContentData = content
		return a, nil
	})
	if err != nil {
		return nil, stageError("ListAssessments", "scan_assessments", err)
	}
	return out, nil
}

// ListExplicitWeights returns the assessment_ilo_weights rows of the offering.
// Deployments without the table have no explicit weights.
func (r *OutcomeRepository) ListExplicitWeights(ctx context.Context, courseOfferingID int64) ([]outcome.ExplicitWeight, error) {
	query := `
		SELECT aiw.assessment_id, aiw.ilo_id, aiw.weight_percentage::float8
		FROM assessment_ilo_weights aiw
		INNER JOIN assessments a ON a.assessment_id = aiw.assessment_id
		WHERE a.section_course_id = $1
		ORDER BY aiw.assessment_id, aiw.ilo_id
	`

	rows, err := r.db.Query(ctx, query, courseOfferingID)
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, stageError("ListExplicitWeights", "load_explicit_weights", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.ExplicitWeight, error) {
		var w outcome.ExplicitWeight
		err := row.Scan(&w.AssessmentID, &w.OutcomeID, &w.WeightPercentage)
		return w, err
	})
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, stageError("ListExplicitWeights", "load_explicit_weights", err)
	}
	return out, nil
}

// ListRubricLinks returns the distinct (assessment, outcome) pairs of rubrics.
func (r *OutcomeRepository) ListRubricLinks(ctx context.Context, courseOfferingID int64) ([]outcome.RubricLink, error) {
	query := `
		SELECT DISTINCT r.assessment_id, r.ilo_id
		FROM rubrics r
		INNER JOIN assessments a ON a.assessment_id = r.assessment_id
		WHERE a.section_course_id = $1 AND r.ilo_id IS NOT NULL
		ORDER BY r.assessment_id, r.ilo_id
	`

	rows, err := r.db.Query(ctx, query, courseOfferingID)
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, stageError("ListRubricLinks", "load_rubrics", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.RubricLink, error) {
		var l outcome.RubricLink
		err := row.Scan(&l.AssessmentID, &l.OutcomeID)
		return l, err
	})
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, stageError("ListRubricLinks", "load_rubrics", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Students and scores
// ─────────────────────────────────────────────────────────────────────────────

// ListEnrollments returns enrolled students of the offering.
func (r *OutcomeRepository) ListEnrollments(ctx context.Context, courseOfferingID int64) ([]outcome.Enrollment, error) {
	query := `
		SELECT ce.enrollment_id, ce.student_id, COALESCE(s.student_number, ''), COALESCE(s.full_name, ''), ce.status
		FROM course_enrollments ce
		INNER JOIN students s ON s.student_id = ce.student_id
		WHERE ce.section_course_id = $1 AND ce.status = $2
		ORDER BY s.full_name, ce.student_id
	`

	rows, err := r.db.Query(ctx, query, courseOfferingID, outcome.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, stageError("ListEnrollments", "load_enrollments", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.Enrollment, error) {
		var e outcome.Enrollment
		err := row.Scan(&e.EnrollmentID, &e.StudentID, &e.StudentNumber, &e.FullName, &e.Status)
		return e, err
	})
	if err != nil {
		return nil, stageError("ListEnrollments", "scan_enrollments", err)
	}
	return out, nil
}

// ListSubmissions returns every submission on the offering's assessments.
func (r *OutcomeRepository) ListSubmissions(ctx context.Context, courseOfferingID int64) ([]outcome.Submission, error) {
	query := `
		SELECT
			sub.submission_id, sub.enrollment_id, sub.assessment_id,
			sub.total_score::float8, sub.adjusted_score::float8, sub.transmuted_score::float8
		FROM submissions sub
		INNER JOIN assessments a ON a.assessment_id = sub.assessment_id
		WHERE a.section_course_id = $1
		ORDER BY sub.submission_id
	`

	rows, err := r.db.Query(ctx, query, courseOfferingID)
	if err != nil {
		return nil, stageError("ListSubmissions", "load_submissions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outcome.Submission, error) {
		var s outcome.Submission
		err := row.Scan(
			&s.SubmissionID,
			&s.EnrollmentID,
			&s.AssessmentID,
			&s.TotalScore,
			&s.AdjustedScore,
			&s.TransmutedScore,
		)
		return s, err
	})
	if err != nil {
		return nil, stageError("ListSubmissions", "scan_submissions", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func stageError(op, stage string, err error) error {
	return shared.StageError("outcome_repository", op, stage, err)
}

func offeringScope(id int64) string {
	return fmt.Sprintf("course_offering=%d", id)
}

// decodeObject decodes a JSON object column. NULL and non-object values
// decode to nil.
func decodeObject(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}
