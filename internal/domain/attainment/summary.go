package attainment

import (
	"cmp"
	"slices"

	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-OUTCOME SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// MappedRef is one family reference of an outcome, e.g. {SO, SO3}.
type MappedRef struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// MappedRefs converts references to mapped_to entries.
func MappedRefs(refs []outcome.Reference) []MappedRef {
	out := make([]MappedRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, MappedRef{Type: string(r.Family), Code: r.Code})
	}
	return out
}

// OutcomeSummary is the attainment of one outcome across all enrolled students.
type OutcomeSummary struct {
	OutcomeID            int64       `json:"ilo_id"`
	Code                 string      `json:"ilo_code"`
	Description          string      `json:"description"`
	MappedTo             []MappedRef `json:"mapped_to"`
	NoMappings           bool        `json:"no_mappings"`
	TotalStudents        int         `json:"total_students"`
	AttainedCount        int         `json:"attained_count"`
	HighCount            int         `json:"high_performance_count"`
	LowCount             int         `json:"low_performance_count"`
	AttainmentPercentage float64     `json:"attainment_percentage"`
	AverageScore         float64     `json:"average_score"`
	AssessmentsCount     int         `json:"assessments_count"`
}

// Summary is the per-outcome report of a course offering.
type Summary struct {
	Outcomes              []OutcomeSummary `json:"outcomes"`
	OverallAttainmentRate float64          `json:"overall_attainment_rate"`
	TotalStudents         int              `json:"total_students"`
	Thresholds            Thresholds       `json:"thresholds"`
}

// Summarize builds one summary per outcome that has at least one connection,
// ordered by outcome code and then ID.
//
// A student's value for an outcome is the mean of their non-null transmuted
// scores over the outcome's assessments, or 0 when there are none. Counts:
// attained when value >= pass, high when value >= high, low when
// low <= value < high.
func Summarize(snap *outcome.Snapshot, conns []outcome.Connection, th Thresholds) (*Summary, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}

	students := snap.ActiveEnrollments()
	assessments := snap.AssessmentByID()
	subs := snap.IndexSubmissions()
	grouped := outcome.GroupByOutcome(conns)

	summary := &Summary{
		Outcomes:      make([]OutcomeSummary, 0, len(grouped)),
		TotalStudents: len(students),
		Thresholds:    th,
	}

	var pctSum float64
	for _, o := range snap.Outcomes {
		oc := grouped[o.ID]
		if len(oc) == 0 {
			continue
		}

		refs := MappedRefs(snap.MappedTo(o.ID))
		s := OutcomeSummary{
			OutcomeID:        o.ID,
			Code:             o.Code,
			Description:      o.Description,
			MappedTo:         refs,
			NoMappings:       len(refs) == 0,
			TotalStudents:    len(students),
			AssessmentsCount: len(oc),
		}

		var valueSum float64
		for _, st := range students {
			v := studentMean(st, oc, assessments, subs)
			valueSum += v
			if th.Attained(v) {
				s.AttainedCount++
			}
			if v >= th.High {
				s.HighCount++
			} else if v >= th.Low {
				s.LowCount++
			}
		}

		if len(students) > 0 {
			s.AttainmentPercentage = outcome.Round2(float64(s.AttainedCount) / float64(len(students)) * 100)
			s.AverageScore = outcome.Round2(valueSum / float64(len(students)))
		}
		pctSum += s.AttainmentPercentage
		summary.Outcomes = append(summary.Outcomes, s)
	}

	slices.SortFunc(summary.Outcomes, func(a, b OutcomeSummary) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.OutcomeID, b.OutcomeID))
	})

	if n := len(summary.Outcomes); n > 0 {
		summary.OverallAttainmentRate = outcome.Round2(pctSum / float64(n))
	}
	return summary, nil
}

func studentMean(
	st outcome.Enrollment,
	conns []outcome.Connection,
	assessments map[int64]outcome.Assessment,
	subs outcome.SubmissionIndex,
) float64 {
	var sum float64
	var n int
	for _, c := range conns {
		a, ok := assessments[c.AssessmentID]
		if !ok {
			continue
		}
		sub, ok := subs.Lookup(st.EnrollmentID, c.AssessmentID)
		if !ok {
			continue
		}
		if v := outcome.Transmute(sub, a); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
