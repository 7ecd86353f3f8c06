package query

import (
	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
)

// StudentFeatures derives clustering inputs for every enrolled student from
// the offering's eligible assessments.
//
// average_score is the mean display percentage over scored submissions and
// submission_rate the share of eligible assessments with a scored submission.
// The snapshot carries no attendance or lateness data, so those stay nil.
func StudentFeatures(snap *outcome.Snapshot) []cluster.Features {
	var eligible []outcome.Assessment
	for _, a := range snap.Assessments {
		if a.Eligible() && a.CourseOfferingID == snap.Offering.ID {
			eligible = append(eligible, a)
		}
	}
	subs := snap.IndexSubmissions()

	students := snap.ActiveEnrollments()
	out := make([]cluster.Features, 0, len(students))
	for _, st := range students {
		f := cluster.Features{StudentID: st.StudentID}

		var (
			pctSum float64
			pctN   int
			scored int
		)
		for _, a := range eligible {
			sub, ok := subs.Lookup(st.EnrollmentID, a.ID)
			if !ok || !outcome.Scored(sub, a) {
				continue
			}
			scored++
			if p := outcome.DisplayPercentage(sub, a); p != nil {
				pctSum += *p
				pctN++
			}
		}

		if pctN > 0 {
			avg := outcome.Round2(pctSum / float64(pctN))
			f.AverageScore = &avg
		}
		if len(eligible) > 0 {
			rate := outcome.Round2(float64(scored) / float64(len(eligible)) * 100)
			f.SubmissionRate = &rate
		}
		out = append(out, f)
	}
	return out
}
