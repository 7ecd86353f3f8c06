package cluster

import (
	"sort"

	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
)

// UnclusteredLabel counts assignments that came back without a usable label.
const UnclusteredLabel = "unclustered"

// Apply returns a copy of rows with cluster fields set from the result.
// Students the result does not cover keep nil cluster fields.
func Apply(rows []attainment.StudentRow, res Result) []attainment.StudentRow {
	out := make([]attainment.StudentRow, len(rows))
	for i, row := range rows {
		out[i] = row
		a, ok := res.Clusters[row.StudentID]
		if !ok {
			continue
		}
		if a.ClusterNumber != nil {
			n := *a.ClusterNumber
			out[i].ClusterNumber = &n
		}
		if a.Label != nil {
			l := *a.Label
			out[i].ClusterLabel = &l
		}
	}
	return out
}

// ApplyRoster merges clusters onto every student list of a roster.
func ApplyRoster(r *attainment.Roster, res Result) {
	r.Students = Apply(r.Students, res)
	r.HighPerformanceStudents = Apply(r.HighPerformanceStudents, res)
	r.LowPerformanceStudents = Apply(r.LowPerformanceStudents, res)
	for i := range r.StudentsByRange {
		r.StudentsByRange[i].Students = Apply(r.StudentsByRange[i].Students, res)
	}
}

// LabelCount is one row of a cluster distribution.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Distribution counts students per label, largest first.
func Distribution(res Result) []LabelCount {
	counts := make(map[string]int)
	for _, a := range res.Clusters {
		label := UnclusteredLabel
		if a.Label != nil {
			label = *a.Label
		}
		counts[label]++
	}

	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
