package outcome

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// SCORE TRANSMUTATION
// Maps a score onto the 37.5-100 scale, pre-weighted by the assessment's share
// of the course grade.
// ══════════════════════════════════════════════════════════════════════════════

const (
	transmuteSlope = 62.5
	transmuteFloor = 37.5
)

// TransmuteScore applies ((score/total)*62.5+37.5)*(weight/100).
// Returns nil unless total > 0 and weight > 0.
func TransmuteScore(score, total, weight float64) *float64 {
	if total <= 0 || weight <= 0 {
		return nil
	}
	v := ((score/total)*transmuteSlope + transmuteFloor) * (weight / 100)
	return &v
}

// Transmute returns the transmuted score of a submission.
//
// Priority: the precomputed transmuted score, then the adjusted score, then the
// raw total score. Returns nil when none applies.
func Transmute(sub Submission, a Assessment) *float64 {
	if sub.TransmutedScore != nil {
		v := *sub.TransmutedScore
		return &v
	}
	if sub.AdjustedScore != nil {
		if v := TransmuteScore(*sub.AdjustedScore, a.Points(), a.Weight()); v != nil {
			return v
		}
	}
	if sub.TotalScore != nil {
		return TransmuteScore(*sub.TotalScore, a.Points(), a.Weight())
	}
	return nil
}

// InversePercentage recovers score/total*100 from a transmuted score.
// Defined only when weight > 0 and transmuted > 0.
func InversePercentage(transmuted, weight float64) *float64 {
	if weight <= 0 || transmuted <= 0 {
		return nil
	}
	v := ((transmuted / (weight / 100)) - transmuteFloor) / transmuteSlope * 100
	return &v
}

// DisplayPercentage returns the percentage shown for one submission.
// A precomputed transmuted score is inverted; otherwise adjusted or raw score
// over total points.
func DisplayPercentage(sub Submission, a Assessment) *float64 {
	total := a.Points()
	if total <= 0 {
		return nil
	}
	if sub.TransmutedScore != nil {
		if p := InversePercentage(*sub.TransmutedScore, a.Weight()); p != nil {
			return p
		}
	}
	if sub.AdjustedScore != nil {
		v := *sub.AdjustedScore / total * 100
		return &v
	}
	if sub.TotalScore != nil {
		v := *sub.TotalScore / total * 100
		return &v
	}
	return nil
}

// RawScore is total_score, then adjusted_score, then 0.
func RawScore(sub Submission) float64 {
	switch {
	case sub.TotalScore != nil:
		return *sub.TotalScore
	case sub.AdjustedScore != nil:
		return *sub.AdjustedScore
	default:
		return 0
	}
}

// Scored reports whether a submission counts as a scored attempt.
func Scored(sub Submission, a Assessment) bool {
	if !sub.HasScore() {
		return false
	}
	return RawScore(sub) > 0 || DisplayPercentage(sub, a) != nil
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
