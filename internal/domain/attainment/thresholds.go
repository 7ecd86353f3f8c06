// Package attainment aggregates transmuted scores into per-outcome summaries and
// per-student rosters.
package attainment

import (
	"fmt"
	"strings"

	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLDS
// ══════════════════════════════════════════════════════════════════════════════

// Default thresholds, in percent.
const (
	DefaultPassThreshold = 75.0
	DefaultHighThreshold = 80.0
	DefaultLowThreshold  = 60.0
)

// Thresholds are the caller-supplied cut-offs, in percent.
type Thresholds struct {
	Pass float64 `json:"pass" yaml:"pass"`
	High float64 `json:"high" yaml:"high"`
	Low  float64 `json:"low" yaml:"low"`
}

// DefaultThresholds returns pass 75, high 80, low 60.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Pass: DefaultPassThreshold,
		High: DefaultHighThreshold,
		Low:  DefaultLowThreshold,
	}
}

// Validate checks every threshold is in [0,100] and low <= high.
func (t Thresholds) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{{"pass", t.Pass}, {"high", t.High}, {"low", t.Low}}
	for _, c := range checks {
		if c.v < 0 || c.v > 100 {
			return shared.ErrInvalidThresholds.WithScope(fmt.Sprintf("%s=%v", c.name, c.v))
		}
	}
	if t.Low > t.High {
		return shared.ErrInvalidThresholds.WithScope(fmt.Sprintf("low=%v high=%v", t.Low, t.High))
	}
	return nil
}

// Level classifies a rate: high if >= High, low if < Low, otherwise medium.
func (t Thresholds) Level(rate float64) PerformanceLevel {
	switch {
	case rate >= t.High:
		return LevelHigh
	case rate < t.Low:
		return LevelLow
	default:
		return LevelMedium
	}
}

// Attained reports whether a value meets the pass threshold.
func (t Thresholds) Attained(v float64) bool {
	return v >= t.Pass
}

// ──────────────────────────────────────────────────────────────────────────────
// Enums
// ──────────────────────────────────────────────────────────────────────────────

// PerformanceLevel is a student's band relative to the high and low thresholds.
type PerformanceLevel string

const (
	LevelHigh   PerformanceLevel = "high"
	LevelMedium PerformanceLevel = "medium"
	LevelLow    PerformanceLevel = "low"
)

// Status is attained or not_attained.
type Status string

const (
	StatusAttained    Status = "attained"
	StatusNotAttained Status = "not_attained"
)

// PerformanceFilter restricts the roster's student list.
type PerformanceFilter string

const (
	FilterAll  PerformanceFilter = "all"
	FilterHigh PerformanceFilter = "high"
	FilterLow  PerformanceFilter = "low"
)

// ParsePerformanceFilter parses all|high|low. Empty means all.
func ParsePerformanceFilter(s string) (PerformanceFilter, error) {
	switch f := PerformanceFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterHigh, FilterLow:
		return f, nil
	}
	return "", shared.ErrInvalidPerformance.WithScope(fmt.Sprintf("performance=%q", s))
}

// Keeps reports whether a student at the given level passes the filter.
func (f PerformanceFilter) Keeps(level PerformanceLevel) bool {
	switch f {
	case FilterHigh:
		return level == LevelHigh
	case FilterLow:
		return level == LevelLow
	default:
		return true
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Percentage ranges
// ──────────────────────────────────────────────────────────────────────────────

// Range labels, highest first.
const (
	Range90to100 = "90-100"
	Range80to89  = "80-89"
	Range70to79  = "70-79"
	Range60to69  = "60-69"
	Range50to59  = "50-59"
	Range0to49   = "0-49"
)

// RangeOrder lists range labels highest first.
var RangeOrder = []string{Range90to100, Range80to89, Range70to79, Range60to69, Range50to59, Range0to49}

// RangeFor buckets a rate. Lower bounds are inclusive.
func RangeFor(rate float64) string {
	switch {
	case rate >= 90:
		return Range90to100
	case rate >= 80:
		return Range80to89
	case rate >= 70:
		return Range70to79
	case rate >= 60:
		return Range60to69
	case rate >= 50:
		return Range50to59
	default:
		return Range0to49
	}
}
