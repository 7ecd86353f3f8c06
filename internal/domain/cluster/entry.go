// Package cluster fronts the external clustering service with a per-scope
// cache modelled as a small state machine (Empty, Fresh, Stale).
package cluster

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Features is the behavioural feature vector of one student.
type Features struct {
	StudentID            int64    `json:"student_id"`
	AttendancePercentage *float64 `json:"attendance_percentage"`
	AverageScore         *float64 `json:"average_score"`
	AverageDaysLate      *float64 `json:"average_days_late"`
	SubmissionRate       *float64 `json:"submission_rate"`
}

// Assignment is the cluster a student was placed in.
// A nil Label means the service returned no usable label.
type Assignment struct {
	StudentID     int64    `json:"student_id"`
	ClusterNumber *int     `json:"cluster_number,omitempty"`
	Label         *string  `json:"cluster_label"`
	Features      Features `json:"features"`
}

// NormalizeLabel maps "", "nan" and "null" (any case) to nil.
func NormalizeLabel(label string) *string {
	l := strings.TrimSpace(label)
	switch strings.ToLower(l) {
	case "", "nan", "null":
		return nil
	}
	return &l
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one cached clustering result. An entry is never modified after
// NewEntry returns; a refresh builds a new entry with a new ID.
type Entry struct {
	ID              uuid.UUID            `json:"id"`
	Scope           Scope                `json:"scope"`
	Assignments     map[int64]Assignment `json:"assignments"`
	GeneratedAt     time.Time            `json:"generated_at"`
	SilhouetteScore *float64             `json:"silhouette_score,omitempty"`
}

// NewEntry builds an entry from assignments. The map is copied.
func NewEntry(scope Scope, assignments []Assignment, silhouette *float64, generatedAt time.Time) *Entry {
	m := make(map[int64]Assignment, len(assignments))
	for _, a := range assignments {
		m[a.StudentID] = a
	}
	return &Entry{
		ID:              uuid.New(),
		Scope:           scope,
		Assignments:     m,
		GeneratedAt:     generatedAt.UTC(),
		SilhouetteScore: copyFloat(silhouette),
	}
}

// Key returns the entry's scope key.
func (e *Entry) Key() string {
	return e.Scope.Key()
}

// Age returns how old the entry is at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.GeneratedAt)
}

// Clusters returns a copy of the assignments.
func (e *Entry) Clusters() map[int64]Assignment {
	out := make(map[int64]Assignment, len(e.Assignments))
	for k, v := range e.Assignments {
		out[k] = v
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
