package cluster

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Scope identifies which students a cached result applies to: either a course
// offering or an explicit student set, plus the term and an optional standard
// filter. Scopes are immutable values.
type Scope struct {
	CourseOfferingID *int64 `json:"course_offering_id,omitempty"`
	TermID           int64  `json:"term_id"`
	Filter           string `json:"standard_filter,omitempty"`
	StudentSetHash   string `json:"student_set_hash,omitempty"`
}

// OfferingScope scopes a result to a course offering.
func OfferingScope(courseOfferingID, termID int64, filter string) Scope {
	id := courseOfferingID
	return Scope{CourseOfferingID: &id, TermID: termID, Filter: filter}
}

// StudentSetScope scopes a result to a set of students. Order and duplicates
// do not change the scope.
func StudentSetScope(studentIDs []int64, termID int64, filter string) Scope {
	return Scope{TermID: termID, Filter: filter, StudentSetHash: HashStudentSet(studentIDs)}
}

// HashStudentSet returns the hex BLAKE2b-256 of the sorted, de-duplicated ids.
func HashStudentSet(studentIDs []int64) string {
	ids := append([]int64(nil), studentIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte(',')
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Key returns the stable cache key of the scope.
func (s Scope) Key() string {
	var b strings.Builder
	if s.CourseOfferingID != nil {
		fmt.Fprintf(&b, "offering:%d", *s.CourseOfferingID)
	} else {
		fmt.Fprintf(&b, "set:%s", s.StudentSetHash)
	}
	fmt.Fprintf(&b, ":term:%d", s.TermID)
	if s.Filter != "" {
		fmt.Fprintf(&b, ":filter:%s", s.Filter)
	}
	return b.String()
}

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// State is the cache state of one scope.
type State string

const (
	// StateEmpty: nothing cached; the service must be called.
	StateEmpty State = "empty"
	// StateFresh: the entry is younger than the TTL; no remote call.
	StateFresh State = "fresh"
	// StateStale: the entry is at least TTL old; refresh, serve it on failure.
	StateStale State = "stale"
)

// Classify returns the state of an entry at now. A non-positive TTL makes
// every entry stale.
func Classify(e *Entry, now time.Time, ttl time.Duration) State {
	switch {
	case e == nil:
		return StateEmpty
	case ttl > 0 && e.Age(now) < ttl:
		return StateFresh
	default:
		return StateStale
	}
}
