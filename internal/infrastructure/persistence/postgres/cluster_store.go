package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLUSTER STORE
// ══════════════════════════════════════════════════════════════════════════════

// Algorithm metadata written alongside every entry.
const (
	clusterAlgorithm    = "remote"
	clusterModelVersion = "v1"
)

// clusterCacheSchema creates the cache table. One row holds one scope; the
// assignments live in cluster_data.
const clusterCacheSchema = `
CREATE TABLE IF NOT EXISTS student_cluster_cache (
    cache_key         TEXT PRIMARY KEY,
    section_course_id BIGINT,
    term_id           BIGINT NOT NULL,
    standard_filter   TEXT,
    student_set_hash  TEXT,
    entry_id          UUID NOT NULL,
    cluster_data      JSONB NOT NULL,
    silhouette_score  DOUBLE PRECISION,
    algorithm_used    TEXT NOT NULL,
    model_version     TEXT NOT NULL,
    generated_at      TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_student_cluster_cache_offering
    ON student_cluster_cache(section_course_id, term_id)
    WHERE section_course_id IS NOT NULL;
`

const loadClusterEntrySQL = `
	SELECT entry_id, section_course_id, term_id, standard_filter, student_set_hash,
	       cluster_data, silhouette_score, generated_at
	FROM student_cluster_cache
	WHERE cache_key = $1
`

// saveClusterEntrySQL replaces the whole entry of one scope.
const saveClusterEntrySQL = `
	INSERT INTO student_cluster_cache
		(cache_key, section_course_id, term_id, standard_filter, student_set_hash,
		 entry_id, cluster_data, silhouette_score, algorithm_used, model_version, generated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (cache_key) DO UPDATE SET
		section_course_id = EXCLUDED.section_course_id,
		term_id = EXCLUDED.term_id,
		standard_filter = EXCLUDED.standard_filter,
		student_set_hash = EXCLUDED.student_set_hash,
		entry_id = EXCLUDED.entry_id,
		cluster_data = EXCLUDED.cluster_data,
		silhouette_score = EXCLUDED.silhouette_score,
		algorithm_used = EXCLUDED.algorithm_used,
		model_version = EXCLUDED.model_version,
		generated_at = EXCLUDED.generated_at
`

// ClusterStore implements cluster.Store on the student_cluster_cache table,
// keyed by scope key.
type ClusterStore struct {
	conn *Connection
}

// NewClusterStore creates a new ClusterStore.
func NewClusterStore(conn *Connection) *ClusterStore {
	return &ClusterStore{conn: conn}
}

var _ cluster.Store = (*ClusterStore)(nil)

// EnsureSchema creates the cache table when it is missing.
func (s *ClusterStore) EnsureSchema(ctx context.Context) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clusterCacheSchema); err != nil {
			return fmt.Errorf("%w: student_cluster_cache: %v", ErrMigrationFailed, err)
		}
		return nil
	})
}

// Load implements cluster.Store.
func (s *ClusterStore) Load(ctx context.Context, key string) (*cluster.Entry, error) {
	var (
		row clusterRow
		raw []byte
	)
	err := s.conn.QueryRow(ctx, loadClusterEntrySQL, key).Scan(
		&row.entryID,
		&row.offeringID,
		&row.termID,
		&row.filter,
		&row.studentSetHash,
		&raw,
		&row.silhouette,
		&row.generatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load clusters %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, &row.assignments); err != nil {
		return nil, fmt.Errorf("decode clusters %s: %w", key, err)
	}
	return row.entry(), nil
}

// Save implements cluster.Store. The row of the previous entry for the same
// scope is replaced; other scopes are never touched.
func (s *ClusterStore) Save(ctx context.Context, entry *cluster.Entry) error {
	args, err := saveClusterArgs(entry)
	if err != nil {
		return err
	}
	if err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, saveClusterEntrySQL, args...)
		return err
	}); err != nil {
		return fmt.Errorf("save clusters %s: %w", entry.Key(), err)
	}
	return nil
}

// clusterRow is one scanned student_cluster_cache row.
type clusterRow struct {
	entryID        uuid.UUID
	offeringID     *int64
	termID         int64
	filter         *string
	studentSetHash *string
	assignments    []cluster.Assignment
	silhouette     *float64
	generatedAt    time.Time
}

func (r clusterRow) entry() *cluster.Entry {
	scope := cluster.Scope{CourseOfferingID: r.offeringID, TermID: r.termID}
	if r.filter != nil {
		scope.Filter = *r.filter
	}
	if r.studentSetHash != nil {
		scope.StudentSetHash = *r.studentSetHash
	}

	e := &cluster.Entry{
		ID:              r.entryID,
		Scope:           scope,
		Assignments:     make(map[int64]cluster.Assignment, len(r.assignments)),
		GeneratedAt:     r.generatedAt.UTC(),
		SilhouetteScore: r.silhouette,
	}
	for _, a := range r.assignments {
		a.Label = normalizeStoredLabel(a.Label)
		a.Features.StudentID = a.StudentID
		e.Assignments[a.StudentID] = a
	}
	return e
}

func normalizeStoredLabel(label *string) *string {
	if label == nil {
		return nil
	}
	return cluster.NormalizeLabel(*label)
}

// saveClusterArgs lays out the parameters of saveClusterEntrySQL. The cache
// key comes first and is the conflict target.
func saveClusterArgs(entry *cluster.Entry) ([]any, error) {
	assignments := make([]cluster.Assignment, 0, len(entry.Assignments))
	for _, a := range entry.Assignments {
		assignments = append(assignments, a)
	}
	slices.SortFunc(assignments, func(a, b cluster.Assignment) int {
		return cmp.Compare(a.StudentID, b.StudentID)
	})

	data, err := json.Marshal(assignments)
	if err != nil {
		return nil, fmt.Errorf("encode clusters %s: %w", entry.Key(), err)
	}

	return []any{
		entry.Key(),
		entry.Scope.CourseOfferingID,
		entry.Scope.TermID,
		nullIfEmpty(entry.Scope.Filter),
		nullIfEmpty(entry.Scope.StudentSetHash),
		entry.ID,
		data,
		entry.SilhouetteScore,
		clusterAlgorithm,
		clusterModelVersion,
		entry.GeneratedAt,
	}, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
