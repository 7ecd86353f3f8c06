// Package query contains the read operations of the attainment engine (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/domain/shared"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT LOADER
// Loads everything one course offering needs in a single pass. Independent
// reads run concurrently; aggregation starts only once all of them finished.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotLoader builds outcome.Snapshot values from a repository.
type SnapshotLoader struct {
	repo outcome.Repository
	log  *logger.Logger
}

// NewSnapshotLoader creates a loader. A nil logger discards output.
func NewSnapshotLoader(repo outcome.Repository, log *logger.Logger) *SnapshotLoader {
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotLoader{repo: repo, log: log.With(logger.Component("snapshot_loader"))}
}

// Load reads the offering, its approved syllabus and every related row.
// A missing offering yields shared.ErrNotFound. A missing syllabus is not an
// error: the snapshot simply has no outcomes.
func (l *SnapshotLoader) Load(ctx context.Context, courseOfferingID int64) (*outcome.Snapshot, error) {
	start := time.Now()

	offering, err := l.repo.GetCourseOffering(ctx, courseOfferingID)
	if err != nil {
		return nil, loadError(courseOfferingID, "load_offering", err)
	}
	syllabus, err := l.repo.GetApprovedSyllabus(ctx, courseOfferingID)
	if err != nil {
		return nil, loadError(courseOfferingID, "load_syllabus", err)
	}

	snap := &outcome.Snapshot{
		Offering:   *offering,
		Syllabus:   syllabus,
		References: make(map[outcome.Family]map[int64]outcome.Reference, len(outcome.Families)),
	}

	g, gctx := errgroup.WithContext(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// Offering-wide reads
	// ─────────────────────────────────────────────────────────────────────────

	g.Go(func() (err error) {
		snap.Assessments, err = l.repo.ListAssessments(gctx, courseOfferingID)
		return wrapStage(courseOfferingID, "load_assessments", err)
	})
	g.Go(func() (err error) {
		snap.ExplicitWeights, err = l.repo.ListExplicitWeights(gctx, courseOfferingID)
		return wrapStage(courseOfferingID, "load_explicit_weights", err)
	})
	g.Go(func() (err error) {
		snap.Rubrics, err = l.repo.ListRubricLinks(gctx, courseOfferingID)
		return wrapStage(courseOfferingID, "load_rubrics", err)
	})
	g.Go(func() (err error) {
		snap.Enrollments, err = l.repo.ListEnrollments(gctx, courseOfferingID)
		return wrapStage(courseOfferingID, "load_enrollments", err)
	})
	g.Go(func() (err error) {
		snap.Submissions, err = l.repo.ListSubmissions(gctx, courseOfferingID)
		return wrapStage(courseOfferingID, "load_submissions", err)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Syllabus reads, one goroutine per family table
	// ─────────────────────────────────────────────────────────────────────────

	edges := make([][]outcome.Edge, len(outcome.Families))
	refs := make([][]outcome.Reference, len(outcome.Families))
	if syllabus != nil {
		syllabusID := syllabus.ID
		g.Go(func() (err error) {
			snap.Outcomes, err = l.repo.ListOutcomes(gctx, syllabusID)
			return wrapStage(courseOfferingID, "load_outcomes", err)
		})
		for i, family := range outcome.Families {
			g.Go(func() (err error) {
				edges[i], err = l.repo.ListEdges(gctx, family, syllabusID)
				return wrapStage(courseOfferingID, "load_edges:"+family.String(), err)
			})
			g.Go(func() (err error) {
				refs[i], err = l.repo.ListReferences(gctx, family, syllabusID)
				return wrapStage(courseOfferingID, "load_references:"+family.String(), err)
			})
		}
	}

	if err := g.Wait(); err != nil {
		fields := []logger.Field{logger.CourseOfferingID(courseOfferingID), logger.Err(err)}
		var de *shared.DomainError
		if errors.As(err, &de) && de.Stage != "" {
			fields = append(fields, logger.Stage(de.Stage))
		}
		l.log.Warn("snapshot load failed", fields...)
		return nil, err
	}

	for i, family := range outcome.Families {
		snap.Edges = append(snap.Edges, edges[i]...)
		byID := make(map[int64]outcome.Reference, len(refs[i]))
		for _, r := range refs[i] {
			byID[r.ID] = r
		}
		snap.References[family] = byID
	}

	l.log.Debug("snapshot loaded",
		logger.CourseOfferingID(courseOfferingID),
		logger.Bool("has_syllabus", syllabus != nil),
		logger.Int("outcomes", len(snap.Outcomes)),
		logger.Int("assessments", len(snap.Assessments)),
		logger.Int("enrollments", len(snap.Enrollments)),
		logger.Latency(time.Since(start)),
	)
	return snap, nil
}

func wrapStage(courseOfferingID int64, stage string, err error) error {
	if err == nil {
		return nil
	}
	return loadError(courseOfferingID, stage, err)
}

// loadError attaches stage and scope to a repository failure. Kinds raised by
// the repository (NotFound, InvalidArgument) survive; anything else is Internal.
func loadError(courseOfferingID int64, stage string, err error) error {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		de = shared.StageError("query", "LoadSnapshot", stage, err)
	} else if de.Stage == "" {
		de = de.WithStage(stage)
	}
	if de.Scope == "" {
		de = de.WithScope(fmt.Sprintf("course_offering=%d", courseOfferingID))
	}
	return de
}
