package main

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/attainment-engine/internal/application/query"
	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
)

var (
	offeringID   int64
	outcomeID    int64
	performance  string
	family       string
	targetID     int64
	withClusters bool
	forceRefresh bool
	clusterTTL   time.Duration
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the outcome attainment summary of a course offering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := standardFilter()
		if err != nil {
			return err
		}

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.summary.Handle(cmd.Context(), query.GetOutcomeSummaryQuery{
			CourseOfferingID: offeringID,
			Filter:           filter,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Print the per-student roster of one outcome",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		perf, err := attainment.ParsePerformanceFilter(performance)
		if err != nil {
			return err
		}
		filter, err := standardFilter()
		if err != nil {
			return err
		}

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.roster.Handle(cmd.Context(), query.GetOutcomeRosterQuery{
			CourseOfferingID: offeringID,
			OutcomeID:        outcomeID,
			Performance:      perf,
			Filter:           filter,
			IncludeClusters:  withClusters,
			ForceRefresh:     forceRefresh,
			ClusterTTL:       clusterTTL,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{summaryCmd, rosterCmd} {
		cmd.Flags().Int64Var(&offeringID, "offering", 0, "course offering (section_course) id")
		cmd.Flags().StringVar(&family, "family", "", "standard family to filter by (SO, CDIO, SDG, IGA)")
		cmd.Flags().Int64Var(&targetID, "target", 0, "standard target id within --family")
		_ = cmd.MarkFlagRequired("offering")
	}

	rosterCmd.Flags().Int64Var(&outcomeID, "outcome", 0, "intended learning outcome id")
	rosterCmd.Flags().StringVar(&performance, "performance", "all", "row filter: all, high or low")
	rosterCmd.Flags().BoolVar(&withClusters, "clusters", false, "attach cluster labels")
	rosterCmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "ignore cached clusters")
	rosterCmd.Flags().DurationVar(&clusterTTL, "cluster-ttl", 0, "override the cluster freshness window")
	_ = rosterCmd.MarkFlagRequired("outcome")
}

// standardFilter returns nil when no family flag is set.
func standardFilter() (*outcome.StandardFilter, error) {
	if family == "" && targetID == 0 {
		return nil, nil
	}
	if family == "" || targetID == 0 {
		return nil, errors.New("--family and --target must be given together")
	}
	f, err := outcome.ParseFamily(family)
	if err != nil {
		return nil, err
	}
	return &outcome.StandardFilter{Family: f, TargetID: targetID}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
