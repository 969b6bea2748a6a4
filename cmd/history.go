// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/verify-cli/internal/observability"
	"github.com/xkilldash9x/verify-cli/internal/store"
)

// historyStore lists recorded runs.
type historyStore interface {
	RecentRuns(ctx context.Context, scenario string, limit int) ([]store.RunRecord, error)
	Close()
}

var openHistory = func(ctx context.Context, databaseURL string, logger *zap.Logger) (historyStore, error) {
	return store.Open(ctx, databaseURL, logger)
}

func newHistoryCmd() *cobra.Command {
	var (
		name  string
		limit int
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in the results database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !cfg.Results().Enabled() {
				return errors.New("results.database_url is not configured")
			}

			hs, err := openHistory(ctx, cfg.Results().DatabaseURL, observability.GetLogger())
			if err != nil {
				return err
			}
			defer hs.Close()

			records, err := hs.RecentRuns(ctx, name, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSCENARIO\tSTATE\tATTEMPTS\tSTEPS\tDURATION\tFAILURE")
			for _, r := range records {
				failure := "-"
				if r.ErrorKind != nil {
					failure = *r.ErrorKind
					if r.ErrorReason != nil {
						failure += ": " + *r.ErrorReason
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime),
					r.Scenario, r.State, r.Attempts, r.StepsCompleted, r.TotalSteps,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), failure)
			}
			return w.Flush()
		},
	}

	historyCmd.Flags().StringVar(&name, "scenario", "", "only show runs of this scenario")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	return historyCmd
}
