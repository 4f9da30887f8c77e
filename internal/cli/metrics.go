package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/scheduler"
)

// NewMetricsCmd создаёт группу команд метрик импорта.
func NewMetricsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect import metrics",
	}

	cmd.AddCommand(newMetricsShowCmd(env))

	return cmd
}

func newMetricsShowCmd(env *Env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show SUBSCRIPTION_ID",
		Short: "Show import history of a subscription and its tier outlook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid subscription ID %q", args[0])
			}

			a, err := env.App(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}

			sub, err := a.Subscriptions.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			metrics, err := a.Metrics.FindBySubscription(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := env.Output()
			shown := metrics
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			out.Print(metricsHeaders, metricsRows(shown), shown)

			if tier, ok := sub.Tier(); ok {
				out.Success(tierOutlook(tier, metrics))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of rows (0 = all)")

	return cmd
}

var metricsHeaders = []string{"IMPORTED", "TIER", "IMPORT", "PERSIST", "SKIP", "ARCHIVE", "ERROR"}

func metricsRows(metrics []domain.SubscriptionMetrics) [][]string {
	rows := make([][]string, len(metrics))
	for i, m := range metrics {
		importCt, errType := "-", "-"
		if m.ImportCt != nil {
			importCt = strconv.Itoa(*m.ImportCt)
		}
		if m.ErrorType != nil {
			errType = *m.ErrorType
		}
		rows[i] = []string{
			m.ImportedAt.Format(time.RFC3339),
			m.ScheduleTier,
			importCt,
			strconv.Itoa(m.PersistCt),
			strconv.Itoa(m.SkipCt),
			strconv.Itoa(m.ArchiveCt),
			errType,
		}
	}
	return rows
}

// tierOutlook описывает, что сделает следующий пересчёт tier'ов.
func tierOutlook(current domain.ScheduleTier, metrics []domain.SubscriptionMetrics) string {
	next, misses := scheduler.Reschedule(current, metrics)
	if next != current {
		return fmt.Sprintf("Tier %s: %d consecutive misses, next update downgrades to %s", current, misses, next)
	}
	if current == domain.TierD {
		return fmt.Sprintf("Tier %s: %d consecutive misses, slowest tier", current, misses)
	}
	return fmt.Sprintf("Tier %s: %d of %d allowed consecutive misses", current, misses, current.MaxMisses())
}
