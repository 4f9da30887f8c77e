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

// NewScheduleCmd создаёт группу команд адаптивного расписания.
func NewScheduleCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and update schedule tiers",
	}

	cmd.AddCommand(
		newScheduleUpdateCmd(env),
		newScheduleTiersCmd(env),
	)

	return cmd
}

func newScheduleUpdateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Recompute schedule tiers from import metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.App(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}

			report, err := a.Scheduler.Update(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(report.Downgraded))
			for i, u := range report.Downgraded {
				rows[i] = []string{strconv.FormatInt(u.SubscriptionID, 10), u.Tier}
			}

			out := env.Output()
			out.Print([]string{"SUBSCRIPTION", "NEW_TIER"}, rows, report)
			out.Success(fmt.Sprintf("%d of %d active subscriptions downgraded", len(report.Downgraded), report.Active))
			return nil
		},
	}
}

func newScheduleTiersCmd(env *Env) *cobra.Command {
	var hour int

	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Show schedule tiers and which of them are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			now := time.Now().In(loc)
			if cmd.Flags().Changed("hour") {
				if hour < 0 || hour > 23 {
					return fmt.Errorf("hour must be in 0..23, got %d", hour)
				}
				now = time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
			}

			infos := tierTable(now)
			rows := make([][]string, len(infos))
			for i, t := range infos {
				rows[i] = []string{t.Tier, t.MaxMisses, t.Period, strconv.FormatBool(t.Due)}
			}

			out := env.Output()
			out.Print([]string{"TIER", "MAX_MISSES", "PERIOD", "DUE"}, rows, infos)

			if next, err := scheduler.NextRun(cfg.ImportSpec, now); err == nil {
				out.Success("Next import cycle: " + next.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hour, "hour", 0, "Local hour to evaluate (default: now)")

	return cmd
}

// tierInfo — строка таблицы tier'ов.
type tierInfo struct {
	Tier      string `json:"tier"`
	MaxMisses string `json:"max_misses"`
	Period    string `json:"period"`
	Due       bool   `json:"due"`
}

var tierPeriods = map[domain.ScheduleTier]string{
	domain.TierA: "every hour",
	domain.TierB: "every 6 hours",
	domain.TierC: "every 12 hours",
	domain.TierD: "once a day",
}

func tierTable(now time.Time) []tierInfo {
	out := make([]tierInfo, len(domain.Tiers))
	for i, t := range domain.Tiers {
		maxMisses := "-"
		if t != domain.TierD {
			maxMisses = strconv.Itoa(t.MaxMisses())
		}
		out[i] = tierInfo{
			Tier:      t.String(),
			MaxMisses: maxMisses,
			Period:    tierPeriods[t],
			Due:       t.Matches(now),
		}
	}
	return out
}
