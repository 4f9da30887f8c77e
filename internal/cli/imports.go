package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/mq"
	"github.com/shaiso/Buffy/internal/orchestrator"
)

// NewImportCmd создаёт группу команд запуска импорта.
func NewImportCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run or trigger import cycles",
	}

	cmd.AddCommand(
		newImportRunCmd(env),
		newImportTriggerCmd(env),
	)

	return cmd
}

func newImportRunCmd(env *Env) *cobra.Command {
	var drainTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one import cycle in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := env.App(ctx, app.Options{})
			if err != nil {
				return err
			}
			if err := a.Webhooks.Start(ctx); err != nil {
				return err
			}

			report, cycleErr := a.Orchestrator.RunImportCycle(ctx)

			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			if err := a.Webhooks.WaitIdle(drainCtx); err != nil {
				env.Logger().Warn("webhook queue not drained", "error", err, "pending", a.Webhooks.Stats().Pending)
			}

			if report != nil {
				env.Output().Fields(cycleFields(report), report)
			}
			return cycleErr
		},
	}

	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", time.Minute, "How long to wait for pending webhooks")

	return cmd
}

func newImportTriggerCmd(env *Env) *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask running importers to start a cycle via RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}

			url := cfg.AMQPURL
			if url == "" {
				url = mq.DefaultURL()
			}

			conn, err := mq.NewConnection(url, "buffy-cli", env.Logger())
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer conn.Close()

			if err := mq.SetupTopology(cmd.Context(), conn); err != nil {
				return fmt.Errorf("setup topology: %w", err)
			}

			if err := mq.NewPublisher(conn, env.Logger()).PublishImportTrigger(cmd.Context(), requestedBy); err != nil {
				return err
			}

			env.Output().Success("Import cycle requested")
			return nil
		},
	}

	cmd.Flags().StringVar(&requestedBy, "requested-by", defaultRequester(), "Who asked for the cycle")

	return cmd
}

func defaultRequester() string {
	if host, err := os.Hostname(); err == nil {
		return "cli@" + host
	}
	return "cli"
}

func cycleFields(r *orchestrator.CycleReport) [][2]string {
	itoa := strconv.Itoa
	return [][2]string{
		{"Started", r.StartedAt.Format(time.RFC3339)},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
		{"Active", itoa(r.Active)},
		{"Due", itoa(r.Due)},
		{"Bundles", itoa(r.Bundles)},
		{"Task failures", itoa(r.TaskFailures)},
		{"Soft errors", itoa(r.SoftErrors)},
		{"Persisted", itoa(r.Persisted)},
		{"Archived", itoa(r.Archived)},
		{"Skipped", itoa(r.Skipped)},
		{"Failed", itoa(r.Failed)},
		{"Metrics", itoa(r.MetricsStored)},
		{"Aborted", strconv.FormatBool(r.Aborted)},
	}
}
