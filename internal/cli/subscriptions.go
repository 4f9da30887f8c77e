package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/domain"
)

// NewSubscriptionsCmd создаёт группу команд для управления подписками.
func NewSubscriptionsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Manage subscriptions",
	}

	cmd.AddCommand(
		newSubscriptionsListCmd(env),
		newSubscriptionsAddCmd(env),
	)

	return cmd
}

func newSubscriptionsListCmd(env *Env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.App(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}

			subs, err := a.Subscriptions.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			env.Output().Print(subscriptionHeaders, subscriptionRows(subs), subs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of results")

	return cmd
}

func newSubscriptionsAddCmd(env *Env) *cobra.Command {
	var sub domain.Subscription

	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Add a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := domain.ParseScheduleTier(sub.ScheduleTier); !ok {
				return fmt.Errorf("unknown schedule tier %q", sub.ScheduleTier)
			}

			a, err := env.App(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}

			sub.URL = args[0]
			sub.Active = true
			if err := a.Subscriptions.Create(cmd.Context(), &sub); err != nil {
				return err
			}

			env.Output().Print(subscriptionHeaders, subscriptionRows([]domain.Subscription{sub}), sub)
			env.Output().Success(fmt.Sprintf("Subscription %d created", sub.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&sub.Username, "username", "", "Owner of the subscription (required)")
	cmd.Flags().Int64Var(&sub.QueueID, "queue", 0, "Destination queue ID (required)")
	cmd.Flags().StringVar(&sub.Title, "title", "", "Display name")
	cmd.Flags().StringVar(&sub.ScheduleTier, "tier", domain.TierA.String(), "Initial schedule tier (A, B, C, D)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("queue")

	return cmd
}

var subscriptionHeaders = []string{"ID", "USERNAME", "QUEUE", "TIER", "ACTIVE", "URL"}

func subscriptionRows(subs []domain.Subscription) [][]string {
	rows := make([][]string, len(subs))
	for i, s := range subs {
		rows[i] = []string{
			strconv.FormatInt(s.ID, 10),
			s.Username,
			strconv.FormatInt(s.QueueID, 10),
			s.ScheduleTier,
			strconv.FormatBool(s.Active),
			s.URL,
		}
	}
	return rows
}
