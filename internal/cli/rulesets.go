package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Buffy/internal/app"
	"github.com/shaiso/Buffy/internal/domain"
)

// NewRuleSetsCmd создаёт группу команд для наборов правил.
func NewRuleSetsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulesets",
		Short: "Manage rule sets",
	}

	cmd.AddCommand(newRuleSetsImportCmd(env))

	return cmd
}

func newRuleSetsImportCmd(env *Env) *cobra.Command {
	var username string
	var subscriptionIDs []int64

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import rule sets from a JSON file and bind them to subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			ruleSets, err := parseRuleSets(data)
			if err != nil {
				return err
			}

			a, err := env.App(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(ruleSets))
			for i := range ruleSets {
				rs := &ruleSets[i]
				if err := a.RuleSets.Create(cmd.Context(), username, rs, subscriptionIDs...); err != nil {
					return err
				}
				rows = append(rows, []string{strconv.FormatInt(rs.ID, 10), rs.Name, strconv.Itoa(len(rs.Rules))})
			}

			env.Output().Print([]string{"ID", "NAME", "RULES"}, rows, ruleSets)
			env.Output().Success(fmt.Sprintf("Imported %d rule set(s)", len(ruleSets)))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Owner of the rule sets (required)")
	cmd.Flags().Int64SliceVar(&subscriptionIDs, "subscription", nil, "Subscription ID to bind (repeatable)")
	cmd.MarkFlagRequired("username")

	return cmd
}

// parseRuleSets разбирает один набор правил или массив наборов.
func parseRuleSets(data []byte) ([]domain.RuleSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("rule set file is empty")
	}

	var ruleSets []domain.RuleSet
	if data[0] == '[' {
		if err := json.Unmarshal(data, &ruleSets); err != nil {
			return nil, fmt.Errorf("parse rule sets: %w", err)
		}
	} else {
		var rs domain.RuleSet
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("parse rule set: %w", err)
		}
		ruleSets = append(ruleSets, rs)
	}

	for i, rs := range ruleSets {
		if rs.Name == "" {
			return nil, fmt.Errorf("rule set #%d: name is required", i+1)
		}
	}
	return ruleSets, nil
}
