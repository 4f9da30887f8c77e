package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Buffy/internal/domain"
)

// RuleSetRepo — репозиторий наборов правил.
//
// Правила хранятся в rule_sets.rules как JSONB, привязка к подпискам —
// в subscription_rule_sets.
type RuleSetRepo struct {
	pool *pgxpool.Pool
}

// NewRuleSetRepo создаёт новый RuleSetRepo.
func NewRuleSetRepo(pool *pgxpool.Pool) *RuleSetRepo {
	return &RuleSetRepo{pool: pool}
}

// FindBySubscription возвращает наборы правил, привязанные к подписке.
func (r *RuleSetRepo) FindBySubscription(ctx context.Context, subscriptionID int64) ([]domain.RuleSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rs.id, rs.name, rs.rules
		FROM rule_sets rs
		JOIN subscription_rule_sets srs ON srs.rule_set_id = rs.id
		WHERE srs.subscription_id = $1
		ORDER BY rs.id
	`, subscriptionID)
	if err != nil {
		return nil, accessError("find rule sets", err)
	}

	ruleSets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RuleSet, error) {
		var rs domain.RuleSet
		var rulesJSON []byte
		if err := row.Scan(&rs.ID, &rs.Name, &rulesJSON); err != nil {
			return rs, err
		}
		if len(rulesJSON) > 0 {
			if err := json.Unmarshal(rulesJSON, &rs.Rules); err != nil {
				return rs, fmt.Errorf("unmarshal rules of rule set %d: %w", rs.ID, err)
			}
		}
		return rs, nil
	})
	if err != nil {
		return nil, accessError("scan rule sets", err)
	}
	return ruleSets, nil
}

// Create сохраняет набор правил и привязывает его к подпискам.
func (r *RuleSetRepo) Create(ctx context.Context, username string, rs *domain.RuleSet, subscriptionIDs ...int64) error {
	rulesJSON, err := json.Marshal(rs.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return updateError("begin rule set insert", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO rule_sets (username, name, rules)
		VALUES ($1, $2, $3)
		RETURNING id
	`, username, rs.Name, rulesJSON).Scan(&rs.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("rule set %q: %w", rs.Name, ErrAlreadyExists)
	}
	if err != nil {
		return updateError("insert rule set", err)
	}

	for _, subID := range subscriptionIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO subscription_rule_sets (subscription_id, rule_set_id)
			VALUES ($1, $2)
		`, subID, rs.ID); err != nil {
			return updateError("bind rule set", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return updateError("commit rule set insert", err)
	}
	return nil
}
