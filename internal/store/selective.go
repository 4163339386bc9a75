package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SelectiveRuleRepo persists the selective_sync_rules table (spec §4.10).
type SelectiveRuleRepo struct{ db *sql.DB }

// ForUser returns a user's active rules ordered by priority, highest first,
// the order selective.Filter evaluates them in.
func (r *SelectiveRuleRepo) ForUser(ctx context.Context, userID string) ([]SelectiveRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, pattern, priority, is_active FROM selective_sync_rules
		 WHERE user_id = ? AND is_active = 1 ORDER BY priority DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query selective rules: %w", err)
	}
	defer rows.Close()

	var out []SelectiveRule
	for rows.Next() {
		var rule SelectiveRule
		var isActive int
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.Kind, &rule.Pattern, &rule.Priority, &isActive); err != nil {
			return nil, err
		}
		rule.IsActive = isActive != 0
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Insert creates a new selective-sync rule.
func (r *SelectiveRuleRepo) Insert(ctx context.Context, rule SelectiveRule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO selective_sync_rules (id, user_id, kind, pattern, priority, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.Kind, rule.Pattern, rule.Priority, boolToInt(rule.IsActive))
	if err != nil {
		return fmt.Errorf("insert selective rule: %w", err)
	}
	return nil
}

// Deactivate disables a rule rather than deleting it, preserving history.
func (r *SelectiveRuleRepo) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE selective_sync_rules SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate selective rule: %w", err)
	}
	return nil
}
