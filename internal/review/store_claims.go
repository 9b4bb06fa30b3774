package review

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docflow/internal/services"
)

// Claim transitions a Pending item to InReview for the given reviewer. The
// transition is a single conditional update: under two concurrent claims
// exactly one wins and the loser gets ErrClaimConflict. Claiming an item
// already in review requires an explicit Reclaim.
func (s *Store) Claim(ctx context.Context, itemID, reviewer string) (*Item, error) {
	ctx = ensureContext(ctx)
	if reviewer == "" {
		return nil, services.Wrap(services.ErrValidation, "review", "claim", "reviewer required", nil)
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET status = ?, assigned_to = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusInReview), reviewer, formatTime(now), formatTime(now),
		itemID, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if rows == 0 {
		return nil, s.claimFailure(ctx, itemID, reviewer)
	}

	if err := s.appendAudit(ctx, itemID, reviewer, AuditActionClaim, "", "", string(StatusInReview), now); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, itemID)
}

// Reclaim takes over an item already in review, reassigning it to the given
// reviewer. Pending items must go through Claim.
func (s *Store) Reclaim(ctx context.Context, itemID, reviewer string) (*Item, error) {
	ctx = ensureContext(ctx)
	if reviewer == "" {
		return nil, services.Wrap(services.ErrValidation, "review", "reclaim", "reviewer required", nil)
	}

	current, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET assigned_to = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		reviewer, formatTime(now), formatTime(now),
		itemID, string(StatusInReview),
	)
	if err != nil {
		return nil, fmt.Errorf("reclaim item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reclaim rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: item %s is %s, reclaim requires %s",
			ErrInvalidTransition, itemID, current.Status, StatusInReview)
	}

	if err := s.appendAudit(ctx, itemID, reviewer, AuditActionReclaim, "", current.AssignedTo, reviewer, now); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, itemID)
}

// claimFailure classifies a zero-row claim update.
func (s *Store) claimFailure(ctx context.Context, itemID, reviewer string) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status == StatusInReview {
		return fmt.Errorf("%w: item %s already claimed by %s", ErrClaimConflict, itemID, item.AssignedTo)
	}
	return fmt.Errorf("%w: item %s is %s, claim requires %s",
		ErrInvalidTransition, itemID, item.Status, StatusPending)
}

// AutoAssign claims a Pending item for the least-loaded roster reviewer,
// moving it straight to InReview. Load is the count of items each reviewer
// currently has in review; ties rotate through the tied reviewers via an
// atomically incremented counter so sequential assignments spread evenly.
func (s *Store) AutoAssign(ctx context.Context, itemID string) (*Item, error) {
	ctx = ensureContext(ctx)
	if len(s.roster) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "review", "auto assign", "no reviewers configured", nil)
	}

	workload, err := s.ReviewerWorkload(ctx)
	if err != nil {
		return nil, err
	}

	minLoad := -1
	for _, reviewer := range s.roster {
		if load := workload[reviewer]; minLoad < 0 || load < minLoad {
			minLoad = load
		}
	}
	var tied []string
	for _, reviewer := range s.roster {
		if workload[reviewer] == minLoad {
			tied = append(tied, reviewer)
		}
	}

	reviewer := tied[0]
	if len(tied) > 1 {
		turn, err := s.nextRotation(ctx)
		if err != nil {
			return nil, err
		}
		reviewer = tied[turn%int64(len(tied))]
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET status = ?, assigned_to = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusInReview), reviewer, formatTime(now), formatTime(now),
		itemID, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("auto assign item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("auto assign rows affected: %w", err)
	}
	if rows == 0 {
		return nil, s.claimFailure(ctx, itemID, reviewer)
	}

	if err := s.appendAudit(ctx, itemID, "system", AuditActionAutoAssign, "", "", reviewer, now); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, itemID)
}

// nextRotation atomically increments the assignment rotation counter and
// returns the pre-increment value.
func (s *Store) nextRotation(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'assignment_rotation' RETURNING value - 1`,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance rotation counter: %w", err)
	}
	return value, nil
}

// ReviewerWorkload returns the active (InReview) item count per roster
// reviewer, including zero entries.
func (s *Store) ReviewerWorkload(ctx context.Context) (map[string]int, error) {
	ctx = ensureContext(ctx)
	workload := make(map[string]int, len(s.roster))
	for _, reviewer := range s.roster {
		workload[reviewer] = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT assigned_to, COUNT(1) FROM queue_items
         WHERE status = ? AND assigned_to IS NOT NULL
         GROUP BY assigned_to`, string(StatusInReview))
	if err != nil {
		return nil, fmt.Errorf("query workload: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reviewer string
			count    int
		)
		if err := rows.Scan(&reviewer, &count); err != nil {
			return nil, fmt.Errorf("scan workload: %w", err)
		}
		workload[reviewer] = count
	}
	return workload, rows.Err()
}

// ReleaseExpiredClaims returns InReview items whose claim is older than
// cutoff back to Pending, clearing the assignment. Each release is audited.
func (s *Store) ReleaseExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assigned_to FROM queue_items
         WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`,
		string(StatusInReview), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("query expired claims: %w", err)
	}
	type expired struct {
		id       string
		assignee string
	}
	var stale []expired
	for rows.Next() {
		var (
			e        expired
			assignee sql.NullString
		)
		if err := rows.Scan(&e.id, &assignee); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired claim: %w", err)
		}
		e.assignee = assignee.String
		stale = append(stale, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var released int64
	for _, e := range stale {
		res, err := s.execWithRetry(ctx,
			`UPDATE queue_items
             SET status = ?, assigned_to = NULL, claimed_at = NULL, updated_at = ?
             WHERE id = ? AND status = ? AND claimed_at < ?`,
			string(StatusPending), formatTime(now),
			e.id, string(StatusInReview), formatTime(cutoff),
		)
		if err != nil {
			return released, fmt.Errorf("release claim %s: %w", e.id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return released, err
		}
		if n == 0 {
			continue
		}
		if err := s.appendAudit(ctx, e.id, "system", AuditActionClaimExpired, "", e.assignee, "", now); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// appendAudit appends one audit entry outside a transaction.
func (s *Store) appendAudit(ctx context.Context, itemID, actor, action, fieldName, oldValue, newValue string, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO audit_log (item_id, actor, action, field_name, old_value, new_value, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		itemID, actor, action,
		nullableString(fieldName), nullableString(oldValue), nullableString(newValue),
		formatTime(at),
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
