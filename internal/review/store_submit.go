package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docflow/internal/services"
)

// Action is a review decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionCorrect Action = "correct"
	ActionReject  Action = "reject"
)

// Submission is the payload of a review decision. Corrections apply only to
// the Correct action; Reason is required for Reject. Override lets system
// policy submit on behalf of another reviewer.
type Submission struct {
	Action      Action
	Corrections []FieldInput
	Reason      string
	Override    bool
}

// Submit records a review decision on an InReview item. The caller must be
// the assigned reviewer unless Override is set. Corrections set value,
// manually_corrected, locked, corrected_by, and corrected_at on each unlocked
// field named in the correction set; locked fields are left untouched. Every
// changed field gets its own audit entry plus one for the action itself.
func (s *Store) Submit(ctx context.Context, itemID, reviewer string, sub Submission) (*Item, error) {
	ctx = ensureContext(ctx)
	if reviewer == "" {
		return nil, services.Wrap(services.ErrValidation, "review", "submit", "reviewer required", nil)
	}

	var status Status
	switch sub.Action {
	case ActionApprove:
		status = StatusApproved
	case ActionCorrect:
		status = StatusCorrected
	case ActionReject:
		status = StatusRejected
		if strings.TrimSpace(sub.Reason) == "" {
			return nil, services.Wrap(services.ErrValidation, "review", "submit", "reject requires a reason", nil)
		}
	default:
		return nil, services.Wrap(services.ErrValidation, "review", "submit",
			fmt.Sprintf("unknown action %q", sub.Action), nil)
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != StatusInReview {
		return nil, fmt.Errorf("%w: item %s is %s, submit requires %s",
			ErrInvalidTransition, itemID, item.Status, StatusInReview)
	}
	if item.AssignedTo != reviewer && !sub.Override {
		return nil, fmt.Errorf("%w: item %s assigned to %s", ErrClaimConflict, itemID, item.AssignedTo)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Guarded transition: concurrent submits race on the same status check.
	res, err := tx.ExecContext(ctx,
		`UPDATE queue_items
         SET status = ?, reject_reason = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(status), nullableString(sub.Reason), formatTime(now), formatTime(now),
		itemID, string(StatusInReview),
	)
	if err != nil {
		return nil, fmt.Errorf("submit transition: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: item %s left %s during submit",
			ErrInvalidTransition, itemID, StatusInReview)
	}

	if sub.Action == ActionCorrect {
		byName := make(map[string]*Field, len(item.Fields))
		for i := range item.Fields {
			byName[item.Fields[i].Name] = &item.Fields[i]
		}
		for _, correction := range sub.Corrections {
			field, ok := byName[correction.Name]
			if !ok || field.Locked {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE fields
                 SET value = ?, manually_corrected = 1, locked = 1, corrected_by = ?, corrected_at = ?
                 WHERE id = ? AND locked = 0`,
				correction.Value, reviewer, formatTime(now), field.ID,
			); err != nil {
				return nil, fmt.Errorf("correct field %q: %w", correction.Name, err)
			}
			if err := auditTx(ctx, tx, itemID, reviewer, AuditActionFieldChange,
				correction.Name, field.Value, correction.Value, now); err != nil {
				return nil, err
			}
		}
	}

	actionAudit := map[Action]string{
		ActionApprove: AuditActionApprove,
		ActionCorrect: AuditActionCorrect,
		ActionReject:  AuditActionReject,
	}[sub.Action]
	if err := auditTx(ctx, tx, itemID, reviewer, actionAudit, "", string(StatusInReview), string(status), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}
	return s.GetItem(ctx, itemID)
}

// ApplyExtraction writes a fresh automated extraction over an existing item's
// fields. Locked fields keep their value and confidence; unlocked fields are
// overwritten; fields the item has never seen are inserted. Returns the
// number of fields written.
func (s *Store) ApplyExtraction(ctx context.Context, documentID string, fields []FieldInput) (int, error) {
	ctx = ensureContext(ctx)
	item, err := s.GetItemByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	byName := make(map[string]*Field, len(item.Fields))
	for i := range item.Fields {
		byName[item.Fields[i].Name] = &item.Fields[i]
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin re-extraction tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for _, incoming := range fields {
		existing, ok := byName[incoming.Name]
		if ok && existing.Locked {
			continue
		}
		if ok {
			if _, err := tx.ExecContext(ctx,
				`UPDATE fields SET value = ?, confidence = ? WHERE id = ? AND locked = 0`,
				incoming.Value, incoming.Confidence, existing.ID,
			); err != nil {
				return 0, fmt.Errorf("overwrite field %q: %w", incoming.Name, err)
			}
			if existing.Value != incoming.Value {
				if err := auditTx(ctx, tx, item.ID, "system", AuditActionReextraction,
					incoming.Name, existing.Value, incoming.Value, now); err != nil {
					return 0, err
				}
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fields (id, item_id, name, value, confidence) VALUES (?, ?, ?, ?, ?)`,
				uuid.NewString(), item.ID, incoming.Name, incoming.Value, incoming.Confidence,
			); err != nil {
				return 0, fmt.Errorf("insert field %q: %w", incoming.Name, err)
			}
			if err := auditTx(ctx, tx, item.ID, "system", AuditActionReextraction,
				incoming.Name, "", incoming.Value, now); err != nil {
				return 0, err
			}
		}
		written++
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_items SET updated_at = ? WHERE id = ?`,
		formatTime(now), item.ID,
	); err != nil {
		return 0, fmt.Errorf("touch item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit re-extraction: %w", err)
	}
	return written, nil
}

// Stats summarizes queue health.
type Stats struct {
	QueueDepth           int
	Pending              int
	InReview             int
	CompletedToday       int
	AverageReviewSeconds float64
	SLACompliancePercent float64
}

// QueueStats computes current queue depth, today's completions, the mean
// review duration, and the share of completed items that beat their SLA
// deadline.
func (s *Store) QueueStats(ctx context.Context) (*Stats, error) {
	ctx = ensureContext(ctx)
	stats := &Stats{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusInReview:
			stats.InReview = count
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.QueueDepth = stats.Pending + stats.InReview

	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE completed_at IS NOT NULL AND completed_at >= ?`,
		formatTime(todayStart),
	).Scan(&stats.CompletedToday); err != nil {
		return nil, fmt.Errorf("query completed today: %w", err)
	}

	var avgSeconds sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG((julianday(completed_at) - julianday(claimed_at)) * 86400.0)
         FROM queue_items
         WHERE completed_at IS NOT NULL AND claimed_at IS NOT NULL`,
	).Scan(&avgSeconds); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query average review seconds: %w", err)
	}
	stats.AverageReviewSeconds = avgSeconds.Float64

	var completed, onTime int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
                COALESCE(SUM(CASE WHEN completed_at <= sla_deadline THEN 1 ELSE 0 END), 0)
         FROM queue_items WHERE completed_at IS NOT NULL`,
	).Scan(&completed, &onTime); err != nil {
		return nil, fmt.Errorf("query sla compliance: %w", err)
	}
	if completed > 0 {
		stats.SLACompliancePercent = float64(onTime) / float64(completed) * 100
	}

	return stats, nil
}
