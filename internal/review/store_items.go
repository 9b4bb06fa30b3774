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

// CreateItem inserts a queue item with its fields from a completed pipeline
// run. The priority score is computed once here and frozen; the SLA deadline
// starts at creation. At most one item may exist per document id.
func (s *Store) CreateItem(ctx context.Context, input NewItem) (*Item, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(input.DocumentID) == "" {
		return nil, services.Wrap(services.ErrValidation, "review", "create item", "document id required", nil)
	}

	now := time.Now().UTC()
	deadline := now.Add(time.Duration(s.slaHours) * time.Hour)

	var confidenceSum float64
	for _, f := range input.Fields {
		confidenceSum += f.Confidence
	}
	var avgConfidence float64
	if len(input.Fields) > 0 {
		avgConfidence = confidenceSum / float64(len(input.Fields))
	}
	priority := Score(ScoreInputs{
		AverageConfidence:  avgConfidence,
		HoursUntilDeadline: deadline.Sub(now).Hours(),
		LineItems:          input.LineItemCount,
		TotalAmount:        input.TotalAmount,
	})

	item := &Item{
		ID:          uuid.NewString(),
		DocumentID:  input.DocumentID,
		Status:      StatusPending,
		Priority:    priority,
		SLADeadline: deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO queue_items (id, document_id, status, priority, sla_deadline, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.DocumentID, string(item.Status), item.Priority,
		formatTime(deadline), formatTime(now), formatTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, services.Wrap(services.ErrConflict, "review", "create item",
				"queue item already exists for document "+input.DocumentID, nil)
		}
		return nil, fmt.Errorf("insert queue item: %w", err)
	}

	for _, f := range input.Fields {
		field := Field{
			ID:         uuid.NewString(),
			ItemID:     item.ID,
			Name:       f.Name,
			Value:      f.Value,
			Confidence: f.Confidence,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fields (id, item_id, name, value, confidence) VALUES (?, ?, ?, ?, ?)`,
			field.ID, field.ItemID, field.Name, field.Value, field.Confidence,
		); err != nil {
			return nil, fmt.Errorf("insert field %q: %w", f.Name, err)
		}
		item.Fields = append(item.Fields, field)
	}

	if err := auditTx(ctx, tx, item.ID, "system", AuditActionCreate, "", "", string(StatusPending), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return item, nil
}

// GetItem fetches one item with its fields.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	return s.getItemWhere(ctx, "id = ?", id)
}

// GetItemByDocument fetches the item for a document id.
func (s *Store) GetItemByDocument(ctx context.Context, documentID string) (*Item, error) {
	return s.getItemWhere(ctx, "document_id = ?", documentID)
}

func (s *Store) getItemWhere(ctx context.Context, where string, arg any) (*Item, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM queue_items WHERE "+where, arg)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "review", "get item", fmt.Sprintf("%v", arg), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	if err := s.loadFields(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) loadFields(ctx context.Context, item *Item) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fieldColumns+" FROM fields WHERE item_id = ? ORDER BY name", item.ID)
	if err != nil {
		return fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		field, err := scanField(rows)
		if err != nil {
			return fmt.Errorf("scan field: %w", err)
		}
		item.Fields = append(item.Fields, *field)
	}
	return rows.Err()
}

// SortKey orders List output.
type SortKey string

const (
	SortByPriority SortKey = "priority"
	SortByDeadline SortKey = "sla_deadline"
	SortByCreated  SortKey = "created_at"
)

// ListOptions filters and paginates List.
type ListOptions struct {
	Statuses   []Status
	AssignedTo string
	SortBy     SortKey
	Limit      int
	Offset     int
}

// List returns items matching the filter, without their fields. Default order
// is priority descending.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Item, error) {
	ctx = ensureContext(ctx)

	var (
		clauses []string
		args    []any
	)
	if len(opts.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(opts.Statuses))+")")
		for _, status := range opts.Statuses {
			args = append(args, string(status))
		}
	}
	if opts.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = ?")
		args = append(args, opts.AssignedTo)
	}

	query := "SELECT " + itemColumns + " FROM queue_items"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	switch opts.SortBy {
	case SortByDeadline:
		query += " ORDER BY sla_deadline ASC"
	case SortByCreated:
		query += " ORDER BY created_at ASC"
	default:
		query += " ORDER BY priority DESC, created_at ASC"
	}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AuditTrail returns the append-only audit entries for an item, oldest first.
func (s *Store) AuditTrail(ctx context.Context, itemID string) ([]AuditEntry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, actor, action, field_name, old_value, new_value, created_at
         FROM audit_log WHERE item_id = ? ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			fieldName  sql.NullString
			oldValue   sql.NullString
			newValue   sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.ItemID, &entry.Actor, &entry.Action,
			&fieldName, &oldValue, &newValue, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.FieldName = fieldName.String
		entry.OldValue = oldValue.String
		entry.NewValue = newValue.String
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// auditTx appends one audit entry inside an open transaction.
func auditTx(ctx context.Context, tx *sql.Tx, itemID, actor, action, fieldName, oldValue, newValue string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (item_id, actor, action, field_name, old_value, new_value, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		itemID, actor, action,
		nullableString(fieldName), nullableString(oldValue), nullableString(newValue),
		formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
