package review

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, document_id, status, priority, sla_deadline, assigned_to, reject_reason, created_at, claimed_at, completed_at, updated_at"

const fieldColumns = "id, item_id, name, value, confidence, manually_corrected, locked, corrected_by, corrected_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           string
		documentID   string
		statusStr    string
		priority     float64
		slaRaw       sql.NullString
		assignedTo   sql.NullString
		rejectReason sql.NullString
		createdRaw   sql.NullString
		claimedRaw   sql.NullString
		completedRaw sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&documentID,
		&statusStr,
		&priority,
		&slaRaw,
		&assignedTo,
		&rejectReason,
		&createdRaw,
		&claimedRaw,
		&completedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		DocumentID:   documentID,
		Status:       Status(statusStr),
		Priority:     priority,
		AssignedTo:   assignedTo.String,
		RejectReason: rejectReason.String,
	}
	if deadline, err := parseTimeString(slaRaw.String); err == nil {
		item.SLADeadline = deadline
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			item.ClaimedAt = &claimed
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func scanField(scanner interface{ Scan(dest ...any) error }) (*Field, error) {
	var (
		id           string
		itemID       string
		name         string
		value        string
		confidence   float64
		corrected    sql.NullInt64
		locked       sql.NullInt64
		correctedBy  sql.NullString
		correctedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemID,
		&name,
		&value,
		&confidence,
		&corrected,
		&locked,
		&correctedBy,
		&correctedRaw,
	); err != nil {
		return nil, err
	}

	field := &Field{
		ID:                id,
		ItemID:            itemID,
		Name:              name,
		Value:             value,
		Confidence:        confidence,
		ManuallyCorrected: corrected.Int64 != 0,
		Locked:            locked.Int64 != 0,
		CorrectedBy:       correctedBy.String,
	}
	if correctedRaw.Valid {
		if at, err := parseTimeString(correctedRaw.String); err == nil {
			field.CorrectedAt = &at
		}
	}
	return field, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
