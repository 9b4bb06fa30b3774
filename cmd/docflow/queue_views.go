package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"docflow/internal/review"
)

const (
	displayTimeLayout   = "2006-01-02 15:04"
	displayDurationUnit = time.Millisecond
)

func buildQueueListRows(items []*review.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			shortID(item.ID),
			item.DocumentID,
			item.Status.Label(),
			formatPriority(item.Priority),
			dash(item.AssignedTo),
			formatWhen(item.SLADeadline),
			formatWhen(item.CreatedAt),
		})
	}
	return rows
}

func buildAuditRows(entries []review.AuditEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		detail := ""
		if entry.FieldName != "" {
			detail = fmt.Sprintf("%s: %s -> %s", entry.FieldName, dash(entry.OldValue), dash(entry.NewValue))
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			formatWhen(entry.CreatedAt),
			entry.Actor,
			entry.Action,
			detail,
		})
	}
	return rows
}

func buildFieldRows(fields []review.Field) [][]string {
	rows := make([][]string, 0, len(fields))
	for _, field := range fields {
		rows = append(rows, []string{
			field.Name,
			field.Value,
			formatPriority(field.Confidence),
			yesNo(field.ManuallyCorrected),
			yesNo(field.Locked),
			dash(field.CorrectedBy),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatPriority(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func formatWhen(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format(displayTimeLayout)
}

func formatWhenPtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return formatWhen(*value)
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
