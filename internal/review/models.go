package review

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status represents the review lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusCorrected Status = "corrected"
	StatusRejected  Status = "rejected"
)

var allStatuses = []Status{
	StatusPending,
	StatusInReview,
	StatusApproved,
	StatusCorrected,
	StatusRejected,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus validates a user-supplied status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

var titleCaser = cases.Title(language.English)

// Label returns the human-readable form of a status, e.g. "In Review".
func (s Status) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusCorrected, StatusRejected:
		return true
	}
	return false
}

// Item is one reviewable unit produced by a successful pipeline run. At most
// one item exists per document id. Items are never deleted; status
// transitions are the only mutation.
type Item struct {
	ID           string
	DocumentID   string
	Status       Status
	Priority     float64
	SLADeadline  time.Time
	AssignedTo   string
	RejectReason string
	CreatedAt    time.Time
	ClaimedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
	Fields       []Field
}

// Field is one extracted value attached to an item. A locked field is never
// overwritten by automated re-extraction.
type Field struct {
	ID                string
	ItemID            string
	Name              string
	Value             string
	Confidence        float64
	ManuallyCorrected bool
	Locked            bool
	CorrectedBy       string
	CorrectedAt       *time.Time
}

// AuditEntry is one append-only record of who did what to an item.
type AuditEntry struct {
	ID        int64
	ItemID    string
	Actor     string
	Action    string
	FieldName string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// Audit action names.
const (
	AuditActionCreate       = "create"
	AuditActionClaim        = "claim"
	AuditActionReclaim      = "reclaim"
	AuditActionAutoAssign   = "auto_assign"
	AuditActionApprove      = "approve"
	AuditActionCorrect      = "correct"
	AuditActionReject       = "reject"
	AuditActionFieldChange  = "field_change"
	AuditActionReextraction = "re_extraction"
	AuditActionClaimExpired = "claim_expired"
)

// FieldInput is the per-field payload for item creation, corrections, and
// re-extraction.
type FieldInput struct {
	Name       string
	Value      string
	Confidence float64
}

// NewItem is the payload for creating a queue item from a completed run.
type NewItem struct {
	DocumentID    string
	Fields        []FieldInput
	LineItemCount int
	TotalAmount   float64
}
