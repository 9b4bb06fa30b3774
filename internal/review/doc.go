// Package review is the assignment and claim store for human review of
// extraction output. Queue items are persisted in SQLite; claims are atomic
// conditional updates so concurrent reviewers get exactly one winner; field
// corrections lock fields against automated re-extraction; every mutation
// appends to an audit log.
package review
