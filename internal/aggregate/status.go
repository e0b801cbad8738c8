// Package aggregate computes dashboard numbers from posts and their
// engagement history. Every function is pure and computed on demand.
package aggregate

import (
	"strings"

	"github.com/timmy/trackr/internal/domain"
)

// StatusLabel is the display form of a workflow status.
type StatusLabel string

const (
	StatusPending StatusLabel = "Pending"
	StatusBriefed StatusLabel = "Briefed"
	StatusActive  StatusLabel = "Active"
	StatusDone    StatusLabel = "Done"
)

// CanonicalStatus normalizes a raw status. Matching ignores case and
// surrounding whitespace; anything unrecognized, including "", is Pending.
func CanonicalStatus(raw string) StatusLabel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "briefed":
		return StatusBriefed
	case "active":
		return StatusActive
	case "done":
		return StatusDone
	default:
		return StatusPending
	}
}

// Workflow maps the label back to the stored workflow status.
func (s StatusLabel) Workflow() domain.WorkflowStatus {
	switch s {
	case StatusBriefed:
		return domain.WorkflowBriefed
	case StatusActive:
		return domain.WorkflowActive
	case StatusDone:
		return domain.WorkflowDone
	default:
		return domain.WorkflowPending
	}
}
