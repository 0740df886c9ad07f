package application

import (
	"fmt"
	"time"
)

// Status values for an application.
//
//	DRAFT ──► PENDING ──► REVIEW ──► APPROVED
//	                         │
//	                         └─────► REJECTED
//
// APPROVED and REJECTED are terminal.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusReview   Status = "REVIEW"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// SubmittedStatuses are the statuses visible on staff dashboards; drafts are
// excluded and every member is zero-filled in aggregates.
var SubmittedStatuses = []Status{StatusPending, StatusReview, StatusApproved, StatusRejected}

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusDraft:   {StatusPending},
	StatusPending: {StatusReview, StatusRejected},
	StatusReview:  {StatusApproved, StatusRejected},
	// APPROVED and REJECTED are terminal
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusDraft, StatusPending, StatusReview, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// CanTransition reports whether moving from → to is permitted.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusChange is one entry in an application's status history.
type StatusChange struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedBy string    `json:"changed_by,omitempty"` // user ID; empty for system changes
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changed_at"` // UTC
}

// setStatus applies a transition and appends to the history. The caller must
// have checked CanTransition already.
func (a *Application) setStatus(to Status, changedBy, note string, now time.Time) {
	a.StatusHistory = append(a.StatusHistory, StatusChange{
		From:      a.Status,
		To:        to,
		ChangedBy: changedBy,
		Note:      note,
		ChangedAt: now,
	})
	a.Status = to
}
