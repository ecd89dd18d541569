// Package lifecycle holds the issue status workflow. It knows nothing about who is
// asking; authorization happens before a transition reaches it.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"fixmyarea-be/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type InvalidTransitionError struct {
	From models.IssueStatus
	To   models.IssueStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move issue from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var transitions = map[models.IssueStatus][]models.IssueStatus{
	models.Pending:    {models.Approved, models.Rejected},
	models.Approved:   {models.InProgress, models.Resolved},
	models.InProgress: {models.Resolved},
}

// Machine validates and applies status transitions, stamping times from its clock.
type Machine struct {
	now func() time.Time
}

func New(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to models.IssueStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Actions lists the statuses reachable from s, in workflow order.
func Actions(s models.IssueStatus) []models.IssueStatus {
	next := transitions[s]
	out := make([]models.IssueStatus, len(next))
	copy(out, next)
	return out
}

// Terminal reports whether no transition leaves s.
func Terminal(s models.IssueStatus) bool {
	return len(transitions[s]) == 0
}

// Validate checks a requested transition. Unknown statuses are validation errors.
func (m *Machine) Validate(from, to models.IssueStatus) error {
	if !to.Valid() {
		return models.Invalid("status", "unknown status %q", to)
	}
	if !from.Valid() {
		return models.Invalid("status", "issue has unknown status %q", from)
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Apply moves issue to status to and stamps LastUpdated. The stamp always advances past
// the previous one, even if the clock does not.
func (m *Machine) Apply(issue *models.Issue, to models.IssueStatus) error {
	if err := m.Validate(issue.Status, to); err != nil {
		return err
	}
	stamp := models.Millis(m.now())
	if floor := max(issue.LastUpdated, issue.Timestamp); stamp <= floor {
		stamp = floor + 1
	}
	issue.Status = to
	issue.LastUpdated = stamp
	return nil
}
