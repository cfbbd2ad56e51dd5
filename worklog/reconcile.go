package worklog

import (
	"strings"
	"time"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/permission"
)

// DailyHourCap is the most hours a member may log for one date without
// the entry going to review.
const DailyHourCap = 8

var dailyCap = generic.HoursFromInt(DailyHourCap)

// Draft is the editable part of a log as submitted by a form or CLI.
type Draft struct {
	Date     generic.Date  `json:"date"`
	Activity string        `json:"activity"`
	Hours    generic.Hours `json:"hours"`
}

// Validate rejects drafts that can't become a log entry.
func (d Draft) Validate() error {
	if d.Date.IsZero() {
		return &generic.ValidationError{Field: "date", Reason: "a valid date is required"}
	}
	if strings.TrimSpace(d.Activity) == "" {
		return &generic.ValidationError{Field: "activity", Reason: "activity is required"}
	}
	if !d.Hours.IsPositive() {
		return &generic.ValidationError{Field: "hours", Reason: "hours must be greater than zero"}
	}
	return nil
}

// Decision is the outcome of reconciling one submission.
type Decision struct {
	Status               Status        `json:"status"`
	DailyTotal           generic.Hours `json:"dailyTotal"`
	RequiresConfirmation bool          `json:"requiresConfirmation"`
	History              *HistoryEntry `json:"history,omitempty"`
}

// Reconcile decides the status of a create (previous == nil) or an edit of
// previous, given the member's existing logs.
//
// The projected daily total is the candidate's hours plus every other log
// on the same date. Above DailyHourCap the submitter must confirm, and the
// entry is pending unless an admin is acting. Edits capture the pre-edit
// state as a history entry; Seq is assigned when it is written.
func Reconcile(existing []LogEntry, candidate Draft, previous *LogEntry, editor string, role permission.Role, now time.Time) Decision {
	total := candidate.Hours
	for _, e := range existing {
		if previous != nil && e.ID == previous.ID {
			continue
		}
		if e.Date.Equal(candidate.Date) {
			total = total.Add(e.Hours)
		}
	}

	d := Decision{Status: StatusApproved, DailyTotal: total}
	if total.GreaterThan(dailyCap) {
		d.RequiresConfirmation = true
		if !role.IsAdmin() {
			d.Status = StatusPending
		}
	}

	if previous != nil {
		d.History = &HistoryEntry{
			ChangedAt: now,
			ChangedBy: editor,
			OldData:   previous.Snapshot(),
		}
	}
	return d
}
