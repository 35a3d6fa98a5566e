package models

import (
	"fmt"
	"strings"
	"time"
)

// MailboxRecord is one requested mailbox move.
type MailboxRecord struct {
	SourceEmail string `json:"source_email"`
	TargetEmail string `json:"target_email"`
	DisplayName string `json:"display_name"`
}

// Complete reports whether every required field is present.
func (r MailboxRecord) Complete() bool {
	return strings.TrimSpace(r.SourceEmail) != "" &&
		strings.TrimSpace(r.TargetEmail) != "" &&
		strings.TrimSpace(r.DisplayName) != ""
}

// ValidationStatus is the verdict for one record.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

// ValidationOutcome is derived once per record and not mutated afterwards.
type ValidationOutcome struct {
	Record       MailboxRecord    `json:"record"`
	SourceExists bool             `json:"source_exists"`
	SourceSizeMB float64          `json:"source_size_mb"`
	Status       ValidationStatus `json:"status"`
	Issues       []string         `json:"issues"`
}

// OutcomeStatus is the state of one mailbox move.
type OutcomeStatus string

const (
	OutcomeInProgress OutcomeStatus = "in_progress"
	OutcomeCompleted  OutcomeStatus = "completed"
	OutcomeFailed     OutcomeStatus = "failed"
)

// Label is the human-readable status used in reports.
func (s OutcomeStatus) Label() string {
	switch s {
	case OutcomeInProgress:
		return "In Progress"
	case OutcomeCompleted:
		return "Completed"
	case OutcomeFailed:
		return "Failed"
	}
	return string(s)
}

// MigrationOutcome is the result of moving one mailbox. It is created
// in_progress and finished exactly once.
type MigrationOutcome struct {
	ID              string        `json:"id"`
	Record          MailboxRecord `json:"record"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	Duration        string        `json:"duration,omitempty"` // "MM:SS"
	Status          OutcomeStatus `json:"status"`
	ItemsMoved      int           `json:"items_moved"`
	DataMoved       string        `json:"data_moved,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Finish transitions an in-progress outcome to completed or failed. It
// returns false if the outcome was already finished.
func (o *MigrationOutcome) Finish(end time.Time, err error, items int, dataMoved string) bool {
	if o.Status != OutcomeInProgress {
		return false
	}
	d := end.Sub(o.StartTime)
	o.EndTime = &end
	o.DurationSeconds = d.Seconds()
	o.Duration = FormatDuration(d)
	if err != nil {
		o.Status = OutcomeFailed
		o.Error = err.Error()
		return true
	}
	o.Status = OutcomeCompleted
	o.ItemsMoved = items
	o.DataMoved = dataMoved
	return true
}

func (o MigrationOutcome) clone() MigrationOutcome {
	if o.EndTime != nil {
		t := *o.EndTime
		o.EndTime = &t
	}
	return o
}

// FormatDuration renders d as zero-padded MM:SS. There is no hour field, so
// durations of an hour or more wrap.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", (total/60)%60, total%60)
}
