package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a migration session.
type SessionStatus string

const (
	SessionIdle       SessionStatus = "idle"
	SessionValidating SessionStatus = "validating"
	SessionReady      SessionStatus = "ready"
	SessionMigrating  SessionStatus = "migrating"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
)

// Terminal reports whether no further progress will be made.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionError
}

const (
	MinBatchSize     = 1
	MaxBatchSize     = 50
	DefaultBatchSize = 10
)

// SessionConfig is supplied once when a session is created.
type SessionConfig struct {
	BatchSize      int  `json:"batch_size" yaml:"batch_size"`
	ValidateOnly   bool `json:"validate_only" yaml:"validate_only"`
	SkipValidation bool `json:"skip_validation" yaml:"skip_validation"`
}

// Normalize clamps BatchSize into [MinBatchSize, MaxBatchSize]. A zero value
// selects DefaultBatchSize.
func (c SessionConfig) Normalize() SessionConfig {
	switch {
	case c.BatchSize == 0:
		c.BatchSize = DefaultBatchSize
	case c.BatchSize < MinBatchSize:
		c.BatchSize = MinBatchSize
	case c.BatchSize > MaxBatchSize:
		c.BatchSize = MaxBatchSize
	}
	return c
}

// SessionStats aggregates the outcome list. Never mutated directly; see
// MigrationSession.RecomputeStats.
type SessionStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`
	Skipped    int `json:"skipped"`
}

// LogEntry is one line of a session's activity log.
type LogEntry struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"` // "info", "warn", "error"
	Message string    `json:"message"`
}

// MigrationSession is the state of one migration run.
type MigrationSession struct {
	ID         string              `json:"id"`
	Config     SessionConfig       `json:"config"`
	Records    []MailboxRecord     `json:"records"`
	Validation []ValidationOutcome `json:"validation,omitempty"`
	Outcomes   []MigrationOutcome  `json:"outcomes"`
	Stats      SessionStats        `json:"stats"`
	Status     SessionStatus       `json:"status"`
	StartTime  time.Time           `json:"start_time"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	Error      string              `json:"error,omitempty"`
	Logs       []LogEntry          `json:"logs"`
}

// NewSession creates an idle session for the given records.
func NewSession(id string, cfg SessionConfig, records []MailboxRecord) *MigrationSession {
	recs := make([]MailboxRecord, len(records))
	copy(recs, records)
	s := &MigrationSession{
		ID:        id,
		Config:    cfg.Normalize(),
		Records:   recs,
		Outcomes:  []MigrationOutcome{},
		Status:    SessionIdle,
		StartTime: time.Now(),
		Logs:      []LogEntry{},
	}
	s.RecomputeStats()
	return s
}

// RecomputeStats rebuilds Stats from Records, Validation and Outcomes.
func (s *MigrationSession) RecomputeStats() {
	st := SessionStats{Total: len(s.Records)}
	for _, o := range s.Outcomes {
		switch o.Status {
		case OutcomeCompleted:
			st.Successful++
		case OutcomeFailed:
			st.Failed++
		case OutcomeInProgress:
			st.InProgress++
		}
	}
	if !s.Config.SkipValidation && !s.Config.ValidateOnly {
		for _, v := range s.Validation {
			if v.Status == ValidationFailed {
				st.Skipped++
			}
		}
	}
	s.Stats = st
}

// AppendLog adds a log line with the next sequence number.
func (s *MigrationSession) AppendLog(level, msg string) {
	s.Logs = append(s.Logs, LogEntry{
		Seq:     len(s.Logs),
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	})
}

// Logf is AppendLog at info level with formatting.
func (s *MigrationSession) Logf(format string, args ...any) {
	s.AppendLog("info", fmt.Sprintf(format, args...))
}

// LogsSince returns log entries starting from the given offset.
func (s *MigrationSession) LogsSince(offset int) []LogEntry {
	if offset >= len(s.Logs) {
		return nil
	}
	lines := make([]LogEntry, len(s.Logs)-offset)
	copy(lines, s.Logs[offset:])
	return lines
}

// Outcome returns a pointer to the outcome with the given id, or nil.
func (s *MigrationSession) Outcome(id string) *MigrationOutcome {
	for i := range s.Outcomes {
		if s.Outcomes[i].ID == id {
			return &s.Outcomes[i]
		}
	}
	return nil
}

// Complete marks the session as completed.
func (s *MigrationSession) Complete() {
	s.Status = SessionCompleted
	now := time.Now()
	s.EndTime = &now
}

// Fail marks the session as errored with a message.
func (s *MigrationSession) Fail(err string) {
	s.Status = SessionError
	s.Error = err
	now := time.Now()
	s.EndTime = &now
}

// Clone returns a copy that shares no slices with s.
func (s *MigrationSession) Clone() *MigrationSession {
	c := *s
	c.Records = append([]MailboxRecord(nil), s.Records...)
	c.Outcomes = make([]MigrationOutcome, len(s.Outcomes))
	for i, o := range s.Outcomes {
		c.Outcomes[i] = o.clone()
	}
	if s.Validation != nil {
		c.Validation = make([]ValidationOutcome, len(s.Validation))
		for i, v := range s.Validation {
			v.Issues = append([]string(nil), v.Issues...)
			c.Validation[i] = v
		}
	}
	c.Logs = append([]LogEntry(nil), s.Logs...)
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// Summary is the list-view projection of a session.
type Summary struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	Stats     SessionStats  `json:"stats"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
}

// Summarize projects the session into a Summary.
func (s *MigrationSession) Summarize() Summary {
	return Summary{
		ID:        s.ID,
		Status:    s.Status,
		Stats:     s.Stats,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}
