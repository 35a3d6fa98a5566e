// Package progress turns a session's stored state into an ordered stream of
// events for one watcher. Streams poll the session store on a fixed
// interval; watchers never influence the migration itself.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

// DefaultInterval is the polling cadence used when none is configured.
const DefaultInterval = time.Second

// EventType names the kind of event emitted on a stream.
type EventType string

const (
	EventConnected EventType = "connected"
	EventLog       EventType = "log"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Event is one message on a progress stream.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Connected acknowledges a new watcher.
type Connected struct {
	SessionID string `json:"session_id"`
}

// Snapshot is the payload of a progress event.
type Snapshot struct {
	Status   models.SessionStatus      `json:"status"`
	Stats    models.SessionStats       `json:"stats"`
	Outcomes []models.MigrationOutcome `json:"outcomes"`
}

// Final is the payload of the terminal complete event.
type Final struct {
	Snapshot
	Validation []models.ValidationOutcome `json:"validation,omitempty"`
	Logs       []models.LogEntry          `json:"logs"`
	Error      string                     `json:"error,omitempty"`
	EndTime    *time.Time                 `json:"end_time,omitempty"`
}

// Failure is the payload of an error event.
type Failure struct {
	Message string `json:"message"`
}

// Notifier produces progress streams from a session store.
type Notifier struct {
	store    store.Store
	interval time.Duration
}

// NewNotifier creates a Notifier. A non-positive interval selects
// DefaultInterval.
func NewNotifier(st store.Store, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Notifier{store: st, interval: interval}
}

// errDone ends the polling loop after the complete event.
var errDone = errors.New("stream complete")

// Stream emits events for session id until the session reaches a terminal
// status, the session disappears, emit fails or ctx is cancelled. An
// unknown id yields a single error event and store.ErrNotFound.
func (n *Notifier) Stream(ctx context.Context, id string, emit func(Event) error) error {
	if _, err := n.store.Get(ctx, id); err != nil {
		emit(Event{Type: EventError, Data: Failure{Message: notFoundMessage(err)}})
		return err
	}
	if err := emit(Event{Type: EventConnected, Data: Connected{SessionID: id}}); err != nil {
		return err
	}

	offset := 0
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		err := n.tick(ctx, id, &offset, emit)
		if errors.Is(err, errDone) {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (n *Notifier) tick(ctx context.Context, id string, offset *int, emit func(Event) error) error {
	if ctx.Err() != nil {
		return errDone
	}
	sess, err := n.store.Get(ctx, id)
	if err != nil {
		emit(Event{Type: EventError, Data: Failure{Message: notFoundMessage(err)}})
		return err
	}

	if sess.Status.Terminal() {
		if err := emit(Event{Type: EventComplete, Data: finalOf(sess)}); err != nil {
			return err
		}
		return errDone
	}

	for _, entry := range sess.LogsSince(*offset) {
		if err := emit(Event{Type: EventLog, Data: entry}); err != nil {
			return err
		}
		*offset = entry.Seq + 1
	}
	return emit(Event{Type: EventProgress, Data: snapshotOf(sess)})
}

func snapshotOf(s *models.MigrationSession) Snapshot {
	return Snapshot{Status: s.Status, Stats: s.Stats, Outcomes: s.Outcomes}
}

func finalOf(s *models.MigrationSession) Final {
	return Final{
		Snapshot:   snapshotOf(s),
		Validation: s.Validation,
		Logs:       s.Logs,
		Error:      s.Error,
		EndTime:    s.EndTime,
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return "session not found"
	}
	return err.Error()
}
