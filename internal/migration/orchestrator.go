package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
	"github.com/rflorenc/mailbox-move-workbench/internal/mover"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

// ErrNoRecords is returned by Start when there is nothing to migrate.
var ErrNoRecords = errors.New("no mailbox records to migrate")

// errNotRecorded finishes outcomes whose result never reached the store.
var errNotRecorded = errors.New("outcome not recorded")

const (
	recordAttempts = 3
	recordBackoff  = 50 * time.Millisecond
)

// Options tunes an Orchestrator.
type Options struct {
	// BatchDelay is the pause between consecutive batches. Zero disables it.
	BatchDelay     time.Duration
	LargeMailboxMB float64
	Logger         *slog.Logger
}

// Orchestrator runs migration sessions in the background. Batches within a
// session run one after another; the items of a batch run concurrently.
type Orchestrator struct {
	store      store.Store
	mover      mover.Mover
	validator  *Validator
	batchDelay time.Duration
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewOrchestrator wires an Orchestrator to its store and mover.
func NewOrchestrator(st store.Store, mv mover.Mover, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      st,
		mover:      mv,
		validator:  NewValidator(mv, opts.LargeMailboxMB),
		batchDelay: opts.BatchDelay,
		logger:     logger,
	}
}

// Validator returns the validator used for pre-migration checks.
func (o *Orchestrator) Validator() *Validator {
	return o.validator
}

// Start creates a session and processes it asynchronously. It returns as
// soon as the session is stored; the run outlives ctx.
func (o *Orchestrator) Start(ctx context.Context, id string, records []models.MailboxRecord, cfg models.SessionConfig) (*models.MigrationSession, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if id == "" {
		id = uuid.NewString()
	}
	sess := models.NewSession(id, cfg, records)
	sess.Logf("Session created with %d mailboxes (batch size %d)", len(records), sess.Config.BatchSize)
	if err := o.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), id)
	return sess, nil
}

// Wait blocks until every started session has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Partition splits records into consecutive chunks of size; the last chunk
// may be shorter. A size below one is treated as one.
func Partition(records []models.MailboxRecord, size int) [][]models.MailboxRecord {
	if size < 1 {
		size = 1
	}
	batches := make([][]models.MailboxRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, records[start:end])
	}
	return batches
}

func (o *Orchestrator) run(ctx context.Context, id string) {
	defer o.wg.Done()
	logger := o.logger.With("session", id)

	sess, err := o.store.Get(ctx, id)
	if err != nil {
		logger.Error("loading session", "error", err)
		return
	}
	records, cfg := sess.Records, sess.Config

	if !cfg.SkipValidation {
		eligible, err := o.validate(ctx, id, records)
		if err != nil {
			o.abort(ctx, logger, id, err)
			return
		}
		records = eligible
	}
	if cfg.ValidateOnly {
		o.finish(ctx, logger, id)
		return
	}

	batches := Partition(records, cfg.BatchSize)
	err = o.update(ctx, id, func(s *models.MigrationSession) error {
		s.Status = models.SessionMigrating
		s.Logf("Starting migration of %d mailboxes in %d batches", len(records), len(batches))
		return nil
	})
	if err != nil {
		o.abort(ctx, logger, id, err)
		return
	}
	logger.Info("migration started", "mailboxes", len(records), "batches", len(batches))

	for i, batch := range batches {
		err := o.update(ctx, id, func(s *models.MigrationSession) error {
			s.Logf("Batch %d/%d: %d mailboxes", i+1, len(batches), len(batch))
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			o.abort(ctx, logger, id, err)
			return
		}
		if err != nil {
			logger.Error("logging batch start", "batch", i+1, "error", err)
		}

		var wg sync.WaitGroup
		for _, rec := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						logger.Error("mailbox move panicked", "source", rec.SourceEmail, "panic", r)
					}
				}()
				o.processItem(ctx, logger, id, rec)
			}()
		}
		wg.Wait()

		if i < len(batches)-1 && o.batchDelay > 0 {
			t := time.NewTimer(o.batchDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}

	o.finish(ctx, logger, id)
}

// validate runs the validation gate and returns the records that may be
// migrated.
func (o *Orchestrator) validate(ctx context.Context, id string, records []models.MailboxRecord) ([]models.MailboxRecord, error) {
	err := o.update(ctx, id, func(s *models.MigrationSession) error {
		s.Status = models.SessionValidating
		s.Logf("Validating %d mailboxes...", len(records))
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := o.validator.ValidateAll(ctx, records)
	eligible := make([]models.MailboxRecord, 0, len(records))
	var warnings, failures int
	for i, r := range results {
		switch r.Status {
		case models.ValidationFailed:
			failures++
			continue
		case models.ValidationWarning:
			warnings++
		}
		eligible = append(eligible, records[i])
	}

	err = o.update(ctx, id, func(s *models.MigrationSession) error {
		s.Validation = results
		for _, r := range results {
			if r.Status == models.ValidationFailed {
				s.AppendLog("warn", fmt.Sprintf("%s: %s", r.Record.SourceEmail, strings.Join(r.Issues, "; ")))
			}
		}
		s.Logf("Validation complete: %d passed, %d warnings, %d failed",
			len(results)-warnings-failures, warnings, failures)
		s.Status = models.SessionReady
		return nil
	})
	return eligible, err
}

// processItem moves one mailbox. Its errors never leave this function.
func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, id string, rec models.MailboxRecord) {
	outcomeID := uuid.NewString()
	err := o.update(ctx, id, func(s *models.MigrationSession) error {
		s.Outcomes = append(s.Outcomes, models.MigrationOutcome{
			ID:        outcomeID,
			Record:    rec,
			StartTime: time.Now(),
			Status:    models.OutcomeInProgress,
		})
		s.Logf("Moving %s -> %s", rec.SourceEmail, rec.TargetEmail)
		return nil
	})
	if err != nil {
		logger.Error("recording move start", "source", rec.SourceEmail, "error", err)
		return
	}

	res, moveErr := o.move(ctx, rec)
	end := time.Now()

	err = o.updateWithRetry(ctx, id, func(s *models.MigrationSession) error {
		out := s.Outcome(outcomeID)
		if out == nil {
			return fmt.Errorf("outcome %s missing", outcomeID)
		}
		if !out.Finish(end, moveErr, res.ItemsMoved, humanize.Bytes(uint64(max(res.BytesMoved, 0)))) {
			return nil
		}
		if moveErr != nil {
			s.AppendLog("error", fmt.Sprintf("Failed %s: %v", rec.SourceEmail, moveErr))
		} else {
			s.Logf("Completed %s (%d items, %s) in %s", rec.SourceEmail, out.ItemsMoved, out.DataMoved, out.Duration)
		}
		return nil
	})
	if err != nil {
		logger.Error("recording move result", "source", rec.SourceEmail, "error", err)
	}
}

// move calls the mover and turns a panic into an error.
func (o *Orchestrator) move(ctx context.Context, rec models.MailboxRecord) (res mover.MoveResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = mover.MoveResult{}
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return o.mover.Move(ctx, strings.TrimSpace(rec.SourceEmail), strings.TrimSpace(rec.TargetEmail))
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, id string) {
	sess, err := o.store.Update(ctx, id, func(s *models.MigrationSession) error {
		now := time.Now()
		for i := range s.Outcomes {
			out := &s.Outcomes[i]
			if out.Finish(now, errNotRecorded, 0, "") {
				s.AppendLog("error", fmt.Sprintf("Failed %s: %v", out.Record.SourceEmail, errNotRecorded))
			}
		}
		s.RecomputeStats()
		s.Complete()
		s.Logf("Migration completed: %d successful, %d failed, %d skipped",
			s.Stats.Successful, s.Stats.Failed, s.Stats.Skipped)
		return nil
	})
	if err != nil {
		logger.Error("completing session", "error", err)
		return
	}
	logger.Info("migration completed",
		"successful", sess.Stats.Successful,
		"failed", sess.Stats.Failed,
		"skipped", sess.Stats.Skipped)
}

// abort marks the session as errored if it still exists.
func (o *Orchestrator) abort(ctx context.Context, logger *slog.Logger, id string, cause error) {
	logger.Error("migration aborted", "error", cause)
	if errors.Is(cause, store.ErrNotFound) {
		return
	}
	_, err := o.store.Update(ctx, id, func(s *models.MigrationSession) error {
		s.AppendLog("error", cause.Error())
		s.Fail(cause.Error())
		return nil
	})
	if err != nil {
		logger.Error("marking session failed", "error", err)
	}
}

func (o *Orchestrator) update(ctx context.Context, id string, fn store.MutateFunc) error {
	_, err := o.store.Update(ctx, id, fn)
	return err
}

// updateWithRetry retries fn on store errors other than ErrNotFound.
func (o *Orchestrator) updateWithRetry(ctx context.Context, id string, fn store.MutateFunc) error {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = o.update(ctx, id, fn); err == nil || errors.Is(err, store.ErrNotFound) {
			return err
		}
		if attempt == recordAttempts {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * recordBackoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return err
		}
	}
	return err
}
