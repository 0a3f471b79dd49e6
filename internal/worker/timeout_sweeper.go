package worker

import (
	"context"
	"sync"
	"time"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AttemptEngine is the slice of the lifecycle engine the sweeper drives.
// The sweeper performs no transition itself — it funnels through the same
// AdvanceSubject/completion logic the user-facing endpoints use.
type AttemptEngine interface {
	ListInProgress(ctx context.Context) ([]model.Attempt, error)
	AdvanceSubject(ctx context.Context, attemptID uuid.UUID, userID int) (bool, error)
	ExpireAttempt(ctx context.Context, attemptID uuid.UUID, userID int) error
}

// TimeoutSweeper periodically scans in-progress attempts and forces subject
// advancement once a subject's time budget has elapsed. Two states, stopped
// and running; Start and Stop are both idempotent.
type TimeoutSweeper struct {
	engine   AttemptEngine
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimeoutSweeper creates a sweeper. It does not start until Start is
// called; the composition root owns its lifecycle.
func NewTimeoutSweeper(engine AttemptEngine, interval time.Duration, log zerolog.Logger) *TimeoutSweeper {
	return &TimeoutSweeper{
		engine:   engine,
		interval: interval,
		log:      log.With().Str("component", "timeout_sweeper").Logger(),
	}
}

// Start begins the recurring sweep. No-op when already running.
func (w *TimeoutSweeper) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx, w.done)
	w.log.Info().Dur("interval", w.interval).Msg("TimeoutSweeper started")
}

// Stop cancels the recurring sweep and waits for an in-flight pass to
// finish. Safe to call when already stopped.
func (w *TimeoutSweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.log.Info().Msg("TimeoutSweeper stopped")
}

// Running reports whether the sweeper is currently scheduled.
func (w *TimeoutSweeper) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *TimeoutSweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over all in-progress attempts. Per-attempt
// failures are logged and skipped so one broken or concurrently modified
// attempt cannot stall the rest.
func (w *TimeoutSweeper) Sweep(ctx context.Context) {
	attempts, err := w.engine.ListInProgress(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("List in-progress attempts failed")
		return
	}

	now := time.Now()
	for i := range attempts {
		a := &attempts[i]
		if err := w.sweepAttempt(ctx, a, now); err != nil {
			w.log.Warn().
				Err(err).
				Str("attempt_id", a.ID.String()).
				Int("user_id", a.UserID).
				Msg("Sweep of attempt failed")
		}
	}
}

func (w *TimeoutSweeper) sweepAttempt(ctx context.Context, a *model.Attempt, now time.Time) error {
	cur := a.CurrentSubject()
	if cur == nil {
		// Every subject is done but the attempt was left open (e.g. a
		// client advanced past the last subject and never submitted).
		return w.engine.ExpireAttempt(ctx, a.ID, a.UserID)
	}

	if !cur.Expired(now) {
		return nil
	}

	allCompleted, err := w.engine.AdvanceSubject(ctx, a.ID, a.UserID)
	if err != nil {
		return err
	}
	if allCompleted {
		return w.engine.ExpireAttempt(ctx, a.ID, a.UserID)
	}
	return nil
}
