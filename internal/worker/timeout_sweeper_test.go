package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeEngine struct {
	attempts []model.Attempt

	advanced     []uuid.UUID
	expired      []uuid.UUID
	advanceErr   map[uuid.UUID]error
	allCompleted map[uuid.UUID]bool
}

func (e *fakeEngine) ListInProgress(_ context.Context) ([]model.Attempt, error) {
	return e.attempts, nil
}

func (e *fakeEngine) AdvanceSubject(_ context.Context, attemptID uuid.UUID, _ int) (bool, error) {
	if err := e.advanceErr[attemptID]; err != nil {
		return false, err
	}
	e.advanced = append(e.advanced, attemptID)
	return e.allCompleted[attemptID], nil
}

func (e *fakeEngine) ExpireAttempt(_ context.Context, attemptID uuid.UUID, _ int) error {
	e.expired = append(e.expired, attemptID)
	return nil
}

func inProgressAttempt(startedAgo time.Duration, limitMinutes int) model.Attempt {
	started := time.Now().Add(-startedAgo)
	return model.Attempt{
		ID:     uuid.New(),
		UserID: 1,
		Status: model.AttemptStatusInProgress,
		Subjects: []model.SubjectAttempt{
			{SubjectIndex: 0, TimeLimitMinutes: limitMinutes, StartedAt: &started},
		},
	}
}

func TestSweepAdvancesExpiredSubjects(t *testing.T) {
	expired := inProgressAttempt(31*time.Minute, 30)
	fresh := inProgressAttempt(5*time.Minute, 30)
	engine := &fakeEngine{attempts: []model.Attempt{expired, fresh}}

	w := NewTimeoutSweeper(engine, time.Minute, zerolog.Nop())
	w.Sweep(context.Background())

	if len(engine.advanced) != 1 || engine.advanced[0] != expired.ID {
		t.Errorf("advanced = %v, want only the expired attempt", engine.advanced)
	}
	if len(engine.expired) != 0 {
		t.Errorf("expired = %v, want none", engine.expired)
	}
}

func TestSweepExpiresAttemptWithNoRemainingSubject(t *testing.T) {
	a := inProgressAttempt(31*time.Minute, 30)
	engine := &fakeEngine{
		attempts:     []model.Attempt{a},
		allCompleted: map[uuid.UUID]bool{a.ID: true},
	}

	w := NewTimeoutSweeper(engine, time.Minute, zerolog.Nop())
	w.Sweep(context.Background())

	if len(engine.expired) != 1 || engine.expired[0] != a.ID {
		t.Errorf("expired = %v, want the advanced-past-last attempt", engine.expired)
	}
}

func TestSweepExpiresFullyCompletedAttempt(t *testing.T) {
	// All subjects done but the attempt was left in progress: the sweep
	// finalizes it without trying to advance.
	a := inProgressAttempt(5*time.Minute, 30)
	a.Subjects[0].IsCompleted = true
	engine := &fakeEngine{attempts: []model.Attempt{a}}

	w := NewTimeoutSweeper(engine, time.Minute, zerolog.Nop())
	w.Sweep(context.Background())

	if len(engine.advanced) != 0 {
		t.Errorf("advanced = %v, want none", engine.advanced)
	}
	if len(engine.expired) != 1 || engine.expired[0] != a.ID {
		t.Errorf("expired = %v, want the stuck attempt", engine.expired)
	}
}

func TestSweepIsolatesPerAttemptFailures(t *testing.T) {
	broken := inProgressAttempt(31*time.Minute, 30)
	healthy := inProgressAttempt(31*time.Minute, 30)
	engine := &fakeEngine{
		attempts:   []model.Attempt{broken, healthy},
		advanceErr: map[uuid.UUID]error{broken.ID: errors.New("concurrent modification")},
	}

	w := NewTimeoutSweeper(engine, time.Minute, zerolog.Nop())
	w.Sweep(context.Background())

	if len(engine.advanced) != 1 || engine.advanced[0] != healthy.ID {
		t.Errorf("advanced = %v, want the healthy attempt despite the broken one", engine.advanced)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	w := NewTimeoutSweeper(engine, time.Hour, zerolog.Nop())

	if w.Running() {
		t.Fatal("sweeper should start stopped")
	}

	w.Start()
	w.Start() // no-op
	if !w.Running() {
		t.Fatal("sweeper should be running after Start")
	}

	w.Stop()
	if w.Running() {
		t.Fatal("sweeper should be stopped after Stop")
	}
	w.Stop() // safe when already stopped
}
