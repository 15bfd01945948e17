package buff

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/model"
)

// ActorStore is the part of the actor store the ticker needs.
type ActorStore interface {
	ActorIDs(ctx context.Context) ([]string, error)
	LoadActor(ctx context.Context, id string) (*model.Actor, error)
	Commit(ctx context.Context, cs *model.Changeset) error
}

// TickRecorder observes tick durations.
type TickRecorder interface {
	RecordTick(ctx context.Context, d time.Duration)
}

// Ticker advances the timelines of every stored actor's active buffs on a
// fixed real-time interval.
type Ticker struct {
	machine  *Machine
	store    ActorStore
	interval time.Duration
	rounds   int
	recorder TickRecorder
	lock     sync.Locker
}

type TickerOption func(*Ticker)

// WithTickLock makes the ticker hold l while it advances and commits one
// actor. Share it with every other writer of the store.
func WithTickLock(l sync.Locker) TickerOption { return func(t *Ticker) { t.lock = l } }

// NewTicker returns a Ticker that advances rounds game rounds every
// interval. rec may be nil.
func NewTicker(m *Machine, store ActorStore, interval time.Duration, rounds int, rec TickRecorder, opts ...TickerOption) *Ticker {
	t := &Ticker{machine: m, store: store, interval: interval, rounds: max(rounds, 1), recorder: rec, lock: &sync.Mutex{}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start runs the tick loop. It blocks until ctx is cancelled.
func (t *Ticker) Start(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	slog.Info("timeline ticker started", "interval", t.interval, "rounds", t.rounds)
	for {
		select {
		case <-ctx.Done():
			slog.Info("timeline ticker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.Tick(ctx); err != nil {
				slog.Error("timeline tick failed", "err", err)
			}
		}
	}
}

// Tick advances every actor once and commits each actor's changes
// separately. A failing actor is logged and skipped. It returns the number
// of actors that changed.
func (t *Ticker) Tick(ctx context.Context) (int, error) {
	start := time.Now()
	ids, err := t.store.ActorIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list actors: %w", err)
	}
	changed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		n, err := t.tickActor(ctx, id)
		if err != nil {
			slog.Warn("timeline tick skipped actor", "actor", id, "err", err)
			continue
		}
		if n > 0 {
			changed++
		}
	}
	if t.recorder != nil {
		t.recorder.RecordTick(ctx, time.Since(start))
	}
	slog.Debug("timeline tick", "actors", len(ids), "changed", changed, "took", time.Since(start))
	return changed, nil
}

func (t *Ticker) tickActor(ctx context.Context, id string) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	a, err := t.store.LoadActor(ctx, id)
	if err != nil {
		return 0, err
	}
	if !hasRunningTimeline(a) {
		return 0, nil
	}
	s, err := action.NewScope(a)
	if err != nil {
		return 0, err
	}
	if err := t.machine.AdvanceAll(ctx, s, id, t.rounds); err != nil {
		return 0, err
	}
	if s.Changes.Len() == 0 {
		return 0, nil
	}
	if err := t.store.Commit(ctx, s.Changes); err != nil {
		return 0, err
	}
	return s.Changes.Len(), nil
}

func hasRunningTimeline(a *model.Actor) bool {
	for _, it := range a.ItemsOf(model.ItemBuff) {
		if it.Data.Active && it.Data.Timeline.Enabled {
			return true
		}
	}
	return false
}
