package buff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/d20core/internal/db"
	"github.com/udisondev/d20core/internal/model"
)

type tickCounter struct{ n int }

func (c *tickCounter) RecordTick(context.Context, time.Duration) { c.n++ }

func TestTicker_Tick(t *testing.T) {
	t.Parallel()
	m, rec := newTestMachine(t)

	druid := newDruid()
	b := counterBuff("c")
	b.Data.Active = true
	b.Data.Timeline.Elapsed = 58
	b.Data.Timeline.Total = 60
	druid.Items = []*model.Item{b}
	idle := model.NewActor("idle", "Idle")

	store, err := db.NewMemoryStore(druid, idle)
	require.NoError(t, err)
	tc := &tickCounter{}
	tk := NewTicker(m, store, time.Second, 5, tc)

	changed, err := tk.Tick(context.Background())
	require.NoError(t, err)
	if changed != 1 {
		t.Errorf("changed = %d; want 1", changed)
	}
	assert.Equal(t, 1, tc.n)
	assert.Equal(t, []string{EdgeDeactivate, EdgeExpire}, rec.edges)

	got, err := store.LoadActor(context.Background(), "druid")
	require.NoError(t, err)
	assert.False(t, got.Item("c").Data.Active)
	assert.Equal(t, 49, got.Data.Attributes.HP.Value)

	// nothing left running
	changed, err = tk.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestTicker_StartStops(t *testing.T) {
	t.Parallel()
	m, _ := newTestMachine(t)
	store, err := db.NewMemoryStore()
	require.NoError(t, err)
	tk := NewTicker(m, store, time.Millisecond, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = tk.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingLocker struct {
	held, locks int
}

func (l *countingLocker) Lock()   { l.held++; l.locks++ }
func (l *countingLocker) Unlock() { l.held-- }

func TestTicker_HoldsLockPerActor(t *testing.T) {
	t.Parallel()
	m, _ := newTestMachine(t)
	store, err := db.NewMemoryStore(newDruid(), model.NewActor("idle", "Idle"))
	require.NoError(t, err)
	l := &countingLocker{}
	tk := NewTicker(m, store, time.Second, 1, nil, WithTickLock(l))

	_, err = tk.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, l.locks)
	assert.Zero(t, l.held)
}
