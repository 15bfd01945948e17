package buff

import (
	"context"
	"fmt"
	"strconv"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/model"
)

// AdvanceTime adds delta rounds to an active timed buff. Reaching the
// total deletes the buff when DeleteOnExpiry is set, otherwise deactivates
// it. Disabled or inactive timelines are left alone. A negative delta is
// rejected.
func (m *Machine) AdvanceTime(ctx context.Context, s *action.Scope, actorID, itemID string, delta int) error {
	if delta < 0 {
		return fmt.Errorf("advance by %d: %w", delta, ErrNegativeDelta)
	}
	a, it, err := m.lookup(s, actorID, itemID)
	if err != nil {
		return err
	}
	tl := it.Data.Timeline
	if !tl.Enabled || !it.Data.Active {
		return nil
	}

	if tl.Elapsed+delta < tl.Total {
		return s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: a.ID, ItemID: it.ID, Patch: model.Patch{"timeline.elapsed": tl.Elapsed + delta}})
	}
	if tl.DeleteOnExpiry {
		cloned := it.Data.ClonedAttacks
		if err := s.Apply(model.Op{Kind: model.OpDeleteItem, ActorID: a.ID, ItemID: it.ID}); err != nil {
			return err
		}
		if err := m.removeNaturalAttacks(s, a, cloned); err != nil {
			return err
		}
		m.recorder.RecordBuffTransition(ctx, EdgeExpireDelete)
		return nil
	}
	if err := m.SetActive(ctx, s, actorID, itemID, false); err != nil {
		return fmt.Errorf("expire %s: %w", it.Name, err)
	}
	m.recorder.RecordBuffTransition(ctx, EdgeExpire)
	return nil
}

// AdvanceAll advances every active timed buff of the actor by delta.
func (m *Machine) AdvanceAll(ctx context.Context, s *action.Scope, actorID string, delta int) error {
	if delta < 0 {
		return fmt.Errorf("advance by %d: %w", delta, ErrNegativeDelta)
	}
	a := s.Actor(actorID)
	if a == nil {
		return fmt.Errorf("actor %s: %w", actorID, ErrActorNotInScope)
	}
	var ids []string
	for _, it := range a.ItemsOf(model.ItemBuff) {
		if it.Data.Active && it.Data.Timeline.Enabled {
			ids = append(ids, it.ID)
		}
	}
	for _, id := range ids {
		// an earlier expiry may have deleted this buff through its actions
		if a.Item(id) == nil {
			continue
		}
		if err := m.AdvanceTime(ctx, s, actorID, id, delta); err != nil {
			return err
		}
	}
	return nil
}

// TimeLeft returns the rounds left on an active timed buff, or -1.
func TimeLeft(it *model.Item) int {
	tl := it.Data.Timeline
	if !tl.Enabled || !it.Data.Active {
		return -1
	}
	return tl.Total - tl.Elapsed
}

// Describe renders the time left: "Indefinite", "Not active", "2h",
// "5min", "3 rounds" or "Last round".
func Describe(it *model.Item, rules data.TimelineRules) string {
	tl := it.Data.Timeline
	if !tl.Enabled {
		return "Indefinite"
	}
	if !it.Data.Active {
		return "Not active"
	}
	left := tl.Total - tl.Elapsed
	switch {
	case left >= rules.RoundsPerHour:
		return strconv.Itoa(left/rules.RoundsPerHour) + "h"
	case left >= rules.RoundsPerMinute:
		return strconv.Itoa(left/rules.RoundsPerMinute) + "min"
	case left > 1:
		return strconv.Itoa(left) + " rounds"
	}
	return "Last round"
}
