package itemhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/d20core/internal/game/ledger"
	"github.com/udisondev/d20core/internal/model"
)

// Custom runs a free-form directive string (a chat-card button) as the
// actor, against targetIDs.
func (h *Handler) Custom(ctx context.Context, user model.User, actorID, raw string, targetIDs []string) (*model.Changeset, error) {
	a, err := h.store.LoadActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	if !a.IsOwner(user) {
		return nil, fmt.Errorf("%s: %w", a.Name, ErrPermission)
	}
	s, err := h.newScope(ctx, a, targetIDs)
	if err != nil {
		return nil, err
	}
	if err := h.dispatcher.Run(ctx, s, raw); err != nil {
		// effects already applied in the scope stand
		slog.Warn("custom action stopped", "actor", actorID, "err", err)
		if cerr := h.commit(ctx, s.Changes); cerr != nil {
			return s.Changes, cerr
		}
		return s.Changes, err
	}
	return s.Changes, h.commit(ctx, s.Changes)
}

// ResetPerEncounterUses refills every activatable per-encounter pool of
// the actor.
func (h *Handler) ResetPerEncounterUses(ctx context.Context, actorID string) (int, error) {
	a, err := h.store.LoadActor(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	var cs model.Changeset
	for _, it := range a.Items {
		u := it.Data.Uses
		if u.Per != model.PerEncounter || it.Data.Activation.Type == "" || u.Value == u.Max {
			continue
		}
		ledger.Write(&cs, a.ID, it, ledger.Refill(ledger.PeriodicCharges{Value: u.Value, Max: u.Max, Period: u.Per}))
	}
	return cs.Len(), h.commit(ctx, &cs)
}

// UpdateMaxUses re-evaluates uses.maxFormula of every item of the actor
// and writes the maxima that changed.
func (h *Handler) UpdateMaxUses(ctx context.Context, actorID string) (int, error) {
	a, err := h.store.LoadActor(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	var cs model.Changeset
	for _, it := range a.Items {
		if it.Data.Uses.MaxFormula == "" {
			continue
		}
		b, err := h.composer.Bindings(a, it)
		if err != nil {
			slog.Warn("max uses skipped", "item", it.Name, "err", err)
			continue
		}
		m, err := ledger.ResolveMax(h.composer.Evaluator(), it, b)
		if err != nil {
			slog.Warn("max uses skipped", "item", it.Name, "err", err)
			continue
		}
		if m != it.Data.Uses.Max {
			cs.PatchItem(a.ID, it.ID, model.Patch{"uses.max": m})
		}
	}
	return cs.Len(), h.commit(ctx, &cs)
}
