package ledger

import (
	"fmt"
	"math"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

const defaultSpellbook = "primary"

// Resolve returns the pool that gates use of it on actor a.
func Resolve(a *model.Actor, it *model.Item) (State, error) {
	if it.Type == model.ItemSpell {
		return resolveSpell(a, it)
	}
	if it.IsSingleUse() {
		if it.Data.Quantity == nil {
			return Untracked{}, nil
		}
		return SingleUse{Quantity: *it.Data.Quantity}, nil
	}
	if it.IsCharged() || it.Data.Uses.Per == model.PerEncounter {
		u := it.Data.Uses
		return PeriodicCharges{Value: u.Value, Max: u.Max, Period: u.Per}, nil
	}
	return Untracked{}, nil
}

func resolveSpell(a *model.Actor, it *model.Item) (State, error) {
	if it.Data.AtWill || it.Data.Level == 0 {
		return AtWill{}, nil
	}
	key := spellbookKey(it)
	sb := a.Spellbook(key)
	if sb == nil {
		return nil, fmt.Errorf("spell %q book %q: %w", it.Name, key, ErrNoSpellbook)
	}
	switch {
	case sb.UsePowerPoints:
		return PowerPoints{Spellbook: key, Value: sb.PowerPoints, Cost: it.Data.PowerPointsCost}, nil
	case sb.Spontaneous:
		lvl := sb.Spells[model.SpellLevelKey(it.Data.Level)]
		v := 0
		if lvl != nil {
			v = lvl.Value
		}
		return SpontaneousSlots{Spellbook: key, Level: it.Data.Level, Value: v}, nil
	default:
		return PreparedSlots{Level: it.Data.Level, Amount: it.Data.Preparation.PreparedAmount}, nil
	}
}

func spellbookKey(it *model.Item) string {
	if it.Data.Spellbook == "" {
		return defaultSpellbook
	}
	return it.Data.Spellbook
}

// Write records s into cs as a patch of the item or of the actor's
// spellbook. It returns false for variants that are not stored.
func Write(cs *model.Changeset, actorID string, it *model.Item, s State) bool {
	switch v := s.(type) {
	case SingleUse:
		cs.PatchItem(actorID, it.ID, model.Patch{"quantity": v.Quantity})
	case PeriodicCharges:
		cs.PatchItem(actorID, it.ID, model.Patch{"uses.value": v.Value})
	case PreparedSlots:
		cs.PatchItem(actorID, it.ID, model.Patch{"preparation.preparedAmount": v.Amount})
	case SpontaneousSlots:
		path := fmt.Sprintf("attributes.spells.spellbooks.%s.spells.%s.value", v.Spellbook, model.SpellLevelKey(v.Level))
		cs.PatchActor(actorID, model.Patch{path: v.Value})
	case PowerPoints:
		path := fmt.Sprintf("attributes.spells.spellbooks.%s.powerPoints", v.Spellbook)
		cs.PatchActor(actorID, model.Patch{path: v.Value})
	default:
		return false
	}
	return true
}

// ResolveMax evaluates uses.maxFormula against bindings and returns the
// new maximum. Items without a formula keep their current maximum.
func ResolveMax(ev *formula.Evaluator, it *model.Item, b formula.Bindings) (int, error) {
	if it.Data.Uses.MaxFormula == "" {
		return it.Data.Uses.Max, nil
	}
	v, err := ev.Evaluate(it.Data.Uses.MaxFormula, b)
	if err != nil {
		return 0, fmt.Errorf("max uses of %q: %w", it.Name, err)
	}
	return int(math.Floor(v)), nil
}
