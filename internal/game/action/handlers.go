package action

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/udisondev/d20core/internal/game/directive"
	"github.com/udisondev/d20core/internal/model"
)

// protectedItemFields are written only by the buff lifecycle.
var protectedItemFields = map[string]bool{"active": true}

// Condition set <name> to <true|false>
func (d *Dispatcher) condition(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	if len(dir.Params) != 4 || !strings.EqualFold(dir.Param(0), "set") || !strings.EqualFold(dir.Param(2), "to") {
		return fmt.Errorf("condition %v: %w", dir.Params, ErrBadParams)
	}
	on, ok := ParseValue(dir.Param(3)).(bool)
	if !ok {
		return fmt.Errorf("condition value %q: %w", dir.Param(3), ErrBadParams)
	}
	name := directive.Unquote(dir.Param(1))
	return s.Apply(model.Op{Kind: model.OpPatchActor, ActorID: a.ID, Patch: model.Patch{"conditions." + name: on}})
}

// Update set <path> to <value>
func (d *Dispatcher) update(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	if len(dir.Params) < 4 || !strings.EqualFold(dir.Param(0), "set") || !strings.EqualFold(dir.Param(2), "to") {
		return fmt.Errorf("update %v: %w", dir.Params, ErrBadParams)
	}
	path := model.StripDataPrefix(dir.Param(1))
	value := ParseValue(strings.Join(dir.Params[3:], " "))
	return s.Apply(model.Op{Kind: model.OpPatchActor, ActorID: a.ID, Patch: model.Patch{path: value}})
}

// Set <type>[:subtype] <name|*> field <path> to <value>
func (d *Dispatcher) set(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	if len(dir.Params) < 6 || !strings.EqualFold(dir.Param(2), "field") || !strings.EqualFold(dir.Param(4), "to") {
		return fmt.Errorf("set %v: %w", dir.Params, ErrBadParams)
	}
	typ, subtype, _ := strings.Cut(dir.Param(0), ":")
	name := directive.Unquote(dir.Param(1))
	path := model.StripDataPrefix(dir.Param(3))
	if protectedItemFields[path] {
		return fmt.Errorf("set %s: %w", path, ErrProtectedField)
	}
	value := ParseValue(strings.Join(dir.Params[5:], " "))

	// ids first: applying ops rebuilds item data but not the slice order.
	var ids []string
	for _, it := range a.Items {
		if string(it.Type) != typ || (subtype != "" && !matchesSubtype(it, subtype)) {
			continue
		}
		if name != "*" && it.Name != name {
			continue
		}
		ids = append(ids, it.ID)
	}
	for _, id := range ids {
		if err := s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: a.ID, ItemID: id, Patch: model.Patch{path: value}}); err != nil {
			return err
		}
	}
	return nil
}

func matchesSubtype(it *model.Item, subtype string) bool {
	switch subtype {
	case it.Data.AttackType, it.Data.ConsumableType, it.Data.BuffType:
		return true
	}
	return false
}

// Damage <formula>
func (d *Dispatcher) damage(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	amount, err := d.amount(s, a, dir)
	if err != nil {
		return err
	}
	hp := a.Data.Attributes.HP
	temp := hp.Temp
	absorbed := min(temp, amount)
	temp -= absorbed
	value := hp.Value - (amount - absorbed)
	return s.Apply(model.Op{Kind: model.OpPatchActor, ActorID: a.ID, Patch: model.Patch{
		"attributes.hp.temp":  temp,
		"attributes.hp.value": value,
	}})
}

// Heal <formula>
func (d *Dispatcher) heal(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	amount, err := d.amount(s, a, dir)
	if err != nil {
		return err
	}
	hp := a.Data.Attributes.HP
	value := hp.Value + amount
	if hp.Max > 0 {
		value = min(value, hp.Max)
	}
	return s.Apply(model.Op{Kind: model.OpPatchActor, ActorID: a.ID, Patch: model.Patch{"attributes.hp.value": value}})
}

func (d *Dispatcher) amount(s *Scope, a *model.Actor, dir directive.Directive) (int, error) {
	if len(dir.Params) == 0 {
		return 0, fmt.Errorf("%s: %w", dir.Verb, ErrBadParams)
	}
	v, err := d.evaluate(s, a, directive.Unquote(strings.Join(dir.Params, " ")))
	if err != nil {
		return 0, err
	}
	return max(int(math.Floor(v)), 0), nil
}

// Add <type> <name> from <pack>
func (d *Dispatcher) add(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	if d.catalog == nil {
		return ErrNoCatalog
	}
	if len(dir.Params) != 4 || !strings.EqualFold(dir.Param(2), "from") {
		return fmt.Errorf("add %v: %w", dir.Params, ErrBadParams)
	}
	typ := model.ItemType(dir.Param(0))
	name := directive.Unquote(dir.Param(1))
	pack := directive.Unquote(dir.Param(3))
	it, ok := d.catalog.Find(pack, typ, name)
	if !ok {
		return fmt.Errorf("%s %q in %q: %w", typ, name, pack, ErrNotInCatalog)
	}
	return s.Apply(model.Op{Kind: model.OpCreateItem, ActorID: a.ID, ItemID: it.ID, Item: it})
}

// Remove <quantity> <name> [type]
//
// The quantity is a formula, floored to a whole number that must be
// positive. Removing at least the stack's quantity deletes the item.
func (d *Dispatcher) remove(_ context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	if len(dir.Params) < 2 || len(dir.Params) > 3 {
		return fmt.Errorf("remove %v: %w", dir.Params, ErrBadParams)
	}
	v, err := d.evaluate(s, a, directive.Unquote(dir.Param(0)))
	if err != nil {
		return err
	}
	n := int(math.Floor(v))
	if n <= 0 {
		return fmt.Errorf("remove quantity %v: %w", v, ErrBadParams)
	}
	it := a.FindItem(model.ItemType(dir.Param(2)), directive.Unquote(dir.Param(1)))
	if it == nil {
		slog.Debug("remove: item not found", "actor", a.ID, "name", dir.Param(1))
		return nil
	}
	if it.Data.Quantity == nil || it.QuantityValue() <= n {
		return s.Apply(model.Op{Kind: model.OpDeleteItem, ActorID: a.ID, ItemID: it.ID})
	}
	return s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: a.ID, ItemID: it.ID, Patch: model.Patch{"quantity": it.QuantityValue() - n}})
}

// Clear <buff name|*> [temporary]
//
// Deactivates matching active buffs. "temporary" limits it to temp buffs.
func (d *Dispatcher) clear(ctx context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	if len(dir.Params) < 1 || len(dir.Params) > 2 {
		return fmt.Errorf("clear %v: %w", dir.Params, ErrBadParams)
	}
	name := directive.Unquote(dir.Param(0))
	tempOnly := strings.EqualFold(dir.Param(1), "temporary")
	var ids []string
	for _, it := range a.ItemsOf(model.ItemBuff) {
		if !it.Data.Active || (name != "*" && it.Name != name) {
			continue
		}
		if tempOnly && it.Data.BuffType != model.BuffTemporary {
			continue
		}
		ids = append(ids, it.ID)
	}
	for _, id := range ids {
		if err := d.toggle(ctx, s, a, id, false); err != nil {
			return err
		}
	}
	return nil
}

// Activate <buff name>
func (d *Dispatcher) activate(ctx context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	return d.toggleNamed(ctx, s, a, dir, true)
}

// Deactivate <buff name>
func (d *Dispatcher) deactivate(ctx context.Context, s *Scope, a *model.Actor, dir directive.Directive) error {
	return d.toggleNamed(ctx, s, a, dir, false)
}

func (d *Dispatcher) toggleNamed(ctx context.Context, s *Scope, a *model.Actor, dir directive.Directive, active bool) error {
	if len(dir.Params) == 0 {
		return fmt.Errorf("%s: %w", dir.Verb, ErrBadParams)
	}
	name := directive.Unquote(strings.Join(dir.Params, " "))
	it := a.FindItem(model.ItemBuff, name)
	if it == nil {
		slog.Debug("buff not found", "actor", a.ID, "name", name)
		return nil
	}
	return d.toggle(ctx, s, a, it.ID, active)
}

func (d *Dispatcher) toggle(ctx context.Context, s *Scope, a *model.Actor, itemID string, active bool) error {
	if d.toggler == nil {
		return ErrNoToggler
	}
	return d.toggler.SetActive(ctx, s, a.ID, itemID, active)
}
