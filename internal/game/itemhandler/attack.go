package itemhandler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/game/roll"
	"github.com/udisondev/d20core/internal/model"
)

const powerAttackDamage = "floor(@powerAttackBonus * @ablMult) * @critMult"

// rollPlan is the per-use input shared by every attack line.
type rollPlan struct {
	item      *model.Item
	b         formula.Bindings
	secondary bool
	atkExtra  []string
	dmgExtra  []string
}

// useAction rolls attacks, damage or effects, then spends charges and
// ammunition. Items without any action only spend a charge.
func useAction(ctx context.Context, h *Handler, u *useCtx) error {
	it := u.item
	if !it.HasAction() {
		if it.IsCharged() {
			return h.deduct(ctx, u, -u.opts.UseAmount)
		}
		return nil
	}

	p, ammo, err := h.plan(u)
	if err != nil {
		return err
	}

	switch {
	case it.HasAttack():
		for _, atk := range attackList(it, u.opts.FullAttack) {
			u.res.Attacks = append(u.res.Attacks, h.rollAttack(ctx, p, atk))
		}
	case it.HasDamage():
		line := Attack{Healing: it.IsHealing(), Effects: effects(it)}
		line.Damage, err = h.rollDamage(ctx, p, false)
		if err != nil {
			line.Err = err.Error()
		}
		u.res.Attacks = append(u.res.Attacks, line)
	case it.HasEffect():
		u.res.Attacks = append(u.res.Attacks, Attack{Effects: effects(it)})
	case it.Data.ActionType == model.ActionSpecial:
		if err := h.runSpecial(ctx, u); err != nil {
			return err
		}
	}

	if it.AutoDeductCharges() {
		if err := h.deduct(ctx, u, -u.opts.UseAmount); err != nil {
			return err
		}
	}
	if ammo != nil {
		left := max(ammo.QuantityValue()-len(u.res.Attacks), 0)
		if err := u.scope.Apply(model.Op{Kind: model.OpPatchItem, ActorID: u.actor.ID, ItemID: ammo.ID, Patch: model.Patch{"quantity": left}}); err != nil {
			return err
		}
	}
	return nil
}

// plan collects bindings and the extra attack and damage terms chosen in
// the options.
func (h *Handler) plan(u *useCtx) (*rollPlan, *model.Item, error) {
	it := u.item
	if u.opts.DamageMult > 0 {
		c := *it
		c.Data.Ability.DamageMult = u.opts.DamageMult
		it = &c
	}
	b, err := h.composer.Bindings(u.actor, it)
	if err != nil {
		return nil, nil, err
	}
	p := &rollPlan{item: it, b: b, secondary: u.opts.Secondary}

	if u.opts.AttackBonus != "" {
		p.atkExtra = append(p.atkExtra, u.opts.AttackBonus)
	}
	if u.opts.DamageBonus != "" {
		p.dmgExtra = append(p.dmgExtra, u.opts.DamageBonus)
	}
	if u.opts.PowerAttack {
		bab := int(b.Get("attributes.bab.total"))
		b["powerAttackBonus"] = float64(h.rules.PowerAttackBonus(bab))
		b["powerAttackPenalty"] = float64(h.rules.PowerAttackPenalty(bab))
		p.atkExtra = append(p.atkExtra, "@powerAttackPenalty")
		p.dmgExtra = append(p.dmgExtra, powerAttackDamage)
	}

	var ammo *model.Item
	if u.opts.AmmoID != "" {
		ammo = u.actor.Item(u.opts.AmmoID)
		if ammo == nil || ammo.QuantityValue() <= 0 {
			return nil, nil, fmt.Errorf("ammunition %s: %w", u.opts.AmmoID, ErrNoAmmo)
		}
		if parts := ammo.Data.Damage.Parts; len(parts) > 0 {
			p.dmgExtra = append(p.dmgExtra, parts[0].Formula)
		}
	}
	return p, ammo, nil
}

// attackList returns the attacks of a use: the base attack, plus every
// iterative attack on a full attack.
func attackList(it *model.Item, full bool) []model.AttackPart {
	list := []model.AttackPart{{Name: "Attack"}}
	if full {
		list = append(list, it.Data.AttackParts...)
	}
	return list
}

// rollAttack rolls one attack line. A formula error ends that line only.
func (h *Handler) rollAttack(ctx context.Context, p *rollPlan, atk model.AttackPart) Attack {
	line := Attack{Label: atk.Name, Healing: p.item.IsHealing()}
	opts := roll.AttackOptions{Secondary: p.secondary, Bonus: atk.Bonus, ExtraParts: p.atkExtra}
	ar, err := h.composer.RollAttack(p.b, p.item, opts)
	if err != nil {
		h.recorder.RecordRoll(ctx, "attack", "error")
		slog.Warn("attack roll failed", "item", p.item.Name, "attack", atk.Name, "err", err)
		line.Err = err.Error()
		return line
	}
	h.recorder.RecordRoll(ctx, "attack", "ok")
	line.Roll = &ar
	line.Effects = effects(p.item)

	if p.item.HasDamage() {
		if line.Damage, err = h.rollDamage(ctx, p, false); err != nil {
			line.Err = err.Error()
		}
	}

	line.Threat = ar.IsThreat(p.item.CritRange(h.rules.Attack.DefaultCritRange))
	if !line.Threat {
		return line
	}
	confirm := opts
	if cb := p.item.Data.CritConfirm; cb != "" {
		confirm.ExtraParts = append(append([]string(nil), opts.ExtraParts...), cb)
	}
	cr, err := h.composer.RollAttack(p.b, p.item, confirm)
	if err != nil {
		h.recorder.RecordRoll(ctx, "confirm", "error")
		line.Err = err.Error()
		return line
	}
	h.recorder.RecordRoll(ctx, "confirm", "ok")
	line.Confirm = &cr
	if p.item.HasDamage() {
		if line.CritDamage, err = h.rollDamage(ctx, p, true); err != nil {
			line.Err = err.Error()
		}
	}
	return line
}

func (h *Handler) rollDamage(ctx context.Context, p *rollPlan, critical bool) ([]roll.DamageRoll, error) {
	rolls, err := h.composer.RollDamage(p.b, p.item, roll.DamageOptions{
		Critical:   critical,
		Secondary:  p.secondary,
		ExtraParts: p.dmgExtra,
	})
	if err != nil {
		h.recorder.RecordRoll(ctx, "damage", "error")
		slog.Warn("damage roll failed", "item", p.item.Name, "critical", critical, "err", err)
		return rolls, err
	}
	h.recorder.RecordRoll(ctx, "damage", "ok")
	return rolls, nil
}

// runSpecial dispatches the item's special actions against the use's
// scope, with the item bound under "item.".
func (h *Handler) runSpecial(ctx context.Context, u *useCtx) error {
	ib, err := model.ItemRollData(u.item)
	if err != nil {
		return err
	}
	u.scope.Bindings = formula.Bindings{}
	u.scope.Bindings.Merge("item", ib)
	for _, sp := range u.item.Data.Special {
		if err := h.dispatcher.Run(ctx, u.scope, sp.Action); err != nil {
			return fmt.Errorf("special %q: %w", sp.Name, err)
		}
	}
	return nil
}

func effects(it *model.Item) []string {
	return strings.FieldsFunc(it.Data.EffectNotes, func(r rune) bool { return r == '\n' || r == '\r' })
}
