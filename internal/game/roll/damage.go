package roll

import (
	"errors"
	"fmt"
	"math"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

// ErrNoDamage is returned when damage is rolled for an item without parts.
var ErrNoDamage = errors.New("item has no damage parts")

// DamageOptions are the caller-controlled inputs of a damage roll.
type DamageOptions struct {
	Critical  bool
	Secondary bool
	// ExtraParts go on the first part only and never scale, e.g. ammunition.
	ExtraParts []string
}

// Part is one typed damage formula.
type Part struct {
	Base       string   `json:"base"`
	Extra      []string `json:"extra,omitempty"`
	DamageType string   `json:"damageType"`
}

// Text renders the part as a single formula.
func (p Part) Text() string {
	s := p.Base
	for _, e := range p.Extra {
		s = appendTerm(s, e)
	}
	return s
}

// DamageFormula is the composed damage of one hit.
type DamageFormula struct {
	Parts    []Part           `json:"parts"`
	Bindings formula.Bindings `json:"-"`
}

type damageCtx struct {
	item     *model.Item
	b        formula.Bindings
	critical bool
}

// damageRule adds a bound value to the first part. Scaling rules multiply
// by @critMult on a critical hit.
type damageRule struct {
	label  string
	path   string
	when   func(c *damageCtx) bool
	scales bool
}

func always(*damageCtx) bool { return true }

var damageRules = []damageRule{
	{label: "enhancement", path: "item.enh", when: always, scales: true},
	{label: "general damage", path: "attributes.damage.general", when: always, scales: true},
	{
		label:  "weapon damage",
		path:   "attributes.damage.weapon",
		when:   func(c *damageCtx) bool { return c.item.Data.ActionType == model.ActionMeleeWeapon || c.item.Data.ActionType == model.ActionRangedWeapon },
		scales: true,
	},
	{
		label: "spell damage",
		path:  "attributes.damage.spell",
		when: func(c *damageCtx) bool {
			switch c.item.Data.ActionType {
			case model.ActionMeleeSpell, model.ActionRangedSpell, model.ActionSpellSave:
				return true
			}
			return false
		},
		scales: true,
	},
}

func (r damageRule) term(c *damageCtx) string {
	if r.scales && c.critical {
		return "@" + r.path + " * @critMult"
	}
	return "@" + r.path
}

// ComposeDamage builds the damage parts of it. On a critical hit the first
// part's dice count is multiplied by the item's critical multiplier.
// Positive ability damage is halved on secondary attacks; negative ability
// damage is added as is and never scales.
func (c *Composer) ComposeDamage(b formula.Bindings, it *model.Item, opts DamageOptions) (DamageFormula, error) {
	if !it.HasDamage() {
		return DamageFormula{}, fmt.Errorf("%q: %w", it.Name, ErrNoDamage)
	}
	b = b.Clone()

	critMult := 1
	if opts.Critical {
		critMult = it.CritMult(c.rules.Attack.DefaultCritMult)
	}
	ablMult := it.Data.Ability.DamageMult
	if ablMult == 0 && it.Data.Ability.Damage != "" {
		ablMult = 1
	}
	if opts.Secondary && ablMult > 0 {
		ablMult = c.rules.Attack.SecondaryDamageMult
	}
	b["critMult"] = float64(critMult)
	b["ablMult"] = ablMult

	parts := make([]Part, len(it.Data.Damage.Parts))
	for i, p := range it.Data.Damage.Parts {
		parts[i] = Part{Base: p.Formula, DamageType: p.Type}
	}
	parts[0].Base = formula.AlterDice(parts[0].Base, 0, critMult)

	ctx := &damageCtx{item: it, b: b, critical: opts.Critical}
	if abl := it.Data.Ability.Damage; abl != "" {
		mod := b[abilityPath(abl)]
		abld := math.Floor(mod * ablMult)
		if mod < 0 {
			abld = mod
		}
		b["ablDamage"] = abld
		switch {
		case abld < 0:
			parts[0].Extra = append(parts[0].Extra, "@ablDamage")
		case abld > 0 && opts.Critical:
			parts[0].Extra = append(parts[0].Extra, "@ablDamage * @critMult")
		case abld > 0:
			parts[0].Extra = append(parts[0].Extra, "@ablDamage")
		}
	}
	for _, r := range damageRules {
		if r.when(ctx) && b[r.path] != 0 {
			parts[0].Extra = append(parts[0].Extra, r.term(ctx))
		}
	}
	for _, e := range opts.ExtraParts {
		if e != "" {
			parts[0].Extra = append(parts[0].Extra, e)
		}
	}
	return DamageFormula{Parts: parts, Bindings: b}, nil
}

// DamageRoll is one evaluated damage part.
type DamageRoll struct {
	Part   Part           `json:"part"`
	Result formula.Result `json:"result"`
}

// RollDamage composes and evaluates every damage part of it. Each part is
// its own roll: a failing part is left out and its error joined into the
// returned error, the other parts are still returned.
func (c *Composer) RollDamage(b formula.Bindings, it *model.Item, opts DamageOptions) ([]DamageRoll, error) {
	df, err := c.ComposeDamage(b, it, opts)
	if err != nil {
		return nil, err
	}
	rolls := make([]DamageRoll, 0, len(df.Parts))
	var errs []error
	for i, p := range df.Parts {
		res, err := c.ev.Roll(p.Text(), df.Bindings)
		if err != nil {
			errs = append(errs, fmt.Errorf("damage part %d of %q: %w", i, it.Name, err))
			continue
		}
		rolls = append(rolls, DamageRoll{Part: p, Result: res})
	}
	return rolls, errors.Join(errs...)
}

// TotalDamage sums every part of rolls.
func TotalDamage(rolls []DamageRoll) float64 {
	var sum float64
	for _, r := range rolls {
		sum += r.Result.Total
	}
	return sum
}
