package itemhandler

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/model"
)

var ErrUnknownConsumable = errors.New("unknown consumable kind")

var (
	slRe = regexp.MustCompile(`@sl\b`)
	clRe = regexp.MustCompile(`@cl\b`)
)

// MinimumCasterLevel returns the lowest spell level and matching caster
// level at which the spell is learned, assuming a full caster. Spells
// without class data fall back to 9 and 20.
func MinimumCasterLevel(spell *model.Item) (sl, cl int) {
	sl, cl = 9, 20
	for _, la := range spell.Data.LearnedAt {
		sl = min(sl, la.Level)
		cl = min(cl, 1+max(0, la.Level-1)*2)
	}
	return sl, cl
}

// ToConsumable builds a consumable of the given kind (wand, potion,
// scroll, dorje, tattoo, powerstone) that casts spell at its minimum
// caster level.
func ToConsumable(spell *model.Item, kind string, rules *data.Ruleset) (*model.Item, error) {
	cr, ok := rules.Consumables[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownConsumable)
	}
	sl, cl := MinimumCasterLevel(spell)

	it := &model.Item{
		ID:   model.NewItemID(),
		Name: cr.NamePrefix + " " + spell.Name,
		Type: model.ItemConsumable,
		Img:  spell.Img,
	}
	d := &it.Data
	d.ConsumableType = kind
	d.Price = math.Max(0.5, float64(sl)) * float64(cl) * cr.PriceFactor
	d.Level = sl
	it.SetQuantity(1)

	if cr.Charges > 0 {
		d.Uses = model.Uses{
			Value:             cr.Charges,
			Max:               cr.Charges,
			MaxFormula:        strconv.Itoa(cr.Charges),
			Per:               model.PerCharges,
			AutoDeductCharges: true,
		}
	} else {
		d.Uses = model.Uses{Per: model.PerSingle, AutoDeductCharges: true}
	}
	d.Activation.Type = "standard"
	d.ActionType = spell.Data.ActionType

	for _, p := range spell.Data.Damage.Parts {
		f := slRe.ReplaceAllString(p.Formula, strconv.Itoa(sl))
		f = clRe.ReplaceAllString(f, strconv.Itoa(cl))
		d.Damage.Parts = append(d.Damage.Parts, model.DamagePart{Formula: f, Type: p.Type})
	}

	d.Save = model.Save{
		Type: spell.Data.Save.Type,
		DC:   strconv.Itoa(10 + sl + sl/2),
	}
	d.EffectNotes = spell.Data.EffectNotes
	d.AttackBonus = spell.Data.AttackBonus
	d.CritConfirm = spell.Data.CritConfirm
	d.Ability = spell.Data.Ability
	d.Description = fmt.Sprintf("%s (spell level %s, caster level %s)", spell.Name, ordinal(sl), ordinal(cl))
	return it, nil
}

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	}
	return strconv.Itoa(n) + "th"
}
