// Package roll assembles attack and damage formulas from ordered modifier
// rule lists and evaluates them.
package roll

import (
	"fmt"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

// Composer builds and rolls attack and damage formulas.
type Composer struct {
	rules *data.Ruleset
	ev    *formula.Evaluator
}

// NewComposer returns a Composer using rules and ev.
func NewComposer(rules *data.Ruleset, ev *formula.Evaluator) *Composer {
	return &Composer{rules: rules, ev: ev}
}

// Evaluator returns the composer's formula evaluator.
func (c *Composer) Evaluator() *formula.Evaluator { return c.ev }

// Bindings returns the roll data for it used by a: the actor's flattened
// data, the item under "item.", the size bonus and, for spells, cl and sl.
func (c *Composer) Bindings(a *model.Actor, it *model.Item) (formula.Bindings, error) {
	b, err := a.RollData()
	if err != nil {
		return nil, err
	}
	if it != nil {
		ib, err := model.ItemRollData(it)
		if err != nil {
			return nil, err
		}
		b.Merge("item", ib)
	}
	b["sizeBonus"] = float64(c.rules.SizeModifier(a.EffectiveSize()))

	if it != nil && it.Type == model.ItemSpell {
		key := it.Data.Spellbook
		if key == "" {
			key = "primary"
		}
		sb := a.Spellbook(key)
		if sb == nil {
			return nil, fmt.Errorf("spell %q: spellbook %q not found", it.Name, key)
		}
		b["cl"] = float64(sb.CL.Total + it.Data.ClOffset)
		b["sl"] = float64(it.Data.Level + it.Data.SlOffset)
		if sb.Ability != "" {
			b["ablMod"] = b["abilities."+sb.Ability+".mod"]
		}
	}
	return b, nil
}

// Term is one labelled piece of a composed formula.
type Term struct {
	Label string `json:"label"`
	Expr  string `json:"expr"`
}

// Formula is a composed attack formula plus the bindings it was built with.
type Formula struct {
	Text     string           `json:"text"`
	Terms    []Term           `json:"terms"`
	Bindings formula.Bindings `json:"-"`
}

func join(base string, terms []Term) string {
	s := base
	for _, t := range terms {
		s = appendTerm(s, t.Expr)
	}
	return s
}

func appendTerm(s, expr string) string {
	if s == "" {
		return expr
	}
	if len(expr) > 1 && expr[0] == '-' {
		return s + " - " + trimLeftSpace(expr[1:])
	}
	return s + " + " + expr
}

func trimLeftSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	return s
}
