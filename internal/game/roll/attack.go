package roll

import (
	"fmt"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

// AttackOptions are the caller-controlled inputs of an attack roll.
type AttackOptions struct {
	// Secondary marks a secondary natural attack.
	Secondary bool
	// Bonus is an iterative-attack or situational bonus formula.
	Bonus string
	// ExtraParts are appended verbatim, e.g. "@powerAttackPenalty".
	ExtraParts []string
}

type attackCtx struct {
	item *model.Item
	b    formula.Bindings
	opts AttackOptions
}

// attackRule is one conditional term of the attack formula.
type attackRule struct {
	label string
	when  func(c *attackCtx) bool
	term  func(c *attackCtx) string
}

func bound(path string) func(c *attackCtx) bool {
	return func(c *attackCtx) bool { return c.b[path] != 0 }
}

func ref(path string) func(c *attackCtx) string {
	return func(*attackCtx) string { return "@" + path }
}

func abilityPath(abl string) string {
	return "abilities." + abl + ".mod"
}

// attackRules is ordered; the order is the displayed breakdown.
var attackRules = []attackRule{
	{
		label: "ability",
		when: func(c *attackCtx) bool {
			abl := c.item.Data.Ability.Attack
			return abl != "" && c.b[abilityPath(abl)] != 0
		},
		term: func(c *attackCtx) string { return "@" + abilityPath(c.item.Data.Ability.Attack) },
	},
	{label: "size", when: bound("sizeBonus"), term: ref("sizeBonus")},
	{label: "item attack bonus", when: func(c *attackCtx) bool { return c.item.Data.AttackBonus != "" }, term: ref("item.attackBonus")},
	{label: "general attack", when: bound("attributes.attack.general"), term: ref("attributes.attack.general")},
	{
		label: "melee attack",
		when:  func(c *attackCtx) bool { return c.item.IsMelee() && c.b["attributes.attack.melee"] != 0 },
		term:  ref("attributes.attack.melee"),
	},
	{
		label: "ranged attack",
		when:  func(c *attackCtx) bool { return c.item.IsRanged() && c.b["attributes.attack.ranged"] != 0 },
		term:  ref("attributes.attack.ranged"),
	},
	{label: "base attack bonus", when: bound("attributes.bab.total"), term: ref("attributes.bab.total")},
	{label: "enhancement", when: bound("item.enh"), term: ref("item.enh")},
	{
		label: "energy drain",
		when:  bound("attributes.energyDrain"),
		term:  func(*attackCtx) string { return "- max(0, abs(@attributes.energyDrain))" },
	},
	{
		label: "non-proficient",
		when:  func(c *attackCtx) bool { return c.item.Type == model.ItemAttack && !c.item.Data.Proficient },
		term:  ref("item.proficiencyPenalty"),
	},
	{
		label: "masterwork",
		when: func(c *attackCtx) bool {
			return c.item.Type == model.ItemAttack && c.item.Data.Masterwork && c.item.Data.Enh < 1
		},
		term: ref("item.masterworkBonus"),
	},
	{label: "secondary attack", when: func(c *attackCtx) bool { return c.opts.Secondary }, term: ref("secondaryPenalty")},
	{label: "bonus", when: func(c *attackCtx) bool { return c.opts.Bonus != "" }, term: func(c *attackCtx) string { return "(" + c.opts.Bonus + ")" }},
}

// ComposeAttack builds the attack formula for it. Missing bindings count
// as zero. The item's attack bonus formula is evaluated up front and bound
// as a literal; a malformed bonus fails the whole attack.
func (c *Composer) ComposeAttack(b formula.Bindings, it *model.Item, opts AttackOptions) (Formula, error) {
	b = b.Clone()
	b["item.proficiencyPenalty"] = float64(c.rules.Attack.NonProficientPenalty)
	b["item.masterworkBonus"] = float64(c.rules.Attack.MasterworkBonus)
	b["secondaryPenalty"] = float64(c.rules.Attack.SecondaryNaturalPenalty)
	if it.Data.AttackBonus != "" {
		v, err := c.ev.Evaluate(it.Data.AttackBonus, b)
		if err != nil {
			return Formula{}, fmt.Errorf("attack bonus of %q: %w", it.Name, err)
		}
		b["item.attackBonus"] = v
	}

	ctx := &attackCtx{item: it, b: b, opts: opts}
	var terms []Term
	for _, r := range attackRules {
		if r.when(ctx) {
			terms = append(terms, Term{Label: r.label, Expr: r.term(ctx)})
		}
	}
	for _, p := range opts.ExtraParts {
		if p != "" {
			terms = append(terms, Term{Label: "extra", Expr: p})
		}
	}
	return Formula{Text: join("1d20", terms), Terms: terms, Bindings: b}, nil
}

// AttackRoll is an evaluated attack.
type AttackRoll struct {
	Formula Formula        `json:"formula"`
	Result  formula.Result `json:"result"`
	Natural int            `json:"natural"`
}

// Total returns the attack total.
func (r AttackRoll) Total() float64 { return r.Result.Total }

// IsThreat reports whether the natural roll falls in the threat range.
func (r AttackRoll) IsThreat(critRange int) bool {
	return r.Natural >= critRange
}

// RollAttack composes and evaluates an attack.
func (c *Composer) RollAttack(b formula.Bindings, it *model.Item, opts AttackOptions) (AttackRoll, error) {
	f, err := c.ComposeAttack(b, it, opts)
	if err != nil {
		return AttackRoll{}, err
	}
	res, err := c.ev.Roll(f.Text, f.Bindings)
	if err != nil {
		return AttackRoll{Formula: f}, err
	}
	nat, _ := res.Natural(20)
	return AttackRoll{Formula: f, Result: res, Natural: nat}, nil
}
