package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

func TestDeduct_FloorsAtZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    State
		delta int
		want  State
	}{
		{"single use", SingleUse{Quantity: 1}, -5, SingleUse{Quantity: 0}},
		{"charges", PeriodicCharges{Value: 1, Max: 50, Period: model.PerCharges}, -5, PeriodicCharges{Value: 0, Max: 50, Period: model.PerCharges}},
		{"prepared", PreparedSlots{Level: 2, Amount: 1}, -1, PreparedSlots{Level: 2, Amount: 0}},
		{"spontaneous", SpontaneousSlots{Spellbook: "primary", Level: 1, Value: 3}, -1, SpontaneousSlots{Spellbook: "primary", Level: 1, Value: 2}},
		{"power points", PowerPoints{Spellbook: "psi", Value: 5, Cost: 3}, -2, PowerPoints{Spellbook: "psi", Value: 0, Cost: 3}},
		{"restore", PeriodicCharges{Value: 0, Max: 3}, 2, PeriodicCharges{Value: 2, Max: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Deduct(tt.in, tt.delta))
		})
	}
}

func TestDeduct_AtWillExempt(t *testing.T) {
	t.Parallel()
	assert.Equal(t, AtWill{}, Deduct(AtWill{}, -100))
	assert.True(t, math.IsInf(Available(AtWill{}), 1))
	assert.True(t, math.IsInf(Available(Untracked{}), 1))
}

func TestAvailable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3.0, Available(SingleUse{Quantity: 3}))
	assert.Equal(t, 2.0, Available(PowerPoints{Value: 7, Cost: 3}))
	assert.True(t, math.IsInf(Available(PowerPoints{Value: 7}), 1))
}

func TestCheck(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Check(SingleUse{Quantity: 1}, 1))
	assert.ErrorIs(t, Check(SingleUse{Quantity: 0}, 1), ErrResourceExhausted)
	assert.ErrorIs(t, Check(PeriodicCharges{Value: 1}, 2), ErrResourceExhausted)
	assert.NoError(t, Check(AtWill{}, 10))
}

func TestRefill(t *testing.T) {
	t.Parallel()
	assert.Equal(t, PeriodicCharges{Value: 3, Max: 3, Period: model.PerEncounter},
		Refill(PeriodicCharges{Value: 0, Max: 3, Period: model.PerEncounter}))
	assert.Equal(t, SingleUse{Quantity: 1}, Refill(SingleUse{Quantity: 1}))
}

func newCaster(t *testing.T) *model.Actor {
	t.Helper()
	a := model.NewActor("wiz", "Wizard")
	a.Data.Attributes.Spells.Spellbooks["primary"] = &model.Spellbook{CL: model.Total{Total: 5}}
	a.Data.Attributes.Spells.Spellbooks["spont"] = &model.Spellbook{
		Spontaneous: true,
		Spells:      map[string]*model.SpellLevel{"spell2": {Value: 4, Max: 4}},
	}
	a.Data.Attributes.Spells.Spellbooks["psi"] = &model.Spellbook{UsePowerPoints: true, PowerPoints: 9}
	a.Normalize()
	return a
}

func TestResolve_Variants(t *testing.T) {
	t.Parallel()
	a := newCaster(t)

	qty := 3
	tests := []struct {
		name string
		item *model.Item
		want State
	}{
		{"potion", &model.Item{Type: model.ItemConsumable, Data: model.ItemData{Quantity: &qty, Uses: model.Uses{Per: model.PerSingle}}}, SingleUse{Quantity: 3}},
		{"wand", &model.Item{Type: model.ItemConsumable, Data: model.ItemData{Uses: model.Uses{Value: 10, Max: 50, Per: model.PerCharges}}}, PeriodicCharges{Value: 10, Max: 50, Period: model.PerCharges}},
		{"sword", &model.Item{Type: model.ItemWeapon}, Untracked{}},
		{"prepared", &model.Item{Type: model.ItemSpell, Data: model.ItemData{Level: 1, Preparation: model.Preparation{PreparedAmount: 2}}}, PreparedSlots{Level: 1, Amount: 2}},
		{"spontaneous", &model.Item{Type: model.ItemSpell, Data: model.ItemData{Level: 2, Spellbook: "spont"}}, SpontaneousSlots{Spellbook: "spont", Level: 2, Value: 4}},
		{"power", &model.Item{Type: model.ItemSpell, Data: model.ItemData{Level: 1, Spellbook: "psi", PowerPointsCost: 3}}, PowerPoints{Spellbook: "psi", Value: 9, Cost: 3}},
		{"cantrip", &model.Item{Type: model.ItemSpell, Data: model.ItemData{Level: 0}}, AtWill{}},
		{"at will", &model.Item{Type: model.ItemSpell, Data: model.ItemData{Level: 3, AtWill: true}}, AtWill{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(a, tt.item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_MissingSpellbook(t *testing.T) {
	t.Parallel()
	_, err := Resolve(newCaster(t), &model.Item{Type: model.ItemSpell, Data: model.ItemData{Level: 1, Spellbook: "nope"}})
	assert.ErrorIs(t, err, ErrNoSpellbook)
}

func TestWrite_TargetsOwner(t *testing.T) {
	t.Parallel()
	a := newCaster(t)
	qty := 2
	potion := &model.Item{ID: "potion", Type: model.ItemConsumable, Data: model.ItemData{Quantity: &qty, Uses: model.Uses{Per: model.PerSingle}}}
	spell := &model.Item{ID: "fireball", Type: model.ItemSpell, Data: model.ItemData{Level: 2, Spellbook: "spont"}}
	power := &model.Item{ID: "mind-thrust", Type: model.ItemSpell, Data: model.ItemData{Level: 1, Spellbook: "psi", PowerPointsCost: 3}}
	a.Items = []*model.Item{potion, spell, power}

	var cs model.Changeset
	for _, it := range a.Items {
		s, err := Resolve(a, it)
		require.NoError(t, err)
		require.True(t, Write(&cs, a.ID, it, Deduct(s, -1)))
	}
	assert.False(t, Write(&cs, a.ID, potion, AtWill{}))
	require.NoError(t, a.ApplyAll(&cs))

	assert.Equal(t, 1, potion.QuantityValue())
	assert.Equal(t, 3, a.Spellbook("spont").Spells["spell2"].Value)
	assert.Equal(t, 6, a.Spellbook("psi").PowerPoints)
}

func TestResolveMax(t *testing.T) {
	t.Parallel()
	ev := formula.New(nil)
	it := &model.Item{Name: "Turn Undead", Data: model.ItemData{Uses: model.Uses{Max: 1, MaxFormula: "3 + @abilities.cha.mod"}}}

	got, err := ResolveMax(ev, it, formula.Bindings{"abilities.cha.mod": 2})
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	it.Data.Uses.MaxFormula = ""
	got, err = ResolveMax(ev, it, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}
