package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

type toggleCall struct {
	actorID, itemID string
	active          bool
}

type fakeToggler struct {
	calls []toggleCall
}

func (f *fakeToggler) SetActive(_ context.Context, s *Scope, actorID, itemID string, active bool) error {
	f.calls = append(f.calls, toggleCall{actorID, itemID, active})
	return s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: actorID, ItemID: itemID, Patch: model.Patch{"active": active}})
}

type countingRecorder struct {
	got map[string]int
}

func (r *countingRecorder) RecordDirective(_ context.Context, verb, status string) {
	r.got[verb+"/"+status]++
}

func newHero() *model.Actor {
	a := model.NewActor("hero", "Hero")
	a.Data.Attributes.HP = model.HP{Value: 20, Max: 30, Temp: 3}
	a.Data.Abilities["con"] = model.AbilityScore{Value: 14, Mod: 2}
	return a
}

func newTestDispatcher(dice ...int) *Dispatcher {
	return NewDispatcher(formula.New(formula.Fixed(dice...)), WithCatalog(data.DefaultCatalog()))
}

func TestDispatch_ConditionAndUpdate(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	a := newHero()
	s, err := NewScope(a)
	require.NoError(t, err)

	err = d.Run(context.Background(), s, "Condition set wildshaped to true on self; Update set data.shapechangeImg to icons/wolf.png on self")
	require.NoError(t, err)

	assert.True(t, s.Self.Data.Conditions["wildshaped"])
	assert.Equal(t, "icons/wolf.png", s.Self.Data.ShapechangeImg)
	assert.Equal(t, 2, s.Changes.Len())
	assert.False(t, a.Data.Conditions["wildshaped"], "original actor must stay untouched")
}

func TestDispatch_ConditionBadValue(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	s, err := NewScope(newHero())
	require.NoError(t, err)

	err = d.Run(context.Background(), s, "Condition set wildshaped to maybe on self")
	require.ErrorIs(t, err, ErrBadParams)
	assert.Zero(t, s.Changes.Len())
}

func TestDispatch_SetField(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	a := newHero()
	a.Items = []*model.Item{
		{ID: "bite", Name: "Bite", Type: model.ItemAttack, Data: model.ItemData{AttackType: model.AttackNatural}},
		{ID: "slam", Name: "Slam", Type: model.ItemAttack, Data: model.ItemData{AttackType: "misc"}},
		{ID: "sword", Name: "Sword", Type: model.ItemWeapon},
	}
	s, err := NewScope(a)
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background(), s, "Set attack:natural * field data.melded to true on self"))
	assert.True(t, s.Self.Item("bite").Data.Melded)
	assert.False(t, s.Self.Item("slam").Data.Melded)
	assert.False(t, s.Self.Item("sword").Data.Melded)

	require.NoError(t, d.Run(context.Background(), s, "Set weapon Sword field data.melded to true on self"))
	assert.True(t, s.Self.Item("sword").Data.Melded)
}

func TestDispatch_SetActiveIsProtected(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	a := newHero()
	a.Items = []*model.Item{{ID: "b", Name: "Bless", Type: model.ItemBuff}}
	s, err := NewScope(a)
	require.NoError(t, err)

	err = d.Run(context.Background(), s, "Set buff Bless field data.active to true on self")
	require.ErrorIs(t, err, ErrProtectedField)
	assert.False(t, s.Self.Item("b").Data.Active)
}

func TestDispatch_DamageAndHeal(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(4)
	s, err := NewScope(newHero())
	require.NoError(t, err)

	// 1d6 rolls 4, +2 con: temp absorbs 3, hp loses 3.
	require.NoError(t, d.Run(context.Background(), s, "Damage 1d6+@abilities.con.mod on self"))
	hp := s.Self.Data.Attributes.HP
	if hp.Temp != 0 {
		t.Errorf("Temp = %d; want 0", hp.Temp)
	}
	if hp.Value != 17 {
		t.Errorf("Value = %d; want 17", hp.Value)
	}

	require.NoError(t, d.Run(context.Background(), s, "Heal 100 on self"))
	assert.Equal(t, 30, s.Self.Data.Attributes.HP.Value)
}

func TestDispatch_TargetScope(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	self := newHero()
	orc := model.NewActor("orc", "Orc")
	orc.Data.Attributes.HP = model.HP{Value: 10, Max: 10}

	s, err := NewScope(self, orc)
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background(), s, "Damage 4 on target"))
	assert.Equal(t, 6, s.Actor("orc").Data.Attributes.HP.Value)
	assert.Equal(t, 20, s.Self.Data.Attributes.HP.Value)

	// no targets: the directive is skipped
	s, err = NewScope(self)
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background(), s, "Damage 4 on target"))
	assert.Zero(t, s.Changes.Len())
}

func TestDispatch_Conditions(t *testing.T) {
	t.Parallel()
	rec := &countingRecorder{got: map[string]int{}}
	d := NewDispatcher(formula.New(nil), WithRecorder(rec))
	s, err := NewScope(newHero())
	require.NoError(t, err)

	raw := "Heal 1 on self if @attributes.hp.value > 100; " +
		"Heal 2 on self if @missing.path > 0; " +
		"Heal 3 if @attributes.hp.value < 100 on self; " +
		"Frobnicate x on self"
	require.NoError(t, d.Run(context.Background(), s, raw))

	assert.Equal(t, 23, s.Self.Data.Attributes.HP.Value)
	assert.Equal(t, 1, rec.got["Heal/skipped"])
	assert.Equal(t, 1, rec.got["Heal/condition_error"])
	assert.Equal(t, 1, rec.got["Heal/ok"])
	assert.Equal(t, 1, rec.got["Frobnicate/unknown"])
}

func TestDispatch_AddAndRemove(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	s, err := NewScope(newHero())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Run(ctx, s, "Add loot Arrows from ammunition on self"))
	arrows := s.Self.FindItem(model.ItemLoot, "Arrows")
	require.NotNil(t, arrows)
	assert.Equal(t, 20, arrows.QuantityValue())

	require.NoError(t, d.Run(ctx, s, "Remove 1+2 Arrows on self"))
	assert.Equal(t, 17, s.Self.FindItem(model.ItemLoot, "Arrows").QuantityValue())

	require.NoError(t, d.Run(ctx, s, "Remove 17 Arrows loot on self"))
	assert.Nil(t, s.Self.FindItem(model.ItemLoot, "Arrows"))

	err = d.Run(ctx, s, "Add loot Excalibur from ammunition on self")
	require.ErrorIs(t, err, ErrNotInCatalog)

	err = d.Run(ctx, s, "Remove 0 Arrows on self")
	require.ErrorIs(t, err, ErrBadParams)
}

func TestDispatch_ClearAndActivate(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	tog := &fakeToggler{}
	d.SetToggler(tog)

	a := newHero()
	a.Items = []*model.Item{
		{ID: "bless", Name: "Bless", Type: model.ItemBuff, Data: model.ItemData{BuffRecord: model.BuffRecord{Active: true, BuffType: model.BuffTemporary}}},
		{ID: "shape", Name: "Wolf", Type: model.ItemBuff, Data: model.ItemData{BuffRecord: model.BuffRecord{Active: true, BuffType: model.BuffShapechange}}},
		{ID: "rage", Name: "Rage", Type: model.ItemBuff, Data: model.ItemData{BuffRecord: model.BuffRecord{BuffType: model.BuffTemporary}}},
	}
	s, err := NewScope(a)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Run(ctx, s, "Clear * temporary on self"))
	assert.Equal(t, []toggleCall{{"hero", "bless", false}}, tog.calls)

	require.NoError(t, d.Run(ctx, s, "Activate Rage on self"))
	require.NoError(t, d.Run(ctx, s, "Clear * on self"))
	assert.Equal(t, []toggleCall{
		{"hero", "bless", false},
		{"hero", "rage", true},
		{"hero", "shape", false},
		{"hero", "rage", false},
	}, tog.calls)
}

func TestDispatch_NoToggler(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	a := newHero()
	a.Items = []*model.Item{{ID: "rage", Name: "Rage", Type: model.ItemBuff}}
	s, err := NewScope(a)
	require.NoError(t, err)

	err = d.Run(context.Background(), s, "Activate Rage on self")
	require.ErrorIs(t, err, ErrNoToggler)
}

// recursiveToggler re-enters the dispatcher on every toggle.
type recursiveToggler struct{ d *Dispatcher }

func (r recursiveToggler) SetActive(ctx context.Context, s *Scope, _, _ string, _ bool) error {
	return r.d.Run(ctx, s, "Activate Loop on self")
}

func TestDispatch_DepthBound(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(formula.New(nil), WithMaxDepth(3))
	d.SetToggler(recursiveToggler{d})
	a := newHero()
	a.Items = []*model.Item{{ID: "loop", Name: "Loop", Type: model.ItemBuff}}
	s, err := NewScope(a)
	require.NoError(t, err)

	err = d.Run(context.Background(), s, "Activate Loop on self")
	require.ErrorIs(t, err, ErrDepthExceeded)
	assert.Zero(t, s.Depth())
}

func TestParseValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"3", 3.0},
		{"-1.5", -1.5},
		{`"two words"`, "two words"},
		{"icons/svg/mystery-man.svg", "icons/svg/mystery-man.svg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseValue(tt.raw), tt.raw)
	}
}

func TestParseVerb(t *testing.T) {
	t.Parallel()
	v, ok := ParseVerb("condition")
	require.True(t, ok)
	assert.Equal(t, VerbCondition, v)
	assert.Equal(t, "Condition", v.String())

	_, ok = ParseVerb("Explode")
	assert.False(t, ok)
}
