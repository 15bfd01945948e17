package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_ApplyPatchActor(t *testing.T) {
	t.Parallel()
	a := newTestActor(t)

	var cs Changeset
	cs.PatchActor(a.ID, Patch{
		"conditions.wildshaped": true,
		"attributes.hp.value":   12,
		"shapechangeImg":        "icons/wolf.png",
		"attributes.spells.spellbooks.primary.spells.spell1.value": 0,
	})
	require.NoError(t, a.ApplyAll(&cs))

	assert.True(t, a.Data.Conditions["wildshaped"])
	assert.Equal(t, 12, a.Data.Attributes.HP.Value)
	assert.Equal(t, 0, a.Spellbook("primary").Spells["spell1"].Value)
	assert.Equal(t, "icons/wolf.png", a.Data.ShapechangeImg)
	assert.Equal(t, 3, a.Data.Abilities["str"].Mod)
}

func TestActor_ApplyPatchUnknownParent(t *testing.T) {
	t.Parallel()
	a := newTestActor(t)

	err := a.Apply(Op{Kind: OpPatchActor, ActorID: a.ID, Patch: Patch{"nope.value": 1}})
	assert.ErrorIs(t, err, ErrUnknownPath)
}

func TestActor_ApplyItemOps(t *testing.T) {
	t.Parallel()
	a := newTestActor(t)

	var cs Changeset
	cs.CreateItem(a.ID, &Item{ID: "bite", Name: "Bite", Type: ItemAttack})
	cs.PatchItem(a.ID, "bite", Patch{"melded": true, "enh": 1})
	cs.DeleteItem(a.ID, "sword")
	cs.PatchActor("other-actor", Patch{"attributes.hp.value": 1})
	require.NoError(t, a.ApplyAll(&cs))

	require.Len(t, a.Items, 1)
	assert.Equal(t, "bite", a.Items[0].ID)
	assert.True(t, a.Items[0].Data.Melded)
	assert.Equal(t, 1, a.Items[0].Data.Enh)
	assert.Equal(t, 30, a.Data.Attributes.HP.Value)
	assert.Equal(t, []string{a.ID, "other-actor"}, cs.ActorIDs())
}

func TestActor_ApplyMissingItem(t *testing.T) {
	t.Parallel()
	a := newTestActor(t)

	assert.ErrorIs(t, a.Apply(Op{Kind: OpDeleteItem, ActorID: a.ID, ItemID: "ghost"}), ErrItemNotFound)
	assert.ErrorIs(t, a.Apply(Op{Kind: OpPatchItem, ActorID: a.ID, ItemID: "ghost"}), ErrItemNotFound)
	assert.ErrorIs(t, a.Apply(Op{Kind: OpDeleteItem, ActorID: "x"}), ErrWrongActor)
}

func TestStripDataPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "melded", StripDataPrefix("data.melded"))
	assert.Equal(t, "melded", StripDataPrefix("melded"))
}
