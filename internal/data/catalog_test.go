package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/d20core/internal/model"
)

func TestDefaultCatalog_Find(t *testing.T) {
	t.Parallel()
	c := DefaultCatalog()

	it, ok := c.Find("Buffs", model.ItemBuff, "mage armor")
	require.True(t, ok)
	assert.Equal(t, "Mage Armor", it.Name)
	assert.NotEmpty(t, it.ID)
	assert.True(t, it.Data.Timeline.Enabled)
	assert.Equal(t, "@item.level * 600", it.Data.Timeline.Formula)

	bite, ok := c.Find("natural-attacks", "", "Bite")
	require.True(t, ok)
	assert.True(t, bite.IsNaturalAttack())
	assert.Equal(t, 1.5, bite.Data.Ability.DamageMult)

	_, ok = c.Find("buffs", model.ItemWeapon, "Mage Armor")
	assert.False(t, ok)
	_, ok = c.Find("nope", "", "Mage Armor")
	assert.False(t, ok)
}

func TestCatalog_FindReturnsCopies(t *testing.T) {
	t.Parallel()
	c := DefaultCatalog()

	a, _ := c.Find("ammunition", "", "Arrows")
	a.SetQuantity(1)
	b, _ := c.Find("ammunition", "", "Arrows")

	assert.Equal(t, 20, b.QuantityValue())
	assert.NotEqual(t, a.ID, b.ID)
}

func TestLoadCatalog_MergesPacks(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := "homebrew:\n  - name: Shield of Faith\n    type: buff\n    data:\n      buffType: temp\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	_, ok := c.Find("homebrew", model.ItemBuff, "Shield of Faith")
	assert.True(t, ok)
	_, ok = c.Find("buffs", "", "Bless")
	assert.True(t, ok)
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	t.Parallel()
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog().Packs(), c.Packs())
}
