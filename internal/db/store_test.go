package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/d20core/internal/model"
)

func newStoredActor(id string, hp int) *model.Actor {
	a := model.NewActor(id, "Actor "+id)
	a.Data.Attributes.HP = model.HP{Value: hp, Max: hp}
	q := 5
	a.Items = []*model.Item{{
		ID:   id + "-arrows",
		Name: "Arrows",
		Type: model.ItemLoot,
		Data: model.ItemData{Quantity: &q},
	}}
	return a
}

// testStore runs the behaviour every Store implementation shares.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveActor(ctx, newStoredActor("b", 8)))
	require.NoError(t, s.SaveActor(ctx, newStoredActor("a", 10)))

	t.Run("load", func(t *testing.T) {
		a, err := s.LoadActor(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Actor a", a.Name)
		assert.Equal(t, 10, a.Data.Attributes.HP.Value)
		require.Len(t, a.Items, 1)
		assert.Equal(t, 5, a.Items[0].QuantityValue())
		assert.NotNil(t, a.Data.Conditions)

		_, err = s.LoadActor(ctx, "missing")
		require.ErrorIs(t, err, ErrActorNotFound)
	})

	t.Run("ids", func(t *testing.T) {
		ids, err := s.ActorIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
	})

	t.Run("commit", func(t *testing.T) {
		var cs model.Changeset
		cs.PatchActor("a", model.Patch{"attributes.hp.value": 4, "conditions.prone": true})
		cs.PatchItem("a", "a-arrows", model.Patch{"quantity": 2})
		cs.CreateItem("b", &model.Item{ID: "b-bless", Name: "Bless", Type: model.ItemBuff})
		cs.DeleteItem("b", "b-arrows")
		require.NoError(t, s.Commit(ctx, &cs))

		a, err := s.LoadActor(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 4, a.Data.Attributes.HP.Value)
		assert.True(t, a.Data.Conditions["prone"])
		assert.Equal(t, 2, a.Item("a-arrows").QuantityValue())

		b, err := s.LoadActor(ctx, "b")
		require.NoError(t, err)
		require.Len(t, b.Items, 1)
		assert.Equal(t, "Bless", b.Items[0].Name)
	})

	t.Run("commit is all or nothing", func(t *testing.T) {
		var cs model.Changeset
		cs.PatchActor("a", model.Patch{"attributes.hp.value": 1})
		cs.PatchItem("b", "no-such-item", model.Patch{"quantity": 1})
		require.ErrorIs(t, s.Commit(ctx, &cs), model.ErrItemNotFound)

		a, err := s.LoadActor(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 4, a.Data.Attributes.HP.Value)

		var ghost model.Changeset
		ghost.PatchActor("ghost", model.Patch{"attributes.hp.value": 1})
		require.ErrorIs(t, s.Commit(ctx, &ghost), ErrActorNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	testStore(t, s)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()
	s, err := NewMemoryStore(newStoredActor("a", 10))
	require.NoError(t, err)

	a, err := s.LoadActor(context.Background(), "a")
	require.NoError(t, err)
	a.Data.Attributes.HP.Value = 0

	again, err := s.LoadActor(context.Background(), "a")
	require.NoError(t, err)
	if again.Data.Attributes.HP.Value != 10 {
		t.Errorf("HP = %d; want 10", again.Data.Attributes.HP.Value)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "d20.db")
	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStore(t, s)

	n, err := s.CommitCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the successful commit is logged")

	// reopening re-runs migrations as a no-op
	require.NoError(t, s.Close())
	s2, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s2.Close()
	ids, err := s2.ActorIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestPostgresStore(t *testing.T) {
	s := setupPostgres(t)
	testStore(t, s)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := Open(ctx, DriverMemory, "", false)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "x.db"), true)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "mongo", "", false)
	require.Error(t, err)
}
