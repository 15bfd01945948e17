package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/db"
	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/game/buff"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/game/itemhandler"
	"github.com/udisondev/d20core/internal/game/roll"
	"github.com/udisondev/d20core/internal/model"
)

func newFighter() *model.Actor {
	a := model.NewActor("fighter", "Fighter")
	a.Owners = []string{"player1"}
	a.Data.Abilities["str"] = model.AbilityScore{Value: 16, Mod: 3}
	a.Data.Attributes.BAB.Total = 5
	a.Data.Attributes.HP = model.HP{Value: 40, Max: 40}
	a.Data.Traits.Size = "med"
	a.Items = []*model.Item{
		{
			ID:   "longsword",
			Name: "Longsword",
			Type: model.ItemWeapon,
			Data: model.ItemData{
				ActionType: model.ActionMeleeWeapon,
				Ability:    model.AbilityUse{Attack: "str", Damage: "str", DamageMult: 1, CritRange: 19, CritMult: 2},
				Damage:     model.Damage{Parts: []model.DamagePart{{Formula: "1d8", Type: "slashing"}}},
			},
		},
		{
			ID:   "fireball",
			Name: "Fireball",
			Type: model.ItemSpell,
			Data: model.ItemData{
				Level:      3,
				ActionType: model.ActionSpellSave,
				Damage:     model.Damage{Parts: []model.DamagePart{{Formula: "min(10, @cl)d6", Type: "fire"}}},
				Save:       model.Save{Type: "ref"},
				LearnedAt:  []model.LearnedAt{{Class: "wizard", Level: 3}},
			},
		},
		{
			ID:   "smite",
			Name: "Smite",
			Type: model.ItemFeat,
			Data: model.ItemData{
				Activation: model.Activation{Type: "swift"},
				Uses:       model.Uses{Value: 0, Max: 3, Per: model.PerEncounter},
			},
		},
		{
			ID:   "frenzy",
			Name: "Frenzy",
			Type: model.ItemBuff,
			Data: model.ItemData{BuffRecord: model.BuffRecord{
				BuffType:        model.BuffTemporary,
				ActivateActions: []string{"Condition set raging to true on self", "Damage 1d6 + @nope on self"},
			}},
		},
	}
	return a
}

func newOrc() *model.Actor {
	a := model.NewActor("orc", "Orc")
	a.Data.Attributes.HP = model.HP{Value: 15, Max: 15}
	return a
}

type testServer struct {
	*httptest.Server
	store *db.MemoryStore
}

func newTestServer(t *testing.T, dice ...int) *testServer {
	t.Helper()
	store, err := db.NewMemoryStore(newFighter(), newOrc())
	require.NoError(t, err)

	rules := data.DefaultRuleset()
	ev := formula.New(formula.Fixed(dice...))
	d := action.NewDispatcher(ev, action.WithCatalog(data.DefaultCatalog()))
	m := buff.NewMachine(d, ev, rules)
	items := itemhandler.NewHandler(store, rules, roll.NewComposer(rules, ev), d, itemhandler.WithBuffs(m))

	mux := http.NewServeMux()
	NewServer(store, items, rules, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) load(t *testing.T, id string) *model.Actor {
	t.Helper()
	a, err := s.store.LoadActor(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestServer_Use(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 10, 5)

	resp := srv.post(t, "/actors/fighter/items/longsword/use", map[string]any{"user": "player1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out useResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Result)
	require.Len(t, out.Result.Attacks, 1)
	atk := out.Result.Attacks[0]
	require.NotNil(t, atk.Roll)
	if atk.Roll.Result.Total != 18 {
		t.Errorf("attack total = %v; want 18", atk.Roll.Result.Total)
	}
	if got := roll.TotalDamage(atk.Damage); got != 8 {
		t.Errorf("damage = %v; want 8", got)
	}
	assert.Empty(t, out.Error)
}

func TestServer_UseErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 3)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"not owner", "/actors/fighter/items/longsword/use", map[string]any{"user": "mallory"}, http.StatusForbidden},
		{"gm may", "/actors/fighter/items/longsword/use", map[string]any{"user": "dm", "gm": true}, http.StatusOK},
		{"unknown actor", "/actors/ghost/items/longsword/use", map[string]any{"user": "player1"}, http.StatusNotFound},
		{"unknown item", "/actors/fighter/items/nothing/use", map[string]any{"user": "player1"}, http.StatusNotFound},
		{"bad body", "/actors/fighter/items/longsword/use", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.post(t, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d; want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_UseFailureReturnsResult(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 3)

	resp := srv.post(t, "/actors/fighter/items/frenzy/use", map[string]any{"user": "player1"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out useResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error, "unresolved")
	require.NotNil(t, out.Result)
	assert.True(t, srv.load(t, "fighter").Data.Conditions["raging"])
}

func TestServer_Custom(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := srv.post(t, "/actors/fighter/custom", map[string]any{
		"user":    "player1",
		"action":  "Damage 4 on target",
		"targets": []string{"orc"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 11, srv.load(t, "orc").Data.Attributes.HP.Value)

	resp = srv.post(t, "/actors/fighter/custom", map[string]any{"user": "player1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Consumable(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := srv.post(t, "/actors/fighter/items/fireball/consumable", map[string]any{"user": "player1", "kind": "wand"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var it model.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&it))
	assert.Equal(t, "Wand of Fireball", it.Name)
	assert.NotNil(t, srv.load(t, "fighter").Item(it.ID))

	resp = srv.post(t, "/actors/fighter/items/fireball/consumable", map[string]any{"user": "player1", "kind": "ring"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = srv.post(t, "/actors/fighter/items/fireball/consumable", map[string]any{"user": "mallory", "kind": "wand"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_EncounterReset(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := srv.post(t, "/actors/fighter/encounter/reset", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out countResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	if out.Changed != 1 {
		t.Errorf("changed = %d; want 1", out.Changed)
	}
	assert.Equal(t, 3, srv.load(t, "fighter").Item("smite").Data.Uses.Value)

	resp = srv.post(t, "/actors/ghost/encounter/reset", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_UsesRefresh(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := srv.post(t, "/actors/fighter/uses/refresh", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out countResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Zero(t, out.Changed)
}

func TestServer_Actor(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/actors/orc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))

	var a model.Actor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&a))
	assert.Equal(t, 15, a.Data.Attributes.HP.Value)
}
