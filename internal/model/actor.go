package model

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/udisondev/d20core/internal/game/formula"
)

// Actor — персонаж или существо вместе с принадлежащими ему предметами.
type Actor struct {
	ID     string    `json:"_id"`
	Name   string    `json:"name"`
	Img    string    `json:"img,omitempty"`
	Owners []string  `json:"owners,omitempty"`
	Data   ActorData `json:"data"`
	Items  []*Item   `json:"items"`
}

// ActorData holds every actor field addressable by dotted patch paths.
type ActorData struct {
	Abilities      map[string]AbilityScore `json:"abilities"`
	Attributes     Attributes              `json:"attributes"`
	Traits         Traits                  `json:"traits"`
	Conditions     map[string]bool         `json:"conditions"`
	ShapechangeImg string                  `json:"shapechangeImg,omitempty"`
}

type AbilityScore struct {
	Value int `json:"value"`
	Mod   int `json:"mod"`
}

type Attributes struct {
	HP          HP          `json:"hp"`
	BAB         Total       `json:"bab"`
	Attack      AttackBonus `json:"attack"`
	Damage      DamageBonus `json:"damage"`
	EnergyDrain int         `json:"energyDrain"`
	NaturalAC   int         `json:"naturalAC"`
	Speed       Speed       `json:"speed"`
	Spells      Spells      `json:"spells"`
}

type HP struct {
	Value int `json:"value"`
	Max   int `json:"max"`
	Temp  int `json:"temp"`
}

type Total struct {
	Total int `json:"total"`
}

type AttackBonus struct {
	General int `json:"general"`
	Melee   int `json:"melee"`
	Ranged  int `json:"ranged"`
}

type DamageBonus struct {
	General int `json:"general"`
	Weapon  int `json:"weapon"`
	Spell   int `json:"spell"`
}

type Speed struct {
	Land   int `json:"land"`
	Climb  int `json:"climb,omitempty"`
	Swim   int `json:"swim,omitempty"`
	Burrow int `json:"burrow,omitempty"`
	Fly    int `json:"fly,omitempty"`
}

type Spells struct {
	Spellbooks map[string]*Spellbook `json:"spellbooks"`
}

type Traits struct {
	Size string `json:"size"`
}

// Spellbook — запись книги заклинаний актора: уровень заклинателя,
// тип подготовки и пулы ячеек/пси-очков.
type Spellbook struct {
	Class          string                 `json:"class,omitempty"`
	Ability        string                 `json:"ability,omitempty"`
	CL             Total                  `json:"cl"`
	Spontaneous    bool                   `json:"spontaneous"`
	UsePowerPoints bool                   `json:"usePowerPoints"`
	PowerPoints    int                    `json:"powerPoints"`
	Spells         map[string]*SpellLevel `json:"spells"`
}

// SpellLevel is the slot pool of one spell level ("spell0".."spell9").
type SpellLevel struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

// SpellLevelKey returns the key of level in Spellbook.Spells.
func SpellLevelKey(level int) string {
	return fmt.Sprintf("spell%d", level)
}

// User is the principal issuing a command.
type User struct {
	ID string
	GM bool
}

// NewActor returns an actor with initialised maps.
func NewActor(id, name string) *Actor {
	a := &Actor{ID: id, Name: name}
	a.Normalize()
	return a
}

// Normalize initialises nil maps so dotted patches always have a parent
// object to write into.
func (a *Actor) Normalize() {
	if a.Data.Abilities == nil {
		a.Data.Abilities = map[string]AbilityScore{}
	}
	if a.Data.Conditions == nil {
		a.Data.Conditions = map[string]bool{}
	}
	if a.Data.Attributes.Spells.Spellbooks == nil {
		a.Data.Attributes.Spells.Spellbooks = map[string]*Spellbook{}
	}
	for _, sb := range a.Data.Attributes.Spells.Spellbooks {
		if sb.Spells == nil {
			sb.Spells = map[string]*SpellLevel{}
		}
	}
}

// EffectiveSize returns the size of the first active buff that overrides
// it, or the actor's own size.
func (a *Actor) EffectiveSize() string {
	for _, it := range a.Items {
		if it.Type == ItemBuff && it.Data.Active && it.Data.SizeOverride != "" {
			return it.Data.SizeOverride
		}
	}
	return a.Data.Traits.Size
}

// IsOwner reports whether u may use the actor's items.
func (a *Actor) IsOwner(u User) bool {
	return u.GM || slices.Contains(a.Owners, u.ID)
}

// Item returns the owned item with the given id, or nil.
func (a *Actor) Item(id string) *Item {
	for _, it := range a.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// FindItem returns the first owned item matching name and, when typ is
// non-empty, type.
func (a *Actor) FindItem(typ ItemType, name string) *Item {
	for _, it := range a.Items {
		if it.Name == name && (typ == "" || it.Type == typ) {
			return it
		}
	}
	return nil
}

// ItemsOf returns owned items of the given type.
func (a *Actor) ItemsOf(typ ItemType) []*Item {
	var out []*Item
	for _, it := range a.Items {
		if it.Type == typ {
			out = append(out, it)
		}
	}
	return out
}

// Spellbook returns the spellbook with the given key, or nil.
func (a *Actor) Spellbook(key string) *Spellbook {
	return a.Data.Attributes.Spells.Spellbooks[key]
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() (*Actor, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal actor: %w", err)
	}
	var out Actor
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal actor: %w", err)
	}
	out.Normalize()
	return &out, nil
}

// CloneItem returns a deep copy of it with a fresh id.
func CloneItem(it *Item) (*Item, error) {
	raw, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	var out Item
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	out.ID = NewItemID()
	return &out, nil
}

// NewItemID returns a fresh item identifier.
func NewItemID() string {
	return uuid.NewString()
}

// RollData flattens the actor's data into formula bindings
// ("abilities.str.mod", "attributes.bab.total", ...).
func (a *Actor) RollData() (formula.Bindings, error) {
	raw, err := json.Marshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal actor data: %w", err)
	}
	return formula.FlattenJSON(raw), nil
}

// ItemRollData flattens the item's data into bindings.
func ItemRollData(it *Item) (formula.Bindings, error) {
	d := it.Data
	d.Shapechange.Source = nil
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal item data: %w", err)
	}
	return formula.FlattenJSON(raw), nil
}
