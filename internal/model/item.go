package model

import "slices"

// ItemType — категория предмета. Определяет, какой обработчик use-команды
// к нему применяется.
type ItemType string

const (
	ItemWeapon     ItemType = "weapon"
	ItemAttack     ItemType = "attack"
	ItemSpell      ItemType = "spell"
	ItemConsumable ItemType = "consumable"
	ItemFeat       ItemType = "feat"
	ItemEquipment  ItemType = "equipment"
	ItemBuff       ItemType = "buff"
	ItemLoot       ItemType = "loot"
)

// Action types.
const (
	ActionMeleeWeapon  = "mwak"
	ActionRangedWeapon = "rwak"
	ActionMeleeSpell   = "msak"
	ActionRangedSpell  = "rsak"
	ActionSpellSave    = "spellsave"
	ActionSave         = "save"
	ActionHeal         = "heal"
	ActionSpecial      = "special"
	ActionOther        = "other"
)

// Use periods.
const (
	PerSingle    = "single"
	PerCharges   = "charges"
	PerDay       = "day"
	PerWeek      = "week"
	PerEncounter = "encounter"
)

// Buff types and shapechange kinds.
const (
	BuffTemporary   = "temp"
	BuffShapechange = "shapechange"

	ShapeWildshape = "wildshape"
	ShapePolymorph = "polymorph"
	ShapeAlterSelf = "alter-self"
)

// AttackNatural marks natural attacks (claws, bites) produced by shapechange.
const AttackNatural = "natural"

// Item — экземпляр предмета, принадлежащий актору.
type Item struct {
	ID   string   `json:"_id"`
	Name string   `json:"name"`
	Type ItemType `json:"type"`
	Img  string   `json:"img,omitempty"`
	Data ItemData `json:"data"`
}

// ItemData holds every item field addressable by dotted patch paths.
type ItemData struct {
	Description string  `json:"description,omitempty"`
	Level       int     `json:"level"`
	Quantity    *int    `json:"quantity,omitempty"`
	Price       float64 `json:"price,omitempty"`

	ActionType    string        `json:"actionType,omitempty"`
	AttackType    string        `json:"attackType,omitempty"`
	Ability       AbilityUse    `json:"ability"`
	AttackBonus   string        `json:"attackBonus,omitempty"`
	CritConfirm   string        `json:"critConfirmBonus,omitempty"`
	Enh           int           `json:"enh"`
	Masterwork    bool          `json:"masterwork"`
	Proficient    bool          `json:"proficient"`
	PrimaryAttack bool          `json:"primaryAttack"`
	Melded        bool          `json:"melded"`
	Damage        Damage        `json:"damage"`
	AttackParts   []AttackPart  `json:"attackParts,omitempty"`
	EffectNotes   string        `json:"effectNotes,omitempty"`
	Save          Save          `json:"save"`
	Special       []SpecialItem `json:"specialActions,omitempty"`
	AmmoType      string        `json:"ammoType,omitempty"`

	Activation     Activation `json:"activation"`
	Uses           Uses       `json:"uses"`
	ConsumableType string     `json:"consumableType,omitempty"`

	Spellbook       string      `json:"spellbook,omitempty"`
	School          string      `json:"school,omitempty"`
	Preparation     Preparation `json:"preparation"`
	AtWill          bool        `json:"atWill"`
	PowerPointsCost int         `json:"powerPointsCost,omitempty"`
	ClOffset        int         `json:"clOffset"`
	SlOffset        int         `json:"slOffset"`
	LearnedAt       []LearnedAt `json:"learnedAt,omitempty"`

	BuffRecord
	Changes []Change `json:"changes,omitempty"`
}

// AbilityUse describes which ability feeds the item's rolls.
type AbilityUse struct {
	Attack     string  `json:"attack,omitempty"`
	Damage     string  `json:"damage,omitempty"`
	DamageMult float64 `json:"damageMult"`
	CritRange  int     `json:"critRange"`
	CritMult   int     `json:"critMult"`
}

// Damage is the ordered list of damage parts.
type Damage struct {
	Parts []DamagePart `json:"parts,omitempty"`
}

// DamagePart — одна часть урона: формула и тип.
type DamagePart struct {
	Formula string `json:"formula"`
	Type    string `json:"type"`
}

// AttackPart is one iterative attack of a full attack.
type AttackPart struct {
	Bonus string `json:"bonus"`
	Name  string `json:"name"`
}

type Save struct {
	DC   string `json:"dc,omitempty"`
	Type string `json:"type,omitempty"`
}

// SpecialItem is a named custom directive string offered after use.
type SpecialItem struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

type Activation struct {
	Type string `json:"type,omitempty"`
	Cost int    `json:"cost,omitempty"`
}

type Uses struct {
	Value             int    `json:"value"`
	Max               int    `json:"max"`
	Per               string `json:"per,omitempty"`
	MaxFormula        string `json:"maxFormula,omitempty"`
	AutoDeductCharges bool   `json:"autoDeductCharges"`
}

type Preparation struct {
	PreparedAmount    int  `json:"preparedAmount"`
	MaxAmount         int  `json:"maxAmount"`
	AutoDeductCharges bool `json:"autoDeductCharges"`
}

// LearnedAt records the class and level a spell is learned at.
type LearnedAt struct {
	Class string `json:"class"`
	Level int    `json:"level"`
}

// BuffRecord holds the buff state machine fields.
type BuffRecord struct {
	Active            bool        `json:"active"`
	BuffType          string      `json:"buffType,omitempty"`
	ActivateActions   []string    `json:"activateActions,omitempty"`
	DeactivateActions []string    `json:"deactivateActions,omitempty"`
	Timeline          Timeline    `json:"timeline"`
	Shapechange       Shapechange `json:"shapechange"`
	SizeOverride      string      `json:"sizeOverride,omitempty"`
	// IDs of the natural attacks created by the last activation.
	ClonedAttacks []string `json:"clonedAttacks,omitempty"`
}

type Timeline struct {
	Enabled        bool   `json:"enabled"`
	Elapsed        int    `json:"elapsed"`
	Total          int    `json:"total"`
	Formula        string `json:"formula,omitempty"`
	DeleteOnExpiry bool   `json:"deleteOnExpiry"`
}

// Shapechange captures the transformation kind and an immutable snapshot
// of the source creature.
type Shapechange struct {
	Type   string `json:"type,omitempty"`
	Source *Actor `json:"source,omitempty"`
}

// Change is a passive modifier applied while a buff is active.
type Change struct {
	Formula   string `json:"formula"`
	Target    string `json:"target"`
	Subtarget string `json:"subtarget"`
	Modifier  string `json:"modifier"`
}

// HasAttack reports whether the item rolls an attack.
func (it *Item) HasAttack() bool {
	return slices.Contains([]string{ActionMeleeWeapon, ActionRangedWeapon, ActionMeleeSpell, ActionRangedSpell}, it.Data.ActionType)
}

func (it *Item) HasMultiAttack() bool {
	return it.HasAttack() && len(it.Data.AttackParts) > 0
}

func (it *Item) HasDamage() bool {
	return len(it.Data.Damage.Parts) > 0
}

func (it *Item) HasEffect() bool {
	return it.HasDamage() || it.Data.EffectNotes != ""
}

func (it *Item) HasAction() bool {
	return it.HasAttack() || it.HasDamage() || it.HasEffect() || it.Data.ActionType == ActionSpecial
}

func (it *Item) IsHealing() bool {
	return it.Data.ActionType == ActionHeal && it.HasDamage()
}

// IsMelee reports melee weapon or melee spell attacks.
func (it *Item) IsMelee() bool {
	return it.Data.ActionType == ActionMeleeWeapon || it.Data.ActionType == ActionMeleeSpell
}

// IsRanged reports ranged weapon or ranged spell attacks.
func (it *Item) IsRanged() bool {
	return it.Data.ActionType == ActionRangedWeapon || it.Data.ActionType == ActionRangedSpell
}

// IsNaturalAttack reports attack items of the natural kind.
func (it *Item) IsNaturalAttack() bool {
	return it.Type == ItemAttack && it.Data.AttackType == AttackNatural
}

func (it *Item) IsSingleUse() bool {
	return it.Data.Uses.Per == PerSingle
}

// IsCharged reports items whose use is gated by a charge pool.
func (it *Item) IsCharged() bool {
	if it.Type == ItemConsumable && it.IsSingleUse() {
		return true
	}
	return slices.Contains([]string{PerDay, PerWeek, PerCharges}, it.Data.Uses.Per)
}

// AutoDeductCharges reports whether using the item spends a charge.
func (it *Item) AutoDeductCharges() bool {
	if it.Type == ItemSpell {
		return it.Data.Preparation.AutoDeductCharges
	}
	return it.IsCharged() && it.Data.Uses.AutoDeductCharges
}

// QuantityValue returns the stack quantity, zero when unset.
func (it *Item) QuantityValue() int {
	if it.Data.Quantity == nil {
		return 0
	}
	return *it.Data.Quantity
}

// SetQuantity sets the stack quantity.
func (it *Item) SetQuantity(q int) {
	it.Data.Quantity = &q
}

// IsShapechange reports shapechange buffs that clone natural attacks.
func (it *Item) IsShapechange() bool {
	if it.Type != ItemBuff || it.Data.BuffType != BuffShapechange {
		return false
	}
	return it.Data.Shapechange.Type == ShapeWildshape || it.Data.Shapechange.Type == ShapePolymorph
}

// CritRange returns the threat range floor, defaulting to def.
func (it *Item) CritRange(def int) int {
	if it.Data.Ability.CritRange > 0 {
		return it.Data.Ability.CritRange
	}
	return def
}

// CritMult returns the critical multiplier, defaulting to def.
func (it *Item) CritMult(def int) int {
	if it.Data.Ability.CritMult > 0 {
		return it.Data.Ability.CritMult
	}
	return def
}
