package data

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed ruleset.yaml
var defaultRuleset []byte

// Ruleset — неизменяемый набор констант правил. Передаётся явно во все
// компоненты, которые его используют; глобального состояния нет.
type Ruleset struct {
	Sizes       map[string]int             `yaml:"sizes"`
	Attack      AttackRules                `yaml:"attack"`
	PowerAttack PowerAttackRules           `yaml:"powerAttack"`
	Timeline    TimelineRules              `yaml:"timeline"`
	Consumables map[string]ConsumableRules `yaml:"consumables"`
	Shapechange ShapechangeRules           `yaml:"shapechange"`
}

type AttackRules struct {
	NonProficientPenalty    int     `yaml:"nonProficientPenalty"`
	MasterworkBonus         int     `yaml:"masterworkBonus"`
	SecondaryNaturalPenalty int     `yaml:"secondaryNaturalPenalty"`
	SecondaryDamageMult     float64 `yaml:"secondaryDamageMult"`
	DefaultCritRange        int     `yaml:"defaultCritRange"`
	DefaultCritMult         int     `yaml:"defaultCritMult"`
}

type PowerAttackRules struct {
	BABStep       int `yaml:"babStep"`
	DamagePerStep int `yaml:"damagePerStep"`
}

type TimelineRules struct {
	RoundsPerMinute int `yaml:"roundsPerMinute"`
	RoundsPerHour   int `yaml:"roundsPerHour"`
}

// ConsumableRules describes how a spell is turned into a consumable kind.
type ConsumableRules struct {
	NamePrefix  string  `yaml:"namePrefix"`
	PriceFactor float64 `yaml:"priceFactor"`
	Charges     int     `yaml:"charges"`
}

type ShapechangeRules struct {
	CloneSuffix     string `yaml:"cloneSuffix"`
	DefaultPortrait string `yaml:"defaultPortrait"`
}

// DefaultRuleset returns the built-in ruleset.
func DefaultRuleset() *Ruleset {
	rs, err := parseRuleset(defaultRuleset)
	if err != nil {
		panic(fmt.Sprintf("embedded ruleset: %v", err))
	}
	return rs
}

// LoadRuleset reads a ruleset override from path. Fields missing from the
// file keep their built-in values. An empty path returns the defaults.
func LoadRuleset(path string) (*Ruleset, error) {
	rs := DefaultRuleset()
	if path == "" {
		return rs, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, rs); err != nil {
		return nil, fmt.Errorf("parse ruleset %s: %w", path, err)
	}
	return rs, nil
}

func parseRuleset(raw []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// SizeModifier returns the attack modifier for size, zero when unknown.
func (r *Ruleset) SizeModifier(size string) int {
	return r.Sizes[size]
}

// PowerAttackSteps returns 1 + floor(bab / step).
func (r *Ruleset) PowerAttackSteps(bab int) int {
	step := max(r.PowerAttack.BABStep, 1)
	return 1 + int(math.Floor(float64(bab)/float64(step)))
}

// PowerAttackPenalty is the attack penalty taken while power attacking.
func (r *Ruleset) PowerAttackPenalty(bab int) int {
	return -r.PowerAttackSteps(bab)
}

// PowerAttackBonus is the damage gained while power attacking.
func (r *Ruleset) PowerAttackBonus(bab int) int {
	return r.PowerAttackSteps(bab) * r.PowerAttack.DamagePerStep
}
