// Package ledger tracks the charge, slot and power-point pools that gate
// item use. It only applies deltas; refresh schedules are driven by callers.
package ledger

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrResourceExhausted is returned when a use is attempted with nothing left.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrNoSpellbook is returned when a spell references a missing spellbook.
	ErrNoSpellbook = errors.New("spellbook not found")
)

// State is one of SingleUse, PeriodicCharges, PreparedSlots,
// SpontaneousSlots, PowerPoints, AtWill or Untracked.
type State interface {
	Variant() string
}

// SingleUse is a stack of single-use items; the quantity is the pool.
type SingleUse struct {
	Quantity int
}

// PeriodicCharges is a uses pool refreshed per day, week, encounter or
// never ("charges").
type PeriodicCharges struct {
	Value  int
	Max    int
	Period string
}

// PreparedSlots counts how many times a prepared spell was readied.
type PreparedSlots struct {
	Level  int
	Amount int
}

// SpontaneousSlots is a per-level slot pool on the actor's spellbook.
type SpontaneousSlots struct {
	Spellbook string
	Level     int
	Value     int
}

// PowerPoints is the psionic pool of a spellbook; each use costs Cost.
type PowerPoints struct {
	Spellbook string
	Value     int
	Cost      int
}

// AtWill is unlimited and never deducted.
type AtWill struct{}

// Untracked marks items without any charge semantics.
type Untracked struct{}

func (SingleUse) Variant() string        { return "single_use" }
func (PeriodicCharges) Variant() string  { return "periodic_charges" }
func (PreparedSlots) Variant() string    { return "prepared_slots" }
func (SpontaneousSlots) Variant() string { return "spontaneous_slots" }
func (PowerPoints) Variant() string      { return "power_points" }
func (AtWill) Variant() string           { return "at_will" }
func (Untracked) Variant() string        { return "untracked" }

// Deduct applies a signed delta to s and clamps the result at zero.
// A negative amount consumes, a positive one restores. Power points move
// by amount*Cost. AtWill and Untracked are returned unchanged.
func Deduct(s State, amount int) State {
	switch v := s.(type) {
	case SingleUse:
		v.Quantity = floor0(v.Quantity + amount)
		return v
	case PeriodicCharges:
		v.Value = floor0(v.Value + amount)
		return v
	case PreparedSlots:
		v.Amount = floor0(v.Amount + amount)
		return v
	case SpontaneousSlots:
		v.Value = floor0(v.Value + amount)
		return v
	case PowerPoints:
		v.Value = floor0(v.Value + amount*v.Cost)
		return v
	default:
		return s
	}
}

// Available returns how many uses remain. AtWill and Untracked are
// unlimited. Power points report whole uses, floor(Value/Cost).
func Available(s State) float64 {
	switch v := s.(type) {
	case SingleUse:
		return float64(v.Quantity)
	case PeriodicCharges:
		return float64(v.Value)
	case PreparedSlots:
		return float64(v.Amount)
	case SpontaneousSlots:
		return float64(v.Value)
	case PowerPoints:
		if v.Cost <= 0 {
			return math.Inf(1)
		}
		return math.Floor(float64(v.Value) / float64(v.Cost))
	default:
		return math.Inf(1)
	}
}

// Check returns ErrResourceExhausted unless at least need uses remain.
func Check(s State, need int) error {
	if Available(s) < float64(max(need, 1)) {
		return fmt.Errorf("%s: %w", s.Variant(), ErrResourceExhausted)
	}
	return nil
}

// Refill restores a pool to its maximum. Only PeriodicCharges carries a
// maximum on the item; other variants are returned unchanged.
func Refill(s State) State {
	if v, ok := s.(PeriodicCharges); ok {
		v.Value = v.Max
		return v
	}
	return s
}

func floor0(v int) int {
	return max(v, 0)
}
