// Package buff drives buff activation, deactivation and timed expiry.
package buff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

var (
	ErrNotBuff         = errors.New("item is not a buff")
	ErrActorNotInScope = errors.New("actor not in scope")
	ErrNegativeDelta   = errors.New("time cannot run backwards")
)

// Transition edges reported to the Recorder.
const (
	EdgeActivate     = "activate"
	EdgeDeactivate   = "deactivate"
	EdgeExpire       = "expire"
	EdgeExpireDelete = "expire_delete"
)

// Recorder receives one event per buff transition.
type Recorder interface {
	RecordBuffTransition(ctx context.Context, edge string)
}

type nopRecorder struct{}

func (nopRecorder) RecordBuffTransition(context.Context, string) {}

// Machine — единственный писатель флага active у баффов.
// Переходы выполняются на рабочих копиях Scope; запись в хранилище
// делает вызывающая команда.
type Machine struct {
	dispatcher *action.Dispatcher
	ev         *formula.Evaluator
	rules      *data.Ruleset
	recorder   Recorder
}

// Option configures a Machine.
type Option func(*Machine)

func WithRecorder(r Recorder) Option { return func(m *Machine) { m.recorder = r } }

// NewMachine returns a Machine and registers it as d's toggler.
func NewMachine(d *action.Dispatcher, ev *formula.Evaluator, rules *data.Ruleset, opts ...Option) *Machine {
	m := &Machine{
		dispatcher: d,
		ev:         ev,
		rules:      rules,
		recorder:   nopRecorder{},
	}
	for _, o := range opts {
		o(m)
	}
	d.SetToggler(m)
	return m
}

func (m *Machine) lookup(s *action.Scope, actorID, itemID string) (*model.Actor, *model.Item, error) {
	a := s.Actor(actorID)
	if a == nil {
		return nil, nil, fmt.Errorf("actor %s: %w", actorID, ErrActorNotInScope)
	}
	it := a.Item(itemID)
	if it == nil {
		return nil, nil, fmt.Errorf("buff %s: %w", itemID, model.ErrItemNotFound)
	}
	if it.Type != model.ItemBuff {
		return nil, nil, fmt.Errorf("%s: %w", it.Name, ErrNotBuff)
	}
	return a, it, nil
}

// SetActive moves the buff to the requested state. Setting the current
// state is a no-op. A transition requested while the same buff's
// transition is still dispatching is skipped.
func (m *Machine) SetActive(ctx context.Context, s *action.Scope, actorID, itemID string, active bool) error {
	a, it, err := m.lookup(s, actorID, itemID)
	if err != nil {
		return err
	}
	if it.Data.Active == active {
		return nil
	}

	key := actorID + "/" + itemID
	if !s.Acquire(key) {
		slog.Warn("buff transition re-entered, skipping", "actor", actorID, "buff", it.Name, "active", active)
		return nil
	}
	defer s.Release(key)

	if active {
		return m.activate(ctx, s, a, it)
	}
	return m.deactivate(ctx, s, a, it)
}

// Toggle flips the buff's state.
func (m *Machine) Toggle(ctx context.Context, s *action.Scope, actorID, itemID string) error {
	_, it, err := m.lookup(s, actorID, itemID)
	if err != nil {
		return err
	}
	return m.SetActive(ctx, s, actorID, itemID, !it.Data.Active)
}

func (m *Machine) activate(ctx context.Context, s *action.Scope, a *model.Actor, it *model.Item) error {
	b, err := m.itemBindings(s, it)
	if err != nil {
		return err
	}
	patch := model.Patch{"active": true, "timeline.elapsed": 0}
	if tl := it.Data.Timeline; tl.Enabled && tl.Formula != "" {
		total, err := m.timelineTotal(s, a, b, tl.Formula)
		if err != nil {
			return fmt.Errorf("buff %s timeline: %w", it.Name, err)
		}
		patch["timeline.total"] = total
	}
	if err := s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: a.ID, ItemID: it.ID, Patch: patch}); err != nil {
		return err
	}

	if err := m.dispatch(ctx, s, b, it.Data.ActivateActions); err != nil {
		return fmt.Errorf("activate %s: %w", it.Name, err)
	}

	if it.IsShapechange() && it.Data.Shapechange.Source != nil {
		if err := m.cloneNaturalAttacks(s, a, it, it.Data.Shapechange.Source); err != nil {
			return err
		}
	}

	m.recorder.RecordBuffTransition(ctx, EdgeActivate)
	slog.Debug("buff activated", "actor", a.ID, "buff", it.Name)
	return nil
}

func (m *Machine) deactivate(ctx context.Context, s *action.Scope, a *model.Actor, it *model.Item) error {
	b, err := m.itemBindings(s, it)
	if err != nil {
		return err
	}
	actions := it.Data.DeactivateActions
	cloned := it.Data.ClonedAttacks

	patch := model.Patch{"active": false}
	if len(cloned) > 0 {
		patch["clonedAttacks"] = []string{}
	}
	if err := s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: a.ID, ItemID: it.ID, Patch: patch}); err != nil {
		return err
	}
	if err := m.removeNaturalAttacks(s, a, cloned); err != nil {
		return err
	}
	if err := m.dispatch(ctx, s, b, actions); err != nil {
		return fmt.Errorf("deactivate %s: %w", it.Name, err)
	}

	m.recorder.RecordBuffTransition(ctx, EdgeDeactivate)
	slog.Debug("buff deactivated", "actor", a.ID, "buff", it.Name)
	return nil
}

// dispatch runs actions in order with the buff's bindings layered over
// the scope's.
func (m *Machine) dispatch(ctx context.Context, s *action.Scope, b formula.Bindings, actions []string) error {
	saved := s.Bindings
	s.Bindings = b
	defer func() { s.Bindings = saved }()

	for _, raw := range actions {
		if err := m.dispatcher.Run(ctx, s, raw); err != nil {
			return err
		}
	}
	return nil
}

// itemBindings returns the scope bindings plus the buff's data under
// "item.". Actor data is added per directive by the dispatcher.
func (m *Machine) itemBindings(s *action.Scope, it *model.Item) (formula.Bindings, error) {
	ib, err := model.ItemRollData(it)
	if err != nil {
		return nil, err
	}
	out := s.Bindings.Clone()
	out.Merge("item", ib)
	return out, nil
}

func (m *Machine) timelineTotal(s *action.Scope, a *model.Actor, b formula.Bindings, f string) (int, error) {
	ab, err := s.BindingsFor(a)
	if err != nil {
		return 0, err
	}
	ab.Merge("", b)
	total, err := m.ev.Evaluate(f, ab)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(total)), nil
}

// cloneNaturalAttacks copies src's natural attacks onto a and records the
// clone IDs on the buff so deactivation removes exactly those.
func (m *Machine) cloneNaturalAttacks(s *action.Scope, a *model.Actor, shape *model.Item, src *model.Actor) error {
	var ids []string
	for _, orig := range src.Items {
		if !orig.IsNaturalAttack() {
			continue
		}
		c, err := model.CloneItem(orig)
		if err != nil {
			return err
		}
		c.Name = orig.Name + " " + fmt.Sprintf(m.rules.Shapechange.CloneSuffix, src.Name)
		c.Data.Melded = false
		if err := s.Apply(model.Op{Kind: model.OpCreateItem, ActorID: a.ID, ItemID: c.ID, Item: c}); err != nil {
			return err
		}
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	return s.Apply(model.Op{Kind: model.OpPatchItem, ActorID: a.ID, ItemID: shape.ID, Patch: model.Patch{"clonedAttacks": ids}})
}

// removeNaturalAttacks deletes the cloned attacks still present on a.
func (m *Machine) removeNaturalAttacks(s *action.Scope, a *model.Actor, ids []string) error {
	for _, id := range ids {
		if a.Item(id) == nil {
			continue
		}
		if err := s.Apply(model.Op{Kind: model.OpDeleteItem, ActorID: a.ID, ItemID: id}); err != nil {
			return err
		}
	}
	return nil
}
