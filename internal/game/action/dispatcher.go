// Package action dispatches parsed directives to verb handlers that mutate
// a Scope's working copies.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/d20core/internal/game/directive"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

// DefaultMaxDepth bounds nested dispatch (buff activating buff ...).
const DefaultMaxDepth = 8

var (
	ErrDepthExceeded  = errors.New("dispatch depth exceeded")
	ErrBadParams      = errors.New("bad directive parameters")
	ErrProtectedField = errors.New("field is written only by the buff lifecycle")
	ErrNoCatalog      = errors.New("no catalog configured")
	ErrNotInCatalog   = errors.New("item not found in catalog")
	ErrNoToggler      = errors.New("no buff toggler configured")
)

// Toggler switches buffs on or off through their lifecycle.
type Toggler interface {
	SetActive(ctx context.Context, s *Scope, actorID, itemID string, active bool) error
}

// Catalog resolves items named by Add directives.
type Catalog interface {
	Find(pack string, typ model.ItemType, name string) (*model.Item, bool)
}

// Recorder receives one event per dispatched directive.
type Recorder interface {
	RecordDirective(ctx context.Context, verb, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDirective(context.Context, string, string) {}

type handlerFunc func(ctx context.Context, s *Scope, a *model.Actor, d directive.Directive) error

// Dispatcher routes directives to verb handlers.
type Dispatcher struct {
	ev       *formula.Evaluator
	catalog  Catalog
	toggler  Toggler
	recorder Recorder
	maxDepth int
	handlers map[Verb]handlerFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithCatalog(c Catalog) Option   { return func(d *Dispatcher) { d.catalog = c } }
func WithRecorder(r Recorder) Option { return func(d *Dispatcher) { d.recorder = r } }

// WithMaxDepth sets the nested dispatch bound; values < 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// NewDispatcher returns a dispatcher evaluating formulas with ev.
func NewDispatcher(ev *formula.Evaluator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ev:       ev,
		recorder: nopRecorder{},
		maxDepth: DefaultMaxDepth,
	}
	for _, o := range opts {
		o(d)
	}
	d.handlers = map[Verb]handlerFunc{
		VerbCondition:  d.condition,
		VerbUpdate:     d.update,
		VerbSet:        d.set,
		VerbDamage:     d.damage,
		VerbHeal:       d.heal,
		VerbAdd:        d.add,
		VerbRemove:     d.remove,
		VerbClear:      d.clear,
		VerbActivate:   d.activate,
		VerbDeactivate: d.deactivate,
	}
	return d
}

// SetToggler wires the buff lifecycle. The lifecycle itself depends on the
// dispatcher, so it is attached after construction.
func (d *Dispatcher) SetToggler(t Toggler) {
	d.toggler = t
}

// Run parses raw and dispatches the resulting directives.
func (d *Dispatcher) Run(ctx context.Context, s *Scope, raw string) error {
	return d.Dispatch(ctx, s, directive.Parse(raw))
}

// Dispatch executes ds in order. Self directives apply to s.Self, target
// directives to every target; with no targets they are skipped. A false or
// failing condition skips the directive. The first handler error stops the
// chain; earlier effects stay in the scope.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Scope, ds []directive.Directive) error {
	if s.depth >= d.maxDepth {
		return fmt.Errorf("depth %d: %w", s.depth, ErrDepthExceeded)
	}
	s.depth++
	defer func() { s.depth-- }()

	for _, dir := range ds {
		if err := ctx.Err(); err != nil {
			return err
		}
		verb, ok := ParseVerb(dir.Verb)
		if !ok {
			slog.Warn("unknown directive verb", "verb", dir.Verb, "directive", dir.Raw)
			d.recorder.RecordDirective(ctx, dir.Verb, "unknown")
			continue
		}
		for _, a := range d.actorsFor(s, dir) {
			ok, err := d.conditionHolds(s, a, dir)
			if err != nil {
				slog.Warn("directive condition failed", "directive", dir.Raw, "err", err)
				d.recorder.RecordDirective(ctx, verb.String(), "condition_error")
				continue
			}
			if !ok {
				d.recorder.RecordDirective(ctx, verb.String(), "skipped")
				continue
			}
			if err := d.handlers[verb](ctx, s, a, dir); err != nil {
				d.recorder.RecordDirective(ctx, verb.String(), "error")
				return fmt.Errorf("%s on %s: %w", dir.Raw, a.ID, err)
			}
			d.recorder.RecordDirective(ctx, verb.String(), "ok")
		}
	}
	return nil
}

func (d *Dispatcher) actorsFor(s *Scope, dir directive.Directive) []*model.Actor {
	if dir.Target == directive.ScopeSelf {
		if s.Self == nil {
			return nil
		}
		return []*model.Actor{s.Self}
	}
	if len(s.Targets) == 0 {
		slog.Debug("target directive without targets", "directive", dir.Raw)
	}
	return s.Targets
}

func (d *Dispatcher) conditionHolds(s *Scope, a *model.Actor, dir directive.Directive) (bool, error) {
	if dir.Condition == "" {
		return true, nil
	}
	b, err := s.BindingsFor(a)
	if err != nil {
		return false, err
	}
	v, err := d.ev.Evaluate(dir.Condition, b)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// evaluate evaluates f against a's bindings within s.
func (d *Dispatcher) evaluate(s *Scope, a *model.Actor, f string) (float64, error) {
	b, err := s.BindingsFor(a)
	if err != nil {
		return 0, err
	}
	return d.ev.Evaluate(f, b)
}
