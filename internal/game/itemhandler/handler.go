// Package itemhandler implements the use-item command: permission and
// resource checks, attack/damage/effect rolls, charge deduction and a
// single commit of every resulting change.
//
// Each item type maps to a use implementation in registry.
package itemhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/game/buff"
	"github.com/udisondev/d20core/internal/game/ledger"
	"github.com/udisondev/d20core/internal/game/roll"
	"github.com/udisondev/d20core/internal/model"
)

var (
	ErrPermission = errors.New("no permission to use this actor")
	ErrNoQuantity = errors.New("item has no quantity left")
	ErrNotUsable  = errors.New("item cannot be used")
	ErrNoAmmo     = errors.New("ammunition not available")
	ErrCancelled  = errors.New("use cancelled")
)

// Store loads actors and persists a command's changes in one write.
type Store interface {
	LoadActor(ctx context.Context, id string) (*model.Actor, error)
	Commit(ctx context.Context, cs *model.Changeset) error
}

// Confirmer presents the roll-modifier prompt before anything is rolled.
// Returning ErrCancelled aborts the use with no mutation.
type Confirmer interface {
	Confirm(ctx context.Context, a *model.Actor, it *model.Item, opts UseOptions) (UseOptions, error)
}

// Recorder receives roll and deduction events.
type Recorder interface {
	RecordRoll(ctx context.Context, kind, status string)
	RecordDeduction(ctx context.Context, variant string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRoll(context.Context, string, string) {}
func (nopRecorder) RecordDeduction(context.Context, string)    {}

// UseOptions are the modifiers collected for one use.
type UseOptions struct {
	FullAttack  bool   `json:"fullAttack"`
	Secondary   bool   `json:"secondary"`
	PowerAttack bool   `json:"powerAttack"`
	AttackBonus string `json:"attackBonus,omitempty"`
	DamageBonus string `json:"damageBonus,omitempty"`
	// DamageMult overrides the item's ability damage multiplier when > 0.
	DamageMult float64 `json:"damageMult,omitempty"`
	AmmoID     string  `json:"ammoId,omitempty"`
	// UseAmount is the number of charges spent, 1 when unset.
	UseAmount   int      `json:"useAmount,omitempty"`
	TargetIDs   []string `json:"targets,omitempty"`
	SkipConfirm bool     `json:"-"`
}

// UseResult is everything a use produced.
type UseResult struct {
	ItemID  string           `json:"itemId"`
	Name    string           `json:"name"`
	Attacks []Attack         `json:"attacks,omitempty"`
	Before  ledger.State     `json:"-"`
	After   ledger.State     `json:"-"`
	Changes *model.Changeset `json:"changes"`
}

// Attack is one attack line: the roll, its damage and, on a threat, the
// confirmation roll and critical damage. Damage-only and effect-only uses
// produce a single line without a roll.
type Attack struct {
	Label      string            `json:"label"`
	Roll       *roll.AttackRoll  `json:"roll,omitempty"`
	Damage     []roll.DamageRoll `json:"damage,omitempty"`
	Healing    bool              `json:"healing,omitempty"`
	Threat     bool              `json:"threat,omitempty"`
	Confirm    *roll.AttackRoll  `json:"confirm,omitempty"`
	CritDamage []roll.DamageRoll `json:"critDamage,omitempty"`
	Effects    []string          `json:"effects,omitempty"`
	Err        string            `json:"error,omitempty"`
}

type useCtx struct {
	opts  UseOptions
	scope *action.Scope
	actor *model.Actor
	item  *model.Item
	state ledger.State
	res   *UseResult
}

type useFunc func(ctx context.Context, h *Handler, u *useCtx) error

// registry maps item type → use implementation.
var registry = map[model.ItemType]useFunc{
	model.ItemWeapon:     useAction,
	model.ItemAttack:     useAction,
	model.ItemFeat:       useAction,
	model.ItemEquipment:  useAction,
	model.ItemConsumable: useAction,
	model.ItemSpell:      useAction,
	model.ItemBuff:       useBuff,
}

// Usable reports whether items of typ have a use implementation.
func Usable(typ model.ItemType) bool {
	_, ok := registry[typ]
	return ok
}

// Handler executes use-item and related commands.
type Handler struct {
	store      Store
	rules      *data.Ruleset
	composer   *roll.Composer
	dispatcher *action.Dispatcher
	buffs      *buff.Machine
	confirmer  Confirmer
	recorder   Recorder
}

// Option configures a Handler.
type Option func(*Handler)

func WithConfirmer(c Confirmer) Option { return func(h *Handler) { h.confirmer = c } }
func WithRecorder(r Recorder) Option   { return func(h *Handler) { h.recorder = r } }
func WithBuffs(m *buff.Machine) Option { return func(h *Handler) { h.buffs = m } }

// NewHandler returns a Handler.
func NewHandler(store Store, rules *data.Ruleset, composer *roll.Composer, dispatcher *action.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		store:      store,
		rules:      rules,
		composer:   composer,
		dispatcher: dispatcher,
		recorder:   nopRecorder{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Use uses the item of the actor on behalf of user. Every check runs
// before the confirmation prompt and before any roll; all changes are
// committed together at the end. A failed commit still returns the rolls.
// When the use itself fails partway, the changes applied before the
// failure are committed and returned along with the error.
func (h *Handler) Use(ctx context.Context, user model.User, actorID, itemID string, opts UseOptions) (*UseResult, error) {
	a, err := h.store.LoadActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	if !a.IsOwner(user) {
		return nil, fmt.Errorf("%s: %w", a.Name, ErrPermission)
	}
	it := a.Item(itemID)
	if it == nil {
		return nil, fmt.Errorf("item %s: %w", itemID, model.ErrItemNotFound)
	}
	use, ok := registry[it.Type]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", it.Type, it.Name, ErrNotUsable)
	}
	if opts.UseAmount <= 0 {
		opts.UseAmount = 1
	}

	if it.Data.Quantity != nil && *it.Data.Quantity <= 0 {
		return nil, fmt.Errorf("%q: %w", it.Name, ErrNoQuantity)
	}
	state, err := ledger.Resolve(a, it)
	if err != nil {
		return nil, err
	}
	if it.IsCharged() || it.Type == model.ItemSpell {
		if err := ledger.Check(state, opts.UseAmount); err != nil {
			return nil, fmt.Errorf("%q: %w", it.Name, err)
		}
	}

	if h.confirmer != nil && !opts.SkipConfirm && it.Type != model.ItemBuff && it.Data.ActionType != model.ActionSpecial {
		opts, err = h.confirmer.Confirm(ctx, a, it, opts)
		if err != nil {
			return nil, err
		}
		if opts.UseAmount <= 0 {
			opts.UseAmount = 1
		}
	}

	s, err := h.newScope(ctx, a, opts.TargetIDs)
	if err != nil {
		return nil, err
	}
	u := &useCtx{
		opts:  opts,
		scope: s,
		actor: s.Self,
		item:  s.Self.Item(itemID),
		state: state,
		res:   &UseResult{ItemID: it.ID, Name: it.Name, Before: state, After: state},
	}
	if err := use(ctx, h, u); err != nil {
		u.res.Changes = s.Changes
		if cerr := h.commit(ctx, s.Changes); cerr != nil {
			return u.res, errors.Join(fmt.Errorf("use %q: %w", it.Name, err), cerr)
		}
		slog.Warn("item use failed", "actor", a.ID, "item", it.Name, "ops", s.Changes.Len(), "err", err)
		return u.res, fmt.Errorf("use %q: %w", it.Name, err)
	}

	u.res.Changes = s.Changes
	if err := h.commit(ctx, s.Changes); err != nil {
		return u.res, fmt.Errorf("use %q: %w", it.Name, err)
	}
	slog.Info("item used", "actor", a.ID, "item", it.Name, "attacks", len(u.res.Attacks), "ops", s.Changes.Len())
	return u.res, nil
}

func (h *Handler) newScope(ctx context.Context, self *model.Actor, targetIDs []string) (*action.Scope, error) {
	targets := make([]*model.Actor, 0, len(targetIDs))
	for _, id := range targetIDs {
		if id == self.ID {
			targets = append(targets, self)
			continue
		}
		t, err := h.store.LoadActor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load target %s: %w", id, err)
		}
		targets = append(targets, t)
	}
	return action.NewScope(self, targets...)
}

func (h *Handler) commit(ctx context.Context, cs *model.Changeset) error {
	if cs.Len() == 0 {
		return nil
	}
	if err := h.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("commit %d ops: %w", cs.Len(), err)
	}
	return nil
}

// deduct applies amount to the item's pool and records the write.
func (h *Handler) deduct(ctx context.Context, u *useCtx, amount int) error {
	next := ledger.Deduct(u.state, amount)
	var cs model.Changeset
	if !ledger.Write(&cs, u.actor.ID, u.item, next) {
		return nil
	}
	for _, op := range cs.Ops {
		if err := u.scope.Apply(op); err != nil {
			return fmt.Errorf("deduct %q: %w", u.item.Name, err)
		}
	}
	u.state = next
	u.res.After = next
	h.recorder.RecordDeduction(ctx, next.Variant())
	return nil
}

func useBuff(ctx context.Context, h *Handler, u *useCtx) error {
	if h.buffs == nil {
		return fmt.Errorf("buff %q: %w", u.item.Name, ErrNotUsable)
	}
	return h.buffs.Toggle(ctx, u.scope, u.actor.ID, u.item.ID)
}
