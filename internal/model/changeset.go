package model

import (
	"fmt"
	"slices"
)

// OpKind identifies a changeset operation.
type OpKind int

const (
	OpPatchActor OpKind = iota + 1
	OpPatchItem
	OpCreateItem
	OpDeleteItem
)

func (k OpKind) String() string {
	switch k {
	case OpPatchActor:
		return "patch_actor"
	case OpPatchItem:
		return "patch_item"
	case OpCreateItem:
		return "create_item"
	case OpDeleteItem:
		return "delete_item"
	default:
		return "unknown"
	}
}

// Op is one mutation of an actor or one of its items.
type Op struct {
	Kind    OpKind `json:"kind"`
	ActorID string `json:"actorId"`
	ItemID  string `json:"itemId,omitempty"`
	Patch   Patch  `json:"patch,omitempty"`
	Item    *Item  `json:"item,omitempty"`
}

// Changeset — упорядоченный список мутаций одной команды.
// Применяется целиком одной транзакцией хранилища.
type Changeset struct {
	Ops []Op `json:"ops"`
}

func (c *Changeset) PatchActor(actorID string, p Patch) {
	c.Ops = append(c.Ops, Op{Kind: OpPatchActor, ActorID: actorID, Patch: p})
}

func (c *Changeset) PatchItem(actorID, itemID string, p Patch) {
	c.Ops = append(c.Ops, Op{Kind: OpPatchItem, ActorID: actorID, ItemID: itemID, Patch: p})
}

func (c *Changeset) CreateItem(actorID string, it *Item) {
	c.Ops = append(c.Ops, Op{Kind: OpCreateItem, ActorID: actorID, ItemID: it.ID, Item: it})
}

func (c *Changeset) DeleteItem(actorID, itemID string) {
	c.Ops = append(c.Ops, Op{Kind: OpDeleteItem, ActorID: actorID, ItemID: itemID})
}

// Add appends op.
func (c *Changeset) Add(op Op) {
	c.Ops = append(c.Ops, op)
}

// Len returns the number of operations.
func (c *Changeset) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Ops)
}

// ActorIDs returns the distinct actors touched, in first-touch order.
func (c *Changeset) ActorIDs() []string {
	var ids []string
	for _, op := range c.Ops {
		if !slices.Contains(ids, op.ActorID) {
			ids = append(ids, op.ActorID)
		}
	}
	return ids
}

// Apply performs op on the actor.
func (a *Actor) Apply(op Op) error {
	if op.ActorID != a.ID {
		return fmt.Errorf("apply %s to %s: %w", op.Kind, a.ID, ErrWrongActor)
	}
	switch op.Kind {
	case OpPatchActor:
		if err := ApplyPatch(&a.Data, op.Patch); err != nil {
			return fmt.Errorf("patch actor %s: %w", a.ID, err)
		}
		a.Normalize()
	case OpPatchItem:
		it := a.Item(op.ItemID)
		if it == nil {
			return fmt.Errorf("patch item %s: %w", op.ItemID, ErrItemNotFound)
		}
		if err := ApplyPatch(&it.Data, op.Patch); err != nil {
			return fmt.Errorf("patch item %s: %w", op.ItemID, err)
		}
	case OpCreateItem:
		if op.Item == nil {
			return fmt.Errorf("create item on %s: nil item", a.ID)
		}
		it := *op.Item
		if it.ID == "" {
			it.ID = NewItemID()
		}
		a.Items = append(a.Items, &it)
	case OpDeleteItem:
		i := slices.IndexFunc(a.Items, func(it *Item) bool { return it.ID == op.ItemID })
		if i < 0 {
			return fmt.Errorf("delete item %s: %w", op.ItemID, ErrItemNotFound)
		}
		a.Items = slices.Delete(a.Items, i, i+1)
	default:
		return fmt.Errorf("unknown op kind %d", op.Kind)
	}
	return nil
}

// ApplyAll applies every op of c that targets the actor, in order.
func (a *Actor) ApplyAll(c *Changeset) error {
	for _, op := range c.Ops {
		if op.ActorID != a.ID {
			continue
		}
		if err := a.Apply(op); err != nil {
			return err
		}
	}
	return nil
}
