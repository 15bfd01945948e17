package action

import (
	"fmt"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

// Scope — рабочий снимок акторов одной команды. Все мутации копятся в
// Changes и одновременно применяются к копиям, чтобы следующие директивы
// видели результат предыдущих. Хранилище не трогается до Commit.
type Scope struct {
	Self    *model.Actor
	Targets []*model.Actor
	Changes *model.Changeset
	// Bindings are merged over actor roll data when evaluating directive
	// formulas (item.*, cl, sl).
	Bindings formula.Bindings

	depth    int
	inFlight map[string]bool
}

// NewScope snapshots self and targets.
func NewScope(self *model.Actor, targets ...*model.Actor) (*Scope, error) {
	s := &Scope{Changes: &model.Changeset{}, inFlight: map[string]bool{}}
	var err error
	if s.Self, err = self.Clone(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", self.ID, err)
	}
	for _, t := range targets {
		if t.ID == self.ID {
			s.Targets = append(s.Targets, s.Self)
			continue
		}
		c, err := t.Clone()
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", t.ID, err)
		}
		s.Targets = append(s.Targets, c)
	}
	return s, nil
}

// Actor returns the working copy with the given id, or nil.
func (s *Scope) Actor(id string) *model.Actor {
	if s.Self != nil && s.Self.ID == id {
		return s.Self
	}
	for _, t := range s.Targets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Apply applies op to its working copy and records it.
func (s *Scope) Apply(op model.Op) error {
	a := s.Actor(op.ActorID)
	if a == nil {
		return fmt.Errorf("apply %s: actor %s not in scope", op.Kind, op.ActorID)
	}
	if err := a.Apply(op); err != nil {
		return err
	}
	s.Changes.Add(op)
	return nil
}

// BindingsFor returns actor roll data with the scope's bindings on top.
func (s *Scope) BindingsFor(a *model.Actor) (formula.Bindings, error) {
	b, err := a.RollData()
	if err != nil {
		return nil, err
	}
	for k, v := range s.Bindings {
		b[k] = v
	}
	return b, nil
}

// Depth returns the current dispatch nesting depth.
func (s *Scope) Depth() int { return s.depth }

// Acquire marks key as in flight. It returns false if it already is.
func (s *Scope) Acquire(key string) bool {
	if s.inFlight == nil {
		s.inFlight = map[string]bool{}
	}
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

// Release clears key.
func (s *Scope) Release(key string) {
	delete(s.inFlight, key)
}
