package db

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/udisondev/d20core/internal/model"
)

// MemoryStore keeps actors in process. Used by tests and by the CLI.
type MemoryStore struct {
	mu     sync.RWMutex
	actors map[string]*model.Actor
}

// NewMemoryStore returns a MemoryStore holding copies of actors.
func NewMemoryStore(actors ...*model.Actor) (*MemoryStore, error) {
	s := &MemoryStore{actors: make(map[string]*model.Actor, len(actors))}
	for _, a := range actors {
		if err := s.SaveActor(context.Background(), a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) LoadActor(_ context.Context, id string) (*model.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrActorNotFound)
	}
	return a.Clone()
}

func (s *MemoryStore) SaveActor(_ context.Context, a *model.Actor) error {
	c, err := a.Clone()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.actors[a.ID] = c
	s.mu.Unlock()
	return nil
}

// Commit applies cs to copies of the touched actors and swaps them in
// only when every op succeeded.
func (s *MemoryStore) Commit(_ context.Context, cs *model.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*model.Actor)
	for _, id := range cs.ActorIDs() {
		cur, ok := s.actors[id]
		if !ok {
			return fmt.Errorf("commit: %s: %w", id, ErrActorNotFound)
		}
		a, err := cur.Clone()
		if err != nil {
			return err
		}
		if err := a.ApplyAll(cs); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		next[id] = a
	}
	for id, a := range next {
		s.actors[id] = a
	}
	return nil
}

func (s *MemoryStore) ActorIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
