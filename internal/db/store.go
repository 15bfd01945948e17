package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/udisondev/d20core/internal/model"
)

var ErrActorNotFound = errors.New("actor not found")

// Store persists actors as JSON documents. Commit applies a changeset
// in one transaction: either every touched actor is written or none is.
type Store interface {
	LoadActor(ctx context.Context, id string) (*model.Actor, error)
	SaveActor(ctx context.Context, a *model.Actor) error
	Commit(ctx context.Context, cs *model.Changeset) error
	ActorIDs(ctx context.Context) ([]string, error)
	Close() error
}

func decodeActor(id string, doc []byte) (*model.Actor, error) {
	var a model.Actor
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("decoding actor %s: %w", id, err)
	}
	a.Normalize()
	return &a, nil
}

// applyDoc decodes doc, applies cs to it and returns the new document.
func applyDoc(id string, doc []byte, cs *model.Changeset) (*model.Actor, []byte, error) {
	a, err := decodeActor(id, doc)
	if err != nil {
		return nil, nil, err
	}
	if err := a.ApplyAll(cs); err != nil {
		return nil, nil, fmt.Errorf("applying changes to %s: %w", id, err)
	}
	out, err := json.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding actor %s: %w", id, err)
	}
	return a, out, nil
}
