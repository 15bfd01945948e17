// Package api exposes the engine commands over HTTP:
//
//	GET  /actors/{actorID}                         — stored actor document
//	POST /actors/{actorID}/items/{itemID}/use      — use an item
//	POST /actors/{actorID}/items/{itemID}/consumable — craft a consumable from a spell
//	POST /actors/{actorID}/custom                  — run a directive string
//	POST /actors/{actorID}/encounter/reset         — refill per-encounter uses
//	POST /actors/{actorID}/uses/refresh            — re-evaluate max uses
//
// The caller identifies the acting user in the request body. The daemon
// trusts it and is meant to sit behind the table front-end.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/db"
	"github.com/udisondev/d20core/internal/game/action"
	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/game/itemhandler"
	"github.com/udisondev/d20core/internal/game/ledger"
	"github.com/udisondev/d20core/internal/model"
)

const maxBodyBytes = 1 << 20

// Server serves the engine commands. Every command runs under lock, the
// same lock the timeline ticker takes, so dice and actor writes never
// interleave.
type Server struct {
	store itemhandler.Store
	items *itemhandler.Handler
	rules *data.Ruleset
	lock  sync.Locker
}

// NewServer returns a Server. lock may be nil when nothing else writes to
// the store.
func NewServer(store itemhandler.Store, items *itemhandler.Handler, rules *data.Ruleset, lock sync.Locker) *Server {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &Server{store: store, items: items, rules: rules, lock: lock}
}

// Register adds the command routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /actors/{actorID}", s.handleActor)
	mux.HandleFunc("POST /actors/{actorID}/items/{itemID}/use", s.handleUse)
	mux.HandleFunc("POST /actors/{actorID}/items/{itemID}/consumable", s.handleConsumable)
	mux.HandleFunc("POST /actors/{actorID}/custom", s.handleCustom)
	mux.HandleFunc("POST /actors/{actorID}/encounter/reset", s.handleEncounterReset)
	mux.HandleFunc("POST /actors/{actorID}/uses/refresh", s.handleUsesRefresh)
}

type userRequest struct {
	User string `json:"user"`
	GM   bool   `json:"gm"`
}

func (r userRequest) user() model.User { return model.User{ID: r.User, GM: r.GM} }

type useRequest struct {
	userRequest
	Options itemhandler.UseOptions `json:"options"`
}

type useResponse struct {
	Result *itemhandler.UseResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type customRequest struct {
	userRequest
	Action  string   `json:"action"`
	Targets []string `json:"targets,omitempty"`
}

type changesResponse struct {
	Changes *model.Changeset `json:"changes,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type consumableRequest struct {
	userRequest
	Kind string `json:"kind"`
}

type countResponse struct {
	Changed int `json:"changed"`
}

func (s *Server) handleActor(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.LoadActor(r.Context(), r.PathValue("actorID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleUse handles POST /actors/{actorID}/items/{itemID}/use. A use that
// fails after rolling still returns its result next to the error.
func (s *Server) handleUse(w http.ResponseWriter, r *http.Request) {
	var req useRequest
	if !decode(w, r, &req) {
		return
	}
	// no prompt over HTTP: the options arrive with the request
	req.Options.SkipConfirm = true

	s.lock.Lock()
	res, err := s.items.Use(r.Context(), req.user(), r.PathValue("actorID"), r.PathValue("itemID"), req.Options)
	s.lock.Unlock()

	if err != nil {
		slog.Info("use rejected", "actor", r.PathValue("actorID"), "item", r.PathValue("itemID"), "err", err)
		writeJSON(w, statusFor(err), useResponse{Result: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, useResponse{Result: res})
}

func (s *Server) handleCustom(w http.ResponseWriter, r *http.Request) {
	var req customRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Action == "" {
		http.Error(w, "action is required", http.StatusBadRequest)
		return
	}

	s.lock.Lock()
	cs, err := s.items.Custom(r.Context(), req.user(), r.PathValue("actorID"), req.Action, req.Targets)
	s.lock.Unlock()

	if err != nil {
		writeJSON(w, statusFor(err), changesResponse{Changes: cs, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: cs})
}

// handleConsumable turns a spell the actor knows into a wand, potion or
// other consumable and adds it to the actor's items.
func (s *Server) handleConsumable(w http.ResponseWriter, r *http.Request) {
	var req consumableRequest
	if !decode(w, r, &req) {
		return
	}
	actorID, itemID := r.PathValue("actorID"), r.PathValue("itemID")

	s.lock.Lock()
	defer s.lock.Unlock()

	a, err := s.store.LoadActor(r.Context(), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !a.IsOwner(req.user()) {
		writeError(w, fmt.Errorf("%s: %w", a.Name, itemhandler.ErrPermission))
		return
	}
	spell := a.Item(itemID)
	if spell == nil {
		writeError(w, fmt.Errorf("item %s: %w", itemID, model.ErrItemNotFound))
		return
	}
	it, err := itemhandler.ToConsumable(spell, req.Kind, s.rules)
	if err != nil {
		writeError(w, err)
		return
	}
	var cs model.Changeset
	cs.CreateItem(a.ID, it)
	if err := s.store.Commit(r.Context(), &cs); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("consumable created", "actor", a.ID, "item", it.Name)
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) handleEncounterReset(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	n, err := s.items.ResetPerEncounterUses(r.Context(), r.PathValue("actorID"))
	s.lock.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Changed: n})
}

func (s *Server) handleUsesRefresh(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	n, err := s.items.UpdateMaxUses(r.Context(), r.PathValue("actorID"))
	s.lock.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Changed: n})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var ferr *formula.Error
	switch {
	case errors.Is(err, itemhandler.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, db.ErrActorNotFound), errors.Is(err, model.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, itemhandler.ErrNotUsable),
		errors.Is(err, itemhandler.ErrNoQuantity),
		errors.Is(err, itemhandler.ErrNoAmmo),
		errors.Is(err, itemhandler.ErrCancelled),
		errors.Is(err, ledger.ErrResourceExhausted):
		return http.StatusConflict
	case errors.As(err, &ferr),
		errors.Is(err, action.ErrBadParams),
		errors.Is(err, itemhandler.ErrUnknownConsumable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
