package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrUnknownPath  = errors.New("unknown path")
	ErrItemNotFound = errors.New("item not found")
	ErrWrongActor   = errors.New("operation targets another actor")
)

// Patch maps dotted paths, relative to an actor's or item's data, to new
// values. "data." prefixes are stripped by StripDataPrefix before use.
type Patch map[string]any

// Keys returns the patch paths in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// StripDataPrefix removes a leading "data." from path.
func StripDataPrefix(path string) string {
	return strings.TrimPrefix(path, "data.")
}

// ApplyPatch merges patch into v (a pointer to a JSON-tagged struct).
// Each path's parent must already exist as an object or array.
func ApplyPatch[T any](v *T, patch Patch) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	for _, path := range patch.Keys() {
		if i := strings.LastIndexByte(path, '.'); i > 0 {
			parent := gjson.GetBytes(raw, path[:i])
			if !parent.IsObject() && !parent.IsArray() {
				return fmt.Errorf("set %s: %w", path, ErrUnknownPath)
			}
		}
		raw, err = sjson.SetBytes(raw, path, patch[path])
		if err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal patched: %w", err)
	}
	*v = out
	return nil
}

// Lookup reads the value at path from v's JSON form.
func Lookup(v any, path string) (gjson.Result, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal: %w", err)
	}
	return gjson.GetBytes(raw, path), nil
}
