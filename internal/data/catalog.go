package data

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/d20core/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog — набор паков предметов (compendium), из которых директива Add
// создаёт новые предметы.
type Catalog struct {
	packs map[string][]model.Item
}

// DefaultCatalog returns the built-in packs.
func DefaultCatalog() *Catalog {
	c, err := parseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads packs from path and merges them over the built-in ones.
// A missing file is not an error.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	extra, err := parseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for name, items := range extra.packs {
		c.packs[name] = items
	}
	slog.Info("loaded catalog", "path", path, "packs", len(c.packs))
	return c, nil
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	// Item bodies carry json tags, so the yaml tree is re-encoded as json.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	packs := map[string][]model.Item{}
	if err := json.Unmarshal(js, &packs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &Catalog{packs: packs}, nil
}

// Packs returns the number of packs.
func (c *Catalog) Packs() int {
	return len(c.packs)
}

// Find returns a fresh copy of the named item from pack. Pack and item
// names match case-insensitively; typ, when non-empty, must match too.
func (c *Catalog) Find(pack string, typ model.ItemType, name string) (*model.Item, bool) {
	for packName, items := range c.packs {
		if !strings.EqualFold(packName, pack) {
			continue
		}
		for i := range items {
			it := &items[i]
			if !strings.EqualFold(it.Name, name) || (typ != "" && it.Type != typ) {
				continue
			}
			clone, err := model.CloneItem(it)
			if err != nil {
				slog.Error("clone catalog item", "pack", pack, "name", name, "err", err)
				return nil, false
			}
			return clone, true
		}
	}
	return nil, false
}
