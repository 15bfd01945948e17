package buff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/udisondev/d20core/internal/data"
	"github.com/udisondev/d20core/internal/model"
)

var ErrUnknownShape = errors.New("unknown shapechange kind")

// NewShapechange builds an inactive shapechange buff from a snapshot of
// source. kind is wildshape, polymorph or alter-self.
func NewShapechange(source *model.Actor, kind string, rules *data.Ruleset) (*model.Item, error) {
	switch kind {
	case model.ShapeWildshape, model.ShapePolymorph, model.ShapeAlterSelf:
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownShape)
	}
	snap, err := source.Clone()
	if err != nil {
		return nil, err
	}

	img := source.Img
	if img == "" {
		img = rules.Shapechange.DefaultPortrait
	}
	portrait := "Update set data.shapechangeImg to " + quote(img) + " on self"
	resetPortrait := "Update set data.shapechangeImg to " + quote(rules.Shapechange.DefaultPortrait) + " on self"

	it := &model.Item{
		ID:   model.NewItemID(),
		Name: source.Name,
		Img:  source.Img,
		Type: model.ItemBuff,
	}
	d := &it.Data
	d.BuffType = model.BuffShapechange
	d.Shapechange = model.Shapechange{Type: kind, Source: snap}
	d.SizeOverride = source.Data.Traits.Size
	d.Description = describeShape(source)

	switch kind {
	case model.ShapeWildshape:
		d.ActivateActions = []string{
			"Condition set wildshaped to true on self",
			portrait,
			"Set attack * field data.melded to true on self; Set weapon * field data.melded to true on self; Set equipment * field data.melded to true on self",
		}
		d.DeactivateActions = []string{
			"Condition set wildshaped to false on self",
			"Set attack * field data.melded to false on self; Set weapon * field data.melded to false on self; Set equipment * field data.melded to false on self",
			resetPortrait,
		}
	case model.ShapePolymorph:
		d.ActivateActions = []string{
			"Condition set polymorph to true on self",
			portrait,
			"Set attack:natural * field data.melded to true on self",
		}
		d.DeactivateActions = []string{
			"Condition set polymorph to false on self",
			"Set attack:natural * field data.melded to false on self",
			resetPortrait,
		}
	case model.ShapeAlterSelf:
		d.ActivateActions = []string{portrait}
		d.DeactivateActions = []string{resetPortrait}
	}

	if kind != model.ShapeAlterSelf {
		d.Changes = shapeChanges(source)
	}
	return it, nil
}

func shapeChanges(src *model.Actor) []model.Change {
	var out []model.Change
	for _, abl := range []string{"str", "dex", "con"} {
		out = append(out, model.Change{
			Formula:   strconv.Itoa(src.Data.Abilities[abl].Value),
			Target:    "ability",
			Subtarget: abl,
			Modifier:  "replace",
		})
	}
	for _, sp := range speeds(src) {
		out = append(out, model.Change{
			Formula:   strconv.Itoa(sp.value),
			Target:    "speed",
			Subtarget: sp.key + "Speed",
			Modifier:  "replace",
		})
	}
	out = append(out, model.Change{
		Formula:   strconv.Itoa(src.Data.Attributes.NaturalAC),
		Target:    "ac",
		Subtarget: "nac",
		Modifier:  "base",
	})
	return out
}

type speed struct {
	key   string
	value int
}

func speeds(src *model.Actor) []speed {
	sp := src.Data.Attributes.Speed
	return []speed{
		{"land", sp.Land},
		{"climb", sp.Climb},
		{"swim", sp.Swim},
		{"burrow", sp.Burrow},
		{"fly", sp.Fly},
	}
}

func describeShape(src *model.Actor) string {
	var parts []string
	for _, sp := range speeds(src) {
		if sp.value > 0 {
			parts = append(parts, fmt.Sprintf("%s%s %d ft.", strings.ToUpper(sp.key[:1]), sp.key[1:], sp.value))
		}
	}
	desc := "Size: " + src.Data.Traits.Size
	if len(parts) > 0 {
		desc += "; Speed: " + strings.Join(parts, ", ")
	}
	return desc
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
