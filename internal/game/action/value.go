package action

import (
	"strconv"
	"strings"

	"github.com/udisondev/d20core/internal/game/directive"
)

// ParseValue converts a directive literal: true/false become bools,
// numbers become float64, anything else a string with quotes removed.
func ParseValue(raw string) any {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return directive.Unquote(raw)
}
