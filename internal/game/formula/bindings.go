package formula

import (
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Bindings maps dotted paths (without the leading @) to numeric values.
type Bindings map[string]float64

// Clone returns a shallow copy that is safe to extend.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b)+8)
	maps.Copy(out, b)
	return out
}

// Get returns the value bound to path, or zero when missing.
func (b Bindings) Get(path string) float64 {
	return b[path]
}

// Merge copies other into b, prefixing every key with prefix + ".".
// An empty prefix copies keys verbatim.
func (b Bindings) Merge(prefix string, other Bindings) {
	for k, v := range other {
		if prefix != "" {
			k = prefix + "." + k
		}
		b[k] = v
	}
}

// FlattenJSON turns a JSON document into Bindings. Nested objects become
// dotted paths, array elements are indexed, booleans map to 1 and 0 and
// numeric strings are parsed. Other strings and nulls are skipped.
func FlattenJSON(doc []byte) Bindings {
	out := Bindings{}
	flatten(out, "", gjson.ParseBytes(doc))
	return out
}

func flatten(out Bindings, prefix string, v gjson.Result) {
	switch {
	case v.IsObject() || v.IsArray():
		i := 0
		v.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if v.IsArray() {
				k = strconv.Itoa(i)
				i++
			}
			if prefix != "" {
				k = prefix + "." + k
			}
			flatten(out, k, value)
			return true
		})
	case v.Type == gjson.Number:
		out[prefix] = v.Num
	case v.Type == gjson.True:
		out[prefix] = 1
	case v.Type == gjson.False:
		out[prefix] = 0
	case v.Type == gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			out[prefix] = f
		}
	}
}

var refRe = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)`)

// Substitute replaces every @path in formula with its bound value.
// Negative values are parenthesised so that "x - @y" stays well formed.
func Substitute(formula string, b Bindings) (string, error) {
	var missing string
	out := refRe.ReplaceAllStringFunc(formula, func(m string) string {
		path := m[1:]
		v, ok := b[path]
		if !ok {
			if missing == "" {
				missing = path
			}
			return m
		}
		return FormatNumber(v, true)
	})
	if missing != "" {
		return "", newError(formula, strings.Index(formula, "@"+missing), ErrUnresolved, "@%s", missing)
	}
	return out, nil
}

// References lists the distinct @paths used by formula, in order.
func References(formula string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range refRe.FindAllStringSubmatch(formula, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// FormatNumber renders v in the shortest form that parses back exactly.
func FormatNumber(v float64, parenNegative bool) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if parenNegative && v < 0 {
		return "(" + s + ")"
	}
	return s
}

var diceRe = regexp.MustCompile(`\b(\d*)[dD](\d+)\b`)

// AlterDice rewrites every NdM term in formula to (N*multiply + add)dM.
// A missing count is treated as 1.
func AlterDice(formula string, add, multiply int) string {
	return diceRe.ReplaceAllStringFunc(formula, func(m string) string {
		sub := diceRe.FindStringSubmatch(m)
		count := 1
		if sub[1] != "" {
			count, _ = strconv.Atoi(sub[1])
		}
		return strconv.Itoa(count*multiply+add) + "d" + sub[2]
	})
}
