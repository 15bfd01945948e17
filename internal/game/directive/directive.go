// Package directive parses action directive strings such as
//
//	Condition set wildshaped to true on self; Damage 1d6 on target if @cl > 4
//
// into structured Directives. Segments are separated by ";". A segment that
// does not match "<Verb> <params...> on (self|target)" is skipped. At least
// one param is required: "Foo on self" is not a directive.
package directive

import (
	"log/slog"
	"regexp"
	"strings"
)

// Scope selects the actor a directive applies to.
type Scope int

const (
	ScopeSelf Scope = iota
	ScopeTarget
)

func (s Scope) String() string {
	if s == ScopeTarget {
		return "target"
	}
	return "self"
}

// Directive is one parsed action.
type Directive struct {
	Verb      string
	Params    []string
	Target    Scope
	Condition string
	Raw       string
}

// Param returns the i-th parameter or "" when absent.
func (d Directive) Param(i int) string {
	if i < 0 || i >= len(d.Params) {
		return ""
	}
	return d.Params[i]
}

// String renders the directive back into its textual form.
func (d Directive) String() string {
	var b strings.Builder
	b.WriteString(d.Verb)
	for _, p := range d.Params {
		b.WriteByte(' ')
		b.WriteString(p)
	}
	b.WriteString(" on ")
	b.WriteString(d.Target.String())
	if d.Condition != "" {
		b.WriteString(" if ")
		b.WriteString(d.Condition)
	}
	return b.String()
}

var (
	segmentRe = regexp.MustCompile(`^([A-Za-z]+)\s+(.*?)\s+on\s+(target|self)$`)
	trailRe   = regexp.MustCompile(`^(.*?)\s+on\s+(target|self)$`)
	paramRe   = regexp.MustCompile(`(?:[^\s"]+|"[^"]*")+`)
)

const ifSep = " if "

// Parse splits raw on ";" and returns every well-formed directive in order.
// The condition may follow the scope clause ("... on self if cond") or
// precede it ("... if cond on self").
func Parse(raw string) []Directive {
	var out []Directive
	for _, seg := range strings.Split(raw, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		d, ok := parseSegment(seg)
		if !ok {
			slog.Debug("directive skipped", "segment", seg)
			continue
		}
		out = append(out, d)
	}
	return out
}

func parseSegment(seg string) (Directive, bool) {
	body, cond := seg, ""
	if i := indexUnquoted(seg, ifSep); i >= 0 {
		body = strings.TrimSpace(seg[:i])
		cond = strings.TrimSpace(seg[i+len(ifSep):])
		// "... if cond on self": move the scope clause back to the body.
		if m := trailRe.FindStringSubmatch(cond); m != nil && !segmentRe.MatchString(body) {
			cond = strings.TrimSpace(m[1])
			body = body + " on " + m[2]
		}
	}

	m := segmentRe.FindStringSubmatch(body)
	if m == nil {
		return Directive{}, false
	}
	d := Directive{
		Verb:      m[1],
		Params:    paramRe.FindAllString(m[2], -1),
		Condition: cond,
		Raw:       seg,
	}
	if m[3] == "target" {
		d.Target = ScopeTarget
	}
	return d, true
}

// indexUnquoted is strings.Index that ignores matches inside
// double-quoted spans.
func indexUnquoted(s, sub string) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			quoted = !quoted
			continue
		}
		if !quoted && strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}

// Unquote strips one pair of surrounding double quotes, if present.
func Unquote(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		return p[1 : len(p)-1]
	}
	return p
}

// Join renders directives as a single ";"-separated string.
func Join(ds []Directive) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}
