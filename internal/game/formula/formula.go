// Package formula evaluates arithmetic and dice expressions such as
// "1d20 + @abilities.str.mod + floor(@attributes.bab.total / 4)".
//
// References (@path) are substituted from Bindings before parsing. Dice are
// rolled through a Source so results are reproducible in tests.
package formula

import (
	"math"
	"strings"
)

// MaxDice bounds the number of dice a single NdM term may roll.
const MaxDice = 1000

// DiceTerm is one rolled NdM group.
type DiceTerm struct {
	Count   int   `json:"count"`
	Sides   int   `json:"sides"`
	Results []int `json:"results"`
	Total   int   `json:"total"`
}

// Result is the detailed outcome of a Roll.
type Result struct {
	Formula     string     `json:"formula"`
	Substituted string     `json:"substituted"`
	Total       float64    `json:"total"`
	Dice        []DiceTerm `json:"dice,omitempty"`
}

// Natural returns the first die rolled with the given number of sides.
// For an attack this is the natural d20.
func (r Result) Natural(sides int) (int, bool) {
	for _, d := range r.Dice {
		if d.Sides == sides && len(d.Results) > 0 {
			return d.Results[0], true
		}
	}
	return 0, false
}

// Evaluator evaluates formulas using a dice Source.
type Evaluator struct {
	src Source
}

// New returns an Evaluator rolling dice from src.
func New(src Source) *Evaluator {
	return &Evaluator{src: src}
}

// Source returns the evaluator's dice source.
func (e *Evaluator) Source() Source { return e.src }

// Evaluate substitutes bindings into formula and returns its value.
// An empty formula evaluates to zero.
func (e *Evaluator) Evaluate(formula string, b Bindings) (float64, error) {
	r, err := e.Roll(formula, b)
	if err != nil {
		return 0, err
	}
	return r.Total, nil
}

// Roll evaluates formula and returns the total plus every dice term rolled.
func (e *Evaluator) Roll(formula string, b Bindings) (Result, error) {
	res := Result{Formula: formula}
	if strings.TrimSpace(formula) == "" {
		return res, nil
	}
	text, err := Substitute(formula, b)
	if err != nil {
		return res, err
	}
	res.Substituted = text

	toks, err := lex(text)
	if err != nil {
		return res, err
	}
	p := &parser{src: text, toks: toks, source: e.src}
	v, err := p.comparison()
	if err != nil {
		return res, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return res, newError(text, t.pos, ErrSyntax, "unexpected %q", t.text)
	}
	res.Total = v
	res.Dice = p.rolled
	return res, nil
}

// IsDeterministic reports whether formula contains no dice terms.
func IsDeterministic(formula string) bool {
	toks, err := lex(refRe.ReplaceAllString(formula, "0"))
	if err != nil {
		return false
	}
	for _, t := range toks {
		if t.kind == tokDice {
			return false
		}
	}
	return true
}

type parser struct {
	src    string
	toks   []token
	i      int
	source Source
	rolled []DiceTerm
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) comparison() (float64, error) {
	left, err := p.additive()
	if err != nil {
		return 0, err
	}
	if !p.isOp("<", "<=", ">", ">=", "==", "!=") {
		return left, nil
	}
	op := p.next().text
	right, err := p.additive()
	if err != nil {
		return 0, err
	}
	var ok bool
	switch op {
	case "<":
		ok = left < right
	case "<=":
		ok = left <= right
	case ">":
		ok = left > right
	case ">=":
		ok = left >= right
	case "==":
		ok = left == right
	case "!=":
		ok = left != right
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

func (p *parser) additive() (float64, error) {
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		r, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			v += r
		} else {
			v -= r
		}
	}
	return v, nil
}

func (p *parser) term() (float64, error) {
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*", "/") {
		op := p.next()
		r, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op.text == "*" {
			v *= r
			continue
		}
		if r == 0 {
			return 0, newError(p.src, op.pos, ErrDivisionByZero, "")
		}
		v /= r
	}
	return v, nil
}

func (p *parser) unary() (float64, error) {
	if p.isOp("-", "+") {
		op := p.next().text
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == "-" {
			return -v, nil
		}
		return v, nil
	}
	return p.dice()
}

func (p *parser) dice() (float64, error) {
	count := 1.0
	if p.peek().kind != tokDice {
		v, err := p.primary()
		if err != nil {
			return 0, err
		}
		if p.peek().kind != tokDice {
			return v, nil
		}
		count = v
	}
	d := p.next()
	sides, err := p.primary()
	if err != nil {
		return 0, err
	}
	return p.roll(d.pos, count, sides)
}

func (p *parser) roll(pos int, count, sides float64) (float64, error) {
	n := int(math.Floor(count))
	s := int(math.Floor(sides))
	if n < 0 {
		return 0, newError(p.src, pos, ErrSyntax, "negative dice count %d", n)
	}
	if s < 1 {
		return 0, newError(p.src, pos, ErrSyntax, "die with %d sides", s)
	}
	if n > MaxDice {
		return 0, newError(p.src, pos, ErrTooManyDice, "%dd%d", n, s)
	}
	if p.source == nil {
		return 0, newError(p.src, pos, ErrSyntax, "no dice source")
	}
	term := DiceTerm{Count: n, Sides: s, Results: make([]int, n)}
	for i := range n {
		r := p.source.Roll(s)
		term.Results[i] = r
		term.Total += r
	}
	p.rolled = append(p.rolled, term)
	return float64(term.Total), nil
}

func (p *parser) primary() (float64, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return t.num, nil
	case tokLParen:
		v, err := p.comparison()
		if err != nil {
			return 0, err
		}
		if c := p.next(); c.kind != tokRParen {
			return 0, newError(p.src, c.pos, ErrSyntax, "expected ')'")
		}
		return v, nil
	case tokIdent:
		return p.call(t)
	case tokEOF:
		return 0, newError(p.src, t.pos, ErrSyntax, "unexpected end of formula")
	default:
		return 0, newError(p.src, t.pos, ErrSyntax, "unexpected %q", t.text)
	}
}

func (p *parser) call(name token) (float64, error) {
	fn, ok := functions[name.text]
	if !ok {
		return 0, newError(p.src, name.pos, ErrSyntax, "unknown function %q", name.text)
	}
	if t := p.next(); t.kind != tokLParen {
		return 0, newError(p.src, t.pos, ErrSyntax, "expected '(' after %s", name.text)
	}
	var args []float64
	if p.peek().kind != tokRParen {
		for {
			v, err := p.comparison()
			if err != nil {
				return 0, err
			}
			args = append(args, v)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if t := p.next(); t.kind != tokRParen {
		return 0, newError(p.src, t.pos, ErrSyntax, "expected ')'")
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return 0, newError(p.src, name.pos, ErrSyntax, "%s: wrong number of arguments (%d)", name.text, len(args))
	}
	return fn.apply(args), nil
}

type function struct {
	minArgs int
	maxArgs int // -1 = variadic
	apply   func([]float64) float64
}

var functions = map[string]function{
	"floor": {1, 1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, 1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"round": {1, 1, func(a []float64) float64 { return math.Round(a[0]) }},
	"abs":   {1, 1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"max": {1, -1, func(a []float64) float64 {
		v := a[0]
		for _, x := range a[1:] {
			v = math.Max(v, x)
		}
		return v
	}},
	"min": {1, -1, func(a []float64) float64 {
		v := a[0]
		for _, x := range a[1:] {
			v = math.Min(v, x)
		}
		return v
	}},
}
