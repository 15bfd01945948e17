package formula

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokDice
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case c == utf8.RuneError && size <= 1:
			return nil, newError(src, i, ErrSyntax, "invalid UTF-8 at byte %d", i)
		case unicode.IsSpace(c):
			i += size
		case c < utf8.RuneSelf && isDigit(byte(c)) || c == '.':
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			n, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, newError(src, start, ErrSyntax, "bad number %q", src[start:i])
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], num: n, pos: start})
		case (c == 'd' || c == 'D') && i+1 < len(src) && (isDigit(src[i+1]) || src[i+1] == '('):
			toks = append(toks, token{kind: tokDice, text: "d", pos: i})
			i++
		case c < utf8.RuneSelf && isLetter(byte(c)):
			start := i
			for i < len(src) && (isLetter(src[i]) || isDigit(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(src[start:i]), pos: start})
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case strings.ContainsRune("+-*/", c):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case strings.ContainsRune("<>=!", c):
			op := string(c)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
			}
			if op == "=" || op == "!" {
				return nil, newError(src, i, ErrSyntax, "unexpected %q", op)
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		default:
			return nil, newError(src, i, ErrSyntax, "unexpected %q", string(c))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
func isLetter(b byte) bool { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_' }
