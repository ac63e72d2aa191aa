package chart

import (
	"strings"
	"unicode"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokKind
	text string
	line int
}

func (t token) is(kind tokKind, text string) bool { return t.kind == kind && t.text == text }

// lex splits source into tokens. Newlines inside brackets are dropped and ';'
// is treated as a statement separator. Anything outside the small alphabet
// of the chart idiom is rejected here.
func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	depth := 0
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case c == '\n':
			if depth == 0 {
				toks = append(toks, token{kind: tokNewline, line: line})
			}
			line++
			i++
		case c == ';':
			toks = append(toks, token{kind: tokNewline, line: line})
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '\\' && i+1 < len(rs) && rs[i+1] == '\n':
			i += 2
			line++
		case c == '#':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case c == '\'' || c == '"':
			s, n, err := lexString(rs[i:], line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, line: line})
			i += n
		case unicode.IsDigit(c) || (c == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])) ||
			(c == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1]) && prevAllowsSign(toks)):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == '_' || rs[j] == 'e' || rs[j] == 'E') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: strings.ReplaceAll(string(rs[i:j]), "_", ""), line: line})
			i = j
		case c == '_' || unicode.IsLetter(c):
			j := i + 1
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[i:j]), line: line})
			i = j
		case strings.ContainsRune("()[]{},=.:", c):
			switch c {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				if depth > 0 {
					depth--
				}
			}
			toks = append(toks, token{kind: tokPunct, text: string(c), line: line})
			i++
		default:
			return nil, execErrorf(line, "unexpected character %q", c)
		}
	}
	if depth != 0 {
		return nil, execErrorf(line, "unbalanced brackets")
	}
	return append(toks, token{kind: tokEOF, line: line}), nil
}

// prevAllowsSign reports whether a '-' here can only start a negative literal.
func prevAllowsSign(toks []token) bool {
	if len(toks) == 0 {
		return false
	}
	p := toks[len(toks)-1]
	return p.kind == tokPunct && (p.text == "=" || p.text == "(" || p.text == "," || p.text == "[" || p.text == ":")
}

func lexString(rs []rune, line int) (string, int, error) {
	q := rs[0]
	// triple-quoted strings are not part of the idiom
	if len(rs) >= 3 && rs[1] == q && rs[2] == q {
		return "", 0, execErrorf(line, "triple-quoted strings are not allowed")
	}
	var b strings.Builder
	for i := 1; i < len(rs); i++ {
		c := rs[i]
		switch c {
		case q:
			return b.String(), i + 1, nil
		case '\n':
			return "", 0, execErrorf(line, "unterminated string")
		case '\\':
			if i+1 >= len(rs) {
				return "", 0, execErrorf(line, "unterminated string")
			}
			i++
			switch rs[i] {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(rs[i])
			}
		default:
			b.WriteRune(c)
		}
	}
	return "", 0, execErrorf(line, "unterminated string")
}
