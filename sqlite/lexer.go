package sqlite

import (
	"fmt"
	"strings"

	"github.com/anacrolix/sqlmsg/wire"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokParam
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// is compares identifiers and punctuation case-insensitively.
func (me token) is(s string) bool {
	return (me.kind == tokIdent || me.kind == tokPunct) && strings.EqualFold(me.text, s)
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c == '$' || c >= '0' && c <= '9'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

var operators = []string{"<>", "!=", "<=", ">=", "==", "||", "<<", ">>"}

func syntaxError(format string, args ...interface{}) *wire.Error {
	return &wire.Error{
		Codes:   []int{wire.CodeDsqlError},
		Message: "Dynamic SQL Error: " + fmt.Sprintf(format, args...),
	}
}

// lex splits sql into tokens, dropping whitespace and comments.
func lex(sql string) (ret []token, err error) {
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(sql[i:], "--"):
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				err = syntaxError("unterminated comment")
				return
			}
			i += end + 4
		case c == '\'' || c == '"':
			j := i + 1
			for {
				if j >= len(sql) {
					err = syntaxError("unterminated string at offset %d", i)
					return
				}
				if sql[j] == c {
					if j+1 < len(sql) && sql[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			kind := tokString
			if c == '"' {
				kind = tokQuoted
			}
			ret = append(ret, token{kind, sql[i : j+1]})
			i = j + 1
		case isDigit(c) || c == '.' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i
			for j < len(sql) && (isDigit(sql[j]) || sql[j] == '.') {
				j++
			}
			if j < len(sql) && (sql[j] == 'e' || sql[j] == 'E') {
				j++
				if j < len(sql) && (sql[j] == '+' || sql[j] == '-') {
					j++
				}
				for j < len(sql) && isDigit(sql[j]) {
					j++
				}
			}
			ret = append(ret, token{tokNumber, sql[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(sql) && isIdentChar(sql[j]) {
				j++
			}
			ret = append(ret, token{tokIdent, sql[i:j]})
			i = j
		case c == '?':
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			ret = append(ret, token{tokParam, sql[i:j]})
			i = j
		default:
			text := sql[i : i+1]
			for _, op := range operators {
				if strings.HasPrefix(sql[i:], op) {
					text = op
					break
				}
			}
			ret = append(ret, token{tokPunct, text})
			i += len(text)
		}
	}
	return
}

// unquote returns the contents of a string literal.
func unquote(s string) string {
	q := s[:1]
	return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
}

func join(toks []token) string {
	var sb strings.Builder
	for i, t := range toks {
		if i != 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.text)
	}
	return sb.String()
}

// closing returns the index of the parenthesis closing the one at open.
func closing(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].is("("):
			depth++
		case toks[i].is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits toks on commas outside parentheses.
func splitTop(toks []token) (ret [][]token) {
	depth, start := 0, 0
	for i, t := range toks {
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
		case t.is(",") && depth == 0:
			ret = append(ret, toks[start:i])
			start = i + 1
		}
	}
	return append(ret, toks[start:])
}

// indexTop finds the first identifier word outside parentheses at or after from.
func indexTop(toks []token, from int, word string) int {
	depth := 0
	for i := from; i < len(toks); i++ {
		switch {
		case toks[i].is("("):
			depth++
		case toks[i].is(")"):
			depth--
		case depth == 0 && toks[i].kind == tokIdent && toks[i].is(word):
			return i
		}
	}
	return -1
}

// castAt matches "cast ( expr as type )" at i and returns the expression, the declared type and
// the index of the closing parenthesis.
func castAt(toks []token, i int) (expr, typ []token, end int, ok bool) {
	if i+1 >= len(toks) || !toks[i].is("cast") || !toks[i+1].is("(") {
		return
	}
	end = closing(toks, i+1)
	if end < 0 {
		return
	}
	as := indexTop(toks[:end], i+2, "as")
	if as < 0 {
		return
	}
	return toks[i+2 : as], toks[as+1 : end], end, true
}

// rewrite produces the SQLite text: casts become parenthesized expressions (the declared type is
// applied when the value is encoded), system relation names lose their '$' and trailing
// FOR UPDATE [WITH LOCK] clauses are dropped.
func rewrite(toks []token) string {
	var out []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if expr, _, end, ok := castAt(toks, i); ok {
			out = append(out, token{tokPunct, "("}, token{tokIdent, rewrite(expr)}, token{tokPunct, ")"})
			i = end
			continue
		}
		if t.is("for") && i+1 < len(toks) && toks[i+1].is("update") {
			break
		}
		if t.kind == tokIdent && strings.ContainsRune(t.text, '$') {
			t.text = strings.ReplaceAll(t.text, "$", "_")
		}
		out = append(out, t)
	}
	return join(out)
}
