package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type token struct {
	text   string
	quoted bool
}

// tokenize splits on whitespace. Single-quoted strings are one token; '' inside
// quotes is a literal quote.
func tokenize(s string) ([]token, error) {
	var (
		toks []token
		cur  strings.Builder
	)
	rs := []rune(s)
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, token{text: cur.String()})
			cur.Reset()
		}
	}

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '\'':
			flush()
			var q strings.Builder
			closed := false
			for i++; i < len(rs); i++ {
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						q.WriteRune('\'')
						i++
						continue
					}
					closed = true
					break
				}
				q.WriteRune(rs[i])
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{text: q.String(), quoted: true})
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks, nil
}

// clauseParser walks tokens left to right.
type clauseParser struct {
	toks []token
	pos  int
}

func (p *clauseParser) more() bool { return p.pos < len(p.toks) }

// word consumes an unquoted token.
func (p *clauseParser) word() (string, bool) {
	if !p.more() {
		return "", false
	}
	t := p.toks[p.pos]
	p.pos++
	return t.text, !t.quoted
}

func (p *clauseParser) expectWords(words ...string) error {
	for _, w := range words {
		got, ok := p.word()
		if !ok || !strings.EqualFold(got, w) {
			return fmt.Errorf("expected %s", w)
		}
	}
	return nil
}

func (p *clauseParser) quoted(clause string) (string, error) {
	if !p.more() || !p.toks[p.pos].quoted {
		return "", fmt.Errorf("%s expects a quoted string", clause)
	}
	t := p.toks[p.pos]
	p.pos++
	return t.text, nil
}

func (p *clauseParser) number(clause string) (int, error) {
	w, ok := p.word()
	if !ok {
		return 0, fmt.Errorf("%s expects a number", clause)
	}
	n, err := strconv.Atoi(w)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s expects a non-negative number, got %q", clause, w)
	}
	return n, nil
}
