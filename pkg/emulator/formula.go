package emulator

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// Evaluate computes a numeric formula over the properties of page.
// It understands number literals, prop("Name"), + - * / and parentheses.
// A referenced property without a numeric value is an error.
func Evaluate(expr string, page tablestore.Page) (float64, error) {
	p := &formulaParser{src: expr, page: page}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("formula %q: unexpected %q at %d", expr, p.src[p.pos:], p.pos)
	}
	return v, nil
}

type formulaParser struct {
	src  string
	pos  int
	page tablestore.Page
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) term() (float64, error) {
	left, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.factor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.factor()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("formula %q: division by zero", p.src)
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) factor() (float64, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("formula %q: missing ')'", p.src)
		}
		p.pos++
		return v, nil
	case c == '-':
		p.pos++
		v, err := p.factor()
		return -v, err
	case c == '.' || (c >= '0' && c <= '9'):
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
			p.pos++
		}
		return strconv.ParseFloat(p.src[start:p.pos], 64)
	case strings.HasPrefix(p.src[p.pos:], "prop("):
		return p.prop()
	case c == 0:
		return 0, fmt.Errorf("formula %q: unexpected end", p.src)
	default:
		return 0, fmt.Errorf("formula %q: unexpected %q at %d", p.src, c, p.pos)
	}
}

func (p *formulaParser) prop() (float64, error) {
	p.pos += len("prop(")
	if p.peek() != '"' {
		return 0, fmt.Errorf("formula %q: prop expects a quoted name", p.src)
	}
	p.pos++
	end := strings.IndexByte(p.src[p.pos:], '"')
	if end < 0 {
		return 0, fmt.Errorf("formula %q: unterminated property name", p.src)
	}
	name := p.src[p.pos : p.pos+end]
	p.pos += end + 1
	if p.peek() != ')' {
		return 0, fmt.Errorf("formula %q: missing ')' after prop", p.src)
	}
	p.pos++

	v, ok := p.page.Number(name)
	if !ok {
		return 0, fmt.Errorf("formula %q: property %q has no number", p.src, name)
	}
	return v, nil
}
