package alerting

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Custom conditions accept a small closed-form boolean grammar instead of
// executable code:
//
//	expr   := and { ("or" | "||") and }
//	and    := term { ("and" | "&&") term }
//	term   := "(" expr ")" | field op literal
//	op     := "==" | "!=" | ">" | "<" | ">=" | "<=" | "contains"
//	literal:= number | 'string' | "string" | true | false
//
// Fields resolve against the feedback event's property map. Unknown fields
// make the enclosing comparison false; the expression itself never errors
// at evaluation time.

// Expression is a parsed custom condition ready for evaluation.
type Expression interface {
	Eval(props map[string]any) bool
}

// ParseExpression parses the restricted boolean grammar.
func ParseExpression(input string) (Expression, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("unexpected token %q", p.peek().text)
	}
	return expr, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tokString, string(runes[i+1 : j])})
			i = j + 1
		case strings.ContainsRune("=!<>&|", r):
			j := i
			for j < len(runes) && strings.ContainsRune("=!<>&|", runes[j]) {
				j++
			}
			op := string(runes[i:j])
			switch op {
			case "==", "!=", ">", "<", ">=", "<=", "&&", "||":
				toks = append(toks, token{tokOp, op})
			default:
				return nil, fmt.Errorf("invalid operator %q", op)
			}
			i = j
		case unicode.IsDigit(r) || r == '-' || r == '.':
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{tokOp, "&&"})
			case "or":
				toks = append(toks, token{tokOp, "||"})
			case "contains":
				toks = append(toks, token{tokOp, "contains"})
			default:
				toks = append(toks, token{tokIdent, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(r))
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) eof() bool {
	return p.pos >= len(p.toks)
}

func (p *exprParser) peek() token {
	if p.eof() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokOp && p.peek().text == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokOp && p.peek().text == "&&" {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (Expression, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (Expression, error) {
	field := p.next()
	if field.kind != tokIdent {
		return nil, fmt.Errorf("expected field name, got %q", field.text)
	}
	op := p.next()
	if op.kind != tokOp || op.text == "&&" || op.text == "||" {
		return nil, fmt.Errorf("expected comparison operator after %q", field.text)
	}
	lit := p.next()
	cmp := &compareExpr{field: field.text, op: op.text}
	switch lit.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(lit.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", lit.text)
		}
		cmp.numVal = n
		cmp.isNum = true
	case tokString:
		cmp.strVal = lit.text
	case tokIdent:
		switch strings.ToLower(lit.text) {
		case "true":
			cmp.numVal = 1
			cmp.isNum = true
		case "false":
			cmp.numVal = 0
			cmp.isNum = true
		default:
			return nil, fmt.Errorf("bare word %q is not a literal; quote string values", lit.text)
		}
	default:
		return nil, fmt.Errorf("expected literal after operator, got %q", lit.text)
	}
	return cmp, nil
}

type binaryExpr struct {
	op          string
	left, right Expression
}

func (b *binaryExpr) Eval(props map[string]any) bool {
	if b.op == "&&" {
		return b.left.Eval(props) && b.right.Eval(props)
	}
	return b.left.Eval(props) || b.right.Eval(props)
}

type compareExpr struct {
	field  string
	op     string
	strVal string
	numVal float64
	isNum  bool
}

func (c *compareExpr) Eval(props map[string]any) bool {
	propVal, ok := props[c.field]
	if !ok {
		return false
	}

	if c.isNum {
		propFloat, err := toFloat64(propVal)
		if err != nil {
			return false
		}
		switch c.op {
		case "==":
			return propFloat == c.numVal
		case "!=":
			return propFloat != c.numVal
		case ">":
			return propFloat > c.numVal
		case "<":
			return propFloat < c.numVal
		case ">=":
			return propFloat >= c.numVal
		case "<=":
			return propFloat <= c.numVal
		default:
			return false
		}
	}

	propStr := fmt.Sprintf("%v", propVal)
	switch c.op {
	case "==":
		return strings.EqualFold(propStr, c.strVal)
	case "!=":
		return !strings.EqualFold(propStr, c.strVal)
	case "contains":
		return strings.Contains(strings.ToLower(propStr), strings.ToLower(c.strVal))
	default:
		return false
	}
}
