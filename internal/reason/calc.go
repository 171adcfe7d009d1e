package reason

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrEvaluation marks a malformed or unsafe calculator expression. The
// agent treats it as absence of the computed value, never as a crash.
var ErrEvaluation = errors.New("evaluation error")

// Evaluate computes a restricted arithmetic expression: numbers and
// + - * / ** ( ) only. No names, no calls, no side effects.
func Evaluate(expression string) (float64, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("%w: empty expression", ErrEvaluation)
	}

	p := &exprParser{tokens: tokens}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("%w: unexpected token %q", ErrEvaluation, p.tokens[p.pos])
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrEvaluation)
	}
	return result, nil
}

// FormatResult renders an evaluation result without trailing zeros.
func FormatResult(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// tokenize splits the expression into number and operator tokens. Any
// character outside the allowed set is rejected.
func tokenize(expression string) ([]string, error) {
	var tokens []string
	s := expression
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n':
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			tokens = append(tokens, s[i:j])
			i = j
		case ch == '*':
			if i+1 < len(s) && s[i+1] == '*' {
				tokens = append(tokens, "**")
				i += 2
			} else {
				tokens = append(tokens, "*")
				i++
			}
		case ch == '+' || ch == '-' || ch == '/' || ch == '(' || ch == ')':
			tokens = append(tokens, string(ch))
			i++
		default:
			return nil, fmt.Errorf("%w: only numbers and + - * / ** ( ) are allowed", ErrEvaluation)
		}
	}
	return tokens, nil
}

type exprParser struct {
	tokens []string
	pos    int
}

func (p *exprParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

// parseExpr := term (('+'|'-') term)*
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != "+" && op != "-" {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

// parseTerm := power (('*'|'/') power)*
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != "*" && op != "/" {
			return left, nil
		}
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrEvaluation)
			}
			left /= right
		}
	}
}

// parsePower := unary ('**' power)?   (right-associative)
func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if p.peek() != "**" {
		return base, nil
	}
	p.pos++
	exp, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

// parseUnary := '-' unary | primary
func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == "-" {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

// parsePrimary := number | '(' expr ')'
func (p *exprParser) parsePrimary() (float64, error) {
	tok := p.peek()
	if tok == "" {
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrEvaluation)
	}

	if tok == "(" {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ")" {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrEvaluation)
		}
		p.pos++
		return v, nil
	}

	if strings.Count(tok, ".") > 1 {
		return 0, fmt.Errorf("%w: malformed number %q", ErrEvaluation, tok)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed number %q", ErrEvaluation, tok)
	}
	p.pos++
	return v, nil
}
