package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// errMalformed marks expressions rejected by the tokenizer or parser.
var errMalformed = errors.New("formula: malformed expression")

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenName
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenCaret
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind tokenKind
	raw  string
	num  float64
}

// tokenize is the character allow-list: digits, decimal points, whitespace,
// the arithmetic operators, parentheses, commas and the names registered in
// functions/constants. Anything else rejects the whole expression.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '+':
			tokens = append(tokens, token{kind: tokenPlus, raw: "+"})
			i++
		case ch == '-':
			tokens = append(tokens, token{kind: tokenMinus, raw: "-"})
			i++
		case ch == '*':
			if i+1 < len(input) && input[i+1] == '*' {
				tokens = append(tokens, token{kind: tokenCaret, raw: "**"})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokenStar, raw: "*"})
			i++
		case ch == '/':
			tokens = append(tokens, token{kind: tokenSlash, raw: "/"})
			i++
		case ch == '^':
			tokens = append(tokens, token{kind: tokenCaret, raw: "^"})
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			i++
		case ch == ',':
			tokens = append(tokens, token{kind: tokenComma, raw: ","})
			i++
		case isDigit(ch) || ch == '.':
			start := i
			dots := 0
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				if input[i] == '.' {
					dots++
				}
				i++
			}
			raw := input[start:i]
			if dots > 1 || raw == "." {
				return nil, fmt.Errorf("%w: invalid number %q", errMalformed, raw)
			}
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q", errMalformed, raw)
			}
			tokens = append(tokens, token{kind: tokenNumber, raw: raw, num: value})
		case isNameStart(ch):
			start := i
			for i < len(input) && (isNameStart(input[i]) || isDigit(input[i]) || input[i] == '.') {
				i++
			}
			name := input[start:i]
			if _, ok := functions[name]; !ok {
				if _, ok := constants[name]; !ok {
					return nil, fmt.Errorf("%w: unexpected name %q", errMalformed, name)
				}
			}
			tokens = append(tokens, token{kind: tokenName, raw: name})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", errMalformed, string(ch))
		}
	}
	return tokens, nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isNameStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

type function struct {
	arity int // -1 means one or more
	call  func(args []float64) float64
}

var functions = map[string]function{}

var constants = map[string]float64{
	"PI":      math.Pi,
	"Math.PI": math.Pi,
	"E":       math.E,
	"Math.E":  math.E,
}

func init() {
	unary := map[string]func(float64) float64{
		"sqrt":  math.Sqrt,
		"abs":   math.Abs,
		"round": math.Round,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"log":   math.Log,
		"exp":   math.Exp,
	}
	for name, fn := range unary {
		call := function{arity: 1, call: func(args []float64) float64 { return fn(args[0]) }}
		functions[name] = call
		functions["Math."+name] = call
	}

	pow := function{arity: 2, call: func(args []float64) float64 { return math.Pow(args[0], args[1]) }}
	functions["pow"] = pow
	functions["Math.pow"] = pow

	minimum := function{arity: -1, call: func(args []float64) float64 {
		out := args[0]
		for _, v := range args[1:] {
			out = math.Min(out, v)
		}
		return out
	}}
	maximum := function{arity: -1, call: func(args []float64) float64 {
		out := args[0]
		for _, v := range args[1:] {
			out = math.Max(out, v)
		}
		return out
	}}
	functions["min"], functions["Math.min"] = minimum, minimum
	functions["max"], functions["Math.max"] = maximum, maximum
}

type node interface {
	eval() float64
}

type numberNode float64

func (n numberNode) eval() float64 { return float64(n) }

type negateNode struct{ inner node }

func (n negateNode) eval() float64 { return -n.inner.eval() }

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval() float64 {
	l, r := n.left.eval(), n.right.eval()
	switch n.op {
	case tokenPlus:
		return l + r
	case tokenMinus:
		return l - r
	case tokenStar:
		return l * r
	case tokenSlash:
		if r == 0 {
			return math.NaN()
		}
		return l / r
	case tokenCaret:
		return math.Pow(l, r)
	default:
		return math.NaN()
	}
}

type callNode struct {
	fn   function
	args []node
}

func (n callNode) eval() float64 {
	values := make([]float64, len(n.args))
	for i, arg := range n.args {
		values[i] = arg.eval()
	}
	return n.fn.call(values)
}

type tokenStream struct {
	tokens []token
	pos    int
}

// parse builds an expression tree from the grammar
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/') unary)*
//	unary   := ('-' | '+') unary | power
//	power   := primary ('^' unary)?
//	primary := number | constant | name '(' expr (',' expr)* ')' | '(' expr ')'
func parse(tokens []token) (node, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty expression", errMalformed)
	}
	stream := &tokenStream{tokens: tokens}
	out, err := parseExpr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("%w: unexpected token %q", errMalformed, stream.tokens[stream.pos].raw)
	}
	return out, nil
}

func parseExpr(s *tokenStream) (node, error) {
	left, err := parseTerm(s)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := s.matchAny(tokenPlus, tokenMinus)
		if !ok {
			return left, nil
		}
		right, err := parseTerm(s)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func parseTerm(s *tokenStream) (node, error) {
	left, err := parseUnary(s)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := s.matchAny(tokenStar, tokenSlash)
		if !ok {
			return left, nil
		}
		right, err := parseUnary(s)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func parseUnary(s *tokenStream) (node, error) {
	if s.match(tokenMinus) {
		inner, err := parseUnary(s)
		if err != nil {
			return nil, err
		}
		return negateNode{inner: inner}, nil
	}
	if s.match(tokenPlus) {
		return parseUnary(s)
	}
	return parsePower(s)
}

func parsePower(s *tokenStream) (node, error) {
	base, err := parsePrimary(s)
	if err != nil {
		return nil, err
	}
	if !s.match(tokenCaret) {
		return base, nil
	}
	exponent, err := parseUnary(s)
	if err != nil {
		return nil, err
	}
	return binaryNode{op: tokenCaret, left: base, right: exponent}, nil
}

func parsePrimary(s *tokenStream) (node, error) {
	tok, ok := s.next()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", errMalformed)
	}

	switch tok.kind {
	case tokenNumber:
		return numberNode(tok.num), nil
	case tokenLParen:
		inner, err := parseExpr(s)
		if err != nil {
			return nil, err
		}
		if !s.match(tokenRParen) {
			return nil, fmt.Errorf("%w: missing closing ')'", errMalformed)
		}
		return inner, nil
	case tokenName:
		if value, ok := constants[tok.raw]; ok {
			return numberNode(value), nil
		}
		return parseCall(s, tok.raw)
	default:
		return nil, fmt.Errorf("%w: unexpected token %q", errMalformed, tok.raw)
	}
}

func parseCall(s *tokenStream, name string) (node, error) {
	fn := functions[name]
	if !s.match(tokenLParen) {
		return nil, fmt.Errorf("%w: %s must be called", errMalformed, name)
	}

	var args []node
	if !s.match(tokenRParen) {
		for {
			arg, err := parseExpr(s)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if s.match(tokenComma) {
				continue
			}
			if !s.match(tokenRParen) {
				return nil, fmt.Errorf("%w: missing closing ')' for %s", errMalformed, name)
			}
			break
		}
	}

	if fn.arity >= 0 && len(args) != fn.arity {
		return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", errMalformed, name, fn.arity, len(args))
	}
	if fn.arity < 0 && len(args) == 0 {
		return nil, fmt.Errorf("%w: %s expects at least one argument", errMalformed, name)
	}
	return callNode{fn: fn, args: args}, nil
}

func (s *tokenStream) next() (token, bool) {
	if s.pos >= len(s.tokens) {
		return token{}, false
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, true
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) matchAny(kinds ...tokenKind) (tokenKind, bool) {
	if s.pos >= len(s.tokens) {
		return 0, false
	}
	current := s.tokens[s.pos].kind
	for _, kind := range kinds {
		if current == kind {
			s.pos++
			return kind, true
		}
	}
	return 0, false
}

// Compute evaluates a purely numeric expression (no field references).
func Compute(expression string) (float64, error) {
	tokens, err := tokenize(strings.TrimSpace(expression))
	if err != nil {
		return 0, err
	}
	tree, err := parse(tokens)
	if err != nil {
		return 0, err
	}
	return tree.eval(), nil
}
