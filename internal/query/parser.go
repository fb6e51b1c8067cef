package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ferris/airbase/internal/dateparse"
)

// Parse compiles a filter string. An empty or whitespace-only input yields a
// query that matches everything.
func Parse(input string) (*Query, error) {
	q := &Query{Raw: input}
	if strings.TrimSpace(input) == "" {
		return q, nil
	}

	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenEOF {
		return nil, fmt.Errorf("unexpected %s after filter", p.current())
	}
	q.Root = root
	return q, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// parseOr handles the lowest-precedence operator. Adjacent terms with no
// operator between them are joined with an implicit AND.
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current().Type {
		case TokenAnd:
			p.advance()
		case TokenIdent, TokenString, TokenNot, TokenLParen:
			// implicit AND
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if p.current().Type == TokenNot {
		p.advance()
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.current()
	switch tok.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TokenRParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.current().Pos)
		}
		p.advance()
		return expr, nil

	case TokenString:
		p.advance()
		return &TextSearch{Text: tok.Value}, nil

	case TokenIdent:
		p.advance()
		// has(field)
		if strings.EqualFold(tok.Value, "has") && p.current().Type == TokenLParen {
			return p.parseHas()
		}
		if !isComparison(p.current().Type) {
			// Bare word: text search.
			return &TextSearch{Text: tok.Value}, nil
		}
		op := p.advance()
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &FieldExpr{Field: strings.ToLower(tok.Value), Operator: operatorOf(op.Type), Value: value}, nil

	default:
		return nil, fmt.Errorf("unexpected %s at position %d", tok, tok.Pos)
	}
}

func (p *parser) parseHas() (Node, error) {
	p.advance() // (
	field := p.current()
	if field.Type != TokenIdent {
		return nil, fmt.Errorf("has() requires a field name, got %s", field)
	}
	p.advance()
	if p.current().Type != TokenRParen {
		return nil, fmt.Errorf("has(%s missing closing parenthesis", field.Value)
	}
	p.advance()
	return &HasExpr{Field: strings.ToLower(field.Value)}, nil
}

func (p *parser) parseValue() (any, error) {
	tok := p.advance()
	switch tok.Type {
	case TokenString:
		return tok.Value, nil
	case TokenNumber:
		n, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", tok.Value, err)
		}
		return n, nil
	case TokenDate:
		return &DateValue{Raw: tok.Value}, nil
	case TokenEmpty:
		return Empty{}, nil
	case TokenIdent:
		// Unquoted words cover booleans, relative dates, and plain values.
		switch strings.ToLower(tok.Value) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		if dateparse.IsDateLike(tok.Value) {
			return &DateValue{Raw: tok.Value}, nil
		}
		return tok.Value, nil
	default:
		return nil, fmt.Errorf("expected a value, got %s at position %d", tok, tok.Pos)
	}
}

func isComparison(t TokenType) bool {
	switch t {
	case TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte, TokenContains, TokenNotContains:
		return true
	}
	return false
}

func operatorOf(t TokenType) string {
	switch t {
	case TokenEq:
		return OpEq
	case TokenNeq:
		return OpNeq
	case TokenLt:
		return OpLt
	case TokenGt:
		return OpGt
	case TokenLte:
		return OpLte
	case TokenGte:
		return OpGte
	case TokenContains:
		return OpContains
	case TokenNotContains:
		return OpNotContains
	}
	return "?"
}
