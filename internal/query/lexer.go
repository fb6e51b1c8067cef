package query

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType identifies a lexer token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	TokenIdent  // field and function names
	TokenString // "quoted" or 'quoted'
	TokenNumber // integers and decimals
	TokenDate   // 2026-03-01

	TokenEq          // =
	TokenNeq         // !=
	TokenLt          // <
	TokenGt          // >
	TokenLte         // <=
	TokenGte         // >=
	TokenContains    // ~
	TokenNotContains // !~

	TokenAnd // AND, &&
	TokenOr  // OR, ||
	TokenNot // NOT, !

	TokenLParen // (
	TokenRParen // )

	TokenEmpty // EMPTY
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenIdent:       "IDENT",
	TokenString:      "STRING",
	TokenNumber:      "NUMBER",
	TokenDate:        "DATE",
	TokenEq:          "=",
	TokenNeq:         "!=",
	TokenLt:          "<",
	TokenGt:          ">",
	TokenLte:         "<=",
	TokenGte:         ">=",
	TokenContains:    "~",
	TokenNotContains: "!~",
	TokenAnd:         "AND",
	TokenOr:          "OR",
	TokenNot:         "NOT",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenEmpty:       "EMPTY",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token is one lexed token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (t Token) String() string {
	if t.Value != "" {
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
	return t.Type.String()
}

// Lexer tokenizes filter strings.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over the input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize returns all tokens, ending with EOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok := l.next()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
		if tok.Type == TokenError {
			return tokens, fmt.Errorf("filter syntax error at position %d: %s", tok.Pos, tok.Value)
		}
	}
}

func (l *Lexer) next() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	// Shells escape ! to dodge history expansion; strip the backslash.
	if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) && strings.ContainsRune("!<>=~", rune(l.input[l.pos+1])) {
		l.pos++
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Pos: start}
	case '=':
		l.pos++
		return Token{Type: TokenEq, Pos: start}
	case '~':
		l.pos++
		return Token{Type: TokenContains, Pos: start}
	case '<':
		l.pos++
		if l.peek() == '=' {
			l.pos++
			return Token{Type: TokenLte, Pos: start}
		}
		return Token{Type: TokenLt, Pos: start}
	case '>':
		l.pos++
		if l.peek() == '=' {
			l.pos++
			return Token{Type: TokenGte, Pos: start}
		}
		return Token{Type: TokenGt, Pos: start}
	case '!':
		l.pos++
		switch l.peek() {
		case '=':
			l.pos++
			return Token{Type: TokenNeq, Pos: start}
		case '~':
			l.pos++
			return Token{Type: TokenNotContains, Pos: start}
		}
		return Token{Type: TokenNot, Pos: start}
	case '&':
		if l.peekAt(1) == '&' {
			l.pos += 2
			return Token{Type: TokenAnd, Pos: start}
		}
		return Token{Type: TokenError, Value: "unexpected '&'", Pos: start}
	case '|':
		if l.peekAt(1) == '|' {
			l.pos += 2
			return Token{Type: TokenOr, Pos: start}
		}
		return Token{Type: TokenError, Value: "unexpected '|'", Pos: start}
	case '"', '\'':
		return l.lexString(ch)
	}

	if unicode.IsDigit(rune(ch)) {
		return l.lexNumberOrDate()
	}
	if ch == '+' || ch == '-' {
		// Relative date literal like -7d.
		return l.lexWord()
	}
	if isIdentStart(rune(ch)) {
		return l.lexWord()
	}

	return Token{Type: TokenError, Value: fmt.Sprintf("unexpected character %q", ch), Pos: start}
}

func (l *Lexer) lexString(quote byte) Token {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			b.WriteByte(l.input[l.pos])
			l.pos++
			continue
		}
		if ch == quote {
			l.pos++
			return Token{Type: TokenString, Value: b.String(), Pos: start}
		}
		b.WriteByte(ch)
		l.pos++
	}
	return Token{Type: TokenError, Value: "unterminated string", Pos: start}
}

// lexNumberOrDate reads digits and classifies YYYY-MM-DD as a date.
func (l *Lexer) lexNumberOrDate() Token {
	start := l.pos
	for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '-' || l.input[l.pos] == '.') {
		l.pos++
	}
	value := l.input[start:l.pos]
	if strings.Count(value, "-") == 2 {
		return Token{Type: TokenDate, Value: value, Pos: start}
	}
	return Token{Type: TokenNumber, Value: value, Pos: start}
}

func (l *Lexer) lexWord() Token {
	start := l.pos
	if l.input[l.pos] == '+' || l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
		l.pos++
	}
	value := l.input[start:l.pos]

	switch strings.ToUpper(value) {
	case "AND":
		return Token{Type: TokenAnd, Pos: start}
	case "OR":
		return Token{Type: TokenOr, Pos: start}
	case "NOT":
		return Token{Type: TokenNot, Pos: start}
	case "EMPTY", "NULL":
		return Token{Type: TokenEmpty, Pos: start}
	}
	return Token{Type: TokenIdent, Value: value, Pos: start}
}

func (l *Lexer) peek() byte {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}
