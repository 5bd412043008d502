package lexer

import (
	"math"
	"testing"
)

func TestNextToken(t *testing.T) {
	input := `let five = 5;
const ten = 10.5;

let add = function(x, y) {
  return x + y;
};
a ?? b?.c ** 2 >>>= 1;
x?.5:y
// This is a comment
/* block
comment */ let next = null;`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
		expectedLine    int
	}{
		{IDENT, "let", 1},
		{IDENT, "five", 1},
		{ASSIGN, "=", 1},
		{NUMBER, "5", 1},
		{SEMICOLON, ";", 1},
		{CONST, "const", 2},
		{IDENT, "ten", 2},
		{ASSIGN, "=", 2},
		{NUMBER, "10.5", 2},
		{SEMICOLON, ";", 2},
		{IDENT, "let", 4},
		{IDENT, "add", 4},
		{ASSIGN, "=", 4},
		{FUNCTION, "function", 4},
		{LPAREN, "(", 4},
		{IDENT, "x", 4},
		{COMMA, ",", 4},
		{IDENT, "y", 4},
		{RPAREN, ")", 4},
		{LBRACE, "{", 4},
		{RETURN, "return", 5},
		{IDENT, "x", 5},
		{PLUS, "+", 5},
		{IDENT, "y", 5},
		{SEMICOLON, ";", 5},
		{RBRACE, "}", 6},
		{SEMICOLON, ";", 6},
		{IDENT, "a", 7},
		{COALESCE, "??", 7},
		{IDENT, "b", 7},
		{OPTIONAL, "?.", 7},
		{IDENT, "c", 7},
		{EXPONENT, "**", 7},
		{NUMBER, "2", 7},
		{URSHIFT_ASSIGN, ">>>=", 7},
		{NUMBER, "1", 7},
		{SEMICOLON, ";", 7},
		{IDENT, "x", 8},
		{QUESTION, "?", 8},
		{NUMBER, ".5", 8},
		{COLON, ":", 8},
		{IDENT, "y", 8},
		{IDENT, "let", 11},
		{IDENT, "next", 11},
		{ASSIGN, "=", 11},
		{NULL, "null", 11},
		{SEMICOLON, ";", 11},
		{EOF, "", 11},
	}

	l := NewLexerFromString(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q, err %q)",
				i, tt.expectedType, tok.Type, tok.Literal, tok.Err)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
		if tok.Line != tt.expectedLine {
			t.Fatalf("tests[%d] - line wrong for %q. expected=%d, got=%d", i, tok.Literal, tt.expectedLine, tok.Line)
		}
	}
}

func TestNewlineBefore(t *testing.T) {
	l := NewLexerFromString("a\nb /* x\n */ c /* */ d")
	want := []bool{false, true, true, false}
	for i, w := range want {
		tok := l.NextToken()
		if tok.NewlineBefore != w {
			t.Errorf("token %d (%q) NewlineBefore = %v, want %v", i, tok.Literal, tok.NewlineBefore, w)
		}
	}
}

func TestNumericLiterals(t *testing.T) {
	tests := []struct {
		input  string
		typ    TokenType
		value  float64
		legacy bool
	}{
		{"0", NUMBER, 0, false},
		{"1_000_000", NUMBER, 1000000, false},
		{"0x1F", NUMBER, 31, false},
		{"0o17", NUMBER, 15, false},
		{"0b101", NUMBER, 5, false},
		{"017", NUMBER, 15, true},
		{"089", NUMBER, 89, true},
		{"1e3", NUMBER, 1000, false},
		{"2.5E-1", NUMBER, 0.25, false},
		{".5", NUMBER, 0.5, false},
		{"5.", NUMBER, 5, false},
		{"1e400", NUMBER, math.Inf(1), false},
		{"123n", BIGINT, 0, false},
		{"0xffn", BIGINT, 0, false},
	}
	for _, tt := range tests {
		tok := NewLexerFromString(tt.input).NextToken()
		if tok.Type != tt.typ {
			t.Errorf("%q: type %s, want %s (%s)", tt.input, tok.Type, tt.typ, tok.Err)
			continue
		}
		if tok.LegacyOctal != tt.legacy {
			t.Errorf("%q: LegacyOctal = %v", tt.input, tok.LegacyOctal)
		}
		if tt.typ == NUMBER {
			if got := NumberValue(tok.Value); got != tt.value {
				t.Errorf("%q: value %v, want %v", tt.input, got, tt.value)
			}
		}
	}
	if got := BigIntValue("0xffn"[:4]).Int64(); got != 255 {
		t.Errorf("BigIntValue(0xff) = %d", got)
	}
}

func TestLexicalErrors(t *testing.T) {
	tests := []string{
		`"unterminated`,
		"'line\nbreak'",
		"`no end",
		`"\x4"`,
		`"\u{110000}"`,
		"1_",
		"1__0",
		"0x",
		"3in",
		"1.5n",
		"/* open",
		"@",
	}
	for _, input := range tests {
		l := NewLexerFromString(input)
		found := false
		for i := 0; i < 10; i++ {
			tok := l.NextToken()
			if tok.Type == ILLEGAL {
				found = true
				if tok.Err == "" {
					t.Errorf("%q: ILLEGAL without diagnostic", input)
				}
				break
			}
			if tok.Type == EOF {
				break
			}
		}
		if !found {
			t.Errorf("%q: expected a lexical error", input)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input  string
		value  string
		legacy bool
	}{
		{`"a\nb"`, "a\nb", false},
		{`'\x41B\u{43}'`, "ABC", false},
		{`"😀"`, "😀", false},
		{`"\101"`, "A", true},
		{`"\0"`, "\x00", false},
		{`"a\
b"`, "ab", false},
		{`"\q"`, "q", false},
	}
	for _, tt := range tests {
		tok := NewLexerFromString(tt.input).NextToken()
		if tok.Type != STRING {
			t.Errorf("%s: type %s (%s)", tt.input, tok.Type, tok.Err)
			continue
		}
		if tok.Value != tt.value {
			t.Errorf("%s: value %q, want %q", tt.input, tok.Value, tt.value)
		}
		if tok.LegacyOctal != tt.legacy {
			t.Errorf("%s: LegacyOctal = %v", tt.input, tok.LegacyOctal)
		}
	}
}

func TestTemplateAndRegexRescan(t *testing.T) {
	l := NewLexerFromString("`a${x}b\\n${y}c`")
	head := l.NextToken()
	if head.Type != TEMPLATE_HEAD || head.Value != "a" {
		t.Fatalf("head = %s %q", head.Type, head.Value)
	}
	if tok := l.NextToken(); tok.Value != "x" {
		t.Fatalf("expected x, got %q", tok.Literal)
	}
	rbrace := l.NextToken()
	mid := l.ReadTemplateContinuation(rbrace)
	if mid.Type != TEMPLATE_MIDDLE || mid.Value != "b\n" || mid.Raw != `b\n` {
		t.Fatalf("middle = %s %q raw %q", mid.Type, mid.Value, mid.Raw)
	}
	l.NextToken() // y
	tail := l.ReadTemplateContinuation(l.NextToken())
	if tail.Type != TEMPLATE_TAIL || tail.Value != "c" {
		t.Fatalf("tail = %s %q", tail.Type, tail.Value)
	}

	l = NewLexerFromString("x = /[/]a\\/b/gi.test(s)")
	l.NextToken()
	l.NextToken()
	slash := l.NextToken()
	if slash.Type != SLASH {
		t.Fatalf("expected slash, got %s", slash.Type)
	}
	re := l.ReadRegex(slash)
	if re.Type != REGEX || re.Value != `[/]a\/b` || re.Raw != "gi" {
		t.Fatalf("regex = %s %q flags %q (%s)", re.Type, re.Value, re.Raw, re.Err)
	}
	if tok := l.NextToken(); tok.Type != DOT {
		t.Fatalf("expected . after regex, got %s", tok.Type)
	}
}

func TestIdentifiers(t *testing.T) {
	l := NewLexerFromString(`\u0061bc café #priv \u{62}reak`)
	tok := l.NextToken()
	if tok.Type != IDENT || tok.Value != "abc" || !tok.Escaped {
		t.Errorf("escaped ident = %+v", tok)
	}
	if tok = l.NextToken(); tok.Value != "café" {
		t.Errorf("unicode ident = %q", tok.Value)
	}
	if tok = l.NextToken(); tok.Type != PRIVATE_IDENT || tok.Value != "priv" {
		t.Errorf("private ident = %s %q", tok.Type, tok.Value)
	}
	// escaped keywords stay identifiers; the parser rejects them
	if tok = l.NextToken(); tok.Type != IDENT || tok.Value != "break" || !tok.Escaped {
		t.Errorf("escaped keyword = %s %q", tok.Type, tok.Value)
	}
}
