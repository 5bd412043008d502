package lexer

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"ecmavm/pkg/source"
)

// --- Debug Flag ---
const debugLexer = false

func debugPrint(format string, args ...interface{}) {
	if debugLexer {
		fmt.Printf("[Lexer Debug] "+format+"\n", args...)
	}
}

// Lexer produces tokens on demand. It is restartable by position: the
// parser snapshots State() and rewinds with Reset() to rescan regular
// expressions, template continuations and arrow-function heads.
type Lexer struct {
	src    *source.SourceFile
	input  string
	pos    int // byte offset of the current character
	line   int
	column int

	newline bool // a line terminator was skipped before the current token
}

// State is a restorable lexer position.
type State struct {
	Pos    int
	Line   int
	Column int
}

// NewLexer creates a lexer over a source file.
func NewLexer(src *source.SourceFile) *Lexer {
	l := &Lexer{src: src, input: src.Content, line: 1, column: 1}
	// A hashbang comment is only permitted at the very start of a script.
	if strings.HasPrefix(l.input, "#!") {
		for l.pos < len(l.input) && !l.atLineTerminator() {
			l.advance()
		}
	}
	return l
}

// NewLexerFromString is a convenience for tests and dynamic code.
func NewLexerFromString(input string) *Lexer {
	return NewLexer(source.NewEvalSource(input))
}

// Source returns the file being lexed.
func (l *Lexer) Source() *source.SourceFile { return l.src }

// State returns the current position.
func (l *Lexer) State() State {
	return State{Pos: l.pos, Line: l.line, Column: l.column}
}

// Reset rewinds (or fast-forwards) the lexer to st.
func (l *Lexer) Reset(st State) {
	l.pos, l.line, l.column = st.Pos, st.Line, st.Column
}

// StateAt returns the state at the start of tok.
func StateAt(tok Token) State {
	return State{Pos: tok.StartPos, Line: tok.Line, Column: tok.Column}
}

// --- character helpers ---

func (l *Lexer) eof() bool { return l.pos >= len(l.input) }

// cur returns the code point at the current position, or -1 at EOF.
func (l *Lexer) cur() rune {
	if l.pos >= len(l.input) {
		return -1
	}
	r, _ := source.DecodeRune(l.input, l.pos)
	return r
}

// peekByte returns the byte n positions ahead, or 0.
func (l *Lexer) peekByte(n int) byte {
	if l.pos+n < len(l.input) {
		return l.input[l.pos+n]
	}
	return 0
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := source.DecodeRune(l.input, l.pos)
	l.pos += size
	switch r {
	case '\n', 0x2028, 0x2029:
		l.line++
		l.column = 1
	case '\r':
		if l.pos < len(l.input) && l.input[l.pos] == '\n' {
			l.column++ // the \n that follows bumps the line
		} else {
			l.line++
			l.column = 1
		}
	default:
		l.column++
	}
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == 0x2028 || r == 0x2029
}

func (l *Lexer) atLineTerminator() bool {
	return isLineTerminator(l.cur())
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\v', '\f', 0xA0, 0xFEFF:
		return true
	}
	return r > 0x7F && unicode.Is(unicode.Zs, r)
}

// IsIDStart reports whether r may begin an identifier.
func IsIDStart(r rune) bool {
	if r < utf8.RuneSelf {
		return r == '$' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}
	return unicode.IsLetter(r) || unicode.Is(unicode.Nl, r) || unicode.Is(unicode.Other_ID_Start, r)
}

// IsIDPart reports whether r may continue an identifier.
func IsIDPart(r rune) bool {
	if r < utf8.RuneSelf {
		return IsIDStart(r) || (r >= '0' && r <= '9')
	}
	return IsIDStart(r) || r == 0x200C || r == 0x200D ||
		unicode.In(r, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc, unicode.Other_ID_Continue)
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch rune) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isDigitForBase(ch rune, base int) bool {
	switch base {
	case 2:
		return ch == '0' || ch == '1'
	case 8:
		return ch >= '0' && ch <= '7'
	case 16:
		return isHexDigit(ch)
	}
	return isDigit(ch)
}

func hexVal(ch rune) rune {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0'
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10
	}
	return -1
}

// --- trivia ---

// skipTrivia skips whitespace and comments, recording line terminators.
// It returns a diagnostic for an unterminated block comment.
func (l *Lexer) skipTrivia() string {
	for !l.eof() {
		r := l.cur()
		switch {
		case isLineTerminator(r):
			l.newline = true
			l.advance()
		case isWhitespace(r):
			l.advance()
		case r == '/' && l.peekByte(1) == '/':
			l.skipLineComment()
		case r == '/' && l.peekByte(1) == '*':
			if !l.skipBlockComment() {
				return "unterminated comment"
			}
		case r == '<' && strings.HasPrefix(l.input[l.pos:], "<!--"):
			l.skipLineComment()
		case r == '-' && (l.newline || l.pos == 0) && strings.HasPrefix(l.input[l.pos:], "-->"):
			l.skipLineComment()
		default:
			return ""
		}
	}
	return ""
}

func (l *Lexer) skipLineComment() {
	for !l.eof() && !l.atLineTerminator() {
		l.advance()
	}
}

func (l *Lexer) skipBlockComment() bool {
	l.advance()
	l.advance()
	for !l.eof() {
		if l.input[l.pos] == '*' && l.peekByte(1) == '/' {
			l.advance()
			l.advance()
			return true
		}
		if l.atLineTerminator() {
			l.newline = true
		}
		l.advance()
	}
	return false
}

// --- tokens ---

var punctuators = map[string]TokenType{
	">>>=": URSHIFT_ASSIGN,
	"...":  SPREAD, "===": STRICT_EQ, "!==": STRICT_NE, "**=": EXPONENT_ASSIGN,
	"<<=": LEFT_SHIFT_ASSIGN, ">>=": RIGHT_SHIFT_ASSIGN, ">>>": URSHIFT,
	"&&=": LOGICAL_AND_ASSIGN, "||=": LOGICAL_OR_ASSIGN, "??=": COALESCE_ASSIGN,
	"=>": ARROW, "==": EQ, "!=": NOT_EQ, "<=": LE, ">=": GE, "&&": LOGICAL_AND,
	"||": LOGICAL_OR, "??": COALESCE, "?.": OPTIONAL, "++": INC, "--": DEC,
	"+=": PLUS_ASSIGN, "-=": MINUS_ASSIGN, "*=": ASTERISK_ASSIGN, "/=": SLASH_ASSIGN,
	"%=": REMAINDER_ASSIGN, "&=": AND_ASSIGN, "|=": OR_ASSIGN, "^=": XOR_ASSIGN,
	"<<": LEFT_SHIFT, ">>": RIGHT_SHIFT, "**": EXPONENT,
	"=": ASSIGN, "+": PLUS, "-": MINUS, "!": BANG, "*": ASTERISK, "/": SLASH,
	"%": REMAINDER, "<": LT, ">": GT, "&": BITWISE_AND, "|": PIPE, "^": BITWISE_XOR,
	"~": BITWISE_NOT, "?": QUESTION, ".": DOT, ",": COMMA, ";": SEMICOLON,
	":": COLON, "(": LPAREN, ")": RPAREN, "{": LBRACE, "}": RBRACE,
	"[": LBRACKET, "]": RBRACKET,
}

// NextToken scans the next token.
func (l *Lexer) NextToken() Token {
	l.newline = false
	commentErr := l.skipTrivia()
	tok := Token{Line: l.line, Column: l.column, StartPos: l.pos, NewlineBefore: l.newline}
	if commentErr != "" {
		return l.illegal(tok, commentErr)
	}
	if l.eof() {
		tok.Type = EOF
		tok.EndPos = l.pos
		return tok
	}

	r := l.cur()
	switch {
	case IsIDStart(r) || r == '\\':
		tok = l.readIdentifier(tok)
	case r == '#':
		l.advance()
		if c := l.cur(); !IsIDStart(c) && c != '\\' {
			return l.illegal(tok, "invalid character '#'")
		}
		tok = l.readIdentifier(tok)
		if tok.Type != ILLEGAL {
			tok.Type = PRIVATE_IDENT
		}
	case isDigit(r) || (r == '.' && isDigit(rune(l.peekByte(1)))):
		tok = l.readNumber(tok)
	case r == '"' || r == '\'':
		tok = l.readString(tok, byte(r))
	case r == '`':
		l.advance()
		tok = l.readTemplate(tok, TEMPLATE, TEMPLATE_HEAD)
	default:
		matched := false
		for n := 4; n >= 1; n-- {
			if l.pos+n > len(l.input) {
				continue
			}
			typ, ok := punctuators[l.input[l.pos:l.pos+n]]
			if !ok {
				continue
			}
			// `a?.5:b` is a conditional, not optional chaining
			if typ == OPTIONAL && isDigit(rune(l.peekByte(2))) {
				continue
			}
			for i := 0; i < n; i++ {
				l.advance()
			}
			tok.Type = typ
			matched = true
			break
		}
		if !matched {
			l.advance()
			return l.illegal(tok, fmt.Sprintf("unexpected character %q", r))
		}
	}
	if tok.Type == ILLEGAL {
		return tok
	}
	tok.EndPos = l.pos
	tok.Literal = l.input[tok.StartPos:tok.EndPos]
	debugPrint("token %s %q at %d:%d", tok.Type, tok.Literal, tok.Line, tok.Column)
	return tok
}

func (l *Lexer) illegal(tok Token, msg string) Token {
	tok.Type = ILLEGAL
	tok.Err = msg
	if l.pos <= tok.StartPos && !l.eof() {
		l.advance()
	}
	tok.EndPos = l.pos
	tok.Literal = l.input[tok.StartPos:tok.EndPos]
	return tok
}

// readIdentifier scans an IdentifierName, decoding \u escapes.
func (l *Lexer) readIdentifier(tok Token) Token {
	var b strings.Builder
	first := true
	for !l.eof() {
		r := l.cur()
		if r == '\\' {
			if l.peekByte(1) != 'u' {
				return l.illegal(tok, "invalid escape in identifier")
			}
			l.advance()
			l.advance()
			cp, ok := l.readUnicodeEscapeBody()
			if !ok {
				return l.illegal(tok, "invalid Unicode escape sequence")
			}
			if (first && !IsIDStart(cp)) || (!first && !IsIDPart(cp)) {
				return l.illegal(tok, "invalid identifier escape")
			}
			b.WriteRune(cp)
			tok.Escaped = true
		} else if (first && IsIDStart(r)) || (!first && IsIDPart(r)) {
			b.WriteRune(r)
			l.advance()
		} else {
			break
		}
		first = false
	}
	tok.Value = b.String()
	if tok.Escaped {
		tok.Type = IDENT
	} else {
		tok.Type = LookupIdent(tok.Value)
	}
	return tok
}

// readUnicodeEscapeBody reads XXXX or {X...} after "\u".
func (l *Lexer) readUnicodeEscapeBody() (rune, bool) {
	if l.cur() == '{' {
		l.advance()
		var cp rune
		digits := 0
		for !l.eof() && l.cur() != '}' {
			v := hexVal(l.cur())
			if v < 0 {
				return 0, false
			}
			cp = cp*16 + v
			if cp > 0x10FFFF {
				return 0, false
			}
			digits++
			l.advance()
		}
		if l.eof() || digits == 0 {
			return 0, false
		}
		l.advance()
		return cp, true
	}
	var cp rune
	for i := 0; i < 4; i++ {
		v := hexVal(l.cur())
		if v < 0 {
			return 0, false
		}
		cp = cp*16 + v
		l.advance()
	}
	return cp, true
}

// readNumber scans numeric and BigInt literals.
func (l *Lexer) readNumber(tok Token) Token {
	tok.Type = NUMBER
	if l.cur() == '0' {
		switch l.peekByte(1) {
		case 'x', 'X':
			return l.readRadixNumber(tok, 16)
		case 'o', 'O':
			return l.readRadixNumber(tok, 8)
		case 'b', 'B':
			return l.readRadixNumber(tok, 2)
		}
		if isDigit(rune(l.peekByte(1))) || l.peekByte(1) == '_' {
			return l.readLegacyOctal(tok)
		}
	}
	if ok, msg := l.readDigits(10); !ok {
		return l.illegal(tok, msg)
	}
	isInt := true
	if l.cur() == '.' {
		isInt = false
		l.advance()
		if l.cur() == '_' {
			return l.illegal(tok, "numeric separator not allowed here")
		}
		if ok, msg := l.readDigits(10); !ok {
			return l.illegal(tok, msg)
		}
	}
	if c := l.cur(); c == 'e' || c == 'E' {
		isInt = false
		l.advance()
		if c := l.cur(); c == '+' || c == '-' {
			l.advance()
		}
		if !isDigit(l.cur()) {
			return l.illegal(tok, "missing exponent in numeric literal")
		}
		if ok, msg := l.readDigits(10); !ok {
			return l.illegal(tok, msg)
		}
	}
	if l.cur() == 'n' {
		if !isInt {
			return l.illegal(tok, "invalid BigInt literal")
		}
		tok.Value = strings.ReplaceAll(l.input[tok.StartPos:l.pos], "_", "")
		l.advance()
		tok.Type = BIGINT
	} else {
		tok.Value = strings.ReplaceAll(l.input[tok.StartPos:l.pos], "_", "")
	}
	return l.finishNumber(tok)
}

// readDigits consumes digits of base with numeric separators.
func (l *Lexer) readDigits(base int) (bool, string) {
	prevDigit := false
	for !l.eof() {
		c := l.cur()
		if c == '_' {
			if !prevDigit || !isDigitForBase(rune(l.peekByte(1)), base) {
				return false, "numeric separator not allowed here"
			}
			prevDigit = false
			l.advance()
			continue
		}
		if !isDigitForBase(c, base) {
			break
		}
		prevDigit = true
		l.advance()
	}
	return true, ""
}

func (l *Lexer) readRadixNumber(tok Token, base int) Token {
	l.advance()
	l.advance()
	if !isDigitForBase(l.cur(), base) {
		return l.illegal(tok, "missing digits after radix prefix")
	}
	if ok, msg := l.readDigits(base); !ok {
		return l.illegal(tok, msg)
	}
	tok.Value = strings.ReplaceAll(l.input[tok.StartPos:l.pos], "_", "")
	if l.cur() == 'n' {
		l.advance()
		tok.Type = BIGINT
	}
	return l.finishNumber(tok)
}

// readLegacyOctal handles 0-prefixed decimal literals: 017 (octal) and
// 089 (non-octal decimal), both forbidden in strict code.
func (l *Lexer) readLegacyOctal(tok Token) Token {
	tok.LegacyOctal = true
	octal := true
	for isDigit(l.cur()) {
		if l.cur() >= '8' {
			octal = false
		}
		l.advance()
	}
	if l.cur() == '_' {
		return l.illegal(tok, "numeric separator not allowed here")
	}
	if !octal {
		if l.cur() == '.' {
			l.advance()
			if ok, msg := l.readDigits(10); !ok {
				return l.illegal(tok, msg)
			}
		}
		if c := l.cur(); c == 'e' || c == 'E' {
			l.advance()
			if c := l.cur(); c == '+' || c == '-' {
				l.advance()
			}
			if !isDigit(l.cur()) {
				return l.illegal(tok, "missing exponent in numeric literal")
			}
			l.readDigits(10)
		}
	}
	if l.cur() == 'n' {
		return l.illegal(tok, "invalid BigInt literal")
	}
	tok.Value = l.input[tok.StartPos:l.pos]
	if octal {
		tok.Value = "0o" + strings.TrimLeft(tok.Value, "0")
		if tok.Value == "0o" {
			tok.Value = "0"
		}
	}
	return l.finishNumber(tok)
}

func (l *Lexer) finishNumber(tok Token) Token {
	if c := l.cur(); c >= 0 && (IsIDStart(c) || isDigit(c) || c == '\\') {
		return l.illegal(tok, "identifier starts immediately after numeric literal")
	}
	return tok
}

// NumberValue converts the Value of a NUMBER token to a float64.
func NumberValue(lit string) float64 {
	if len(lit) > 2 && lit[0] == '0' {
		base := 0
		switch lit[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			if v, err := strconv.ParseUint(lit[2:], base, 64); err == nil && v < 1<<53 {
				return float64(v)
			}
			i, ok := new(big.Int).SetString(lit[2:], base)
			if !ok {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(i).Float64()
			return f
		}
	}
	lit = strings.TrimSuffix(lit, ".")
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// BigIntValue converts the Value of a BIGINT token.
func BigIntValue(lit string) *big.Int {
	base := 10
	if len(lit) > 2 && lit[0] == '0' {
		switch lit[1] {
		case 'x', 'X':
			base, lit = 16, lit[2:]
		case 'o', 'O':
			base, lit = 8, lit[2:]
		case 'b', 'B':
			base, lit = 2, lit[2:]
		}
	}
	i, ok := new(big.Int).SetString(lit, base)
	if !ok {
		return new(big.Int)
	}
	return i
}

// readString scans a single or double quoted string literal.
func (l *Lexer) readString(tok Token, quote byte) Token {
	tok.Type = STRING
	l.advance()
	var b source.UnitBuilder
	for {
		if l.eof() {
			return l.illegal(tok, "unterminated string literal")
		}
		r := l.cur()
		if r == rune(quote) {
			l.advance()
			break
		}
		if r == '\n' || r == '\r' {
			return l.illegal(tok, "unterminated string literal")
		}
		if r == '\\' {
			tok.Escaped = true
			legacy, msg := l.readEscape(&b, false)
			if msg != "" {
				return l.illegal(tok, msg)
			}
			if legacy {
				tok.LegacyOctal = true
			}
			continue
		}
		b.WriteRune(r)
		l.advance()
	}
	tok.Value = b.String()
	return tok
}

// readEscape decodes one escape sequence starting at the backslash. It
// reports whether the escape is a legacy octal or \8 \9 form.
func (l *Lexer) readEscape(b *source.UnitBuilder, template bool) (legacy bool, msg string) {
	l.advance() // backslash
	if l.eof() {
		return false, "unterminated string literal"
	}
	r := l.cur()
	switch r {
	case '\r':
		l.advance()
		if l.cur() == '\n' {
			l.advance()
		}
		return false, ""
	case '\n', 0x2028, 0x2029:
		l.advance()
		return false, ""
	case 'b':
		b.WriteUnit('\b')
	case 'f':
		b.WriteUnit('\f')
	case 'n':
		b.WriteUnit('\n')
	case 'r':
		b.WriteUnit('\r')
	case 't':
		b.WriteUnit('\t')
	case 'v':
		b.WriteUnit('\v')
	case 'x':
		l.advance()
		hi, lo := hexVal(l.cur()), hexVal(rune(l.peekByte(1)))
		if hi < 0 || lo < 0 {
			return false, "invalid hexadecimal escape sequence"
		}
		l.advance()
		l.advance()
		b.WriteUnit(uint16(hi<<4 | lo))
		return false, ""
	case 'u':
		l.advance()
		braced := l.cur() == '{'
		cp, ok := l.readUnicodeEscapeBody()
		if !ok {
			return false, "invalid Unicode escape sequence"
		}
		if braced {
			b.WriteRune(cp)
		} else {
			b.WriteUnit(uint16(cp))
		}
		return false, ""
	default:
		if r >= '0' && r <= '7' {
			if r == '0' && !isDigit(rune(l.peekByte(1))) {
				b.WriteUnit(0)
				break
			}
			if template {
				return true, "octal escape sequences are not allowed in template literals"
			}
			v := r - '0'
			l.advance()
			maxDigits := 2
			if v >= 4 {
				maxDigits = 1
			}
			for i := 0; i < maxDigits && l.cur() >= '0' && l.cur() <= '7'; i++ {
				v = v*8 + (l.cur() - '0')
				l.advance()
			}
			b.WriteUnit(uint16(v))
			return true, ""
		}
		if r == '8' || r == '9' {
			if template {
				return true, "\\8 and \\9 are not allowed in template literals"
			}
			b.WriteUnit(uint16(r))
			l.advance()
			return true, ""
		}
		b.WriteRune(r)
	}
	l.advance()
	return false, ""
}

// readTemplate scans template characters after "`" or "}" up to the
// closing backtick (endType) or a "${" (openType).
func (l *Lexer) readTemplate(tok Token, endType, openType TokenType) Token {
	var cooked source.UnitBuilder
	var raw strings.Builder
	for {
		if l.eof() {
			return l.illegal(tok, "unterminated template literal")
		}
		r := l.cur()
		if r == '`' {
			l.advance()
			tok.Type = endType
			break
		}
		if r == '$' && l.peekByte(1) == '{' {
			l.advance()
			l.advance()
			tok.Type = openType
			break
		}
		if r == '\\' {
			start := l.pos
			_, msg := l.readEscape(&cooked, true)
			if msg != "" {
				// Invalid escapes are legal in tagged templates: the cooked
				// value becomes undefined. Skip the offending character.
				tok.InvalidCooked = true
				if l.pos == start+1 && !l.eof() {
					l.advance()
				}
			}
			raw.WriteString(normalizeNewlines(l.input[start:l.pos]))
			continue
		}
		if r == '\r' {
			l.advance()
			if l.cur() == '\n' {
				l.advance()
			}
			cooked.WriteUnit('\n')
			raw.WriteByte('\n')
			continue
		}
		cooked.WriteRune(r)
		start := l.pos
		l.advance()
		raw.WriteString(l.input[start:l.pos])
	}
	tok.EndPos = l.pos
	tok.Literal = l.input[tok.StartPos:tok.EndPos]
	tok.Value = cooked.String()
	tok.Raw = raw.String()
	return tok
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// ReadTemplateContinuation rescans from the "}" that closes a template
// substitution and returns a TEMPLATE_MIDDLE or TEMPLATE_TAIL token.
func (l *Lexer) ReadTemplateContinuation(rbrace Token) Token {
	l.Reset(StateAt(rbrace))
	tok := Token{Line: l.line, Column: l.column, StartPos: l.pos, NewlineBefore: rbrace.NewlineBefore}
	l.advance() // }
	return l.readTemplate(tok, TEMPLATE_TAIL, TEMPLATE_MIDDLE)
}

// ReadRegex rescans from a "/" or "/=" token as a regular expression literal.
func (l *Lexer) ReadRegex(slash Token) Token {
	l.Reset(StateAt(slash))
	tok := Token{Type: REGEX, Line: l.line, Column: l.column, StartPos: l.pos, NewlineBefore: slash.NewlineBefore}
	l.advance() // /
	inClass := false
	bodyStart := l.pos
	for {
		if l.eof() || l.atLineTerminator() {
			return l.illegal(tok, "unterminated regular expression literal")
		}
		r := l.cur()
		if r == '\\' {
			l.advance()
			if l.eof() || l.atLineTerminator() {
				return l.illegal(tok, "unterminated regular expression literal")
			}
			l.advance()
			continue
		}
		if r == '[' {
			inClass = true
		} else if r == ']' {
			inClass = false
		} else if r == '/' && !inClass {
			break
		}
		l.advance()
	}
	tok.Value = l.input[bodyStart:l.pos]
	l.advance() // closing /
	flagsStart := l.pos
	for !l.eof() && IsIDPart(l.cur()) {
		l.advance()
	}
	if l.cur() == '\\' {
		return l.illegal(tok, "invalid regular expression flags")
	}
	tok.Raw = l.input[flagsStart:l.pos]
	tok.EndPos = l.pos
	tok.Literal = l.input[tok.StartPos:tok.EndPos]
	return tok
}
