package lexer

// TokenType represents the type of a token.
type TokenType string

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Literal  string // The raw source text of the token
	Value    string // Cooked value: identifier name, string contents, template cooked text, regex body
	Raw      string // Template raw text; regex flags
	Line     int    // 1-based line number where the token starts
	Column   int    // 1-based column number (rune index) where the token starts
	StartPos int    // 0-based byte offset where the token starts
	EndPos   int    // 0-based byte offset after the token ends

	NewlineBefore bool   // A line terminator precedes the token (ASI)
	Escaped       bool   // Identifier or string contained an escape sequence
	LegacyOctal   bool   // Legacy octal literal or escape (strict mode early error)
	InvalidCooked bool   // Template contains an escape that is only legal in tagged templates
	Err           string // Diagnostic for ILLEGAL tokens
}

// --- Token Types ---
const (
	// Special
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	// Identifiers + Literals
	IDENT           TokenType = "IDENT"
	PRIVATE_IDENT   TokenType = "#IDENT"
	NUMBER          TokenType = "NUMBER"
	BIGINT          TokenType = "BIGINT"
	STRING          TokenType = "STRING"
	TEMPLATE        TokenType = "TEMPLATE" // `abc` with no substitutions
	TEMPLATE_HEAD   TokenType = "TEMPLATE_HEAD"
	TEMPLATE_MIDDLE TokenType = "TEMPLATE_MIDDLE"
	TEMPLATE_TAIL   TokenType = "TEMPLATE_TAIL"
	REGEX           TokenType = "REGEX"

	// Operators
	ASSIGN      TokenType = "="
	PLUS        TokenType = "+"
	MINUS       TokenType = "-"
	BANG        TokenType = "!"
	ASTERISK    TokenType = "*"
	SLASH       TokenType = "/"
	REMAINDER   TokenType = "%"
	EXPONENT    TokenType = "**"
	LT          TokenType = "<"
	GT          TokenType = ">"
	LE          TokenType = "<="
	GE          TokenType = ">="
	EQ          TokenType = "=="
	NOT_EQ      TokenType = "!="
	STRICT_EQ   TokenType = "==="
	STRICT_NE   TokenType = "!=="
	INC         TokenType = "++"
	DEC         TokenType = "--"
	BITWISE_AND TokenType = "&"
	PIPE        TokenType = "|"
	BITWISE_XOR TokenType = "^"
	BITWISE_NOT TokenType = "~"
	LEFT_SHIFT  TokenType = "<<"
	RIGHT_SHIFT TokenType = ">>"
	URSHIFT     TokenType = ">>>"
	LOGICAL_AND TokenType = "&&"
	LOGICAL_OR  TokenType = "||"
	COALESCE    TokenType = "??"
	QUESTION    TokenType = "?"
	OPTIONAL    TokenType = "?."
	ARROW       TokenType = "=>"
	DOT         TokenType = "."
	SPREAD      TokenType = "..."

	// Compound assignment
	PLUS_ASSIGN        TokenType = "+="
	MINUS_ASSIGN       TokenType = "-="
	ASTERISK_ASSIGN    TokenType = "*="
	SLASH_ASSIGN       TokenType = "/="
	REMAINDER_ASSIGN   TokenType = "%="
	EXPONENT_ASSIGN    TokenType = "**="
	LEFT_SHIFT_ASSIGN  TokenType = "<<="
	RIGHT_SHIFT_ASSIGN TokenType = ">>="
	URSHIFT_ASSIGN     TokenType = ">>>="
	AND_ASSIGN         TokenType = "&="
	OR_ASSIGN          TokenType = "|="
	XOR_ASSIGN         TokenType = "^="
	LOGICAL_AND_ASSIGN TokenType = "&&="
	LOGICAL_OR_ASSIGN  TokenType = "||="
	COALESCE_ASSIGN    TokenType = "??="

	// Delimiters
	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"

	// Reserved words
	BREAK      TokenType = "BREAK"
	CASE       TokenType = "CASE"
	CATCH      TokenType = "CATCH"
	CLASS      TokenType = "CLASS"
	CONST      TokenType = "CONST"
	CONTINUE   TokenType = "CONTINUE"
	DEBUGGER   TokenType = "DEBUGGER"
	DEFAULT    TokenType = "DEFAULT"
	DELETE     TokenType = "DELETE"
	DO         TokenType = "DO"
	ELSE       TokenType = "ELSE"
	ENUM       TokenType = "ENUM"
	EXPORT     TokenType = "EXPORT"
	EXTENDS    TokenType = "EXTENDS"
	FALSE      TokenType = "FALSE"
	FINALLY    TokenType = "FINALLY"
	FOR        TokenType = "FOR"
	FUNCTION   TokenType = "FUNCTION"
	IF         TokenType = "IF"
	IMPORT     TokenType = "IMPORT"
	IN         TokenType = "IN"
	INSTANCEOF TokenType = "INSTANCEOF"
	NEW        TokenType = "NEW"
	NULL       TokenType = "NULL"
	RETURN     TokenType = "RETURN"
	SUPER      TokenType = "SUPER"
	SWITCH     TokenType = "SWITCH"
	THIS       TokenType = "THIS"
	THROW      TokenType = "THROW"
	TRUE       TokenType = "TRUE"
	TRY        TokenType = "TRY"
	TYPEOF     TokenType = "TYPEOF"
	VAR        TokenType = "VAR"
	VOID       TokenType = "VOID"
	WHILE      TokenType = "WHILE"
	WITH       TokenType = "WITH"
)

// keywords are the reserved words that can never be identifiers. Contextual
// words (let, static, yield, await, async, of, get, set, ...) lex as IDENT
// and are interpreted by the parser.
var keywords = map[string]TokenType{
	"break":      BREAK,
	"case":       CASE,
	"catch":      CATCH,
	"class":      CLASS,
	"const":      CONST,
	"continue":   CONTINUE,
	"debugger":   DEBUGGER,
	"default":    DEFAULT,
	"delete":     DELETE,
	"do":         DO,
	"else":       ELSE,
	"enum":       ENUM,
	"export":     EXPORT,
	"extends":    EXTENDS,
	"false":      FALSE,
	"finally":    FINALLY,
	"for":        FOR,
	"function":   FUNCTION,
	"if":         IF,
	"import":     IMPORT,
	"in":         IN,
	"instanceof": INSTANCEOF,
	"new":        NEW,
	"null":       NULL,
	"return":     RETURN,
	"super":      SUPER,
	"switch":     SWITCH,
	"this":       THIS,
	"throw":      THROW,
	"true":       TRUE,
	"try":        TRY,
	"typeof":     TYPEOF,
	"var":        VAR,
	"void":       VOID,
	"while":      WHILE,
	"with":       WITH,
}

// LookupIdent returns the keyword type for ident, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsReservedWord reports whether name is a reserved word in all code.
func IsReservedWord(name string) bool {
	_, ok := keywords[name]
	return ok
}

// IsStrictReservedWord reports whether name is reserved only in strict code.
func IsStrictReservedWord(name string) bool {
	switch name {
	case "implements", "interface", "let", "package", "private", "protected", "public", "static", "yield":
		return true
	}
	return false
}

// IsKeyword reports whether t is a reserved-word token. Reserved words are
// valid property names.
func (t TokenType) IsKeyword() bool {
	return keywordTypes[t]
}

var keywordTypes = func() map[TokenType]bool {
	m := make(map[TokenType]bool, len(keywords))
	for _, t := range keywords {
		m[t] = true
	}
	return m
}()
