package errors

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"ecmavm/pkg/source"
)

func TestFprintErrorsMarksColumn(t *testing.T) {
	src := source.NewSourceFile("t.js", "t.js", "let a = 1;\nlet = ;\n")
	err := &SyntaxError{
		Position: Position{Line: 2, Column: 5, StartPos: 15, EndPos: 16, Source: src},
		Msg:      "unexpected token =",
	}
	var buf bytes.Buffer
	FprintErrors(&buf, []EngineError{err})
	out := buf.String()
	if !strings.Contains(out, "t.js:2:5: Syntax: unexpected token =") {
		t.Errorf("missing header in %q", out)
	}
	if !strings.Contains(out, "  let = ;\n      ^\n") {
		t.Errorf("marker misplaced in %q", out)
	}
}

func TestKindsAndUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	tests := []struct {
		err  EngineError
		kind string
	}{
		{&LexicalError{Msg: "x"}, "Lexical"},
		{&SyntaxError{Msg: "x"}, "Syntax"},
		{&RuntimeError{Name: "TypeError", Msg: "x"}, "TypeError"},
		{&RuntimeError{Msg: "5"}, "Throw"},
		{(&InternalError{Msg: "x"}).CausedBy(cause), "Internal"},
	}
	for _, tt := range tests {
		if tt.err.Kind() != tt.kind {
			t.Errorf("%T kind = %q, want %q", tt.err, tt.err.Kind(), tt.kind)
		}
	}
	if !stderrors.Is(tests[4].err, cause) {
		t.Errorf("InternalError should unwrap to its cause")
	}
	if !IsEarly(tests[0].err) || !IsEarly(tests[1].err) || IsEarly(tests[2].err) {
		t.Errorf("IsEarly misclassifies")
	}
}
