package vm

import (
	"strings"
	"testing"
)

func TestRegExpExec(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		flags    string
		subject  string
		from     int
		start    int // -1 for no match
		end      int
	}{
		{"literal", "b+", "", "abbbc", 0, 1, 4},
		{"dot excludes newline", "a.c", "", "a\nc", 0, -1, 0},
		{"dotAll", "a.c", "s", "a\nc", 0, 0, 3},
		{"anchors", "^b$", "", "a\nb\nc", 0, -1, 0},
		{"multiline anchors", "^b$", "m", "a\nb\nc", 0, 2, 3},
		{"whitespace class", `\s+`, "", "a  b", 0, 1, 3},
		{"negated whitespace", `\S+`, "", "  xy ", 0, 2, 4},
		{"empty class", "a[]", "", "a", 0, -1, 0},
		{"any class", "a[^]b", "", "a\nb", 0, 0, 3},
		{"ignore case", "abc", "i", "xABC", 0, 1, 4},
		{"sticky miss", "b", "y", "ab", 0, -1, 0},
		{"sticky hit", "b", "y", "ab", 1, 1, 2},
		{"from index", "a", "g", "aba", 1, 2, 3},
		{"unit indices", "x", "", "\U0001F600x", 0, 2, 3},
		{"dot matches a unit", "^.", "", "\U0001F600", 0, 0, 1},
		{"dot matches a code point", "^.", "u", "\U0001F600x", 0, 0, 2},
		{"unicode from index", "x", "u", "\U0001F600x", 1, 2, 3},
	}
	vm, _ := newTestVM()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := vm.CompileRegExp(tt.pattern, tt.flags)
			if err != nil {
				t.Fatalf("CompileRegExp(%q, %q): %v", tt.pattern, tt.flags, err)
			}
			m, err := r.Exec(tt.subject, tt.from)
			if err != nil {
				t.Fatal(err)
			}
			if tt.start < 0 {
				if m != nil {
					t.Errorf("unexpected match [%d,%d)", m.Start, m.End)
				}
				return
			}
			if m == nil {
				t.Fatal("no match")
			}
			if m.Start != tt.start || m.End != tt.end {
				t.Errorf("match [%d,%d), want [%d,%d)", m.Start, m.End, tt.start, tt.end)
			}
		})
	}
}

func TestRegExpNamedGroups(t *testing.T) {
	vm, _ := newTestVM()
	r, err := vm.CompileRegExp(`(?<year>\d{4})-(\d\d)-(?<day>\d\d)`, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(r.GroupNames(), ","); got != ",year,,day" {
		t.Errorf("group names %q", got)
	}
	if !r.HasNamedGroups() {
		t.Error("HasNamedGroups = false")
	}
	m, err := r.Exec("on 2024-05-17", 0)
	if err != nil || m == nil {
		t.Fatalf("no match: %v", err)
	}
	want := [][2]int{{3, 13}, {3, 7}, {8, 10}, {11, 13}}
	for i, g := range want {
		if m.Groups[i] != g {
			t.Errorf("group %d = %v, want %v", i, m.Groups[i], g)
		}
	}
}

func TestRegExpBackreferences(t *testing.T) {
	vm, _ := newTestVM()
	r, err := vm.CompileRegExp(`(?<q>['"]).*?\k<q>`, "")
	if err != nil {
		t.Fatal(err)
	}
	m, _ := r.Exec(`say "it's" now`, 0)
	if m == nil || m.Start != 4 || m.End != 10 {
		t.Errorf("match %+v", m)
	}
}

func TestRegExpUnmatchedGroup(t *testing.T) {
	vm, _ := newTestVM()
	r, err := vm.CompileRegExp(`(a)|(b)`, "")
	if err != nil {
		t.Fatal(err)
	}
	m, _ := r.Exec("b", 0)
	if m == nil {
		t.Fatal("no match")
	}
	if m.Groups[1] != [2]int{-1, -1} {
		t.Errorf("group 1 = %v, want unmatched", m.Groups[1])
	}
	if m.Groups[2] != [2]int{0, 1} {
		t.Errorf("group 2 = %v", m.Groups[2])
	}
}

func TestRegExpErrors(t *testing.T) {
	tests := []struct {
		pattern, flags string
		msg            string
	}{
		{"a", "gg", "Invalid regular expression flags"},
		{"a", "x", "Invalid regular expression flags"},
		{"a", "uv", "Invalid regular expression flags"},
		{"(?<n>a)(?<n>b)", "", "duplicate capture group name"},
		{`\k<missing>(?<n>a)`, "", "invalid named capture referenced"},
		{"(", "", "Invalid regular expression"},
	}
	vm, _ := newTestVM()
	for _, tt := range tests {
		_, err := vm.CompileRegExp(tt.pattern, tt.flags)
		ex, ok := AsException(err)
		if !ok {
			t.Errorf("/%s/%s: expected SyntaxError, got %v", tt.pattern, tt.flags, err)
			continue
		}
		if !strings.Contains(ex.Error(), tt.msg) {
			t.Errorf("/%s/%s: message %q does not mention %q", tt.pattern, tt.flags, ex.Error(), tt.msg)
		}
	}
}

func TestParseRegExpFlags(t *testing.T) {
	r, ok := ParseRegExpFlags("dgimsuy")
	if !ok {
		t.Fatal("valid flags rejected")
	}
	if !r.HasIndices || !r.Global || !r.IgnoreCase || !r.Multiline || !r.DotAll || !r.Unicode || !r.Sticky {
		t.Errorf("flags not all set: %+v", r)
	}
	if r.UnicodeSets {
		t.Error("v set without being requested")
	}
}
