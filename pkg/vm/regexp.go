package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"ecmavm/pkg/source"
)

// RegExp is the internal state of a RegExp object. Patterns run on
// regexp2 after a rewrite of the constructs whose meaning differs between
// script and .NET syntax.
type RegExp struct {
	Source string
	Flags  string

	Global     bool
	IgnoreCase bool
	Multiline  bool
	DotAll     bool
	Unicode    bool
	Sticky     bool
	HasIndices bool

	// UnicodeSets (the v flag) matches like Unicode; set notation is
	// not supported.
	UnicodeSets bool

	re    *regexp2.Regexp
	names []string // capture group names by number, "" when unnamed
}

// Match is a successful match. Offsets are UTF-16 indices into the
// subject; groups that did not participate hold -1.
type Match struct {
	Start, End int
	Groups     [][2]int
	Names      []string
}

// ParseRegExpFlags validates a flags string.
func ParseRegExpFlags(flags string) (*RegExp, bool) {
	r := &RegExp{Flags: flags}
	for _, c := range flags {
		var f *bool
		switch c {
		case 'd':
			f = &r.HasIndices
		case 'g':
			f = &r.Global
		case 'i':
			f = &r.IgnoreCase
		case 'm':
			f = &r.Multiline
		case 's':
			f = &r.DotAll
		case 'u':
			f = &r.Unicode
		case 'v':
			f = &r.UnicodeSets
		case 'y':
			f = &r.Sticky
		default:
			return nil, false
		}
		if *f {
			return nil, false
		}
		*f = true
	}
	return r, !(r.Unicode && r.UnicodeSets)
}

// CompileRegExp compiles pattern under flags.
func (vm *VM) CompileRegExp(pattern, flags string) (*RegExp, error) {
	r, err := compilePattern(pattern, flags)
	if err != nil {
		return nil, vm.NewSyntaxError("%s", err.Error())
	}
	if d := vm.cfg.VM.RegExpTimeout.Duration; d > 0 {
		r.re.MatchTimeout = d
	}
	return r, nil
}

// ValidateRegExp checks a regular expression literal without creating an
// object. The error message is the one the RegExp constructor throws.
func ValidateRegExp(pattern, flags string) error {
	_, err := compilePattern(pattern, flags)
	return err
}

func compilePattern(pattern, flags string) (*RegExp, error) {
	r, ok := ParseRegExpFlags(flags)
	if !ok {
		return nil, fmt.Errorf("Invalid regular expression flags '%s'", flags)
	}
	r.Source = pattern
	translated, names, err := translatePattern(pattern, r)
	if err != nil {
		return nil, fmt.Errorf("Invalid regular expression: /%s/%s: %s", pattern, flags, err.Error())
	}
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if r.IgnoreCase {
		opts |= regexp2.IgnoreCase
	}
	if r.unicodeMode() {
		opts |= regexp2.Unicode
	}
	re, err := regexp2.Compile(translated, opts)
	if err != nil {
		return nil, fmt.Errorf("Invalid regular expression: /%s/%s: %s", pattern, flags, err.Error())
	}
	r.re = re
	r.names = names
	return r, nil
}

func (r *RegExp) unicodeMode() bool { return r.Unicode || r.UnicodeSets }

// NewRegExp creates a RegExp object with lastIndex 0 (OpRegExp and the
// RegExp constructor).
func (vm *VM) NewRegExp(pattern, flags string) (*Object, error) {
	r, err := vm.CompileRegExp(pattern, flags)
	if err != nil {
		return nil, err
	}
	o := vm.allocObject(ClassRegExp, vm.realm.Intrinsics.RegExpPrototype)
	o.Internal = r
	o.SetOwn("lastIndex", IntValue(0), FlagWritable)
	return o, nil
}

// RegExpOf returns the internal state of a RegExp object.
func RegExpOf(v Value) (*RegExp, bool) {
	o := v.AsObject()
	if o == nil || o.class != ClassRegExp {
		return nil, false
	}
	r, ok := o.Internal.(*RegExp)
	return r, ok
}

// GroupNames lists capture group names by group number.
func (r *RegExp) GroupNames() []string { return r.names }

// HasNamedGroups reports whether the pattern declares (?<name>...) groups.
func (r *RegExp) HasNamedGroups() bool {
	for _, n := range r.names {
		if n != "" {
			return true
		}
	}
	return false
}

// Exec matches s from UTF-16 index from. Sticky patterns only match at
// from itself. A nil Match means no match.
func (r *RegExp) Exec(s string, from int) (*Match, error) {
	runes, unitOf := subjectRunes(s, r.unicodeMode())
	start := from
	if unitOf != nil {
		start = runeIndexOf(unitOf, from)
	}
	if start > len(runes) {
		return nil, nil
	}
	m, err := r.re.FindRunesMatchStartingAt(runes, start)
	if err != nil || m == nil {
		return nil, err
	}
	if r.Sticky && m.Index != start {
		return nil, nil
	}
	conv := func(i int) int {
		if unitOf == nil {
			return i
		}
		return unitOf[i]
	}
	out := &Match{Start: conv(m.Index), End: conv(m.Index + m.Length), Names: r.names}
	out.Groups = make([][2]int, len(r.names))
	for n := range out.Groups {
		g := m.GroupByNumber(n)
		if g == nil || len(g.Captures) == 0 {
			out.Groups[n] = [2]int{-1, -1}
			continue
		}
		out.Groups[n] = [2]int{conv(g.Index), conv(g.Index + g.Length)}
	}
	return out, nil
}

// subjectRunes converts s into the code sequence the matcher sees: code
// units without the unicode flag, code points with it. For code points
// unitOf maps rune indices (and the end) to UTF-16 indices.
func subjectRunes(s string, unicode bool) ([]rune, []int) {
	if !unicode || source.IsASCII(s) {
		if source.IsASCII(s) {
			return []rune(s), nil
		}
		units := source.Units(s)
		rs := make([]rune, len(units))
		for i, u := range units {
			rs[i] = rune(u)
		}
		return rs, nil
	}
	var rs []rune
	var unitOf []int
	u := 0
	for i := 0; i < len(s); {
		r, size := source.DecodeRune(s, i)
		rs = append(rs, r)
		unitOf = append(unitOf, u)
		if r > 0xFFFF {
			u += 2
		} else {
			u++
		}
		i += size
	}
	return rs, append(unitOf, u)
}

// runeIndexOf returns the first rune index whose UTF-16 index is at least
// unit.
func runeIndexOf(unitOf []int, unit int) int {
	for i, u := range unitOf {
		if u >= unit {
			return i
		}
	}
	return len(unitOf)
}

const (
	lineTerminators = `\n\r\u2028\u2029`
	whitespaceClass = `\t\n\v\f\r \u00a0\u1680\u2000-\u200a\u2028\u2029\u202f\u205f\u3000\ufeff`
)

// translatePattern rewrites the constructs whose meaning differs in
// regexp2: ., ^, $, \s, empty classes and named groups. Named groups
// become plain groups so numbering stays positional; names[n] is the name
// of group n. Group 0 is the whole match.
func translatePattern(p string, r *RegExp) (string, []string, error) {
	names := []string{""}
	index := map[string]int{}
	// first pass: number the capturing groups
	inClass := false
	for i := 0; i < len(p); i++ {
		switch c := p[i]; {
		case c == '\\':
			i++
		case inClass:
			inClass = c != ']'
		case c == '[':
			inClass = true
			if strings.HasPrefix(p[i:], "[]") || strings.HasPrefix(p[i:], "[^]") {
				inClass = false
				i += strings.Index(p[i:], "]")
			}
		case c == '(':
			if !strings.HasPrefix(p[i:], "(?") {
				names = append(names, "")
				break
			}
			if strings.HasPrefix(p[i:], "(?<") && !strings.HasPrefix(p[i:], "(?<=") && !strings.HasPrefix(p[i:], "(?<!") {
				end := strings.IndexByte(p[i:], '>')
				if end < 0 {
					return "", nil, errors.New("invalid capture group name")
				}
				name := p[i+3 : i+end]
				if _, dup := index[name]; dup {
					return "", nil, fmt.Errorf("duplicate capture group name %s", name)
				}
				index[name] = len(names)
				names = append(names, name)
			}
		}
	}

	var b strings.Builder
	inClass = false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\\' && i+1 < len(p):
			next := p[i+1]
			switch {
			case next == 's' && !inClass:
				b.WriteString(`[` + whitespaceClass + `]`)
			case next == 'S' && !inClass:
				b.WriteString(`[^` + whitespaceClass + `]`)
			case next == 's':
				b.WriteString(whitespaceClass)
			case next == 'k' && !inClass && strings.HasPrefix(p[i+2:], "<") && len(index) > 0:
				end := strings.IndexByte(p[i:], '>')
				if end < 0 {
					return "", nil, errors.New("invalid named reference")
				}
				n, ok := index[p[i+3:i+end]]
				if !ok {
					return "", nil, errors.New("invalid named capture referenced")
				}
				fmt.Fprintf(&b, `(?:\%d)`, n)
				i += end - 1
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			switch {
			case strings.HasPrefix(p[i:], "[]"):
				b.WriteString(`(?!)`)
				i++
			case strings.HasPrefix(p[i:], "[^]"):
				b.WriteString(`[\s\S]`)
				i += 2
			default:
				inClass = true
				b.WriteByte(c)
			}
		case c == '(' && strings.HasPrefix(p[i:], "(?<") && !strings.HasPrefix(p[i:], "(?<=") && !strings.HasPrefix(p[i:], "(?<!"):
			b.WriteByte('(')
			i += strings.IndexByte(p[i:], '>')
		case c == '.':
			if r.DotAll {
				b.WriteString(`[\s\S]`)
			} else {
				b.WriteString(`[^` + lineTerminators + `]`)
			}
		case c == '^':
			if r.Multiline {
				b.WriteString(`(?<=\A|[` + lineTerminators + `])`)
			} else {
				b.WriteString(`\A`)
			}
		case c == '$':
			if r.Multiline {
				b.WriteString(`(?=\z|[` + lineTerminators + `])`)
			} else {
				b.WriteString(`\z`)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), names, nil
}
