package source

import (
	"strings"
	"unicode/utf8"
)

// Script strings are sequences of UTF-16 code units. They are stored as Go
// strings in WTF-8: well-formed text is plain UTF-8 and an unpaired surrogate
// is written as its 3-byte generalized UTF-8 form. A paired surrogate is
// always stored as the supplementary code point, so equal unit sequences
// produce equal Go strings.

// IsASCII reports whether s contains only 7-bit characters.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// DecodeRune decodes the code point starting at byte offset i, accepting
// WTF-8 encoded lone surrogates. Invalid bytes decode as U+FFFD, width 1.
func DecodeRune(s string, i int) (rune, int) {
	b0 := s[i]
	if b0 < utf8.RuneSelf {
		return rune(b0), 1
	}
	if b0 == 0xED && i+2 < len(s) && s[i+1] >= 0xA0 && s[i+1] <= 0xBF && s[i+2]&0xC0 == 0x80 {
		return rune(b0&0x0F)<<12 | rune(s[i+1]&0x3F)<<6 | rune(s[i+2]&0x3F), 3
	}
	return utf8.DecodeRuneInString(s[i:])
}

// AppendRune appends cp to b, encoding surrogate code points as WTF-8.
func AppendRune(b []byte, cp rune) []byte {
	if cp >= 0xD800 && cp <= 0xDFFF {
		return append(b, byte(0xE0|(cp>>12)), byte(0x80|((cp>>6)&0x3F)), byte(0x80|(cp&0x3F)))
	}
	return utf8.AppendRune(b, cp)
}

// UnitLength returns the number of UTF-16 code units in s.
func UnitLength(s string) int {
	if IsASCII(s) {
		return len(s)
	}
	n := 0
	for i := 0; i < len(s); {
		r, size := DecodeRune(s, i)
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
		i += size
	}
	return n
}

// Units expands s into UTF-16 code units.
func Units(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for i := 0; i < len(s); {
		r, size := DecodeRune(s, i)
		if r > 0xFFFF {
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			out = append(out, uint16(r))
		}
		i += size
	}
	return out
}

// FromUnits builds a string from UTF-16 code units, pairing surrogates.
func FromUnits(units []uint16) string {
	var b UnitBuilder
	for _, u := range units {
		b.WriteUnit(u)
	}
	return b.String()
}

// UnitAt returns the code unit at index idx, or false when out of range.
func UnitAt(s string, idx int) (uint16, bool) {
	if idx < 0 {
		return 0, false
	}
	if IsASCII(s) {
		if idx >= len(s) {
			return 0, false
		}
		return uint16(s[idx]), true
	}
	n := 0
	for i := 0; i < len(s); {
		r, size := DecodeRune(s, i)
		if r > 0xFFFF {
			r -= 0x10000
			if n == idx {
				return uint16(0xD800 + (r >> 10)), true
			}
			if n+1 == idx {
				return uint16(0xDC00 + (r & 0x3FF)), true
			}
			n += 2
		} else {
			if n == idx {
				return uint16(r), true
			}
			n++
		}
		i += size
	}
	return 0, false
}

// Slice returns the code units [from, to) of s as a string.
func Slice(s string, from, to int) string {
	if IsASCII(s) {
		if from < 0 {
			from = 0
		}
		if to > len(s) {
			to = len(s)
		}
		if from >= to {
			return ""
		}
		return s[from:to]
	}
	units := Units(s)
	if from < 0 {
		from = 0
	}
	if to > len(units) {
		to = len(units)
	}
	if from >= to {
		return ""
	}
	return FromUnits(units[from:to])
}

// CompareUnits orders two strings by UTF-16 code units.
func CompareUnits(a, b string) int {
	if IsASCII(a) && IsASCII(b) {
		return strings.Compare(a, b)
	}
	ua, ub := Units(a), Units(b)
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}

// UnitBuilder accumulates code units into a WTF-8 string.
type UnitBuilder struct {
	buf     []byte
	pending uint16 // unpaired high surrogate waiting for its partner
}

// WriteUnit appends one UTF-16 code unit.
func (b *UnitBuilder) WriteUnit(u uint16) {
	if b.pending != 0 {
		hi := b.pending
		b.pending = 0
		if u >= 0xDC00 && u <= 0xDFFF {
			cp := (rune(hi)-0xD800)<<10 + (rune(u) - 0xDC00) + 0x10000
			b.buf = utf8.AppendRune(b.buf, cp)
			return
		}
		b.buf = AppendRune(b.buf, rune(hi))
	}
	if u >= 0xD800 && u <= 0xDBFF {
		b.pending = u
		return
	}
	b.buf = AppendRune(b.buf, rune(u))
}

// WriteRune appends a code point.
func (b *UnitBuilder) WriteRune(r rune) {
	if r > 0xFFFF {
		r -= 0x10000
		b.WriteUnit(uint16(0xD800 + (r >> 10)))
		b.WriteUnit(uint16(0xDC00 + (r & 0x3FF)))
		return
	}
	b.WriteUnit(uint16(r))
}

// WriteString appends an already encoded string.
func (b *UnitBuilder) WriteString(s string) {
	if len(s) == 0 {
		return
	}
	if b.pending != 0 {
		r, size := DecodeRune(s, 0)
		if r >= 0xDC00 && r <= 0xDFFF {
			b.WriteUnit(uint16(r))
			s = s[size:]
		} else {
			b.flush()
		}
	}
	if n := len(s); n >= 3 && s[n-3] == 0xED {
		if r, size := DecodeRune(s, n-3); size == 3 && r >= 0xD800 && r <= 0xDBFF {
			b.buf = append(b.buf, s[:n-3]...)
			b.pending = uint16(r)
			return
		}
	}
	b.buf = append(b.buf, s...)
}

func (b *UnitBuilder) flush() {
	if b.pending != 0 {
		b.buf = AppendRune(b.buf, rune(b.pending))
		b.pending = 0
	}
}

// String returns the accumulated string.
func (b *UnitBuilder) String() string {
	b.flush()
	return string(b.buf)
}

// Concat joins two strings, pairing a trailing high surrogate of a with a
// leading low surrogate of b.
func Concat(a, b string) string {
	if len(a) >= 3 && len(b) >= 3 && a[len(a)-3] == 0xED && b[0] == 0xED {
		hi, _ := DecodeRune(a, len(a)-3)
		lo, _ := DecodeRune(b, 0)
		if hi >= 0xD800 && hi <= 0xDBFF && lo >= 0xDC00 && lo <= 0xDFFF {
			var ub UnitBuilder
			ub.WriteString(a)
			ub.WriteString(b)
			return ub.String()
		}
	}
	return a + b
}
