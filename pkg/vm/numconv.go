package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// NumberToString converts a number to its shortest round-trip decimal form
// using the exponent rules of Number::toString.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	// d.ddddde±XX
	repr := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(repr, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expPart)
	k := len(digits)
	n := exp + 1

	var sb strings.Builder
	sb.WriteString(sign)
	switch {
	case k <= n && n <= 21:
		sb.WriteString(digits)
		sb.WriteString(strings.Repeat("0", n-k))
	case 0 < n && n <= 21:
		sb.WriteString(digits[:n])
		sb.WriteByte('.')
		sb.WriteString(digits[n:])
	case -6 < n && n <= 0:
		sb.WriteString("0.")
		sb.WriteString(strings.Repeat("0", -n))
		sb.WriteString(digits)
	default:
		sb.WriteByte(digits[0])
		if k > 1 {
			sb.WriteByte('.')
			sb.WriteString(digits[1:])
		}
		sb.WriteByte('e')
		if n-1 >= 0 {
			sb.WriteByte('+')
		} else {
			sb.WriteByte('-')
		}
		sb.WriteString(strconv.Itoa(abs(n - 1)))
	}
	return sb.String()
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// IsWhiteSpace reports whether r is WhiteSpace or a LineTerminator.
func IsWhiteSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0x00A0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}

// TrimWhiteSpace removes leading and trailing script whitespace.
func TrimWhiteSpace(s string) string {
	return strings.TrimFunc(s, IsWhiteSpace)
}

// StringToNumber implements StringToNumber: whitespace is trimmed, the empty
// string is 0 and anything that is not a StringNumericLiteral is NaN.
func StringToNumber(s string) float64 {
	s = TrimWhiteSpace(s)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			return parseRadixDigits(s[2:], base)
		}
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if !isDecimalLiteral(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func parseRadixDigits(s string, base int) float64 {
	if s == "" {
		return math.NaN()
	}
	for i := 0; i < len(s); i++ {
		if digitValue(s[i]) >= base {
			return math.NaN()
		}
	}
	if len(s) <= 12 {
		v, _ := strconv.ParseUint(s, base, 64)
		return float64(v)
	}
	b, ok := new(big.Int).SetString(s, base)
	if !ok {
		return math.NaN()
	}
	f, _ := new(big.Float).SetInt(b).Float64()
	return f
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

// isDecimalLiteral matches StrDecimalLiteral without Infinity:
// [+-] (digits [. digits?] | . digits) [eE [+-] digits].
func isDecimalLiteral(s string) bool {
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}
	intDigits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		intDigits++
	}
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			fracDigits++
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		expDigits := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			expDigits++
		}
		if expDigits == 0 {
			return false
		}
	}
	return i == len(s)
}

// StringToBigInt implements StringToBigInt; ok is false for invalid input.
func StringToBigInt(s string) (*big.Int, bool) {
	s = TrimWhiteSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			s = s[2:]
		}
	}
	neg := false
	if base == 10 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return nil, false
	}
	for i := 0; i < len(s); i++ {
		if digitValue(s[i]) >= base {
			return nil, false
		}
	}
	b, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, false
	}
	if neg {
		b.Neg(b)
	}
	return b, true
}

// NumberToRadixString formats f in the given radix (2..36) the way
// Number.prototype.toString does for non-decimal radixes.
func NumberToRadixString(f float64, radix int) string {
	if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return NumberToString(f)
	}
	neg := f < 0
	if neg {
		f = -f
	}
	intPart := math.Floor(f)
	frac := f - intPart

	var intDigits string
	if intPart < 1<<53 {
		intDigits = strconv.FormatUint(uint64(intPart), radix)
	} else {
		b, _ := new(big.Float).SetFloat64(intPart).Int(nil)
		intDigits = b.Text(radix)
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(intDigits)
	if frac > 0 {
		sb.WriteByte('.')
		// precision of the fraction: stop when the remaining value is below
		// half an ulp of the original number
		delta := math.Max(math.Nextafter(f, math.Inf(1))-f, math.SmallestNonzeroFloat64) / 2
		for i := 0; i < 1100 && frac >= delta; i++ {
			frac *= float64(radix)
			delta *= float64(radix)
			d := int(math.Floor(frac))
			frac -= float64(d)
			if frac > 0.5 || (frac == 0.5 && d&1 == 1) {
				if frac+delta > 1 {
					// round up and stop
					d++
					sb.WriteByte(strconv.FormatInt(int64(d), radix)[0])
					break
				}
			}
			sb.WriteByte(strconv.FormatInt(int64(d), radix)[0])
		}
	}
	return sb.String()
}
