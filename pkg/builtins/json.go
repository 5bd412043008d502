package builtins

import (
	"strconv"
	"strings"

	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// jsonParser decodes JSON text straight into script values. Strings keep
// unpaired surrogate escapes, which a UTF-8 decoder would replace.
type jsonParser struct {
	machine *vm.VM
	src     string
	pos     int
}

func parseJSON(machine *vm.VM, text string) (vm.Value, error) {
	p := &jsonParser{machine: machine, src: text}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return vm.Undefined, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return vm.Undefined, p.unexpected()
	}
	return v, nil
}

func (p *jsonParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *jsonParser) unexpected() error {
	if p.pos >= len(p.src) {
		return p.machine.NewSyntaxError("Unexpected end of JSON input")
	}
	r, _ := source.DecodeRune(p.src, p.pos)
	return p.machine.NewSyntaxError("Unexpected token '%c' in JSON at position %d", r, p.pos)
}

func (p *jsonParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.unexpected()
	}
	p.pos++
	return nil
}

func (p *jsonParser) literal(word string, v vm.Value) (vm.Value, error) {
	if !strings.HasPrefix(p.src[p.pos:], word) {
		for i := 0; i < len(word) && p.pos < len(p.src) && p.src[p.pos] == word[i]; i++ {
			p.pos++
		}
		return vm.Undefined, p.unexpected()
	}
	p.pos += len(word)
	return v, nil
}

func (p *jsonParser) value() (vm.Value, error) {
	if p.pos >= len(p.src) {
		return vm.Undefined, p.unexpected()
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, err := p.string()
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(s), nil
	case c == 't':
		return p.literal("true", vm.BoolValue(true))
	case c == 'f':
		return p.literal("false", vm.BoolValue(false))
	case c == 'n':
		return p.literal("null", vm.Null)
	case c == '-' || c >= '0' && c <= '9':
		return p.number()
	}
	return vm.Undefined, p.unexpected()
}

func (p *jsonParser) object() (vm.Value, error) {
	p.pos++
	obj := p.machine.NewObject()
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return vm.ObjectValue(obj), nil
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '"' {
			return vm.Undefined, p.unexpected()
		}
		key, err := p.string()
		if err != nil {
			return vm.Undefined, err
		}
		if err := p.expect(':'); err != nil {
			return vm.Undefined, err
		}
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return vm.Undefined, err
		}
		if _, err := p.machine.CreateDataProperty(obj, vm.StringKey(key), v); err != nil {
			return vm.Undefined, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) {
			return vm.Undefined, p.unexpected()
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return vm.ObjectValue(obj), nil
		default:
			return vm.Undefined, p.unexpected()
		}
	}
}

func (p *jsonParser) array() (vm.Value, error) {
	p.pos++
	var elems []vm.Value
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return vm.ObjectValue(p.machine.NewArray(elems)), nil
	}
	for {
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return vm.Undefined, err
		}
		elems = append(elems, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return vm.Undefined, p.unexpected()
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return vm.ObjectValue(p.machine.NewArray(elems)), nil
		default:
			return vm.Undefined, p.unexpected()
		}
	}
}

func (p *jsonParser) string() (string, error) {
	p.pos++
	start := p.pos
	// Fast path: no escapes.
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '"' {
			s := p.src[start:p.pos]
			p.pos++
			return s, nil
		}
		if c == '\\' || c < 0x20 {
			break
		}
		p.pos++
	}
	var b source.UnitBuilder
	b.WriteString(p.src[start:p.pos])
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return b.String(), nil
		case c < 0x20:
			return "", p.unexpected()
		case c != '\\':
			r, n := source.DecodeRune(p.src, p.pos)
			b.WriteRune(r)
			p.pos += n
			continue
		}
		p.pos++
		if p.pos >= len(p.src) {
			return "", p.unexpected()
		}
		esc := p.src[p.pos]
		p.pos++
		switch esc {
		case '"', '\\', '/':
			b.WriteUnit(uint16(esc))
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
		case 'u':
			if p.pos+4 > len(p.src) {
				p.pos = len(p.src)
				return "", p.unexpected()
			}
			u, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 16)
			if err != nil {
				return "", p.unexpected()
			}
			b.WriteUnit(uint16(u))
			p.pos += 4
		default:
			p.pos--
			return "", p.unexpected()
		}
	}
	return "", p.unexpected()
}

func (p *jsonParser) digits() int {
	n := 0
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
		n++
	}
	return n
}

func (p *jsonParser) number() (vm.Value, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	if p.pos < len(p.src) && p.src[p.pos] == '0' {
		p.pos++
	} else if p.digits() == 0 {
		return vm.Undefined, p.unexpected()
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		if p.digits() == 0 {
			return vm.Undefined, p.unexpected()
		}
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		if p.digits() == 0 {
			return vm.Undefined, p.unexpected()
		}
	}
	// Out of range values round to infinity or zero, which ParseFloat
	// reports alongside ErrRange.
	f, _ := strconv.ParseFloat(p.src[start:p.pos], 64)
	return vm.NumberValue(f), nil
}

const hexDigits = "0123456789abcdef"

// quoteJSONString implements QuoteJSONString.
func quoteJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, n := source.DecodeRune(s, i)
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r >= 0xD800 && r <= 0xDFFF:
			b.WriteString(`\u`)
			for shift := 12; shift >= 0; shift -= 4 {
				b.WriteByte(hexDigits[(r>>shift)&0xF])
			}
		default:
			b.WriteString(s[i : i+n])
		}
		i += n
	}
	b.WriteByte('"')
	return b.String()
}
