package builtins

import (
	"math"
	"strings"
	"unicode/utf8"

	"ecmavm/pkg/compiler"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string {
	return "Globals"
}

func (g *GlobalsInitializer) Priority() int {
	return PriorityGlobals
}

func (g *GlobalsInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	realm := ctx.Realm
	global := realm.Global

	global.SetOwn("globalThis", realm.GlobalThis(), vm.FlagsHidden)
	constant(global, "NaN", vm.NaN)
	constant(global, "Infinity", vm.NumberValue(math.Inf(1)))
	constant(global, "undefined", vm.Undefined)

	for _, name := range []string{"parseInt", "parseFloat"} {
		if fn := realm.Intrinsic(name); fn != nil {
			global.SetOwn(name, vm.ObjectValue(fn), vm.FlagsHidden)
		}
	}

	method(machine, global, "isNaN", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(math.IsNaN(n)), nil
	})
	method(machine, global, "isFinite", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(isFinite(n)), nil
	})

	uri := func(name string, fn func(string) (string, bool)) {
		method(machine, global, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			s, err := machine.ToString(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			out, ok := fn(s)
			if !ok {
				return vm.Undefined, machine.NewURIError("URI malformed")
			}
			return vm.StringValue(out), nil
		})
	}
	uri("encodeURI", func(s string) (string, bool) { return encodeURIString(s, uriUnescapedFull) })
	uri("encodeURIComponent", func(s string) (string, bool) { return encodeURIString(s, uriUnescapedComponent) })
	uri("decodeURI", func(s string) (string, bool) { return decodeURIString(s, uriReserved) })
	uri("decodeURIComponent", func(s string) (string, bool) { return decodeURIString(s, "") })

	method(machine, global, "escape", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(escapeString(s)), nil
	})
	method(machine, global, "unescape", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(unescapeString(s)), nil
	})

	// eval always has indirect semantics: code runs in the global scope
	// of the realm the function belongs to.
	eval := method(machine, global, "eval", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x := arg(args, 0)
		if !x.IsString() {
			return x, nil
		}
		return evalScript(machine, realm, source.NewEvalSource(x.AsString()), true)
	})
	ctx.Intrinsics().Eval = eval
	return nil
}

// evalScript parses, compiles and runs src as a script of realm. With
// asEval the code gets indirect eval declaration semantics.
func evalScript(machine *vm.VM, realm *vm.Realm, src *source.SourceFile, asEval bool) (vm.Value, error) {
	prev := machine.CurrentRealm()
	machine.SetCurrentRealm(realm)
	program, err := parseSource(machine, src)
	var tmpl *vm.FunctionTemplate
	if err == nil {
		tmpl, err = compileProgram(machine, program, compiler.Options{SourceName: src.Name, Eval: asEval})
	}
	machine.SetCurrentRealm(prev)
	if err != nil {
		return vm.Undefined, err
	}
	return machine.RunScript(nil, tmpl, realm)
}

const (
	uriReserved           = ";/?:@&=+$,"
	uriMark               = "-_.!~*'()"
	uriUnescapedComponent = uriMark
	uriUnescapedFull      = uriMark + uriReserved + "#"
	upperHex              = "0123456789ABCDEF"
)

func isURIAlnum(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// encodeURIString implements Encode; ok is false for unpaired surrogates.
func encodeURIString(s string, unescaped string) (string, bool) {
	var b strings.Builder
	var buf [utf8.UTFMax]byte
	for i := 0; i < len(s); {
		r, n := source.DecodeRune(s, i)
		i += n
		if r < utf8.RuneSelf && (isURIAlnum(r) || strings.ContainsRune(unescaped, r)) {
			b.WriteByte(byte(r))
			continue
		}
		if r >= 0xD800 && r <= 0xDFFF {
			return "", false
		}
		for _, c := range buf[:utf8.EncodeRune(buf[:], r)] {
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0xF])
		}
	}
	return b.String(), true
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func hexByteAt(s string, i int) (byte, bool) {
	if i+2 >= len(s) || s[i] != '%' {
		return 0, false
	}
	hi, ok1 := unhex(s[i+1])
	lo, ok2 := unhex(s[i+2])
	return hi<<4 | lo, ok1 && ok2
}

// decodeURIString implements Decode. Escapes of characters in reserved
// are kept as written.
func decodeURIString(s string, reserved string) (string, bool) {
	var b source.UnitBuilder
	for i := 0; i < len(s); {
		if s[i] != '%' {
			r, n := source.DecodeRune(s, i)
			b.WriteRune(r)
			i += n
			continue
		}
		c, ok := hexByteAt(s, i)
		if !ok {
			return "", false
		}
		if c < utf8.RuneSelf {
			if strings.IndexByte(reserved, c) >= 0 {
				b.WriteString(s[i : i+3])
			} else {
				b.WriteUnit(uint16(c))
			}
			i += 3
			continue
		}
		var n int
		switch {
		case c&0xE0 == 0xC0:
			n = 2
		case c&0xF0 == 0xE0:
			n = 3
		case c&0xF8 == 0xF0:
			n = 4
		default:
			return "", false
		}
		seq := []byte{c}
		for k := 1; k < n; k++ {
			cc, ok := hexByteAt(s, i+3*k)
			if !ok || cc&0xC0 != 0x80 {
				return "", false
			}
			seq = append(seq, cc)
		}
		r, size := utf8.DecodeRune(seq)
		if r == utf8.RuneError || size != n {
			return "", false
		}
		b.WriteRune(r)
		i += 3 * n
	}
	return b.String(), true
}

func isEscapeUnescaped(u uint16) bool {
	return u < utf8.RuneSelf && (isURIAlnum(rune(u)) || strings.ContainsRune("@*_+-./", rune(u)))
}

func escapeString(s string) string {
	var b strings.Builder
	for _, u := range source.Units(s) {
		switch {
		case isEscapeUnescaped(u):
			b.WriteByte(byte(u))
		case u < 256:
			b.WriteByte('%')
			b.WriteByte(upperHex[u>>4])
			b.WriteByte(upperHex[u&0xF])
		default:
			b.WriteString("%u")
			for shift := 12; shift >= 0; shift -= 4 {
				b.WriteByte(upperHex[(u>>shift)&0xF])
			}
		}
	}
	return b.String()
}

func unescapeString(s string) string {
	units := source.Units(s)
	var b source.UnitBuilder
	hexUnits := func(from, n int) (uint16, bool) {
		if from+n > len(units) {
			return 0, false
		}
		var v uint16
		for _, u := range units[from : from+n] {
			if u >= utf8.RuneSelf {
				return 0, false
			}
			d, ok := unhex(byte(u))
			if !ok {
				return 0, false
			}
			v = v<<4 | uint16(d)
		}
		return v, true
	}
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u == '%' {
			if i+1 < len(units) && units[i+1] == 'u' {
				if v, ok := hexUnits(i+2, 4); ok {
					b.WriteUnit(v)
					i += 5
					continue
				}
			} else if v, ok := hexUnits(i+1, 2); ok {
				b.WriteUnit(v)
				i += 2
				continue
			}
		}
		b.WriteUnit(u)
	}
	return b.String()
}
