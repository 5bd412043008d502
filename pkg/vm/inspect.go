package vm

import (
	"strconv"
	"strings"
)

const (
	inspectMaxDepth = 4
	inspectMaxItems = 100
)

// Inspect renders a value the way the REPL echoes results. It reads own
// data properties only and never runs script code.
func Inspect(v Value) string {
	in := inspector{seen: map[*Object]bool{}}
	in.value(v, 0, false)
	return in.b.String()
}

type inspector struct {
	b    strings.Builder
	seen map[*Object]bool
}

func (in *inspector) value(v Value, depth int, nested bool) {
	switch v.typ {
	case TypeString:
		if nested {
			in.b.WriteString(strconv.Quote(v.AsString()))
		} else {
			in.b.WriteString(v.AsString())
		}
	case TypeBigInt:
		in.b.WriteString(v.AsBigInt().String())
		in.b.WriteByte('n')
	case TypeNumber:
		if f := v.AsNumber(); f == 0 && 1/f < 0 {
			in.b.WriteString("-0")
			return
		}
		in.b.WriteString(v.String())
	case TypeObject:
		in.object(v.AsObject(), depth)
	default:
		in.b.WriteString(v.String())
	}
}

func (in *inspector) object(o *Object, depth int) {
	if in.seen[o] {
		in.b.WriteString("[Circular]")
		return
	}
	if o.IsCallable() {
		in.function(o)
		return
	}
	switch o.class {
	case ClassError:
		in.b.WriteString(errorSummary(o))
		return
	case ClassBoolean, ClassNumber, ClassString, ClassBigInt, ClassSymbol:
		in.b.WriteString("[" + o.ClassName() + ": ")
		in.value(o.primitive, depth, true)
		in.b.WriteByte(']')
		return
	case ClassRegExp:
		if r, ok := o.Internal.(*RegExp); ok {
			in.b.WriteString("/" + r.Source + "/" + r.Flags)
			return
		}
	case ClassPromise:
		if p, ok := o.Internal.(*Promise); ok {
			in.b.WriteString("Promise { ")
			switch p.State {
			case PromisePending:
				in.b.WriteString("<pending>")
			case PromiseRejected:
				in.b.WriteString("<rejected> ")
				in.value(p.Result, depth+1, true)
			default:
				in.value(p.Result, depth+1, true)
			}
			in.b.WriteString(" }")
			return
		}
	}
	if depth >= inspectMaxDepth {
		in.b.WriteString("[" + o.ClassName() + "]")
		return
	}
	in.seen[o] = true
	defer delete(in.seen, o)

	switch o.class {
	case ClassArray:
		in.array(o, depth)
		return
	case ClassMap, ClassSet:
		if m, ok := o.Internal.(*OrderedMap); ok {
			in.collection(o, m, depth)
			return
		}
	}
	if o.class != ClassObject {
		in.b.WriteString(o.ClassName() + " ")
	}
	in.properties(o, o.OwnKeys(), depth, "{}")
}

func (in *inspector) function(o *Object) {
	name := ""
	if p, ok := o.GetOwnProperty(StringKey("name")); ok && !p.IsAccessor() && p.Value.IsString() {
		name = p.Value.AsString()
	}
	kind := "Function"
	if o.fn != nil && o.fn.Template != nil && o.fn.Template.IsClassConstructor() {
		kind = "class"
	}
	if name == "" {
		in.b.WriteString("[" + kind + " (anonymous)]")
		return
	}
	in.b.WriteString("[" + kind + ": " + name + "]")
}

func (in *inspector) array(o *Object, depth int) {
	keys := o.OwnKeys()
	var extra []PropertyKey
	in.b.WriteByte('[')
	n := 0
	holes := 0
	flushHoles := func() {
		if holes > 0 {
			if n > 0 {
				in.b.WriteString(", ")
			}
			in.b.WriteString("<" + strconv.Itoa(holes) + " empty item")
			if holes > 1 {
				in.b.WriteByte('s')
			}
			in.b.WriteByte('>')
			n++
			holes = 0
		}
	}
	next := uint32(0)
	for _, k := range keys {
		idx, ok := arrayIndex(k.name)
		if !ok || k.sym != nil {
			if k.name != "length" {
				extra = append(extra, k)
			}
			continue
		}
		if n >= inspectMaxItems {
			continue
		}
		holes += int(idx - next)
		flushHoles()
		next = idx + 1
		if n > 0 {
			in.b.WriteString(", ")
		}
		p, _ := o.GetOwnProperty(k)
		in.property(p, depth)
		n++
	}
	if n < inspectMaxItems {
		holes += int(o.length - next)
		flushHoles()
	} else if rest := int(o.length) - inspectMaxItems; rest > 0 {
		in.b.WriteString(", ... " + strconv.Itoa(rest) + " more items")
	}
	for _, k := range extra {
		p, _ := o.GetOwnProperty(k)
		if !p.Enumerable() {
			continue
		}
		if n > 0 {
			in.b.WriteString(", ")
		}
		in.key(k)
		in.property(p, depth)
		n++
	}
	in.b.WriteByte(']')
}

func (in *inspector) collection(o *Object, m *OrderedMap, depth int) {
	in.b.WriteString(o.ClassName() + "(" + strconv.Itoa(m.Size()) + ") {")
	n := 0
	c := m.Cursor()
	for {
		k, v, ok := c.Next()
		if !ok {
			break
		}
		if n == 0 {
			in.b.WriteByte(' ')
		} else {
			in.b.WriteString(", ")
		}
		if n == inspectMaxItems {
			in.b.WriteString("...")
			n++
			break
		}
		in.value(k, depth+1, true)
		if o.class == ClassMap {
			in.b.WriteString(" => ")
			in.value(v, depth+1, true)
		}
		n++
	}
	if n > 0 {
		in.b.WriteByte(' ')
	}
	in.b.WriteByte('}')
}

func (in *inspector) properties(o *Object, keys []PropertyKey, depth int, empty string) {
	n := 0
	for _, k := range keys {
		p, ok := o.GetOwnProperty(k)
		if !ok || !p.Enumerable() {
			continue
		}
		if n == 0 {
			in.b.WriteString("{ ")
		} else {
			in.b.WriteString(", ")
		}
		if n == inspectMaxItems {
			in.b.WriteString("...")
			n++
			break
		}
		in.key(k)
		in.property(p, depth)
		n++
	}
	if n == 0 {
		in.b.WriteString(empty)
		return
	}
	in.b.WriteString(" }")
}

func (in *inspector) key(k PropertyKey) {
	switch {
	case k.sym != nil:
		in.b.WriteString("[" + k.sym.String() + "]")
	case isIdentifierName(k.name):
		in.b.WriteString(k.name)
	default:
		in.b.WriteString(strconv.Quote(k.name))
	}
	in.b.WriteString(": ")
}

func (in *inspector) property(p Property, depth int) {
	if !p.IsAccessor() {
		in.value(p.Value, depth+1, true)
		return
	}
	switch {
	case p.Getter != nil && p.Setter != nil:
		in.b.WriteString("[Getter/Setter]")
	case p.Getter != nil:
		in.b.WriteString("[Getter]")
	default:
		in.b.WriteString("[Setter]")
	}
}

func errorSummary(o *Object) string {
	name, msg := ErrorNameAndMessage(ObjectValue(o))
	if msg == "" {
		return name
	}
	return name + ": " + msg
}

func isIdentifierName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
