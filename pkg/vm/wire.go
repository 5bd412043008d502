package vm

import (
	"fmt"
	"math"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion changes whenever the instruction set or the encoding below
// changes; cached templates of another version are rejected.
const WireVersion = 4

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireFile struct {
	Version int           `cbor:"1,keyasint"`
	Root    *wireTemplate `cbor:"2,keyasint"`
}

type wireTemplate struct {
	Name       string       `cbor:"1,keyasint,omitempty"`
	Kind       FunctionKind `cbor:"2,keyasint"`
	Flags      uint8        `cbor:"3,keyasint"`
	Length     int          `cbor:"4,keyasint,omitempty"`
	Scope      *wireScope   `cbor:"5,keyasint,omitempty"`
	Chunk      *wireChunk   `cbor:"6,keyasint"`
	Source     []byte       `cbor:"7,keyasint,omitempty"`
	SourceName string       `cbor:"8,keyasint,omitempty"`
	ParamSlots []int        `cbor:"9,keyasint,omitempty"`
	Globals    *GlobalDecls `cbor:"10,keyasint,omitempty"`
}

const (
	wireStrict uint8 = 1 << iota
	wireAsync
	wireGenerator
)

type wireScope struct {
	Kind  ScopeKind      `cbor:"1,keyasint"`
	Names []string       `cbor:"2,keyasint"`
	Flags []BindingFlags `cbor:"3,keyasint"`
}

type wireChunk struct {
	Code      []byte             `cbor:"1,keyasint"`
	Constants []wireConst        `cbor:"2,keyasint,omitempty"`
	Functions []*wireTemplate    `cbor:"3,keyasint,omitempty"`
	Scopes    []*wireScope       `cbor:"4,keyasint,omitempty"`
	Sites     []wireSite         `cbor:"5,keyasint,omitempty"`
	Handlers  []ExceptionHandler `cbor:"6,keyasint,omitempty"`
	Positions []PosEntry         `cbor:"7,keyasint,omitempty"`
	MaxStack  int                `cbor:"8,keyasint"`
}

// wireConst is a primitive constant. Numbers travel as their bit pattern
// so -0 and NaN survive. Text is a byte string since string constants may
// hold lone surrogates, which are not valid UTF-8.
type wireConst struct {
	Type ValueType `cbor:"1,keyasint"`
	Bits uint64    `cbor:"2,keyasint,omitempty"`
	Text []byte    `cbor:"3,keyasint,omitempty"`
}

type wireSite struct {
	Cooked []wireConst `cbor:"1,keyasint"`
	Raw    []string    `cbor:"2,keyasint"`
}

// MarshalTemplate serializes a compiled script or function to CBOR bytes.
func MarshalTemplate(t *FunctionTemplate) ([]byte, error) {
	root, err := toWireTemplate(t)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&wireFile{Version: WireVersion, Root: root})
}

// UnmarshalTemplate deserializes a template and validates every chunk.
func UnmarshalTemplate(data []byte) (*FunctionTemplate, error) {
	var f wireFile
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vm: unmarshal template: %w", err)
	}
	if f.Version != WireVersion {
		return nil, fmt.Errorf("vm: template wire version %d, want %d", f.Version, WireVersion)
	}
	if f.Root == nil {
		return nil, fmt.Errorf("vm: unmarshal template: missing root")
	}
	return fromWireTemplate(f.Root)
}

func toWireTemplate(t *FunctionTemplate) (*wireTemplate, error) {
	w := &wireTemplate{
		Name:       t.Name,
		Kind:       t.Kind,
		Length:     t.Length,
		Scope:      toWireScope(t.Scope),
		Source:     []byte(t.Source),
		SourceName: t.SourceName,
		ParamSlots: t.ParamSlots,
		Globals:    t.GlobalDecls,
	}
	if t.Strict {
		w.Flags |= wireStrict
	}
	if t.Async {
		w.Flags |= wireAsync
	}
	if t.Generator {
		w.Flags |= wireGenerator
	}
	c := t.Chunk
	wc := &wireChunk{
		Code:      c.Code,
		Handlers:  c.ExceptionTable,
		Positions: c.Positions,
		MaxStack:  c.MaxStack,
	}
	for _, v := range c.Constants {
		k, err := toWireConst(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		wc.Constants = append(wc.Constants, k)
	}
	for _, s := range c.Scopes {
		wc.Scopes = append(wc.Scopes, toWireScope(s))
	}
	for _, s := range c.Sites {
		ws := wireSite{Raw: s.Raw}
		for _, v := range s.Cooked {
			k, err := toWireConst(v)
			if err != nil {
				return nil, err
			}
			ws.Cooked = append(ws.Cooked, k)
		}
		wc.Sites = append(wc.Sites, ws)
	}
	for _, fn := range c.Functions {
		wf, err := toWireTemplate(fn)
		if err != nil {
			return nil, err
		}
		wc.Functions = append(wc.Functions, wf)
	}
	w.Chunk = wc
	return w, nil
}

func toWireScope(s *ScopeInfo) *wireScope {
	if s == nil {
		return nil
	}
	return &wireScope{Kind: s.Kind, Names: s.Names, Flags: s.Flags}
}

func fromWireScope(w *wireScope) *ScopeInfo {
	if w == nil {
		return nil
	}
	return &ScopeInfo{Kind: w.Kind, Names: w.Names, Flags: w.Flags}
}

func toWireConst(v Value) (wireConst, error) {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return wireConst{Type: v.typ}, nil
	case TypeBoolean:
		return wireConst{Type: v.typ, Bits: v.payload}, nil
	case TypeNumber:
		return wireConst{Type: v.typ, Bits: math.Float64bits(v.AsNumber())}, nil
	case TypeString:
		return wireConst{Type: v.typ, Text: []byte(v.AsString())}, nil
	case TypeBigInt:
		return wireConst{Type: v.typ, Text: []byte(v.AsBigInt().String())}, nil
	}
	return wireConst{}, fmt.Errorf("constant of type %s cannot be serialized", v.typ)
}

func fromWireConst(w wireConst) (Value, error) {
	switch w.Type {
	case TypeUndefined:
		return Undefined, nil
	case TypeNull:
		return Null, nil
	case TypeBoolean:
		return BoolValue(w.Bits != 0), nil
	case TypeNumber:
		return NumberValue(math.Float64frombits(w.Bits)), nil
	case TypeString:
		return StringValue(string(w.Text)), nil
	case TypeBigInt:
		b, ok := new(big.Int).SetString(string(w.Text), 10)
		if !ok {
			return Undefined, fmt.Errorf("invalid bigint constant %q", w.Text)
		}
		return BigIntValue(b), nil
	}
	return Undefined, fmt.Errorf("invalid constant type %d", w.Type)
}

func fromWireTemplate(w *wireTemplate) (*FunctionTemplate, error) {
	if w.Chunk == nil {
		return nil, fmt.Errorf("vm: template %q has no code", w.Name)
	}
	t := &FunctionTemplate{
		Name:        w.Name,
		Kind:        w.Kind,
		Strict:      w.Flags&wireStrict != 0,
		Async:       w.Flags&wireAsync != 0,
		Generator:   w.Flags&wireGenerator != 0,
		Length:      w.Length,
		Scope:       fromWireScope(w.Scope),
		Source:      string(w.Source),
		SourceName:  w.SourceName,
		ParamSlots:  w.ParamSlots,
		GlobalDecls: w.Globals,
	}
	wc := w.Chunk
	c := NewChunk()
	c.Code = wc.Code
	c.ExceptionTable = wc.Handlers
	c.Positions = wc.Positions
	for _, k := range wc.Constants {
		v, err := fromWireConst(k)
		if err != nil {
			return nil, fmt.Errorf("vm: template %q: %w", w.Name, err)
		}
		c.Constants = append(c.Constants, v)
	}
	for _, s := range wc.Scopes {
		c.Scopes = append(c.Scopes, fromWireScope(s))
	}
	for _, ws := range wc.Sites {
		site := &TemplateSite{Raw: ws.Raw}
		for _, k := range ws.Cooked {
			v, err := fromWireConst(k)
			if err != nil {
				return nil, err
			}
			site.Cooked = append(site.Cooked, v)
		}
		c.Sites = append(c.Sites, site)
	}
	for _, wf := range wc.Functions {
		fn, err := fromWireTemplate(wf)
		if err != nil {
			return nil, err
		}
		c.Functions = append(c.Functions, fn)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("vm: template %q: %w", w.Name, err)
	}
	if c.MaxStack != wc.MaxStack {
		return nil, fmt.Errorf("vm: template %q: stack height %d does not match recorded %d", w.Name, c.MaxStack, wc.MaxStack)
	}
	t.Chunk = c
	return t, nil
}
