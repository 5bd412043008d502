package vm

import (
	"math"
	"math/big"
	"strings"
	"testing"
)

func mapKeys(m *OrderedMap) string {
	var parts []string
	m.ForEach(func(k, _ Value) (bool, error) {
		parts = append(parts, k.String())
		return true, nil
	})
	return strings.Join(parts, ",")
}

func TestOrderedMapSameValueZero(t *testing.T) {
	m := NewOrderedMap()
	m.Set(NumberValue(math.Copysign(0, -1)), StringValue("zero"))
	m.Set(NaN, StringValue("nan"))
	m.Set(StringValue("1"), StringValue("string"))
	m.Set(NumberValue(1), StringValue("number"))
	m.Set(BigIntValue(big.NewInt(1)), StringValue("bigint"))

	tests := []struct {
		key  Value
		want string
	}{
		{NumberValue(0), "zero"},
		{NumberValue(math.NaN()), "nan"},
		{StringValue("1"), "string"},
		{NumberValue(1), "number"},
		{BigIntValue(big.NewInt(1)), "bigint"},
	}
	for _, tt := range tests {
		v, ok := m.Get(tt.key)
		if !ok || v.AsString() != tt.want {
			t.Errorf("Get(%v) = %v, %v; want %s", tt.key, v, ok, tt.want)
		}
	}
	if m.Size() != 5 {
		t.Errorf("Size = %d", m.Size())
	}

	// -0 keys are normalized on insertion
	m.ForEach(func(k, _ Value) (bool, error) {
		if k.IsNumber() && k.AsNumber() == 0 && math.Signbit(k.AsNumber()) {
			t.Error("stored -0 as a key")
		}
		return true, nil
	})

	o1, o2 := &Object{}, &Object{}
	m.Set(ObjectValue(o1), True)
	if m.Has(ObjectValue(o2)) {
		t.Error("distinct objects compare equal")
	}
}

func TestOrderedMapInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	for _, k := range []string{"a", "b", "c"} {
		m.Set(StringValue(k), Undefined)
	}
	m.Set(StringValue("a"), True)
	if got := mapKeys(m); got != "a,b,c" {
		t.Errorf("update reordered keys: %s", got)
	}
	m.Delete(StringValue("a"))
	m.Set(StringValue("a"), True)
	if got := mapKeys(m); got != "b,c,a" {
		t.Errorf("re-insert: %s", got)
	}
}

func TestMapCursorMutation(t *testing.T) {
	m := NewOrderedMap()
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Set(StringValue(k), Undefined)
	}
	c := m.Cursor()
	var seen []string
	next := func() bool {
		k, _, ok := c.Next()
		if ok {
			seen = append(seen, k.AsString())
		}
		return ok
	}

	next() // a
	m.Delete(StringValue("b"))
	m.Delete(StringValue("a"))
	next() // c
	m.Set(StringValue("e"), Undefined)
	m.Delete(StringValue("d"))
	for next() {
	}
	if got := strings.Join(seen, ","); got != "a,c,e" {
		t.Errorf("visited %s, want a,c,e", got)
	}

	// a finished cursor stays finished
	m.Set(StringValue("f"), Undefined)
	if next() {
		t.Error("exhausted cursor returned an entry")
	}
}

func TestMapCursorOnDeletedTail(t *testing.T) {
	m := NewOrderedMap()
	m.Set(StringValue("a"), Undefined)
	m.Set(StringValue("b"), Undefined)
	c := m.Cursor()
	c.Next()
	c.Next() // parked on b, the tail
	m.Delete(StringValue("b"))
	m.Set(StringValue("c"), Undefined)
	k, _, ok := c.Next()
	if !ok || k.AsString() != "c" {
		t.Errorf("got %v %v, want c", k, ok)
	}
}

func TestOrderedMapClear(t *testing.T) {
	m := NewOrderedMap()
	m.Set(StringValue("a"), Undefined)
	m.Set(StringValue("b"), Undefined)
	c := m.Cursor()
	c.Next()
	m.Clear()
	if m.Size() != 0 || m.Has(StringValue("b")) {
		t.Fatal("Clear left entries behind")
	}
	m.Set(StringValue("x"), Undefined)
	k, _, ok := c.Next()
	if !ok || k.AsString() != "x" {
		t.Errorf("cursor after Clear: %v %v", k, ok)
	}
	if got := mapKeys(m); got != "x" {
		t.Errorf("keys after Clear: %s", got)
	}
}
