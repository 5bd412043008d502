package main

import (
	"reflect"
	"testing"
)

func TestParseMetadata(t *testing.T) {
	content := `// Copyright header
/*---
esid: sec-array.prototype.map
description: >
  Array.prototype.map applies the callback
includes: [compareArray.js, propertyHelper.js]
flags: [onlyStrict]
features: [Symbol.iterator, Proxy]
negative:
  phase: runtime
  type: TypeError
---*/
[1].map(x => x);
`
	md, err := ParseMetadata(content)
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if md.ESID != "sec-array.prototype.map" {
		t.Errorf("esid = %q", md.ESID)
	}
	if md.Description != "Array.prototype.map applies the callback\n" {
		t.Errorf("description = %q", md.Description)
	}
	if !reflect.DeepEqual(md.Includes, []string{"compareArray.js", "propertyHelper.js"}) {
		t.Errorf("includes = %v", md.Includes)
	}
	if !md.HasFlag("onlyStrict") || md.HasFlag("noStrict") {
		t.Errorf("flags = %v", md.Flags)
	}
	if md.Negative == nil || md.Negative.Phase != "runtime" || md.Negative.Type != "TypeError" {
		t.Errorf("negative = %+v", md.Negative)
	}
	if got := md.skipReason(); got != "feature Proxy" {
		t.Errorf("skipReason = %q", got)
	}
}

func TestParseMetadataEdgeCases(t *testing.T) {
	md, err := ParseMetadata("var x = 1;")
	if err != nil || md == nil || len(md.Flags) != 0 {
		t.Errorf("no front matter: md=%+v err=%v", md, err)
	}
	if _, err := ParseMetadata("/*--- flags: [raw]"); err == nil {
		t.Error("unterminated front matter accepted")
	}
	if _, err := ParseMetadata("/*---\nflags: [raw\n---*/"); err == nil {
		t.Error("invalid yaml accepted")
	}
	md, err = ParseMetadata("/*---\nnegative:\n  phase: early\n  type: SyntaxError\n---*/")
	if err != nil {
		t.Fatal(err)
	}
	if md.Negative.Phase != "parse" {
		t.Errorf("early phase not normalized: %q", md.Negative.Phase)
	}
}

func TestModes(t *testing.T) {
	tests := []struct {
		flags []string
		want  []bool
	}{
		{nil, []bool{false, true}},
		{[]string{"onlyStrict"}, []bool{true}},
		{[]string{"noStrict"}, []bool{false}},
		{[]string{"raw"}, []bool{false}},
		{[]string{"async"}, []bool{false, true}},
	}
	for _, tt := range tests {
		md := &Metadata{Flags: tt.flags}
		if got := md.modes(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("flags %v: modes = %v, want %v", tt.flags, got, tt.want)
		}
	}
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		want string
	}{
		{"plain", Metadata{Features: []string{"Symbol"}}, ""},
		{"module flag", Metadata{Flags: []string{"module"}}, "module code"},
		{"resolution", Metadata{Negative: &Negative{Phase: "resolution", Type: "SyntaxError"}}, "module resolution"},
		{"typed array include", Metadata{Includes: []string{"testTypedArray.js"}}, "include testTypedArray.js"},
		{"gc host hook", Metadata{Features: []string{"host-gc-required"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.md.skipReason(); got != tt.want {
				t.Errorf("skipReason = %q, want %q", got, tt.want)
			}
		})
	}
}
