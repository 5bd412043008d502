package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the YAML front matter of a test262 file, the block between
// "/*---" and "---*/".
type Metadata struct {
	Description string    `yaml:"description"`
	Info        string    `yaml:"info"`
	ES5ID       string    `yaml:"es5id"`
	ES6ID       string    `yaml:"es6id"`
	ESID        string    `yaml:"esid"`
	Includes    []string  `yaml:"includes"`
	Flags       []string  `yaml:"flags"`
	Features    []string  `yaml:"features"`
	Locale      []string  `yaml:"locale"`
	Negative    *Negative `yaml:"negative"`
}

// Negative describes the error a negative test expects.
type Negative struct {
	// Phase is "parse", "resolution" or "runtime".
	Phase string `yaml:"phase"`
	// Type is the expected error constructor name.
	Type string `yaml:"type"`
}

// ParseMetadata extracts and decodes the front matter of a test file. A
// file without front matter yields empty metadata.
func ParseMetadata(content string) (*Metadata, error) {
	md := &Metadata{}
	start := strings.Index(content, "/*---")
	if start < 0 {
		return md, nil
	}
	rest := content[start+len("/*---"):]
	end := strings.Index(rest, "---*/")
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), md); err != nil {
		return nil, fmt.Errorf("invalid front matter: %w", err)
	}
	if md.Negative != nil && md.Negative.Phase == "early" {
		// Older tests spell the parse phase "early".
		md.Negative.Phase = "parse"
	}
	return md, nil
}

// HasFlag reports whether the test carries flag.
func (m *Metadata) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// unsupportedFeatures lists test262 feature tags the engine does not
// implement; tests requiring any of them are skipped.
var unsupportedFeatures = map[string]bool{
	"Proxy":                         true,
	"TypedArray":                    true,
	"ArrayBuffer":                   true,
	"SharedArrayBuffer":             true,
	"DataView":                      true,
	"Atomics":                       true,
	"Atomics.waitAsync":             true,
	"Atomics.pause":                 true,
	"Float16Array":                  true,
	"resizable-arraybuffer":         true,
	"arraybuffer-transfer":          true,
	"uint8array-base64":             true,
	"Temporal":                      true,
	"Intl":                          true,
	"intl-normative-optional":       true,
	"tail-call-optimization":        true,
	"dynamic-import":                true,
	"import-attributes":             true,
	"import-assertions":             true,
	"import-defer":                  true,
	"source-phase-imports":          true,
	"json-modules":                  true,
	"top-level-await":               true,
	"decorators":                    true,
	"explicit-resource-management":  true,
	"ShadowRealm":                   true,
	"regexp-duplicate-named-groups": true,
	"regexp-modifiers":              true,
	"regexp-v-flag":                 true,
	"IsHTMLDDA":                     true,
	"symbols-as-weakmap-keys":       true,
}

// skipReason returns why a test cannot run on this engine, or "".
func (m *Metadata) skipReason() string {
	if m.HasFlag("module") {
		return "module code"
	}
	if m.Negative != nil && m.Negative.Phase == "resolution" {
		return "module resolution"
	}
	for _, f := range m.Features {
		if unsupportedFeatures[f] {
			return "feature " + f
		}
	}
	for _, inc := range m.Includes {
		if strings.HasPrefix(inc, "testTypedArray") || strings.HasPrefix(inc, "testIntl") || inc == "detachArrayBuffer.js" {
			return "include " + inc
		}
	}
	return ""
}

// modes returns the strictness variants a test runs in.
func (m *Metadata) modes() []bool {
	switch {
	case m.HasFlag("onlyStrict"):
		return []bool{true}
	case m.HasFlag("noStrict"), m.HasFlag("raw"):
		return []bool{false}
	}
	return []bool{false, true}
}
