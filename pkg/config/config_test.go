package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse("inline", []byte(`
[vm]
max-call-depth = 200

[script]
strict = true
timeout = "2s"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.VM.MaxCallDepth != 200 {
		t.Errorf("MaxCallDepth = %d, want 200", c.VM.MaxCallDepth)
	}
	if c.VM.StackSize != Default().VM.StackSize {
		t.Errorf("StackSize default not applied: %d", c.VM.StackSize)
	}
	if !c.Script.Strict || c.Script.Timeout.Duration != 2*time.Second {
		t.Errorf("script section = %+v", c.Script)
	}
	if !c.GC.Enabled {
		t.Errorf("gc should stay enabled by default")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown key", "[vm]\nbogus = 1\n", "unknown key"},
		{"bad duration", "[script]\ntimeout = \"soon\"\n", "invalid duration"},
		{"invalid depth", "[vm]\nmax-call-depth = 0\n", "max-call-depth"},
		{"syntax", "[vm\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("x.toml", []byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[gc]\nthreshold = 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.GC.Threshold != 5 || c.Path == "" {
		t.Errorf("loaded config = %+v", c)
	}
}
