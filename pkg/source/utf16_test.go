package source

import "testing"

func TestUnitLength(t *testing.T) {
	tests := []struct {
		input  string
		expect int
	}{
		{"", 0},
		{"abc", 3},
		{"héllo", 5},
		{"😀", 2},
		{"a😀b", 4},
	}
	for _, tt := range tests {
		if got := UnitLength(tt.input); got != tt.expect {
			t.Errorf("UnitLength(%q) = %d, want %d", tt.input, got, tt.expect)
		}
	}
}

func TestSurrogatePairing(t *testing.T) {
	hi := FromUnits([]uint16{0xD83D})
	lo := FromUnits([]uint16{0xDE00})
	if UnitLength(hi) != 1 || UnitLength(lo) != 1 {
		t.Fatalf("lone surrogates should have length 1")
	}
	if got := Concat(hi, lo); got != "😀" {
		t.Errorf("Concat of surrogate halves = %q, want 😀", got)
	}
	if got := FromUnits([]uint16{0xD83D, 0xDE00}); got != "😀" {
		t.Errorf("FromUnits pair = %q", got)
	}
	u, ok := UnitAt("😀", 1)
	if !ok || u != 0xDE00 {
		t.Errorf("UnitAt(1) = %x, %v", u, ok)
	}
	if got := Slice("a😀b", 1, 2); UnitLength(got) != 1 {
		t.Errorf("Slice splitting a pair should keep one unit, got %q", got)
	}
}

func TestCompareUnits(t *testing.T) {
	// U+FF61 sorts after the surrogate pair of U+1F600 in UTF-16 order
	if CompareUnits("｡", "😀") <= 0 {
		t.Errorf("expected code-unit ordering to put U+FF61 after U+1F600")
	}
	if CompareUnits("a", "b") >= 0 || CompareUnits("b", "a") <= 0 || CompareUnits("a", "a") != 0 {
		t.Errorf("ascii ordering broken")
	}
}
