package initwfn

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	cases := map[string]Type{
		"glorotu":  GlorotU,
		"GlorotN":  GlorotN,
		"he":       HeU,
		"HeN":      HeN,
		"zeros":    Zeroes,
		"ones":     Ones,
		"constant": Constant,
	}
	for name, want := range cases {
		init, err := Parse(name, 1.0)
		if err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
		if init.Type != want {
			t.Errorf("Parse(%q) has type %v, want %v", name, init.Type, want)
		}
		if init.InitWFn() == nil {
			t.Errorf("Parse(%q) created no InitWFn", name)
		}
	}

	if _, err := Parse("orthogonal", 1.0); err == nil {
		t.Error("expected error for unknown initializer")
	}
}

func TestParseGain(t *testing.T) {
	for _, name := range []string{"glorotu", "glorotn", "heu", "hen"} {
		if _, err := Parse(name, 0); err == nil {
			t.Errorf("%v: expected error for zero gain", name)
		}
		if _, err := Parse(name, -1); err == nil {
			t.Errorf("%v: expected error for negative gain", name)
		}
	}
	if _, err := Parse("glorotu", math.Inf(1)); err == nil {
		t.Error("expected error for infinite gain")
	}

	// Constant uses the gain as its value, which may be any number
	c, err := Parse("constant", -0.5)
	if err != nil {
		t.Fatal(err)
	}
	if c.String() != "Constant(-0.5)" {
		t.Errorf("got %v, want Constant(-0.5)", c)
	}
	if _, err := Parse("zeroes", 0); err != nil {
		t.Errorf("zeroes ignores its gain: %v", err)
	}
}
