// Package initwfn names the Gorgonia weight initializers that network
// configurations can select.
package initwfn

import (
	"fmt"
	"math"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type is the distribution a weight initializer draws from
type Type string

// Available initializers
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Zeroes   Type = "Zeroes"
	Ones     Type = "Ones"
	Constant Type = "Constant"
)

// aliases maps lower case config names to initializer types
var aliases = map[string]Type{
	"glorotu":  GlorotU,
	"glorot":   GlorotU,
	"glorotn":  GlorotN,
	"heu":      HeU,
	"he":       HeU,
	"hen":      HeN,
	"zeroes":   Zeroes,
	"zeros":    Zeroes,
	"ones":     Ones,
	"constant": Constant,
}

// scaled reports whether the initializer's parameter is a gain, which
// must be positive
func (t Type) scaled() bool {
	switch t {
	case GlorotU, GlorotN, HeU, HeN:
		return true
	}
	return false
}

// InitWFn is a weight initializer selected by name
type InitWFn struct {
	Type Type

	// Gain scales Glorot and He initializers and is the value of
	// Constant initializers. Other initializers ignore it.
	Gain float64

	fn G.InitWFn
}

// Parse returns the weight initializer with the given name, ignoring
// case. An error is returned for unknown names, for a non-finite gain,
// and for Glorot or He initializers whose gain is not positive.
func Parse(name string, gain float64) (*InitWFn, error) {
	t, ok := aliases[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("parse: unknown weight initializer %q", name)
	}
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return nil, fmt.Errorf("parse: %v gain must be finite, got %v", t,
			gain)
	}
	if t.scaled() && gain <= 0 {
		return nil, fmt.Errorf("parse: %v gain must be positive, got %v", t,
			gain)
	}

	init := &InitWFn{Type: t, Gain: gain}
	switch t {
	case GlorotU:
		init.fn = G.GlorotU(gain)
	case GlorotN:
		init.fn = G.GlorotN(gain)
	case HeU:
		init.fn = G.HeU(gain)
	case HeN:
		init.fn = G.HeN(gain)
	case Zeroes:
		init.fn = G.Zeroes()
	case Ones:
		init.fn = G.Ones()
	case Constant:
		init.fn = G.ValuesOf(gain)
	}
	return init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.fn
}

func (i *InitWFn) String() string {
	if i.Type.scaled() || i.Type == Constant {
		return fmt.Sprintf("%v(%v)", i.Type, i.Gain)
	}
	return string(i.Type)
}
