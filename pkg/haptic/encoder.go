// Package haptic turns operator classifications into feedback: fixed-grammar
// messages for the glove transport, throttled per hand, and vibration
// impulses for handheld controllers.
package haptic

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/tacit/pkg/proximity"
)

// Message prefixes and sentinels.
const (
	FingerPrefix = "d"
	LegacyPrefix = "l"
	FarMessage   = "h"
	ErrorMessage = "Error"
)

// MaxMagnitude is the top of the wire magnitude range.
const MaxMagnitude = 255

// DefaultInsideMagnitude is the constant strength sent while inside.
const DefaultInsideMagnitude = 200

// Mapping selects how distance becomes an Outside magnitude.
type Mapping int

const (
	// Inverse grows stronger as the operator approaches: distance 0 maps
	// to 255 and the cutoff or beyond to 0.
	Inverse Mapping = iota
	// Direct is the mirror image: 0 at contact, 255 at the cutoff.
	Direct
)

func (m Mapping) String() string {
	switch m {
	case Inverse:
		return "inverse"
	case Direct:
		return "direct"
	}
	return fmt.Sprintf("Mapping(%d)", int(m))
}

// UnmarshalText accepts "inverse" or "direct".
func (m *Mapping) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "inverse":
		*m = Inverse
	case "direct":
		*m = Direct
	default:
		return fmt.Errorf("haptic: unknown mapping %q, expected inverse or direct", string(text))
	}
	return nil
}

func (m Mapping) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Encoder renders classifier output in the glove wire grammar:
//
//	d,o124,i200,c000
//
// one token per finger in thumb, index, middle order.
type Encoder struct {
	Mapping         Mapping
	Cutoff          float64 // distance at which Outside magnitude bottoms out
	InsideMagnitude int
}

// NewEncoder returns an encoder with the default inverse mapping and inside
// magnitude, mapping distances over [0, cutoff].
func NewEncoder(cutoff float64) *Encoder {
	return &Encoder{Mapping: Inverse, Cutoff: cutoff, InsideMagnitude: DefaultInsideMagnitude}
}

// Magnitude maps a distance onto [0, 255], rounding to nearest.
func (e *Encoder) Magnitude(distance float64) int {
	if math.IsNaN(distance) || e.Cutoff <= 0 {
		return 0
	}
	f := math.Max(0, math.Min(1, distance/e.Cutoff))
	if e.Mapping == Inverse {
		f = 1 - f
	}
	return int(math.Round(f * MaxMagnitude))
}

// token renders one operator. ok is false for states with no token.
func (e *Encoder) token(s proximity.OperatorState) (string, bool) {
	switch s.State {
	case proximity.Outside:
		return fmt.Sprintf("o%03d", e.Magnitude(s.ShortestDistance)), true
	case proximity.Inside:
		return fmt.Sprintf("i%03d", clampMagnitude(e.InsideMagnitude)), true
	case proximity.Entering:
		return "c000", true
	case proximity.Leaving:
		return "e000", true
	case proximity.Tooling:
		return "s000", true
	}
	return "", false
}

// Encode builds a per-finger message. An unknown state on any operator
// turns the message into "Error"; otherwise a FarOutside operator collapses
// it to "h".
func (e *Encoder) Encode(fingers []proximity.OperatorState) string {
	far := false
	for _, f := range fingers {
		if !f.State.Valid() {
			return ErrorMessage
		}
		far = far || f.State == proximity.FarOutside
	}
	if far {
		return FarMessage
	}

	var b strings.Builder
	b.WriteString(FingerPrefix)
	for _, f := range fingers {
		tok, ok := e.token(f)
		if !ok {
			return ErrorMessage
		}
		b.WriteByte(',')
		b.WriteString(tok)
	}
	return b.String()
}

// EncodeLegacy builds the single-value message used by one-effector
// devices, e.g. "l,c000".
func (e *Encoder) EncodeLegacy(s proximity.OperatorState) string {
	if s.State == proximity.FarOutside {
		return FarMessage
	}
	tok, ok := e.token(s)
	if !ok {
		return ErrorMessage
	}
	return LegacyPrefix + "," + tok
}

func clampMagnitude(m int) int {
	if m < 0 {
		return 0
	}
	if m > MaxMagnitude {
		return MaxMagnitude
	}
	return m
}
