// Package proximity classifies operator positions against the sculpture:
// a per-operator state machine fed by contact events, a ray-parity inside
// test against the extracted mesh, and the distance to the nearest surface
// voxel.
package proximity

import (
	"fmt"
	"math"
)

// State is the classification reported for one operator.
type State int

const (
	Outside State = iota
	Inside
	Entering
	Leaving
	Tooling
	FarOutside
)

var stateNames = [...]string{
	Outside:    "outside",
	Inside:     "inside",
	Entering:   "entering",
	Leaving:    "leaving",
	Tooling:    "tooling",
	FarOutside: "far-outside",
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= Outside && s <= FarOutside
}

// DefaultNearThreshold splits Outside from FarOutside, in world units.
const DefaultNearThreshold = 0.4

// Far is the distance reported when no surface is within reach.
var Far = math.Inf(1)

// Transition classifies one tick from the previous and current contact
// counts and the nearest-surface distance. Rules apply in order:
// a rising count enters, a falling count leaves, any count is inside,
// a distance under near is outside, anything else is far outside.
func Transition(prev, curr int, distance, near float64) State {
	switch {
	case prev <= 0 && curr > 0:
		return Entering
	case prev > 0 && curr <= 0:
		return Leaving
	case curr > 0:
		return Inside
	case distance < near:
		return Outside
	default:
		return FarOutside
	}
}
