// Package glove reads flex-sensor messages from a haptic glove and maps
// them to finger bend angles.
package glove

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Finger indices into Flex and angle arrays.
const (
	Thumb = iota
	Index
	Middle
	Fingers
)

// MaxAngle is the bend, in degrees, of a fully calibrated flex.
const MaxAngle = 40.0

// ToolingAngle is the bend every finger must exceed for a fist.
const ToolingAngle = 36.0

var (
	// ErrNotFlex reports a message that is not a flex reading. Callers
	// normally ignore it; the glove shares its line with other traffic.
	ErrNotFlex = errors.New("glove: not a flex message")
	// ErrMalformed reports a flex message that cannot be parsed.
	ErrMalformed = errors.New("glove: malformed flex message")
)

// Flex holds raw sensor readings in thumb, index, middle order.
type Flex [Fingers]float64

// ParseFlex parses "f,<thumb>,<index>,<middle>".
func ParseFlex(msg string) (Flex, error) {
	var f Flex
	if msg == "" || msg[0] != 'f' {
		return f, ErrNotFlex
	}
	parts := strings.Split(msg, ",")
	if len(parts) != Fingers+1 {
		return f, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, Fingers+1, len(parts))
	}
	for i := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return Flex{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i+1, err)
		}
		f[i] = v
	}
	return f, nil
}

// Calibration maps raw readings to angles once both an open-hand (min) and
// a closed-hand (max) reading have been captured.
type Calibration struct {
	min, max       Flex
	hasMin, hasMax bool
}

// SetMin records the open-hand reading.
func (c *Calibration) SetMin(f Flex) {
	c.min = f
	c.hasMin = true
}

// SetMax records the closed-hand reading.
func (c *Calibration) SetMax(f Flex) {
	c.max = f
	c.hasMax = true
}

// Ready reports whether both bounds are set.
func (c *Calibration) Ready() bool { return c.hasMin && c.hasMax }

// Angles maps f linearly from [min, max] onto [0, MaxAngle] per finger,
// clamped. A finger whose bounds coincide reads 0. Before calibration
// every angle is 0.
func (c *Calibration) Angles(f Flex) [Fingers]float64 {
	var out [Fingers]float64
	if !c.Ready() {
		return out
	}
	for i := range f {
		span := c.max[i] - c.min[i]
		if span == 0 {
			continue
		}
		a := (f[i] - c.min[i]) * MaxAngle / span
		out[i] = min(max(a, 0), MaxAngle)
	}
	return out
}

// IsToolingGesture reports a closed fist: every finger bent past
// ToolingAngle. It is always false before calibration.
func (c *Calibration) IsToolingGesture(f Flex) bool {
	if !c.Ready() {
		return false
	}
	for _, a := range c.Angles(f) {
		if a <= ToolingAngle {
			return false
		}
	}
	return true
}
