package session

import (
	"fmt"
	"strings"

	"github.com/chazu/tacit/pkg/glove"
	"github.com/chazu/tacit/pkg/haptic"
	"github.com/chazu/tacit/pkg/proximity"
	"gonum.org/v1/gonum/spatial/r3"
)

// Hand identifies a side of the operator.
type Hand int

const (
	Left Hand = iota
	Right
	hands
)

func (h Hand) String() string {
	switch h {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Hand(%d)", int(h))
}

// ParseHand accepts "left" or "right".
func ParseHand(name string) (Hand, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("session: unknown hand %q", name)
}

// Digit identifies an operator on a hand.
type Digit int

const (
	Thumb Digit = iota
	Index
	Middle
	Controller
	digits
)

func (d Digit) String() string {
	switch d {
	case Thumb:
		return "thumb"
	case Index:
		return "index"
	case Middle:
		return "middle"
	case Controller:
		return "controller"
	}
	return fmt.Sprintf("Digit(%d)", int(d))
}

// ParseDigit accepts a digit name.
func ParseDigit(name string) (Digit, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "thumb":
		return Thumb, nil
	case "index":
		return Index, nil
	case "middle":
		return Middle, nil
	case "controller":
		return Controller, nil
	}
	return 0, fmt.Errorf("session: unknown digit %q", name)
}

// Modality is the input device a hand is using.
type Modality int

const (
	// Glove tracks three fingertips and sends per-finger messages.
	Glove Modality = iota
	// Handheld is a controller with a single vibration motor.
	Handheld
	// SingleEffector is a one-motor glove speaking the legacy grammar.
	SingleEffector
)

func (m Modality) String() string {
	switch m {
	case Glove:
		return "glove"
	case Handheld:
		return "controller"
	case SingleEffector:
		return "single"
	}
	return fmt.Sprintf("Modality(%d)", int(m))
}

// Pose is one hand's input for a frame.
type Pose struct {
	Modality Modality
	// Fingers are the thumb, index and middle tips. Only gloves use them.
	Fingers [3]r3.Vec
	// Tool is where strokes land: the controller, or the palm of a glove.
	Tool r3.Vec
	// Trigger commits a stroke this frame.
	Trigger bool
	// Flex is the latest raw message from the glove, if any.
	Flex string
}

// hand holds the per-side state that persists between frames.
type hand struct {
	side        Hand
	classifiers [digits]*proximity.Classifier
	throttle    *haptic.Throttle
	pulses      haptic.PulseTrain
	calibration glove.Calibration
	flex        glove.Flex
	hasFlex     bool
}

func (h *hand) setTooling(on bool) {
	for _, c := range h.classifiers {
		c.SetTooling(on)
	}
}
