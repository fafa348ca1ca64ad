package haptic

import (
	"time"

	"github.com/chazu/tacit/pkg/proximity"
	"github.com/chazu/tacit/pkg/sculpt"
)

// Impulse is a controller vibration command. The zero value stops haptics.
type Impulse struct {
	Amplitude float64
	Duration  time.Duration
}

// Stop reports whether the impulse silences the controller.
func (i Impulse) Stop() bool { return i.Amplitude == 0 }

var (
	edgeImpulse   = Impulse{Amplitude: 0.5, Duration: 100 * time.Millisecond}
	insideImpulse = Impulse{Amplitude: 0.3, Duration: 500 * time.Millisecond}
	pulseImpulse  = Impulse{Amplitude: 1.0, Duration: 300 * time.Millisecond}
)

// ControllerImpulse maps a controller's state to a vibration: a firm short
// pulse when crossing the surface, a softer one while inside, and silence
// otherwise.
func ControllerImpulse(s proximity.State) Impulse {
	switch s {
	case proximity.Entering, proximity.Leaving:
		return edgeImpulse
	case proximity.Inside:
		return insideImpulse
	}
	return Impulse{}
}

// PulseTrain signals a tool mode change: one pulse for carving, two pulses
// ten ticks apart for adding.
type PulseTrain struct {
	remaining int
}

// Start begins the pattern for mode, replacing any pattern in progress.
func (p *PulseTrain) Start(mode sculpt.ToolMode) {
	if mode == sculpt.Adding {
		p.remaining = 11
	} else {
		p.remaining = 1
	}
}

// Active reports whether the train still owns the controller.
func (p *PulseTrain) Active() bool { return p.remaining > 0 }

// Tick returns this frame's impulse and true while the train is active.
func (p *PulseTrain) Tick() (Impulse, bool) {
	if p.remaining <= 0 {
		return Impulse{}, false
	}
	var out Impulse
	if p.remaining%10 == 1 {
		out = pulseImpulse
	}
	p.remaining--
	return out, true
}
