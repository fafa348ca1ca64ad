package haptic

// DefaultEvery is the default number of ticks between glove messages.
const DefaultEvery = 10

// Throttle lets a message through once every N ticks. Hands are given
// different phases so their messages do not land on the same tick.
type Throttle struct {
	every   int
	counter int
}

// NewThrottle returns a throttle that fires on the tick where its counter,
// starting at phase, reaches every-1. every <= 1 fires on every tick.
func NewThrottle(every, phase int) *Throttle {
	if every < 1 {
		every = 1
	}
	if phase < 0 {
		phase = 0
	}
	return &Throttle{every: every, counter: phase % every}
}

// Tick advances one frame and reports whether a message should be sent.
func (t *Throttle) Tick() bool {
	if t.counter >= t.every-1 {
		t.counter = 0
		return true
	}
	t.counter++
	return false
}

// Every returns the configured period.
func (t *Throttle) Every() int { return t.every }
