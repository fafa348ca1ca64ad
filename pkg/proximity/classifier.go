package proximity

import (
	"github.com/chazu/tacit/pkg/logging"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// OperatorState is the per-tick classification of one operator.
type OperatorState struct {
	State            State
	ShortestDistance float64
	Contacts         int
}

// Classifier tracks one hand, finger, or controller. Collision detection
// reports contacts through Enter and Exit; Tick classifies once per frame.
type Classifier struct {
	name          string
	near          float64
	contacts      int
	prevEffective int
	tooling       bool
	anomalies     int
	last          OperatorState
	log           *logrus.Entry
}

// NewClassifier returns a classifier that starts Outside. A non-positive
// near threshold uses DefaultNearThreshold.
func NewClassifier(name string, near float64, log *logrus.Entry) *Classifier {
	if near <= 0 {
		near = DefaultNearThreshold
	}
	if log == nil {
		log = logging.New("proximity")
	}
	return &Classifier{
		name: name,
		near: near,
		last: OperatorState{State: Outside, ShortestDistance: Far},
		log:  log.WithField("operator", name),
	}
}

// Name identifies the operator in logs.
func (c *Classifier) Name() string { return c.name }

// Enter records a contact with the sculpture.
func (c *Classifier) Enter() {
	c.contacts++
}

// Exit releases a contact. An exit without a matching enter is logged and
// counted as an anomaly, and the count stays at zero.
func (c *Classifier) Exit() {
	if c.contacts <= 0 {
		c.anomalies++
		c.log.WithField("anomalies", c.anomalies).Warn("contact count would go negative; enter/exit events are mismatched")
		c.contacts = 0
		return
	}
	c.contacts--
}

// Contacts returns the current contact count.
func (c *Classifier) Contacts() int { return c.contacts }

// Anomalies counts unmatched Exit calls.
func (c *Classifier) Anomalies() int { return c.anomalies }

// SetTooling forces the reported state to Tooling while a stroke commits.
// It does not change the geometric classification underneath.
func (c *Classifier) SetTooling(on bool) { c.tooling = on }

// Tooling reports whether the tooling override is active.
func (c *Classifier) Tooling() bool { return c.tooling }

// Tick classifies p against s. When no contacts are registered but the
// parity test puts p inside the mesh, the operator counts as one contact;
// this catches positions that pass through the surface without raising
// contact events. A nil surface means there is nothing to touch.
func (c *Classifier) Tick(p r3.Vec, s *Surface) OperatorState {
	effective := c.contacts
	distance := Far
	if s != nil {
		if effective == 0 && s.Contains(p) {
			effective = 1
		}
		distance = s.Distance(p)
	}

	state := Transition(c.prevEffective, effective, distance, c.near)
	c.prevEffective = effective
	if c.tooling {
		state = Tooling
	}
	c.last = OperatorState{State: state, ShortestDistance: distance, Contacts: c.contacts}
	return c.last
}

// Snapshot returns the result of the latest Tick.
func (c *Classifier) Snapshot() OperatorState { return c.last }

// Reset clears contacts and history, e.g. after the sculpture regenerates.
func (c *Classifier) Reset() {
	c.contacts = 0
	c.prevEffective = 0
	c.tooling = false
	c.last = OperatorState{State: Outside, ShortestDistance: Far}
}
