// Package session drives a sculpture frame by frame: it applies strokes,
// classifies every tracked operator against the current surface and emits
// haptic output for each hand.
package session

import (
	"errors"
	"fmt"

	"github.com/chazu/tacit/pkg/config"
	"github.com/chazu/tacit/pkg/glove"
	"github.com/chazu/tacit/pkg/haptic"
	"github.com/chazu/tacit/pkg/kernel"
	"github.com/chazu/tacit/pkg/kernel/marching"
	"github.com/chazu/tacit/pkg/logging"
	"github.com/chazu/tacit/pkg/proximity"
	"github.com/chazu/tacit/pkg/sculpt"
	"github.com/chazu/tacit/pkg/voxel"
	"github.com/sirupsen/logrus"
)

// Frame carries the input of one tick. A nil pose means the hand is not
// tracked this frame.
type Frame struct {
	Left, Right *Pose
}

func (f Frame) pose(h Hand) *Pose {
	if h == Left {
		return f.Left
	}
	return f.Right
}

// Output is what a hand produced on a tick. Message is empty when the glove
// throttle held it back; Impulse is only meaningful for Handheld.
type Output struct {
	Hand     Hand
	Modality Modality
	Message  string
	Impulse  haptic.Impulse
	States   []proximity.OperatorState
	Changed  int // cells edited by this hand's stroke
}

// Options customises New. The zero value is fine.
type Options struct {
	// Extractor replaces the marching extractor chosen by the config.
	Extractor kernel.Extractor
	Log       *logrus.Entry
}

// Session owns a sculpture and both hands' feedback state.
type Session struct {
	cfg     config.Config
	editor  *sculpt.Editor
	encoder *haptic.Encoder
	hands   [hands]*hand

	surface   *proximity.Surface
	surfaceAt int // editor extraction count the surface was built from
	ticks     int
	log       *logrus.Entry
}

// New builds the field, extractor and editor described by cfg.
func New(cfg config.Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = logging.New("session")
	}

	field, err := voxel.New(cfg.VoxelSpec())
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	ex := opts.Extractor
	if ex == nil {
		ex, err = marching.New(cfg.Strategy, marching.WithWorkers(cfg.ExtractWorkers))
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}
	editor, err := sculpt.New(field, ex, sculpt.Options{
		ToolRadius: cfg.ToolRadius,
		Shape:      cfg.BaseShape,
		ShapeSize:  cfg.ShapeSize,
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		cfg:     cfg,
		editor:  editor,
		encoder: &haptic.Encoder{Mapping: cfg.HapticMapping, Cutoff: cfg.NearThreshold, InsideMagnitude: cfg.InsideMagnitude},
		log:     log,
	}
	for side := Left; side < hands; side++ {
		h := &hand{
			side: side,
			// The right hand runs one tick ahead so both sides never send
			// on the same frame.
			throttle: haptic.NewThrottle(cfg.HapticThrottle, int(side)),
		}
		for d := Thumb; d < digits; d++ {
			h.classifiers[d] = proximity.NewClassifier(side.String()+"-"+d.String(), cfg.NearThreshold, log)
		}
		s.hands[side] = h
	}
	s.refreshSurface()
	log.WithFields(logrus.Fields{
		"resolution": cfg.Resolution,
		"shape":      cfg.BaseShape,
		"extractor":  ex.Name(),
		"vertices":   editor.Mesh().VertexCount(),
	}).Info("session ready")
	return s, nil
}

// Config returns the configuration the session was built with.
func (s *Session) Config() config.Config { return s.cfg }

// Editor exposes the sculpt editor for direct edits.
func (s *Session) Editor() *sculpt.Editor { return s.editor }

// Mesh returns the current surface mesh.
func (s *Session) Mesh() *kernel.Mesh { return s.editor.Mesh() }

// Surface returns the proximity index for the current mesh.
func (s *Session) Surface() *proximity.Surface {
	s.refreshSurface()
	return s.surface
}

// Ticks counts completed calls to Tick.
func (s *Session) Ticks() int { return s.ticks }

// refreshSurface rebuilds the proximity index if the editor has extracted
// a new mesh since the last build.
func (s *Session) refreshSurface() {
	if s.surface != nil && s.surfaceAt == s.editor.Extractions() {
		return
	}
	s.surface = proximity.NewSurface(s.editor.Mesh(), s.editor.Field(), s.cfg.NearThreshold)
	s.surfaceAt = s.editor.Extractions()
}

// Classifier returns the classifier of one operator.
func (s *Session) Classifier(h Hand, d Digit) (*proximity.Classifier, error) {
	if h < 0 || h >= hands {
		return nil, fmt.Errorf("session: unknown hand %v", h)
	}
	if d < 0 || d >= digits {
		return nil, fmt.Errorf("session: unknown digit %v", d)
	}
	return s.hands[h].classifiers[d], nil
}

// Enter reports that an operator started touching the sculpture.
func (s *Session) Enter(h Hand, d Digit) error {
	c, err := s.Classifier(h, d)
	if err != nil {
		return err
	}
	c.Enter()
	return nil
}

// Exit reports that an operator stopped touching the sculpture.
func (s *Session) Exit(h Hand, d Digit) error {
	c, err := s.Classifier(h, d)
	if err != nil {
		return err
	}
	c.Exit()
	return nil
}

// ToolMode returns the active tool mode.
func (s *Session) ToolMode() sculpt.ToolMode { return s.editor.ToolMode() }

// ToggleToolMode flips the tool mode and starts the confirming pulse train
// on both hands.
func (s *Session) ToggleToolMode() sculpt.ToolMode {
	mode := s.editor.ToggleToolMode()
	for _, h := range s.hands {
		h.pulses.Start(mode)
	}
	s.log.WithField("mode", mode).Info("tool mode changed")
	return mode
}

// SetBaseShape picks the shape restored by the next Regenerate.
func (s *Session) SetBaseShape(shape voxel.Shape, size float64) error {
	return s.editor.SetBaseShape(shape, size)
}

// Regenerate restores the base shape. Contact counts refer to the old
// surface, so every classifier starts over.
func (s *Session) Regenerate() error {
	if err := s.editor.RegenerateSculpture(); err != nil {
		return err
	}
	s.resetClassifiers()
	s.refreshSurface()
	shape, size := s.editor.BaseShape()
	s.log.WithFields(logrus.Fields{"shape": shape, "size": size}).Info("sculpture regenerated")
	return nil
}

// Restore replaces the sculpture with a snapshot and resets every
// classifier, as Regenerate does.
func (s *Session) Restore(snapshot []byte) error {
	if err := s.editor.Restore(snapshot); err != nil {
		return err
	}
	s.resetClassifiers()
	s.refreshSurface()
	return nil
}

func (s *Session) resetClassifiers() {
	for _, h := range s.hands {
		for _, c := range h.classifiers {
			c.Reset()
		}
	}
}

// CalibrateMin stores the latest flex reading of h as its open hand.
func (s *Session) CalibrateMin(h Hand) error {
	hs, err := s.calibrating(h)
	if err != nil {
		return err
	}
	hs.calibration.SetMin(hs.flex)
	return nil
}

// CalibrateMax stores the latest flex reading of h as its closed fist.
func (s *Session) CalibrateMax(h Hand) error {
	hs, err := s.calibrating(h)
	if err != nil {
		return err
	}
	hs.calibration.SetMax(hs.flex)
	return nil
}

func (s *Session) calibrating(h Hand) (*hand, error) {
	if h < 0 || h >= hands {
		return nil, fmt.Errorf("session: unknown hand %v", h)
	}
	hs := s.hands[h]
	if !hs.hasFlex {
		return nil, fmt.Errorf("session: no flex reading from the %v hand yet", h)
	}
	return hs, nil
}

// Tick advances one frame. Strokes are applied before classification so
// feedback reflects the edited surface. An extraction failure aborts the
// stroke but not the frame; it is returned alongside the outputs.
func (s *Session) Tick(f Frame) ([]Output, error) {
	s.ticks++
	var (
		outs []Output
		errs []error
	)
	for side := Left; side < hands; side++ {
		p := f.pose(side)
		if p == nil {
			continue
		}
		out, err := s.tickHand(s.hands[side], p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v hand: %w", side, err))
		}
		outs = append(outs, out)
	}
	return outs, errors.Join(errs...)
}

func (s *Session) tickHand(h *hand, p *Pose) (Output, error) {
	out := Output{Hand: h.side, Modality: p.Modality}

	if p.Flex != "" {
		fl, err := glove.ParseFlex(p.Flex)
		switch {
		case err == nil:
			h.flex, h.hasFlex = fl, true
		case errors.Is(err, glove.ErrNotFlex):
		default:
			s.log.WithError(err).WithField("hand", h.side).Debug("dropping flex message")
		}
	}

	var strokeErr error
	stroke := p.Trigger || (p.Modality == Glove && h.hasFlex && h.calibration.IsToolingGesture(h.flex))
	h.setTooling(stroke)
	if stroke {
		out.Changed, strokeErr = s.editor.Apply(s.editor.ToolMode(), p.Tool)
		if strokeErr != nil {
			s.log.WithError(strokeErr).WithField("hand", h.side).Warn("stroke failed")
		}
	}
	s.refreshSurface()

	switch p.Modality {
	case Glove:
		out.States = make([]proximity.OperatorState, 0, len(p.Fingers))
		for i, pos := range p.Fingers {
			out.States = append(out.States, h.classifiers[i].Tick(pos, s.surface))
		}
		msg := s.encoder.Encode(out.States)
		if h.throttle.Tick() {
			out.Message = msg
		}
	case SingleEffector:
		st := h.classifiers[Controller].Tick(p.Tool, s.surface)
		out.States = []proximity.OperatorState{st}
		msg := s.encoder.EncodeLegacy(st)
		if h.throttle.Tick() {
			out.Message = msg
		}
	case Handheld:
		st := h.classifiers[Controller].Tick(p.Tool, s.surface)
		out.States = []proximity.OperatorState{st}
		out.Impulse = haptic.ControllerImpulse(st.State)
	default:
		return out, fmt.Errorf("session: unknown modality %v", p.Modality)
	}

	// A running pulse train owns the motor until it finishes.
	if imp, ok := h.pulses.Tick(); ok && p.Modality == Handheld {
		out.Impulse = imp
	}
	return out, strokeErr
}
