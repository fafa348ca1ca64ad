// Package sculpt applies carve and add strokes to a voxel field and keeps the
// extracted surface in step with it.
package sculpt

import (
	"fmt"
	"math"
	"time"

	"github.com/chazu/tacit/pkg/kernel"
	"github.com/chazu/tacit/pkg/logging"
	"github.com/chazu/tacit/pkg/voxel"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// ToolMode is the edit the caller dispatches on a stroke.
type ToolMode int

const (
	Carving ToolMode = iota
	Adding
)

func (m ToolMode) String() string {
	switch m {
	case Carving:
		return "carving"
	case Adding:
		return "adding"
	}
	return fmt.Sprintf("ToolMode(%d)", int(m))
}

// Toggle returns the other mode.
func (m ToolMode) Toggle() ToolMode {
	if m == Carving {
		return Adding
	}
	return Carving
}

// Options configures an Editor.
type Options struct {
	ToolRadius int         // grid cells
	Shape      voxel.Shape // base shape restored by RegenerateSculpture
	ShapeSize  float64
	Log        *logrus.Entry
}

// Editor owns the mutable field and the mesh extracted from it.
type Editor struct {
	field     *voxel.Field
	extractor kernel.Extractor
	radius    int
	shape     voxel.Shape
	size      float64
	mode      ToolMode

	mesh        *kernel.Mesh
	extractions int
	log         *logrus.Entry
}

// New wraps field and extracts the initial mesh.
func New(field *voxel.Field, extractor kernel.Extractor, opts Options) (*Editor, error) {
	if field == nil || extractor == nil {
		return nil, fmt.Errorf("sculpt: field and extractor are required")
	}
	if opts.ToolRadius < 0 {
		return nil, fmt.Errorf("sculpt: tool radius must not be negative, got %d", opts.ToolRadius)
	}
	log := opts.Log
	if log == nil {
		log = logging.New("sculpt")
	}
	e := &Editor{
		field:     field,
		extractor: extractor,
		radius:    opts.ToolRadius,
		shape:     opts.Shape,
		size:      opts.ShapeSize,
		log:       log,
	}
	if err := e.rebuild(); err != nil {
		return nil, err
	}
	return e, nil
}

// Field returns the edited field. Callers must treat it as read-only.
func (e *Editor) Field() *voxel.Field { return e.field }

// Mesh returns the current surface. The returned mesh is never modified;
// each rebuild replaces it with a new one.
func (e *Editor) Mesh() *kernel.Mesh { return e.mesh }

// Extractions counts completed surface rebuilds, including the initial one.
func (e *Editor) Extractions() int { return e.extractions }

// ToolRadius returns the stroke radius in grid cells.
func (e *Editor) ToolRadius() int { return e.radius }

// SetToolRadius changes the stroke radius. Zero makes strokes no-ops.
func (e *Editor) SetToolRadius(r int) error {
	if r < 0 {
		return fmt.Errorf("sculpt: tool radius must not be negative, got %d", r)
	}
	e.radius = r
	return nil
}

func (e *Editor) ToolMode() ToolMode { return e.mode }

func (e *Editor) SetToolMode(m ToolMode) { e.mode = m }

// ToggleToolMode flips between carving and adding and returns the new mode.
func (e *Editor) ToggleToolMode() ToolMode {
	e.mode = e.mode.Toggle()
	return e.mode
}

// BaseShape returns the shape and size used by RegenerateSculpture.
func (e *Editor) BaseShape() (voxel.Shape, float64) { return e.shape, e.size }

// SetBaseShape changes the shape restored by the next RegenerateSculpture.
// The field is not touched.
func (e *Editor) SetBaseShape(shape voxel.Shape, size float64) error {
	if shape != voxel.ShapeCube && shape != voxel.ShapeSphere {
		return fmt.Errorf("sculpt: unknown shape %v", shape)
	}
	if size < 0 {
		return fmt.Errorf("sculpt: shape size must not be negative, got %g", size)
	}
	e.shape, e.size = shape, size
	return nil
}

// Carve empties solid cells within the tool radius of p and returns how many
// changed. The surface is rebuilt only when something changed.
func (e *Editor) Carve(p r3.Vec) (int, error) {
	return e.stroke(p, voxel.Inside, voxel.Outside)
}

// Add fills empty cells within the tool radius of p and returns how many
// changed. Cells beyond the grid are skipped.
func (e *Editor) Add(p r3.Vec) (int, error) {
	return e.stroke(p, voxel.Outside, voxel.Inside)
}

// Apply dispatches to Carve or Add by mode.
func (e *Editor) Apply(mode ToolMode, p r3.Vec) (int, error) {
	if mode == Adding {
		return e.Add(p)
	}
	return e.Carve(p)
}

// RegenerateSculpture restores the base shape and always rebuilds.
func (e *Editor) RegenerateSculpture() error {
	if err := e.field.Populate(e.shape, e.size); err != nil {
		return fmt.Errorf("sculpt: regenerate: %w", err)
	}
	return e.rebuild()
}

// Snapshot encodes the current field.
func (e *Editor) Snapshot() ([]byte, error) {
	return e.field.MarshalBinary()
}

// Restore loads a snapshot taken from a field with the same dimensions and
// rebuilds the surface.
func (e *Editor) Restore(data []byte) error {
	var f voxel.Field
	if err := f.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("sculpt: restore: %w", err)
	}
	w, h, l := f.Dims()
	ew, eh, el := e.field.Dims()
	if w != ew || h != eh || l != el {
		return fmt.Errorf("sculpt: restore: snapshot is %dx%dx%d, field is %dx%dx%d", w, h, l, ew, eh, el)
	}
	*e.field = f
	return e.rebuild()
}

// stroke flips cells holding from to to. A cell is in the stroke when the
// Euclidean grid distance from the stroke center to its integer coordinate
// is strictly less than the radius.
func (e *Editor) stroke(p r3.Vec, from, to float32) (int, error) {
	if e.radius <= 0 {
		return 0, nil
	}
	g := e.field.WorldToGrid(p)
	r := float64(e.radius)
	w, h, l := e.field.Dims()
	x0, x1 := span(g.X, r, w)
	y0, y1 := span(g.Y, r, h)
	z0, z1 := span(g.Z, r, l)

	changed := 0
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				d := r3.Norm(r3.Sub(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}, g))
				if d >= r {
					continue
				}
				v, err := e.field.Get(x, y, z)
				if err != nil {
					return changed, err
				}
				if v != from {
					continue
				}
				if err := e.field.Set(x, y, z, to); err != nil {
					return changed, err
				}
				changed++
			}
		}
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, e.rebuild()
}

// span returns the cells of [0, n) within r of c. An empty range has lo > hi.
func span(c, r float64, n int) (lo, hi int) {
	a, b := math.Max(math.Floor(c-r), 0), math.Min(math.Ceil(c+r), float64(n-1))
	if !(a <= b) {
		return 0, -1
	}
	return int(a), int(b)
}

// rebuild re-extracts the whole field. On failure the previous mesh stays.
func (e *Editor) rebuild() error {
	start := time.Now()
	m, err := e.extractor.Generate(e.field, e.field.Scale(), e.field.HeightOffset())
	if err != nil {
		e.log.WithError(err).Error("surface extraction failed")
		return fmt.Errorf("sculpt: extract: %w", err)
	}
	e.mesh = m
	e.extractions++
	e.log.WithFields(logrus.Fields{
		"extractor": e.extractor.Name(),
		"vertices":  m.VertexCount(),
		"elapsed":   time.Since(start),
	}).Debug("surface rebuilt")
	return nil
}
