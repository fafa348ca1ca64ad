// Package voxel holds the dense occupancy grid that the sculpting session
// edits. Cells are either empty (0) or solid (1); the extraction threshold
// sits halfway between at 0.5.
package voxel

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Occupancy values.
const (
	Outside float32 = 0
	Inside  float32 = 1
	Surface float32 = 0.5
)

var (
	// ErrOutOfBounds is returned for grid coordinates outside the field.
	ErrOutOfBounds = errors.New("voxel: coordinates out of bounds")
	// ErrInvalidOccupancy is returned when writing anything other than 0 or 1.
	ErrInvalidOccupancy = errors.New("voxel: occupancy must be 0 or 1")
)

// MaxResolution bounds cells per axis so width*height*length always fits
// in an int and a single allocation.
const MaxResolution = 1024

// Spec is the immutable per-session description of a field.
type Spec struct {
	Resolution   int     // cells per axis
	PlayAreaSize float64 // world edge length covered by the grid
	Shape        Shape   // base shape used by New and regenerate
	ShapeSize    float64 // cube edge or sphere diameter in world units
}

// Validate reports the first problem with the spec.
func (s Spec) Validate() error {
	if s.Resolution <= 0 || s.Resolution > MaxResolution {
		return fmt.Errorf("voxel: resolution must be in [1, %d], got %d", MaxResolution, s.Resolution)
	}
	if s.PlayAreaSize <= 0 {
		return fmt.Errorf("voxel: play area size must be positive, got %g", s.PlayAreaSize)
	}
	if s.ShapeSize < 0 {
		return fmt.Errorf("voxel: shape size must not be negative, got %g", s.ShapeSize)
	}
	if !s.Shape.valid() {
		return fmt.Errorf("voxel: unknown shape %d", s.Shape)
	}
	return nil
}

// Field is a dense scalar grid indexed x + y*width + z*width*height.
type Field struct {
	width, height, length int
	scale                 float64
	heightOffset          float64
	values                []float32
}

// New allocates a field for spec and populates it with the spec's base shape.
func New(spec Spec) (*Field, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	n := spec.Resolution
	f := &Field{
		width:        n,
		height:       n,
		length:       n,
		scale:        spec.PlayAreaSize / float64(n),
		heightOffset: spec.PlayAreaSize / 2,
		values:       make([]float32, n*n*n),
	}
	if err := f.Populate(spec.Shape, spec.ShapeSize); err != nil {
		return nil, err
	}
	return f, nil
}

// Dims returns the grid resolution per axis.
func (f *Field) Dims() (w, h, l int) {
	return f.width, f.height, f.length
}

// Len returns the number of cells.
func (f *Field) Len() int {
	return len(f.values)
}

// Values exposes the backing array for read-only consumers such as extractors.
// Callers must not modify it.
func (f *Field) Values() []float32 {
	return f.values
}

// Scale is the world edge length of one cell.
func (f *Field) Scale() float64 {
	return f.scale
}

// HeightOffset is the vertical shift applied to the grid in world space.
func (f *Field) HeightOffset() float64 {
	return f.heightOffset
}

// InBounds reports whether (x, y, z) addresses a cell.
func (f *Field) InBounds(x, y, z int) bool {
	return x >= 0 && x < f.width &&
		y >= 0 && y < f.height &&
		z >= 0 && z < f.length
}

// Index maps grid coordinates to the flat array offset.
func (f *Field) Index(x, y, z int) (int, error) {
	if !f.InBounds(x, y, z) {
		return 0, fmt.Errorf("%w: (%d, %d, %d) in %dx%dx%d", ErrOutOfBounds, x, y, z, f.width, f.height, f.length)
	}
	return x + y*f.width + z*f.width*f.height, nil
}

// Coords is the inverse of Index.
func (f *Field) Coords(idx int) (x, y, z int, err error) {
	if idx < 0 || idx >= len(f.values) {
		return 0, 0, 0, fmt.Errorf("%w: index %d of %d", ErrOutOfBounds, idx, len(f.values))
	}
	plane := f.width * f.height
	z = idx / plane
	rem := idx % plane
	return rem % f.width, rem / f.width, z, nil
}

// Get returns the occupancy at (x, y, z).
func (f *Field) Get(x, y, z int) (float32, error) {
	idx, err := f.Index(x, y, z)
	if err != nil {
		return 0, err
	}
	return f.values[idx], nil
}

// Set writes occupancy v at (x, y, z). Only Outside and Inside are accepted.
func (f *Field) Set(x, y, z int, v float32) error {
	if v != Outside && v != Inside {
		return fmt.Errorf("%w: got %g", ErrInvalidOccupancy, v)
	}
	idx, err := f.Index(x, y, z)
	if err != nil {
		return err
	}
	f.values[idx] = v
	return nil
}

// Solid reports whether the cell is at or above the surface threshold.
// Out-of-bounds cells are empty.
func (f *Field) Solid(x, y, z int) bool {
	v, err := f.Get(x, y, z)
	return err == nil && v >= Surface
}

// CellCenter returns the world-space center of cell (x, y, z).
func (f *Field) CellCenter(x, y, z int) r3.Vec {
	return r3.Vec{
		X: float64(x)*f.scale - float64(f.width)*f.scale/2,
		Y: float64(y)*f.scale - float64(f.height)*f.scale/2 + f.heightOffset,
		Z: float64(z)*f.scale - float64(f.length)*f.scale/2,
	}
}

// WorldToGrid converts a world position to continuous grid coordinates.
// The result is not clamped; callers check bounds before indexing.
func (f *Field) WorldToGrid(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: p.X/f.scale + float64(f.width)/2,
		Y: (p.Y-f.heightOffset)/f.scale + float64(f.height)/2,
		Z: p.Z/f.scale + float64(f.length)/2,
	}
}

// Count returns the number of solid cells.
func (f *Field) Count() int {
	n := 0
	for _, v := range f.values {
		if v >= Surface {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	c := *f
	c.values = append([]float32(nil), f.values...)
	return &c
}

// Fingerprint hashes the occupancy array. Two fields with equal dimensions
// and equal fingerprints are, for practical purposes, identical.
func (f *Field) Fingerprint() uint64 {
	return xxhash.Sum64(f.packBits())
}
