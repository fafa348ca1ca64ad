package voxel

import (
	"fmt"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Shape selects the primitive a field is reset to.
type Shape int

const (
	ShapeCube Shape = iota
	ShapeSphere
)

func (s Shape) String() string {
	switch s {
	case ShapeCube:
		return "cube"
	case ShapeSphere:
		return "sphere"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

func (s Shape) valid() bool {
	return s == ShapeCube || s == ShapeSphere
}

// ParseShape accepts "cube" or "sphere", case-insensitively.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cube":
		return ShapeCube, nil
	case "sphere":
		return ShapeSphere, nil
	}
	return 0, fmt.Errorf("voxel: unknown shape %q, expected cube or sphere", name)
}

// UnmarshalText lets Shape be decoded from env vars and flags.
func (s *Shape) UnmarshalText(text []byte) error {
	v, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (s Shape) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("voxel: unknown shape %d", int(s))
	}
	return []byte(s.String()), nil
}

// SDF builds the signed distance function of shape with the given size,
// centred at (0, heightOffset, 0). Negative values are strictly inside.
func SDF(shape Shape, size, heightOffset float64) (sdf.SDF3, error) {
	var (
		s   sdf.SDF3
		err error
	)
	switch shape {
	case ShapeCube:
		s, err = sdf.Box3D(v3.Vec{X: size, Y: size, Z: size}, 0)
	case ShapeSphere:
		s, err = sdf.Sphere3D(size / 2)
	default:
		return nil, fmt.Errorf("voxel: unknown shape %d", int(shape))
	}
	if err != nil {
		return nil, fmt.Errorf("voxel: %s sdf: %w", shape, err)
	}
	return sdf.Transform3D(s, sdf.Translate3d(v3.Vec{Y: heightOffset})), nil
}

// Populate resets every cell: solid iff the cell's world center lies strictly
// inside shape. Running it twice with the same arguments yields the same grid.
func (f *Field) Populate(shape Shape, size float64) error {
	if size <= 0 {
		for i := range f.values {
			f.values[i] = Outside
		}
		return nil
	}
	s, err := SDF(shape, size, f.heightOffset)
	if err != nil {
		return err
	}
	for z := 0; z < f.length; z++ {
		for y := 0; y < f.height; y++ {
			for x := 0; x < f.width; x++ {
				c := f.CellCenter(x, y, z)
				v := Outside
				if s.Evaluate(v3.Vec{X: c.X, Y: c.Y, Z: c.Z}) < 0 {
					v = Inside
				}
				f.values[x+y*f.width+z*f.width*f.height] = v
			}
		}
	}
	return nil
}
