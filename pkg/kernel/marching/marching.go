// Package marching implements kernel.Extractor with two isosurface
// strategies over a uniform occupancy grid: marching cubes and marching
// tetrahedra. Both wind triangles counter-clockwise seen from outside the
// material and never share vertices between triangles.
package marching

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/tacit/pkg/kernel"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Threshold is the level set extracted from the grid.
const Threshold = 0.5

// Strategy selects the cell subdivision used for triangulation.
type Strategy int

const (
	Cubes Strategy = iota
	Tetrahedra
)

func (s Strategy) String() string {
	switch s {
	case Cubes:
		return "cubes"
	case Tetrahedra:
		return "tetrahedra"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy accepts "cubes" or "tetrahedra" (and the singular forms).
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cubes", "cube":
		return Cubes, nil
	case "tetrahedra", "tetrahedron", "tetra":
		return Tetrahedra, nil
	}
	return 0, fmt.Errorf("marching: unknown strategy %q, expected cubes or tetrahedra", name)
}

// UnmarshalText lets Strategy be decoded from env vars and flags.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (s Strategy) MarshalText() ([]byte, error) {
	if s != Cubes && s != Tetrahedra {
		return nil, fmt.Errorf("marching: unknown strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// Compile-time interface check.
var _ kernel.Extractor = (*Extractor)(nil)

// Extractor triangulates grids with a fixed strategy.
type Extractor struct {
	strategy Strategy
	workers  int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWorkers splits the grid into that many z slabs extracted concurrently.
// Output is identical to the single-worker pass.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New returns an extractor for strategy.
func New(strategy Strategy, opts ...Option) (*Extractor, error) {
	if strategy != Cubes && strategy != Tetrahedra {
		return nil, fmt.Errorf("marching: unknown strategy %d", int(strategy))
	}
	e := &Extractor{strategy: strategy, workers: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name implements kernel.Extractor.
func (e *Extractor) Name() string {
	return "marching-" + e.strategy.String()
}

// Strategy returns the configured strategy.
func (e *Extractor) Strategy() Strategy {
	return e.strategy
}

// Generate implements kernel.Extractor. Uniform grids and grids thinner than
// two cells on any axis produce an empty mesh.
func (e *Extractor) Generate(g kernel.Grid, scale, heightOffset float64) (*kernel.Mesh, error) {
	w, h, l := g.Dims()
	vals := g.Values()
	if w < 0 || h < 0 || l < 0 || len(vals) != w*h*l {
		return nil, fmt.Errorf("marching: %d values for %dx%dx%d grid", len(vals), w, h, l)
	}
	mesh := &kernel.Mesh{Name: e.Name()}
	if w < 2 || h < 2 || l < 2 {
		return mesh, nil
	}

	c := cells{
		w: w, h: h, l: l,
		values: vals,
		scale:  scale,
		origin: r3.Vec{
			X: -float64(w) * scale / 2,
			Y: -float64(h)*scale/2 + heightOffset,
			Z: -float64(l) * scale / 2,
		},
	}

	slabs := l - 1
	workers := e.workers
	if workers > slabs {
		workers = slabs
	}
	parts := make([]*builder, workers)
	var eg errgroup.Group
	for i := range parts {
		z0, z1 := i*slabs/workers, (i+1)*slabs/workers
		b := &builder{cells: &c}
		parts[i] = b
		eg.Go(func() error {
			return e.slab(b, z0, z1)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Slabs are concatenated in z order. Every triangle owns its three
	// vertices, so rebased indices are simply 0..n-1.
	n := 0
	for _, b := range parts {
		n += len(b.vertices)
	}
	mesh.Vertices = make([]float32, 0, n)
	mesh.Normals = make([]float32, 0, n)
	for _, b := range parts {
		mesh.Vertices = append(mesh.Vertices, b.vertices...)
		mesh.Normals = append(mesh.Normals, b.normals...)
	}
	mesh.Indices = make([]uint32, n/3)
	for i := range mesh.Indices {
		mesh.Indices[i] = uint32(i)
	}
	return mesh, nil
}

// slab polygonises cubes whose lower z index lies in [z0, z1).
func (e *Extractor) slab(b *builder, z0, z1 int) error {
	c := b.cells
	for z := z0; z < z1; z++ {
		for y := 0; y < c.h-1; y++ {
			for x := 0; x < c.w-1; x++ {
				var cube [8]float32
				for i, o := range cornerOffsets {
					v := c.values[c.index(x+o[0], y+o[1], z+o[2])]
					if math.IsNaN(float64(v)) {
						return fmt.Errorf("marching: NaN occupancy at (%d, %d, %d)", x+o[0], y+o[1], z+o[2])
					}
					cube[i] = v
				}
				if e.strategy == Cubes {
					b.cube(x, y, z, &cube)
				} else {
					b.tetrahedra(x, y, z, &cube)
				}
			}
		}
	}
	return nil
}

// cells is the read-only grid plus its world transform.
type cells struct {
	w, h, l int
	values  []float32
	scale   float64
	origin  r3.Vec
}

func (c *cells) index(x, y, z int) int {
	return x + y*c.w + z*c.w*c.h
}

// world maps continuous grid coordinates to world space.
func (c *cells) world(p r3.Vec) r3.Vec {
	return r3.Add(r3.Scale(c.scale, p), c.origin)
}

// builder accumulates the triangles of one slab.
type builder struct {
	cells    *cells
	vertices []float32
	normals  []float32
}

// crossing interpolates the threshold crossing on the segment a-b,
// given in grid coordinates.
func crossing(a, b r3.Vec, va, vb float32) r3.Vec {
	t := 0.5
	if d := vb - va; d != 0 {
		t = (Threshold - float64(va)) / float64(d)
	}
	return r3.Add(r3.Scale(1-t, a), r3.Scale(t, b))
}

// triangle appends one triangle given in grid coordinates.
func (b *builder) triangle(p0, p1, p2 r3.Vec) {
	w0, w1, w2 := b.cells.world(p0), b.cells.world(p1), b.cells.world(p2)
	n := r3.Cross(r3.Sub(w1, w0), r3.Sub(w2, w0))
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	}
	for _, w := range [3]r3.Vec{w0, w1, w2} {
		b.vertices = append(b.vertices, float32(w.X), float32(w.Y), float32(w.Z))
		b.normals = append(b.normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
}

// cornerOffsets places cube corners 0-3 on the z=0 face (counter-clockwise
// seen from +z) and 4-7 directly above them.
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

func corner(x, y, z, i int) r3.Vec {
	o := cornerOffsets[i]
	return r3.Vec{X: float64(x + o[0]), Y: float64(y + o[1]), Z: float64(z + o[2])}
}

// outsideMask sets bit i for each of the n corners below the threshold.
func outsideMask(v []float32) int {
	m := 0
	for i, x := range v {
		if x < Threshold {
			m |= 1 << i
		}
	}
	return m
}
