// Package sdfx bridges occupancy grids and meshes to the
// github.com/deadsy/sdfx SDF-based CAD library: a grid can be sampled as an
// sdf.SDF3 and meshed by sdfx renderers, and meshes convert to sdfx
// triangles for its STL writer.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/tacit/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ sdf.SDF3         = (*GridSDF)(nil)
	_ kernel.Extractor = (*Extractor)(nil)
)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// GridSDF samples a grid as a signed field: trilinear occupancy is
// interpolated at the query point and 0.5 minus it is returned, so solid
// regions are negative. Points outside the grid read as empty.
type GridSDF struct {
	w, h, l      int
	values       []float32
	scale        float64
	heightOffset float64
	bb           sdf.Box3
}

// NewGridSDF wraps g with the world transform used by the extractors.
func NewGridSDF(g kernel.Grid, scale, heightOffset float64) (*GridSDF, error) {
	w, h, l := g.Dims()
	vals := g.Values()
	if len(vals) != w*h*l || w == 0 || h == 0 || l == 0 {
		return nil, fmt.Errorf("sdfx: %d values for %dx%dx%d grid", len(vals), w, h, l)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("sdfx: scale must be positive, got %g", scale)
	}
	s := &GridSDF{w: w, h: h, l: l, values: vals, scale: scale, heightOffset: heightOffset}
	// One cell of margin so the renderer closes surfaces touching the border.
	s.bb = sdf.Box3{
		Min: s.world(-1, -1, -1),
		Max: s.world(float64(w), float64(h), float64(l)),
	}
	return s, nil
}

func (s *GridSDF) world(x, y, z float64) v3.Vec {
	return v3.Vec{
		X: x*s.scale - float64(s.w)*s.scale/2,
		Y: y*s.scale - float64(s.h)*s.scale/2 + s.heightOffset,
		Z: z*s.scale - float64(s.l)*s.scale/2,
	}
}

func (s *GridSDF) at(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= s.w || y >= s.h || z >= s.l {
		return 0
	}
	return float64(s.values[x+y*s.w+z*s.w*s.h])
}

// Evaluate returns 0.5 minus the interpolated occupancy at p.
func (s *GridSDF) Evaluate(p v3.Vec) float64 {
	gx := p.X/s.scale + float64(s.w)/2
	gy := (p.Y-s.heightOffset)/s.scale + float64(s.h)/2
	gz := p.Z/s.scale + float64(s.l)/2
	x0, y0, z0 := math.Floor(gx), math.Floor(gy), math.Floor(gz)
	fx, fy, fz := gx-x0, gy-y0, gz-z0
	ix, iy, iz := int(x0), int(y0), int(z0)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	c00 := lerp(s.at(ix, iy, iz), s.at(ix+1, iy, iz), fx)
	c10 := lerp(s.at(ix, iy+1, iz), s.at(ix+1, iy+1, iz), fx)
	c01 := lerp(s.at(ix, iy, iz+1), s.at(ix+1, iy, iz+1), fx)
	c11 := lerp(s.at(ix, iy+1, iz+1), s.at(ix+1, iy+1, iz+1), fx)
	occ := lerp(lerp(c00, c10, fy), lerp(c01, c11, fy), fz)
	return 0.5 - occ
}

// BoundingBox returns the world-space box covered by the grid plus one cell.
func (s *GridSDF) BoundingBox() sdf.Box3 {
	return s.bb
}

// Extractor meshes grids through sdfx's uniform marching cubes renderer.
// It resamples the grid, so it suits offline export rather than the
// interactive edit loop.
type Extractor struct {
	cells int
}

// New returns an Extractor sampling the longest bounding box side with
// cells steps. Non-positive values use the default.
func New(cells int) *Extractor {
	if cells <= 0 {
		cells = defaultMeshCells
	}
	return &Extractor{cells: cells}
}

// Name implements kernel.Extractor.
func (e *Extractor) Name() string {
	return "sdfx"
}

// Generate implements kernel.Extractor.
func (e *Extractor) Generate(g kernel.Grid, scale, heightOffset float64) (*kernel.Mesh, error) {
	s, err := NewGridSDF(g, scale, heightOffset)
	if err != nil {
		return nil, err
	}
	renderer := render.NewMarchingCubesUniform(e.cells)
	m := FromTriangles(render.ToTriangles(s, renderer))
	m.Name = e.Name()
	return m, nil
}

// FromTriangles flattens sdfx triangles into a mesh with unshared vertices
// and per-face normals.
func FromTriangles(triangles []*sdf.Triangle3) *kernel.Mesh {
	m := &kernel.Mesh{
		Vertices: make([]float32, 9*len(triangles)),
		Normals:  make([]float32, 9*len(triangles)),
		Indices:  make([]uint32, 3*len(triangles)),
	}
	for t, tri := range triangles {
		n := tri.Normal()
		for c, v := range tri {
			k := 3*t + c
			copy(m.Vertices[3*k:], []float32{float32(v.X), float32(v.Y), float32(v.Z)})
			copy(m.Normals[3*k:], []float32{float32(n.X), float32(n.Y), float32(n.Z)})
			m.Indices[k] = uint32(k)
		}
	}
	return m
}

// ToTriangles converts a mesh to sdfx triangles. Degenerate triangles are
// kept; sdfx writers accept them.
func ToTriangles(m *kernel.Mesh) []*sdf.Triangle3 {
	out := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for t := 0; t < m.TriangleCount(); t++ {
		p := m.Triangle(t)
		tri := &sdf.Triangle3{
			{X: p[0][0], Y: p[0][1], Z: p[0][2]},
			{X: p[1][0], Y: p[1][1], Z: p[1][2]},
			{X: p[2][0], Y: p[2][1], Z: p[2][2]},
		}
		out = append(out, tri)
	}
	return out
}
