package kernel

import (
	"fmt"
	"math"
)

// DefaultMaxChunkVerts is the per-drawable vertex cap used when the renderer
// does not ask for something else.
const DefaultMaxChunkVerts = 30000

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
// Vertices are never shared between triangles.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Name     string    `json:"name"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i as float64 components.
func (m *Mesh) Vertex(i int) [3]float64 {
	return [3]float64{
		float64(m.Vertices[3*i]),
		float64(m.Vertices[3*i+1]),
		float64(m.Vertices[3*i+2]),
	}
}

// Triangle returns the three corners of triangle t.
func (m *Mesh) Triangle(t int) [3][3]float64 {
	return [3][3]float64{
		m.Vertex(int(m.Indices[3*t])),
		m.Vertex(int(m.Indices[3*t+1])),
		m.Vertex(int(m.Indices[3*t+2])),
	}
}

// Bounds returns the axis-aligned bounding box of all vertices.
// Both corners are zero for an empty mesh.
func (m *Mesh) Bounds() (min, max [3]float64) {
	if m.IsEmpty() {
		return min, max
	}
	min = m.Vertex(0)
	max = min
	for i := 1; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		for k := 0; k < 3; k++ {
			min[k] = math.Min(min[k], v[k])
			max[k] = math.Max(max[k], v[k])
		}
	}
	return min, max
}

// Validate checks the structural invariants: whole triangles, indices in
// range, normals parallel to vertices, and no NaN coordinates.
func (m *Mesh) Validate() error {
	if len(m.Vertices)%3 != 0 {
		return fmt.Errorf("mesh %q: %d vertex floats is not a multiple of 3", m.Name, len(m.Vertices))
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh %q: %d indices is not a multiple of 3", m.Name, len(m.Indices))
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Vertices) {
		return fmt.Errorf("mesh %q: %d normal floats for %d vertex floats", m.Name, len(m.Normals), len(m.Vertices))
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Indices {
		if idx >= n {
			return fmt.Errorf("mesh %q: index %d at %d out of range [0,%d)", m.Name, idx, i, n)
		}
	}
	for i, v := range m.Vertices {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("mesh %q: non-finite coordinate at %d", m.Name, i)
		}
	}
	return nil
}

// Partition slices the mesh into independent chunks of at most maxVerts
// vertices each. Chunk k takes vertices [k*maxVerts, (k+1)*maxVerts) and
// renumbers its indices locally as 0..n-1, so a triangle straddling a
// boundary is cut when maxVerts is not a multiple of 3. Empty chunks are
// skipped. A non-positive maxVerts returns the mesh unchanged.
func (m *Mesh) Partition(maxVerts int) []*Mesh {
	total := m.VertexCount()
	if maxVerts <= 0 || total <= maxVerts {
		if total == 0 {
			return nil
		}
		return []*Mesh{m}
	}
	chunks := make([]*Mesh, 0, total/maxVerts+1)
	for start := 0; start < total; start += maxVerts {
		end := start + maxVerts
		if end > total {
			end = total
		}
		n := end - start
		c := &Mesh{
			Vertices: m.Vertices[3*start : 3*end],
			Indices:  make([]uint32, n-n%3),
			Name:     fmt.Sprintf("%s#%d", m.Name, len(chunks)),
		}
		if len(m.Normals) == len(m.Vertices) {
			c.Normals = m.Normals[3*start : 3*end]
		}
		for j := range c.Indices {
			c.Indices[j] = uint32(j)
		}
		chunks = append(chunks, c)
	}
	return chunks
}
