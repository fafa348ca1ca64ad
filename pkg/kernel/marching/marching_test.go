package marching

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/tacit/pkg/kernel"
)

// testGrid is a plain kernel.Grid for feeding hand-built fields.
type testGrid struct {
	w, h, l int
	v       []float32
}

func (g *testGrid) Dims() (int, int, int) { return g.w, g.h, g.l }
func (g *testGrid) Values() []float32     { return g.v }

func newGrid(n int, solid func(x, y, z int) bool) *testGrid {
	g := &testGrid{w: n, h: n, l: n, v: make([]float32, n*n*n)}
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if solid(x, y, z) {
					g.v[x+y*n+z*n*n] = 1
				}
			}
		}
	}
	return g
}

// ball is a sphere of solid voxels that never touches the grid border.
func ball(n int) *testGrid {
	c := float64(n-1) / 2
	r := c - 1.5
	return newGrid(n, func(x, y, z int) bool {
		dx, dy, dz := float64(x)-c, float64(y)-c+0.3, float64(z)-c-0.2
		return dx*dx+dy*dy+dz*dz < r*r
	})
}

// speckle is a deterministic noisy field with an empty border, exercising
// every cube configuration including the ambiguous ones.
func speckle(n int) *testGrid {
	return newGrid(n, func(x, y, z int) bool {
		if x == 0 || y == 0 || z == 0 || x == n-1 || y == n-1 || z == n-1 {
			return false
		}
		h := uint32(x*73856093) ^ uint32(y*19349663) ^ uint32(z*83492791)
		h ^= h >> 13
		h *= 0x5bd1e995
		h ^= h >> 15
		return h&1 == 1
	})
}

func mustExtractor(t *testing.T, s Strategy, opts ...Option) *Extractor {
	t.Helper()
	e, err := New(s, opts...)
	if err != nil {
		t.Fatalf("New(%v) failed: %v", s, err)
	}
	return e
}

var strategies = []Strategy{Cubes, Tetrahedra}

func TestUniformFieldIsEmpty(t *testing.T) {
	for _, s := range strategies {
		for _, fill := range []bool{false, true} {
			e := mustExtractor(t, s)
			g := newGrid(6, func(int, int, int) bool { return fill })
			m, err := e.Generate(g, 0.1, 1)
			if err != nil {
				t.Fatalf("%v fill=%v: Generate failed: %v", s, fill, err)
			}
			if !m.IsEmpty() || m.TriangleCount() != 0 {
				t.Errorf("%v fill=%v: got %d triangles, want 0", s, fill, m.TriangleCount())
			}
		}
	}
}

func TestThinGridIsEmpty(t *testing.T) {
	e := mustExtractor(t, Cubes)
	g := &testGrid{w: 1, h: 4, l: 4, v: make([]float32, 16)}
	g.v[5] = 1
	m, err := e.Generate(g, 1, 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !m.IsEmpty() {
		t.Errorf("got %d vertices for a one-cell-thick grid, want 0", m.VertexCount())
	}
}

func TestGenerateRejectsBadGrid(t *testing.T) {
	e := mustExtractor(t, Cubes)
	_, err := e.Generate(&testGrid{w: 3, h: 3, l: 3, v: make([]float32, 5)}, 1, 0)
	if err == nil || !strings.Contains(err.Error(), "values for") {
		t.Errorf("Generate() error = %v, want size mismatch", err)
	}

	g := newGrid(3, func(int, int, int) bool { return false })
	g.v[13] = float32(math.NaN())
	if _, err := e.Generate(g, 1, 0); err == nil || !strings.Contains(err.Error(), "NaN") {
		t.Errorf("Generate() error = %v, want NaN rejection", err)
	}
}

type vkey [3]float32

func key(m *kernel.Mesh, i uint32) vkey {
	return vkey{m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2]}
}

// checkClosed verifies every directed edge is matched by its reverse, which
// holds only for a closed, consistently wound surface.
func checkClosed(t *testing.T, m *kernel.Mesh) {
	t.Helper()
	edges := make(map[[2]vkey]int)
	for tri := 0; tri < m.TriangleCount(); tri++ {
		for k := 0; k < 3; k++ {
			a := key(m, m.Indices[3*tri+k])
			b := key(m, m.Indices[3*tri+(k+1)%3])
			edges[[2]vkey{a, b}]++
		}
	}
	for e, n := range edges {
		if rev := edges[[2]vkey{e[1], e[0]}]; rev != n {
			t.Fatalf("edge %v used %d times but its reverse %d times", e, n, rev)
		}
	}
}

// signedVolume is positive when triangles wind counter-clockwise seen from
// outside.
func signedVolume(m *kernel.Mesh) float64 {
	vol := 0.0
	for tri := 0; tri < m.TriangleCount(); tri++ {
		p := m.Triangle(tri)
		a, b, c := p[0], p[1], p[2]
		vol += a[0]*(b[1]*c[2]-b[2]*c[1]) - a[1]*(b[0]*c[2]-b[2]*c[0]) + a[2]*(b[0]*c[1]-b[1]*c[0])
	}
	return vol / 6
}

func TestSurfaceClosedAndOutward(t *testing.T) {
	fields := map[string]*testGrid{"ball": ball(12), "speckle": speckle(10)}
	for _, s := range strategies {
		for name, g := range fields {
			t.Run(s.String()+"/"+name, func(t *testing.T) {
				m, err := mustExtractor(t, s).Generate(g, 0.05, 1)
				if err != nil {
					t.Fatalf("Generate failed: %v", err)
				}
				if m.IsEmpty() {
					t.Fatal("expected a surface")
				}
				if err := m.Validate(); err != nil {
					t.Fatalf("invalid mesh: %v", err)
				}
				if len(m.Indices) != m.VertexCount() {
					t.Errorf("%d indices for %d vertices, want one vertex per corner", len(m.Indices), m.VertexCount())
				}
				checkClosed(t, m)
				if v := signedVolume(m); v <= 0 {
					t.Errorf("signed volume = %g, want > 0", v)
				}
			})
		}
	}
}

func TestTetrahedraProducesMoreGeometry(t *testing.T) {
	g := ball(12)
	mc, err := mustExtractor(t, Cubes).Generate(g, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	mt, err := mustExtractor(t, Tetrahedra).Generate(g, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if mt.VertexCount() <= mc.VertexCount() {
		t.Errorf("tetrahedra vertices = %d, cubes = %d; want more from tetrahedra", mt.VertexCount(), mc.VertexCount())
	}
}

func TestVerticesLieBetweenVoxelCenters(t *testing.T) {
	const scale = 0.25
	g := newGrid(5, func(x, y, z int) bool { return x == 2 && y == 2 && z == 2 })
	for _, s := range strategies {
		m, err := mustExtractor(t, s).Generate(g, scale, 0)
		if err != nil {
			t.Fatalf("%v: Generate failed: %v", s, err)
		}
		if m.IsEmpty() {
			t.Fatalf("%v: expected geometry around the lone voxel", s)
		}
		// Voxel (2,2,2) sits at world 2*scale - 5*scale/2 = -scale/2 on every axis.
		center := -scale / 2
		for i := 0; i < m.VertexCount(); i++ {
			v := m.Vertex(i)
			nonzero := 0
			for k := 0; k < 3; k++ {
				d := (v[k] - center) / scale
				switch {
				case math.Abs(d) < 1e-6:
				case math.Abs(math.Abs(d)-0.5) < 1e-6:
					nonzero++
				default:
					t.Fatalf("%v: vertex %v is not midway to a neighbouring center (offset %g)", s, v, d)
				}
			}
			if nonzero == 0 {
				t.Fatalf("%v: vertex %v coincides with the voxel center", s, v)
			}
		}
	}
}

func TestInterpolationUsesThreshold(t *testing.T) {
	// Corners at x=0 hold 1.0, corners at x=1 hold 0.25: the crossing sits
	// two thirds of the way along x.
	g := &testGrid{w: 2, h: 2, l: 2, v: []float32{1, 0.25, 1, 0.25, 1, 0.25, 1, 0.25}}
	m, err := mustExtractor(t, Cubes).Generate(g, 1, 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if m.TriangleCount() != 2 {
		t.Fatalf("TriangleCount() = %d, want 2", m.TriangleCount())
	}
	want := 2.0/3.0 - 1 // grid 2/3 shifted by -w*scale/2
	for i := 0; i < m.VertexCount(); i++ {
		if x := m.Vertex(i)[0]; math.Abs(x-want) > 1e-6 {
			t.Errorf("vertex %d x = %g, want %g", i, x, want)
		}
		if nx := m.Normals[3*i]; nx < 0.999 {
			t.Errorf("normal %d x = %g, want +1 (pointing toward empty side)", i, nx)
		}
	}
}

func TestHeightOffsetApplied(t *testing.T) {
	g := ball(10)
	base, err := mustExtractor(t, Cubes).Generate(g, 0.1, 0)
	if err != nil {
		t.Fatal(err)
	}
	lifted, err := mustExtractor(t, Cubes).Generate(g, 0.1, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < base.VertexCount(); i++ {
		a, b := base.Vertex(i), lifted.Vertex(i)
		if a[0] != b[0] || a[2] != b[2] || math.Abs(b[1]-a[1]-2) > 1e-5 {
			t.Fatalf("vertex %d: %v lifted to %v, want +2 on Y only", i, a, b)
		}
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	g := speckle(14)
	for _, s := range strategies {
		serial, err := mustExtractor(t, s).Generate(g, 0.05, 1)
		if err != nil {
			t.Fatal(err)
		}
		for _, workers := range []int{2, 3, 7, 64} {
			par, err := mustExtractor(t, s, WithWorkers(workers)).Generate(g, 0.05, 1)
			if err != nil {
				t.Fatalf("%v workers=%d: Generate failed: %v", s, workers, err)
			}
			if len(par.Vertices) != len(serial.Vertices) || len(par.Indices) != len(serial.Indices) {
				t.Fatalf("%v workers=%d: %d/%d floats/indices, want %d/%d", s, workers,
					len(par.Vertices), len(par.Indices), len(serial.Vertices), len(serial.Indices))
			}
			for i := range serial.Vertices {
				if par.Vertices[i] != serial.Vertices[i] || par.Normals[i] != serial.Normals[i] {
					t.Fatalf("%v workers=%d: float %d differs", s, workers, i)
				}
			}
			for i := range serial.Indices {
				if par.Indices[i] != serial.Indices[i] {
					t.Fatalf("%v workers=%d: index %d differs", s, workers, i)
				}
			}
		}
	}
}

func TestCubeTableShape(t *testing.T) {
	if len(cubeTriangles[0]) != 0 || len(cubeTriangles[255]) != 0 {
		t.Error("uniform configurations must produce no triangles")
	}
	for mask, tris := range cubeTriangles {
		if len(tris)%3 != 0 {
			t.Fatalf("case %#02x has %d edge entries", mask, len(tris))
		}
		if len(tris) > 3*5 {
			t.Errorf("case %#02x has %d triangles, want at most 5", mask, len(tris)/3)
		}
	}
	// One solid corner yields one triangle cutting it off.
	if got := len(cubeTriangles[0xfe]); got != 3 {
		t.Errorf("single-corner case has %d entries, want 3", got)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"cubes", Cubes, false},
		{"Tetrahedra", Tetrahedra, false},
		{"tetra", Tetrahedra, false},
		{"dual", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var s Strategy
			err := s.UnmarshalText([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalText(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && s != tt.want {
				t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, s, tt.want)
			}
		})
	}
	if _, err := New(Strategy(9)); err == nil {
		t.Error("New(9) succeeded, want error")
	}
}

func TestName(t *testing.T) {
	e := mustExtractor(t, Tetrahedra)
	if e.Name() != "marching-tetrahedra" {
		t.Errorf("Name() = %q, want marching-tetrahedra", e.Name())
	}
}
