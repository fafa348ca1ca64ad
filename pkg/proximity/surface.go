package proximity

import (
	"math"

	"github.com/chazu/tacit/pkg/kernel"
	"github.com/chazu/tacit/pkg/voxel"
	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// rayLength is how far above the query point the parity rays start.
	rayLength = 5000
	// boundsPad keeps flat triangles and point entries indexable.
	boundsPad = 1e-6
)

// rayDir leans slightly off vertical so parity rays rarely graze the
// grid-aligned edges of an extracted surface.
var rayDir = r3.Unit(r3.Vec{X: 0.0131, Y: 1, Z: 0.0071})

// indexedTriangle is a mesh triangle stored in the R-tree.
type indexedTriangle struct {
	p      [3]r3.Vec
	bounds rtreego.Rect
}

func (t *indexedTriangle) Bounds() rtreego.Rect { return t.bounds }

// surfaceVoxel is the center of a solid cell bordering empty space.
type surfaceVoxel struct {
	center r3.Vec
	bounds rtreego.Rect
}

func (v *surfaceVoxel) Bounds() rtreego.Rect { return v.bounds }

// Surface is an immutable spatial index over one extracted mesh and the
// field it came from. Rebuild it whenever the mesh is replaced.
type Surface struct {
	triangles *rtreego.Rtree
	voxels    *rtreego.Rtree
	cutoff    float64
}

// NewSurface indexes mesh triangles for ray parity and the surface voxels
// of field for distance queries. Distances beyond cutoff are reported as
// Far; a non-positive cutoff disables it. Either input may be nil.
func NewSurface(mesh *kernel.Mesh, field *voxel.Field, cutoff float64) *Surface {
	s := &Surface{cutoff: cutoff}

	var tris []rtreego.Spatial
	if mesh != nil {
		tris = make([]rtreego.Spatial, 0, mesh.TriangleCount())
		for t := 0; t < mesh.TriangleCount(); t++ {
			c := mesh.Triangle(t)
			it := &indexedTriangle{}
			lo := rtreego.Point{math.Inf(1), math.Inf(1), math.Inf(1)}
			hi := rtreego.Point{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
			for k := 0; k < 3; k++ {
				it.p[k] = r3.Vec{X: c[k][0], Y: c[k][1], Z: c[k][2]}
				for a := 0; a < 3; a++ {
					lo[a] = math.Min(lo[a], c[k][a])
					hi[a] = math.Max(hi[a], c[k][a])
				}
			}
			it.bounds = padded(lo, hi)
			tris = append(tris, it)
		}
	}
	s.triangles = rtreego.NewTree(3, 25, 50, tris...)

	var vox []rtreego.Spatial
	if field != nil {
		w, h, l := field.Dims()
		for z := 0; z < l; z++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					if !field.Solid(x, y, z) || !bordersEmpty(field, x, y, z) {
						continue
					}
					c := field.CellCenter(x, y, z)
					p := rtreego.Point{c.X, c.Y, c.Z}
					vox = append(vox, &surfaceVoxel{center: c, bounds: p.ToRect(boundsPad)})
				}
			}
		}
	}
	s.voxels = rtreego.NewTree(3, 25, 50, vox...)
	return s
}

// bordersEmpty reports whether any in-bounds cell of the 3x3x3 block around
// (x, y, z) is empty, i.e. the cell is a corner of a mixed cube.
func bordersEmpty(f *voxel.Field, x, y, z int) bool {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny, nz := x+dx, y+dy, z+dz
				if f.InBounds(nx, ny, nz) && !f.Solid(nx, ny, nz) {
					return true
				}
			}
		}
	}
	return false
}

func padded(lo, hi rtreego.Point) rtreego.Rect {
	lengths := make([]float64, len(lo))
	origin := make(rtreego.Point, len(lo))
	for i := range lo {
		origin[i] = lo[i] - boundsPad
		lengths[i] = hi[i] - lo[i] + 2*boundsPad
	}
	r, err := rtreego.NewRect(origin, lengths)
	if err != nil {
		// Lengths are positive by construction.
		panic(err)
	}
	return r
}

// TriangleCount returns the number of indexed mesh triangles.
func (s *Surface) TriangleCount() int { return s.triangles.Size() }

// VoxelCount returns the number of indexed surface voxels.
func (s *Surface) VoxelCount() int { return s.voxels.Size() }

// Contains reports whether p is inside the mesh by the even-odd rule. Two
// colinear rays run along the segment between p and a point far above it:
// the downward ray counts the triangles it strikes from the front, the
// upward ray counts those it strikes from the front on the way back, which
// together are every crossing of the segment.
func (s *Surface) Contains(p r3.Vec) bool {
	if s.triangles.Size() == 0 {
		return false
	}
	far := r3.Add(p, r3.Scale(rayLength, rayDir))
	lo := rtreego.Point{math.Min(p.X, far.X), math.Min(p.Y, far.Y), math.Min(p.Z, far.Z)}
	hi := rtreego.Point{math.Max(p.X, far.X), math.Max(p.Y, far.Y), math.Max(p.Z, far.Z)}
	candidates := s.triangles.SearchIntersect(padded(lo, hi))

	hits := castFront(far, p, candidates) + castFront(p, far, candidates)
	return hits%2 == 1
}

// castFront counts triangles the segment from -> to strikes on their
// front (counter-clockwise) side.
func castFront(from, to r3.Vec, candidates []rtreego.Spatial) int {
	dir := r3.Sub(to, from)
	n := 0
	for _, c := range candidates {
		if segmentHitsFront(from, dir, c.(*indexedTriangle).p) {
			n++
		}
	}
	return n
}

// segmentHitsFront is a one-sided Möller–Trumbore test restricted to the
// segment origin + t*dir, t in [0, 1].
func segmentHitsFront(origin, dir r3.Vec, tri [3]r3.Vec) bool {
	e1 := r3.Sub(tri[1], tri[0])
	e2 := r3.Sub(tri[2], tri[0])
	pv := r3.Cross(dir, e2)
	det := r3.Dot(e1, pv)
	if det <= 1e-12 {
		return false
	}
	tv := r3.Sub(origin, tri[0])
	u := r3.Dot(tv, pv)
	if u < 0 || u > det {
		return false
	}
	qv := r3.Cross(tv, e1)
	v := r3.Dot(dir, qv)
	if v < 0 || u+v > det {
		return false
	}
	t := r3.Dot(e2, qv)
	return t >= 0 && t <= det
}

// Distance returns the distance from p to the nearest surface voxel center,
// or Far when there is none within the cutoff.
func (s *Surface) Distance(p r3.Vec) float64 {
	if s.voxels.Size() == 0 {
		return Far
	}
	nn := s.voxels.NearestNeighbor(rtreego.Point{p.X, p.Y, p.Z})
	if nn == nil {
		return Far
	}
	d := r3.Norm(r3.Sub(p, nn.(*surfaceVoxel).center))
	if s.cutoff > 0 && d > s.cutoff {
		return Far
	}
	return d
}
