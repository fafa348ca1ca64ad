package marching

import "gonum.org/v1/gonum/spatial/r3"

// cubeTetrahedra splits a cube into six tetrahedra sharing the 0-6 diagonal.
// All six have the same handedness, so one case table serves them all.
var cubeTetrahedra = [6][4]int{
	{0, 5, 1, 6},
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
}

var tetraEdges = [6][2]int{
	{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 3}, {2, 3},
}

// tetraTriangles maps a 4-bit outside-vertex mask to triangle edge triples.
var tetraTriangles = [16][]uint8{
	{},
	{0, 3, 2},
	{0, 1, 4},
	{1, 4, 2, 2, 4, 3},
	{1, 2, 5},
	{0, 3, 5, 0, 5, 1},
	{0, 2, 5, 0, 5, 4},
	{5, 4, 3},
	{3, 4, 5},
	{4, 5, 0, 5, 2, 0},
	{1, 5, 0, 5, 3, 0},
	{5, 2, 1},
	{3, 4, 2, 2, 4, 1},
	{4, 1, 0},
	{2, 3, 0},
	{},
}

// tetrahedra emits the triangles of the six tetrahedra of the cube whose
// lowest corner is (x, y, z).
func (b *builder) tetrahedra(x, y, z int, v *[8]float32) {
	for _, tet := range cubeTetrahedra {
		vals := [4]float32{v[tet[0]], v[tet[1]], v[tet[2]], v[tet[3]]}
		tris := tetraTriangles[outsideMask(vals[:])]
		if len(tris) == 0 {
			continue
		}
		var pts [6]r3.Vec
		for e, c := range tetraEdges {
			pts[e] = tetraCrossing(x, y, z, tet[c[0]], tet[c[1]], v)
		}
		for i := 0; i < len(tris); i += 3 {
			b.triangle(pts[tris[i]], pts[tris[i+1]], pts[tris[i+2]])
		}
	}
}

// tetraCrossing interpolates along the cube edge or diagonal between corners
// a and b. Endpoints are ordered by grid position so that neighbouring
// tetrahedra compute the shared point identically.
func tetraCrossing(x, y, z, a, b int, v *[8]float32) r3.Vec {
	oa, ob := cornerOffsets[a], cornerOffsets[b]
	if oa[2] > ob[2] || (oa[2] == ob[2] && (oa[1] > ob[1] || (oa[1] == ob[1] && oa[0] > ob[0]))) {
		a, b = b, a
	}
	return crossing(corner(x, y, z, a), corner(x, y, z, b), v[a], v[b])
}
