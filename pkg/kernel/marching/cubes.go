package marching

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// cubeEdges lists the 12 cube edges, each pointing along a positive axis.
var cubeEdges = [12][2]int{
	{0, 1}, {1, 2}, {3, 2}, {0, 3},
	{4, 5}, {5, 6}, {7, 6}, {4, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// cubeFaces lists the corners of each face counter-clockwise seen from
// outside the cube.
var cubeFaces = [6][4]int{
	{0, 3, 2, 1}, // z = 0
	{4, 5, 6, 7}, // z = 1
	{0, 1, 5, 4}, // y = 0
	{3, 7, 6, 2}, // y = 1
	{0, 4, 7, 3}, // x = 0
	{1, 2, 6, 5}, // x = 1
}

// cubeTriangles maps an outside-corner mask to triangle edge triples.
var cubeTriangles [256][]uint8

func init() {
	var edgeOf [8][8]int
	for i := range edgeOf {
		for j := range edgeOf[i] {
			edgeOf[i][j] = -1
		}
	}
	for e, c := range cubeEdges {
		edgeOf[c[0]][c[1]] = e
		edgeOf[c[1]][c[0]] = e
	}
	for mask := range cubeTriangles {
		cubeTriangles[mask] = cubeCase(mask, &edgeOf)
	}
}

// cubeCase derives the triangles for one corner configuration from the face
// topology. On each face the surface runs from every crossing where the walk
// enters material to the next crossing where it leaves, so faces with two
// diagonal solid corners keep those corners apart. Neighbouring cubes see
// the same face rule, which keeps the extracted surface closed. The face
// segments chain into loops around the cube, and each loop is fanned.
func cubeCase(mask int, edgeOf *[8][8]int) []uint8 {
	inside := func(c int) bool { return mask&(1<<c) == 0 }

	next := [12]int{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	for _, f := range cubeFaces {
		var cross [4]int
		var enter [4]bool
		n := 0
		for i := 0; i < 4; i++ {
			a, b := f[i], f[(i+1)%4]
			if inside(a) != inside(b) {
				cross[n] = edgeOf[a][b]
				enter[n] = inside(b)
				n++
			}
		}
		for i := 0; i < n; i++ {
			if enter[i] {
				next[cross[i]] = cross[(i+1)%n]
			}
		}
	}

	var tris []uint8
	var seen [12]bool
	for e := range next {
		if next[e] < 0 || seen[e] {
			continue
		}
		var loop []uint8
		c := e
		for !seen[c] {
			seen[c] = true
			loop = append(loop, uint8(c))
			c = next[c]
			if c < 0 {
				panic(fmt.Sprintf("marching: open surface loop in cube case %#02x", mask))
			}
		}
		if c != e {
			panic(fmt.Sprintf("marching: tangled surface loop in cube case %#02x", mask))
		}
		for i := 1; i+1 < len(loop); i++ {
			tris = append(tris, loop[0], loop[i], loop[i+1])
		}
	}
	return tris
}

// cube emits the triangles of the cube whose lowest corner is (x, y, z).
func (b *builder) cube(x, y, z int, v *[8]float32) {
	tris := cubeTriangles[outsideMask(v[:])]
	if len(tris) == 0 {
		return
	}
	var pts [12]struct {
		set bool
		p   r3.Vec
	}
	at := func(e uint8) r3.Vec {
		if !pts[e].set {
			a, c := cubeEdges[e][0], cubeEdges[e][1]
			pts[e].p = crossing(corner(x, y, z, a), corner(x, y, z, c), v[a], v[c])
			pts[e].set = true
		}
		return pts[e].p
	}
	for i := 0; i < len(tris); i += 3 {
		b.triangle(at(tris[i]), at(tris[i+1]), at(tris[i+2]))
	}
}
