// Package export writes sculptures to disk as binary glTF or STL.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/tacit/pkg/kernel"
	ksdfx "github.com/chazu/tacit/pkg/kernel/sdfx"
	"github.com/deadsy/sdfx/render"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// TimestampLayout names saved sculptures by local time, e.g.
// 04-25-2022_04-34-12.
const TimestampLayout = "01-02-2006_15-04-05"

const generator = "tacit"

// ErrEmptyMesh is returned when there is nothing to export.
var ErrEmptyMesh = errors.New("export: mesh is empty")

// Format selects the file type written by Save.
type Format int

const (
	GLB Format = iota
	STL
)

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == STL {
		return ".stl"
	}
	return ".glb"
}

// ParseFormat accepts "glb" or "stl".
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "glb", "gltf":
		return GLB, nil
	case "stl":
		return STL, nil
	}
	return 0, fmt.Errorf("export: unknown format %q, expected glb or stl", name)
}

// TimestampName returns the file name for a sculpture saved at t.
func TimestampName(t time.Time, f Format) string {
	return t.Format(TimestampLayout) + f.Ext()
}

// Save writes m into dir under a timestamped name and returns the path.
// maxVerts caps each glTF chunk; it is ignored for STL.
func Save(dir string, m *kernel.Mesh, f Format, maxVerts int, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	path := filepath.Join(dir, TimestampName(now, f))
	var err error
	switch f {
	case GLB:
		err = SaveGLB(path, m, maxVerts)
	case STL:
		err = SaveSTL(path, m)
	default:
		err = fmt.Errorf("export: unknown format %d", int(f))
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// Document builds a glTF document with one mesh and node per chunk of m,
// each chunk holding at most maxVerts vertices. Indices must be unshared
// (0..n-1), as every extractor produces them.
func Document(m *kernel.Mesh, maxVerts int) (*gltf.Document, error) {
	if m == nil || m.IsEmpty() {
		return nil, ErrEmptyMesh
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = generator
	doc.Materials = []*gltf.Material{{
		Name: "clay",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{0.8, 0.62, 0.48, 1},
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(0.9),
		},
		AlphaMode: gltf.AlphaOpaque,
	}}

	// Whole triangles only, so no chunk starts mid-triangle.
	if maxVerts > 0 {
		maxVerts = max(3, maxVerts-maxVerts%3)
	}
	for _, chunk := range m.Partition(maxVerts) {
		positions := vec3s(chunk.Vertices)
		normals := vec3s(chunk.Normals)
		if len(normals) != len(positions) {
			normals = flatNormals(positions, chunk.Indices)
		}

		posAccessor := modeler.WritePosition(doc, positions)
		normalAccessor := modeler.WriteNormal(doc, normals)
		indicesAccessor := modeler.WriteIndices(doc, chunk.Indices)

		prim := &gltf.Primitive{
			Attributes: map[string]uint32{
				gltf.POSITION: uint32(posAccessor),
				gltf.NORMAL:   uint32(normalAccessor),
			},
			Indices:  gltf.Index(uint32(indicesAccessor)),
			Material: gltf.Index(0),
		}
		name := chunk.Name
		if name == "" {
			name = fmt.Sprintf("sculpture#%d", len(doc.Meshes))
		}
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{prim}})
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: name, Mesh: gltf.Index(uint32(len(doc.Meshes) - 1))})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}
	return doc, nil
}

// WriteGLB encodes m as binary glTF to w.
func WriteGLB(w io.Writer, m *kernel.Mesh, maxVerts int) error {
	doc, err := Document(m, maxVerts)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: encode glb: %w", err)
	}
	return nil
}

// SaveGLB writes m to path as binary glTF.
func SaveGLB(path string, m *kernel.Mesh, maxVerts int) error {
	doc, err := Document(m, maxVerts)
	if err != nil {
		return err
	}
	if err := gltf.SaveBinary(doc, path); err != nil {
		return fmt.Errorf("export: save glb: %w", err)
	}
	return nil
}

// SaveSTL writes m to path as binary STL.
func SaveSTL(path string, m *kernel.Mesh) error {
	if m == nil || m.IsEmpty() {
		return ErrEmptyMesh
	}
	if err := render.SaveSTL(path, ksdfx.ToTriangles(m)); err != nil {
		return fmt.Errorf("export: save stl: %w", err)
	}
	return nil
}

// Remesh re-extracts g through sdfx's marching cubes, sampling the longest
// side of the grid with cells steps. The trilinear resampling rounds off the
// cell-aligned facets of the live mesh.
func Remesh(g kernel.Grid, scale, heightOffset float64, cells int) (*kernel.Mesh, error) {
	m, err := ksdfx.New(cells).Generate(g, scale, heightOffset)
	if err != nil {
		return nil, fmt.Errorf("export: remesh: %w", err)
	}
	return m, nil
}

func vec3s(flat []float32) [][3]float32 {
	out := make([][3]float32, len(flat)/3)
	for i := range out {
		out[i] = [3]float32{flat[i*3], flat[i*3+1], flat[i*3+2]}
	}
	return out
}

// flatNormals assigns every vertex the unit normal of the last triangle
// that references it.
func flatNormals(positions [][3]float32, indices []uint32) [][3]float32 {
	normals := make([][3]float32, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		v0, v1, v2 := indices[i], indices[i+1], indices[i+2]
		p0, p1, p2 := positions[v0], positions[v1], positions[v2]
		a := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		b := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		n := [3]float32{
			a[1]*b[2] - a[2]*b[1],
			a[2]*b[0] - a[0]*b[2],
			a[0]*b[1] - a[1]*b[0],
		}
		if l := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))); l > 0 {
			n[0], n[1], n[2] = n[0]/l, n[1]/l, n[2]/l
		}
		normals[v0], normals[v1], normals[v2] = n, n, n
	}
	return normals
}
