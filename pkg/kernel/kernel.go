// Package kernel defines the surface extraction interface and the flat mesh
// format shared by extractors, the proximity index, and exporters.
// Extractors are selected once per session and swapped behind Extractor
// without touching the rest of the system.
package kernel

// Grid is a read-only view of a dense scalar field, indexed
// x + y*w + z*w*h.
type Grid interface {
	Dims() (w, h, l int)
	Values() []float32
}

// Extractor builds a triangle mesh approximating the 0.5 level set of a grid.
// Vertices are returned in world space: grid coordinate g maps to
// g*scale - dim*scale/2, plus heightOffset on Y.
type Extractor interface {
	Name() string
	Generate(g Grid, scale, heightOffset float64) (*Mesh, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(g Grid, scale, heightOffset float64) (*Mesh, error)

// Name implements Extractor.
func (f ExtractorFunc) Name() string { return "func" }

// Generate implements Extractor.
func (f ExtractorFunc) Generate(g Grid, scale, heightOffset float64) (*Mesh, error) {
	return f(g, scale, heightOffset)
}
