package sculpt

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chazu/tacit/pkg/kernel"
	"github.com/chazu/tacit/pkg/kernel/marching"
	"github.com/chazu/tacit/pkg/voxel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// gridCenter is the world position of cell (5,5,5) in a 10-cell field with
// scale 1: x and z are shifted by -5, y by -5 and then back up by the height
// offset of 5.
var gridCenter = r3.Vec{X: 0, Y: 5, Z: 0}

func newEditor(t *testing.T, shape voxel.Shape, size float64, radius int) *Editor {
	t.Helper()
	field, err := voxel.New(voxel.Spec{Resolution: 10, PlayAreaSize: 10, Shape: shape, ShapeSize: size})
	require.NoError(t, err)
	ex, err := marching.New(marching.Cubes)
	require.NoError(t, err)
	ed, err := New(field, ex, Options{ToolRadius: radius, Shape: shape, ShapeSize: size})
	require.NoError(t, err)
	return ed
}

func TestCarveThenAddRestoresSolidCells(t *testing.T) {
	// A cube of edge 12 covers every cell center of the 10-cell grid.
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	require.Equal(t, 1000, ed.Field().Count())

	carved, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	// Integer offsets with squared length 0, 1, 2 or 3 lie strictly inside radius 2.
	assert.Equal(t, 27, carved)
	assert.Equal(t, 1000-27, ed.Field().Count())

	added, err := ed.Add(gridCenter)
	require.NoError(t, err)
	assert.Equal(t, 27, added)
	assert.Equal(t, 1000, ed.Field().Count())
}

func TestStrokeRadiusIsStrict(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	_, err := ed.Carve(gridCenter)
	require.NoError(t, err)

	// Exactly two cells away along an axis: untouched.
	assert.True(t, ed.Field().Solid(7, 5, 5))
	assert.True(t, ed.Field().Solid(5, 3, 5))
	// Diagonal offset (1,1,1) has length sqrt(3) < 2: carved.
	assert.False(t, ed.Field().Solid(6, 6, 6))
	// Offset (2,1,0) has length sqrt(5) > 2: untouched.
	assert.True(t, ed.Field().Solid(7, 6, 5))
}

func TestNoOpStrokeSkipsExtraction(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	_, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	mesh := ed.Mesh()
	n := ed.Extractions()

	changed, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, n, ed.Extractions())
	assert.Same(t, mesh, ed.Mesh())
}

func TestZeroRadiusIsNoOp(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 0)
	n := ed.Extractions()
	changed, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, n, ed.Extractions())
	assert.Equal(t, 1000, ed.Field().Count())
}

func TestEditReplacesMesh(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	before := ed.Mesh()
	assert.True(t, before.IsEmpty(), "a full field has no surface")

	_, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	after := ed.Mesh()
	assert.NotSame(t, before, after)
	assert.False(t, after.IsEmpty(), "a carved cavity has a surface")
	assert.True(t, before.IsEmpty(), "the old mesh is never patched")
	assert.Equal(t, 2, ed.Extractions())
}

func TestAddNearCornerStaysInBounds(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 0, 3)
	require.Zero(t, ed.Field().Count())

	// Cell (0,0,0) is at world (-5, 0, -5); most of the stroke falls outside.
	changed, err := ed.Add(r3.Vec{X: -5, Y: 0, Z: -5})
	require.NoError(t, err)
	assert.Positive(t, changed)
	assert.Equal(t, changed, ed.Field().Count())
	assert.True(t, ed.Field().Solid(0, 0, 0))
	assert.True(t, ed.Field().Solid(2, 2, 0))
	assert.False(t, ed.Field().Solid(3, 0, 0))

	changed, err = ed.Add(r3.Vec{X: 100, Y: 100, Z: 100})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestHugeRadiusIsBoundedByField(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	require.NoError(t, ed.SetToolRadius(1<<20))

	start := time.Now()
	changed, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	assert.Equal(t, 1000, changed)
	assert.Zero(t, ed.Field().Count())
	assert.Less(t, time.Since(start), 2*time.Second, "work should scale with the grid, not the radius")

	changed, err = ed.Add(r3.Vec{X: 1e300, Y: math.NaN()})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestCarveOutsideFieldIsNoOp(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 4)
	changed, err := ed.Carve(r3.Vec{X: -50, Y: 5, Z: 0})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestRegenerateRestoresBaseShape(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 6, 2)
	want := ed.Field().Fingerprint()
	_, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	require.NotEqual(t, want, ed.Field().Fingerprint())

	n := ed.Extractions()
	require.NoError(t, ed.RegenerateSculpture())
	assert.Equal(t, want, ed.Field().Fingerprint())
	assert.Equal(t, n+1, ed.Extractions())

	// Regenerate rebuilds even when nothing changed.
	require.NoError(t, ed.RegenerateSculpture())
	assert.Equal(t, n+2, ed.Extractions())
}

func TestSetBaseShapeAppliesOnRegenerate(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 6, 2)
	cube := ed.Field().Count()

	require.NoError(t, ed.SetBaseShape(voxel.ShapeSphere, 6))
	assert.Equal(t, cube, ed.Field().Count(), "field untouched until regenerate")

	require.NoError(t, ed.RegenerateSculpture())
	assert.Less(t, ed.Field().Count(), cube)
	shape, size := ed.BaseShape()
	assert.Equal(t, voxel.ShapeSphere, shape)
	assert.Equal(t, 6.0, size)

	assert.Error(t, ed.SetBaseShape(voxel.Shape(5), 1))
	assert.Error(t, ed.SetBaseShape(voxel.ShapeCube, -1))
}

func TestExtractionFailureKeepsMesh(t *testing.T) {
	field, err := voxel.New(voxel.Spec{Resolution: 10, PlayAreaSize: 10, Shape: voxel.ShapeCube, ShapeSize: 12})
	require.NoError(t, err)
	calls := 0
	good := &kernel.Mesh{Name: "initial"}
	ex := kernel.ExtractorFunc(func(kernel.Grid, float64, float64) (*kernel.Mesh, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("boom")
		}
		return good, nil
	})
	ed, err := New(field, ex, Options{ToolRadius: 2})
	require.NoError(t, err)

	changed, err := ed.Carve(gridCenter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 27, changed)
	assert.Same(t, good, ed.Mesh())
	assert.Equal(t, 1, ed.Extractions())
}

func TestToolMode(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	assert.Equal(t, Carving, ed.ToolMode())
	assert.Equal(t, Adding, ed.ToggleToolMode())
	assert.Equal(t, Carving, ed.ToggleToolMode())
	ed.SetToolMode(Adding)
	assert.Equal(t, "adding", ed.ToolMode().String())

	// Apply dispatches on the given mode, not on the editor's.
	changed, err := ed.Apply(Carving, gridCenter)
	require.NoError(t, err)
	assert.Equal(t, 27, changed)
	changed, err = ed.Apply(Adding, gridCenter)
	require.NoError(t, err)
	assert.Equal(t, 27, changed)
}

func TestNewValidates(t *testing.T) {
	field, err := voxel.New(voxel.Spec{Resolution: 4, PlayAreaSize: 1, Shape: voxel.ShapeCube, ShapeSize: 0.5})
	require.NoError(t, err)
	ex, err := marching.New(marching.Cubes)
	require.NoError(t, err)

	_, err = New(nil, ex, Options{})
	assert.Error(t, err)
	_, err = New(field, ex, Options{ToolRadius: -1})
	assert.Error(t, err)

	ed, err := New(field, ex, Options{})
	require.NoError(t, err)
	assert.Error(t, ed.SetToolRadius(-2))
	require.NoError(t, ed.SetToolRadius(3))
	assert.Equal(t, 3, ed.ToolRadius())
}

func TestSnapshotRestore(t *testing.T) {
	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	_, err := ed.Carve(gridCenter)
	require.NoError(t, err)
	snap, err := ed.Snapshot()
	require.NoError(t, err)
	carved := ed.Field().Fingerprint()

	require.NoError(t, ed.RegenerateSculpture())
	require.Equal(t, 1000, ed.Field().Count())
	before := ed.Extractions()

	require.NoError(t, ed.Restore(snap))
	assert.Equal(t, carved, ed.Field().Fingerprint())
	assert.Equal(t, 1000-27, ed.Field().Count())
	assert.Equal(t, before+1, ed.Extractions())
}

func TestRestoreRejectsOtherDimensions(t *testing.T) {
	small, err := voxel.New(voxel.Spec{Resolution: 4, PlayAreaSize: 4, Shape: voxel.ShapeCube, ShapeSize: 4})
	require.NoError(t, err)
	snap, err := small.MarshalBinary()
	require.NoError(t, err)

	ed := newEditor(t, voxel.ShapeCube, 12, 2)
	assert.Error(t, ed.Restore(snap))
	assert.Equal(t, 1000, ed.Field().Count())

	assert.ErrorIs(t, ed.Restore([]byte("junk")), voxel.ErrCorruptSnapshot)
}
