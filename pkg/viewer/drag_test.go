package viewer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
)

// cubeAt returns a free-standing module for drag tests.
func cubeAt(x, z float64) *Module {
	m := newModule("", unitCube())
	m.Position = math3d.V3(x, 0, z)
	return m
}

func dragConfig() DragConfig {
	return DefaultConfig("test").Drag
}

func TestResolveNeverOverlaps(t *testing.T) {
	a, b := cubeAt(0, 0), cubeAt(3, 0)
	cfg := dragConfig()
	s := newDragSession(b, []*Module{a, b}, cfg)
	other := a.WorldBounds()

	rng := rand.New(rand.NewPCG(1, 2))
	pos := b.Position
	for i := range 500 {
		proposed := math3d.V3(rng.Float64()*8-4, 0, rng.Float64()*8-4)
		next := s.resolve(pos, proposed)
		box := s.boxAt(next).ExpandScalar(-cfg.CollisionBuffer)
		require.False(t, box.Intersects(other), "step %d: %v overlaps at %v", i, box, next)
		assert.Equal(t, 0.0, next.Y)
		pos = next
	}
}

func TestResolveSlidesToContact(t *testing.T) {
	a, b := cubeAt(0, 0), cubeAt(3, 0)
	cfg := dragConfig()
	s := newDragSession(b, []*Module{a, b}, cfg)

	pos := s.resolve(b.Position, math3d.V3(0, 0, 0))
	// Contact is where the buffered faces touch.
	contact := 1 - cfg.CollisionBuffer
	assert.Greater(t, pos.X, contact)
	assert.InDelta(t, contact, pos.X, 3.0/float64(int(1)<<cfg.Iterations)+1e-9)
	assert.Equal(t, 0.0, pos.Z)

	snapped := s.snap(pos, cfg.EdgeSnapTolerance)
	assert.InDelta(t, 1.0, snapped.X, 1e-9)
	assert.False(t, s.collides(snapped))
}

func TestResolveSlidesAlongObstacle(t *testing.T) {
	a, b := cubeAt(0, 0), cubeAt(3, 0)
	s := newDragSession(b, []*Module{a, b}, dragConfig())

	// Diagonal into the obstacle: X stops at contact, Z continues.
	pos := s.resolve(b.Position, math3d.V3(0, 0, 0.4))
	assert.InDelta(t, 1.0, pos.X, 0.01)
	assert.InDelta(t, 0.4, pos.Z, 1e-9)
}

func TestOverlappingSiblingIsNotAnObstacle(t *testing.T) {
	a, b := cubeAt(0, 0), cubeAt(0.5, 0)
	s := newDragSession(b, []*Module{a, b}, dragConfig())
	assert.Empty(t, s.others)

	pos := s.resolve(b.Position, math3d.V3(3, 0, 0))
	assert.Equal(t, math3d.V3(3, 0, 0), pos)
}

func TestSnapKeepsClearOfOverlappingSibling(t *testing.T) {
	a, b := cubeAt(0, 0), cubeAt(0.8, 0)
	// c sits just behind b; snapping onto it would also pull b's center
	// toward a on X.
	c := cubeAt(0.77, -1.02)
	cfg := dragConfig()
	s := newDragSession(b, []*Module{a, b, c}, cfg)
	require.Len(t, s.overlapping, 1)
	require.Len(t, s.others, 1)

	_, ok := edgeSnap(s.boxAt(b.Position), s.others, cfg.EdgeSnapTolerance)
	require.True(t, ok, "c is within snap range")

	got := s.snap(b.Position, cfg.EdgeSnapTolerance)
	assert.Equal(t, b.Position, got)
}

func TestEdgeSnap(t *testing.T) {
	other := unitBox()
	tests := []struct {
		name string
		box  math3d.Box3
		want math3d.Vec3
		ok   bool
	}{
		{
			name: "right face within tolerance",
			box:  unitBox().Translate(math3d.V3(1.02, 0, 0)),
			want: math3d.V3(-0.02, 0, 0),
			ok:   true,
		},
		{
			name: "aligns centers when close",
			box:  unitBox().Translate(math3d.V3(1.01, 0, 0.03)),
			want: math3d.V3(-0.01, 0, -0.03),
			ok:   true,
		},
		{
			name: "front face",
			box:  unitBox().Translate(math3d.V3(0.2, 0, -1.03)),
			want: math3d.V3(0, 0, 0.03),
			ok:   true,
		},
		{
			name: "too far",
			box:  unitBox().Translate(math3d.V3(1.2, 0, 0)),
		},
		{
			name: "no overlap on the other axis",
			box:  unitBox().Translate(math3d.V3(1.01, 0, 2)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := edgeSnap(tt.box, []math3d.Box3{other}, 0.04)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want.X, got.X, 1e-9)
				assert.InDelta(t, tt.want.Z, got.Z, 1e-9)
				assert.Equal(t, 0.0, got.Y)
			}
		})
	}
}

func TestEdgeSnapPicksSmallestCorrection(t *testing.T) {
	left := unitBox()
	right := unitBox().Translate(math3d.V3(2.05, 0, 0))
	box := unitBox().Translate(math3d.V3(1.03, 0, 0))
	got, ok := edgeSnap(box, []math3d.Box3{left, right}, 0.04)
	require.True(t, ok)
	assert.InDelta(t, 0.02, got.X, 1e-9)
}

func TestPointerDragStaysClear(t *testing.T) {
	v, ids := viewerWithCubes(t, 0, 3)
	v.mu.Lock()
	m := v.moduleByID(ids[1])
	x, y, _, ok := v.camera.WorldToScreen(m.WorldBounds().Center(), v.fb.Width, v.fb.Height)
	tx, ty, _, tok := v.camera.WorldToScreen(math3d.V3(-1, 0, 0), v.fb.Width, v.fb.Height)
	v.mu.Unlock()
	require.True(t, ok)
	require.True(t, tok)

	v.PointerDown(x, y, ButtonLeft)
	sel, ok := v.Selected()
	require.True(t, ok)
	require.Equal(t, ids[1], sel)

	steps := 20
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		v.PointerMove(x+(tx-x)*f, y+(ty-y)*f)
	}
	v.PointerUp()

	mods := v.Modules()
	require.Len(t, mods, 2)
	a, b := mods[0].Bounds, mods[1].Bounds
	buf := v.Config().Drag.CollisionBuffer
	assert.False(t, b.ExpandScalar(-buf).Intersects(a))
	assert.NotEqual(t, 3.0, mods[1].Position.X, "module moved")
	assert.Equal(t, 0.0, mods[1].Position.Y)
}

func TestNudgeSelected(t *testing.T) {
	v, ids := viewerWithCubes(t, 0, 1.5)

	assert.True(t, errors.Is(v.NudgeSelected(1, 0), errors.ErrCodeNoSelection))

	require.NoError(t, v.Select(ids[1]))
	require.NoError(t, v.NudgeSelected(5, 0))
	assert.InDelta(t, 1.55, v.Modules()[1].Position.X, 1e-9)

	// Far into the neighbor: stops at contact.
	require.NoError(t, v.NudgeSelected(-200, 0))
	got := v.Modules()[1].Position.X
	assert.InDelta(t, 1-v.Config().Drag.CollisionBuffer, got, 1e-4)
	assert.Greater(t, got, 1-v.Config().Drag.CollisionBuffer)
}

func TestRotateIgnoredWhileDragging(t *testing.T) {
	v, ids := viewerWithCubes(t, 0, 3)
	v.mu.Lock()
	m := v.moduleByID(ids[1])
	x, y, _, ok := v.camera.WorldToScreen(m.WorldBounds().Center(), v.fb.Width, v.fb.Height)
	tx, ty, _, tok := v.camera.WorldToScreen(math3d.V3(-1, 0, 0), v.fb.Width, v.fb.Height)
	v.mu.Unlock()
	require.True(t, ok)
	require.True(t, tok)

	v.PointerDown(x, y, ButtonLeft)
	tb := v.Toolbar()
	assert.False(t, tb.RotateLeft)
	assert.False(t, tb.Delete)
	require.NoError(t, v.RotateSelected(90))
	require.NoError(t, v.DeleteSelected())
	for i := 1; i <= 20; i++ {
		f := float64(i) / 20
		v.PointerMove(x+(tx-x)*f, y+(ty-y)*f)
	}
	v.PointerUp()

	mods := v.Modules()
	require.Len(t, mods, 2)
	assert.Zero(t, mods[1].RotationDeg)
	buf := v.Config().Drag.CollisionBuffer
	assert.False(t, mods[1].Bounds.ExpandScalar(-buf).Intersects(mods[0].Bounds))
	assert.True(t, v.Toolbar().RotateLeft)
}
