package viewer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/render"
)

func TestOrbitControlsSettle(t *testing.T) {
	c := NewOrbitControls(math3d.V3(0, 0, 5), math3d.Zero3())
	require.True(t, c.Settled())
	assert.InDelta(t, 5, c.Spherical().Radius, 1e-12)

	c.Rotate(0.5, 0.2)
	assert.False(t, c.Settled())

	moved := false
	for range 300 {
		if c.Update(1.0 / 60) {
			moved = true
		}
	}
	assert.True(t, moved)
	assert.True(t, c.Settled())
	assert.False(t, c.Update(1.0/60), "no motion once settled")
	assert.InDelta(t, c.GoalPosition().Distance(c.Position()), 0, 1e-12)
}

func TestOrbitControlsClampPolar(t *testing.T) {
	c := NewOrbitControls(math3d.V3(0, 0, 5), math3d.Zero3())
	c.MaxPolar = math3d.DegToRad(88)
	c.Rotate(0, math.Pi)
	assert.InDelta(t, math3d.DegToRad(88), c.GoalSpherical().Phi, 1e-12)

	c.Rotate(0, -10)
	assert.InDelta(t, 1e-6, c.GoalSpherical().Phi, 1e-12)
}

func TestOrbitControlsDisabledIgnoresInput(t *testing.T) {
	c := NewOrbitControls(math3d.V3(0, 0, 5), math3d.Zero3())
	c.Enabled = false
	goal := c.GoalSpherical()
	c.Rotate(1, 1)
	c.Dolly(5)
	c.Pan(math3d.Right(), math3d.Up(), 1, 1)
	assert.Equal(t, goal, c.GoalSpherical())
	assert.Equal(t, math3d.Zero3(), c.GoalTarget())
}

func TestOrbitControlsPanBoundary(t *testing.T) {
	c := NewOrbitControls(math3d.V3(0, 0, 5), math3d.Zero3())
	c.Boundary = math3d.NewBox3(math3d.V3(-1, -1, -1), math3d.V3(1, 1, 1))
	c.Pan(math3d.Right(), math3d.Up(), 100, -100)
	got := c.GoalTarget()
	assert.InDelta(t, 1, got.X, 1e-12)
	assert.InDelta(t, -1, got.Y, 1e-12)
}

func TestOrbitControlsDollyLimits(t *testing.T) {
	c := NewOrbitControls(math3d.V3(0, 0, 5), math3d.Zero3())
	c.SetDistanceLimits(2, 8)
	c.Dolly(1000)
	assert.InDelta(t, 2, c.GoalSpherical().Radius, 1e-12)
	c.Dolly(-1000)
	assert.InDelta(t, 8, c.GoalSpherical().Radius, 1e-12)
}

func TestOrbitControlsApply(t *testing.T) {
	c := NewOrbitControls(math3d.V3(0, 2, 5), math3d.V3(0, 1, 0))
	cam := render.NewCamera()
	c.Apply(cam)
	assert.InDelta(t, 0, cam.Position.Distance(math3d.V3(0, 2, 5)), 1e-9)
	fwd := cam.Forward()
	want := math3d.V3(0, -1, -5).Normalize()
	assert.InDelta(t, 0, fwd.Distance(want), 1e-9)
}
