package viewer

import (
	"math"

	"github.com/charmbracelet/harmonica"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/render"
)

// settleEps is the distance below which an animated value snaps to its goal.
const settleEps = 1e-5

// OrbitControls is a damped orbit/pan/dolly rig. Input moves goal values;
// Update eases the current values toward them with critically damped
// springs.
type OrbitControls struct {
	target, goalTarget math3d.Vec3
	sph, goalSph       math3d.Spherical

	// Spring velocities: theta, phi, radius, target x, y, z.
	vel [6]float64

	spring   harmonica.Spring
	springDT float64

	// Frequency is the spring angular frequency. Higher settles faster.
	Frequency float64

	MinDistance, MaxDistance float64
	MinPolar, MaxPolar       float64
	MinAzimuth, MaxAzimuth   float64

	// Boundary limits where the target may be panned. Empty means no limit.
	Boundary math3d.Box3

	AzimuthSpeed float64
	PolarSpeed   float64
	DollySpeed   float64
	PanSpeed     float64

	Enabled bool
}

// NewOrbitControls creates controls looking from position at target.
func NewOrbitControls(position, target math3d.Vec3) *OrbitControls {
	c := &OrbitControls{
		Frequency:    12,
		MaxDistance:  math.Inf(1),
		MaxPolar:     math.Pi,
		MinAzimuth:   math.Inf(-1),
		MaxAzimuth:   math.Inf(1),
		Boundary:     math3d.EmptyBox(),
		AzimuthSpeed: 0.55,
		PolarSpeed:   0.45,
		DollySpeed:   1,
		PanSpeed:     0.9,
		Enabled:      true,
	}
	c.SetLookAt(position, target, false)
	return c
}

// SetLookAt moves the camera to position looking at target. With animate
// false the move is immediate.
func (c *OrbitControls) SetLookAt(position, target math3d.Vec3, animate bool) {
	c.goalTarget = c.clampTarget(target)
	c.goalSph = c.clampAngles(math3d.SphericalFromVec(position.Sub(target)))
	if !animate {
		c.target = c.goalTarget
		c.sph = c.goalSph
		c.vel = [6]float64{}
	}
}

// SetOrbit sets the goal as a target plus orbit coordinates around it.
func (c *OrbitControls) SetOrbit(target math3d.Vec3, s math3d.Spherical, animate bool) {
	c.goalTarget = c.clampTarget(target)
	c.goalSph = c.clampAngles(s)
	if !animate {
		c.target = c.goalTarget
		c.sph = c.goalSph
		c.vel = [6]float64{}
	}
}

// Rotate orbits the goal by the given azimuth and polar deltas in radians.
func (c *OrbitControls) Rotate(dTheta, dPhi float64) {
	if !c.Enabled {
		return
	}
	c.goalSph.Theta += dTheta
	c.goalSph.Phi += dPhi
	c.goalSph = c.clampAngles(c.goalSph)
}

// Dolly scales the goal distance. Positive steps move closer.
func (c *OrbitControls) Dolly(steps float64) {
	if !c.Enabled || steps == 0 {
		return
	}
	r := c.goalSph.Radius * math.Pow(0.95, steps*c.DollySpeed)
	c.goalSph.Radius = c.clampDistance(r)
}

// Pan moves the goal target along the camera's right and up vectors by
// world distances dx, dy.
func (c *OrbitControls) Pan(right, up math3d.Vec3, dx, dy float64) {
	if !c.Enabled || c.PanSpeed == 0 {
		return
	}
	delta := right.Scale(dx * c.PanSpeed).Add(up.Scale(dy * c.PanSpeed))
	c.goalTarget = c.clampTarget(c.goalTarget.Add(delta))
}

// SetDistanceLimits sets the dolly range. The current distance is not
// changed until the next dolly.
func (c *OrbitControls) SetDistanceLimits(minDist, maxDist float64) {
	c.MinDistance, c.MaxDistance = minDist, maxDist
}

// Update advances the springs by dt seconds and reports whether anything
// moved.
func (c *OrbitControls) Update(dt float64) bool {
	if dt <= 0 {
		return false
	}
	if dt != c.springDT {
		c.spring = harmonica.NewSpring(dt, c.Frequency, 1)
		c.springDT = dt
	}

	cur := [6]*float64{&c.sph.Theta, &c.sph.Phi, &c.sph.Radius, &c.target.X, &c.target.Y, &c.target.Z}
	goal := [6]float64{c.goalSph.Theta, c.goalSph.Phi, c.goalSph.Radius, c.goalTarget.X, c.goalTarget.Y, c.goalTarget.Z}

	changed := false
	for i := range cur {
		if *cur[i] == goal[i] && c.vel[i] == 0 {
			continue
		}
		changed = true
		*cur[i], c.vel[i] = c.spring.Update(*cur[i], c.vel[i], goal[i])
		if math.Abs(*cur[i]-goal[i]) < settleEps && math.Abs(c.vel[i]) < settleEps {
			*cur[i] = goal[i]
			c.vel[i] = 0
		}
	}
	return changed
}

// Settled reports whether the current state equals the goal.
func (c *OrbitControls) Settled() bool {
	return c.sph == c.goalSph && c.target == c.goalTarget
}

// Position returns the current camera position.
func (c *OrbitControls) Position() math3d.Vec3 {
	return c.target.Add(c.sph.Vec())
}

// Target returns the current look-at point.
func (c *OrbitControls) Target() math3d.Vec3 {
	return c.target
}

// GoalPosition returns where the camera is heading.
func (c *OrbitControls) GoalPosition() math3d.Vec3 {
	return c.goalTarget.Add(c.goalSph.Vec())
}

// GoalTarget returns the look-at point the camera is heading for.
func (c *OrbitControls) GoalTarget() math3d.Vec3 {
	return c.goalTarget
}

// GoalSpherical returns the goal orbit coordinates.
func (c *OrbitControls) GoalSpherical() math3d.Spherical {
	return c.goalSph
}

// Spherical returns the current orbit coordinates.
func (c *OrbitControls) Spherical() math3d.Spherical {
	return c.sph
}

// Apply positions cam at the current state.
func (c *OrbitControls) Apply(cam *render.Camera) {
	cam.SetPosition(c.Position())
	cam.LookAt(c.target)
}

func (c *OrbitControls) clampAngles(s math3d.Spherical) math3d.Spherical {
	lo := math.Max(c.MinPolar, 1e-6)
	hi := math.Min(c.MaxPolar, math.Pi-1e-6)
	s.Phi = math3d.Clamp(s.Phi, lo, hi)
	s.Theta = math3d.Clamp(s.Theta, c.MinAzimuth, c.MaxAzimuth)
	return s
}

func (c *OrbitControls) clampDistance(r float64) float64 {
	return math3d.Clamp(r, c.MinDistance, c.MaxDistance)
}

func (c *OrbitControls) clampTarget(t math3d.Vec3) math3d.Vec3 {
	if c.Boundary.IsEmpty() {
		return t
	}
	return t.Max(c.Boundary.Min).Min(c.Boundary.Max)
}
