package render

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// Vertex represents a vertex with all attributes needed for rasterization.
type Vertex struct {
	Position math3d.Vec3 // World position
	Normal   math3d.Vec3 // Normal vector (for lighting)
	UV       math3d.Vec2 // Texture coordinates
	Color    Color       // Vertex color, alpha used when blending
}

// Triangle represents a triangle to be rasterized.
type Triangle struct {
	V [3]Vertex
}

// CullMode selects which screen-space winding is discarded.
type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// RasterState controls depth, culling, blending and color output for a
// triangle.
type RasterState struct {
	Cull       CullMode
	DepthTest  bool
	DepthWrite bool
	DepthOnly  bool // skip color output entirely
	Blend      bool // alpha-blend over the framebuffer
	Texture    *Texture
}

// OpaqueState is the default state for lit geometry.
func OpaqueState() RasterState {
	return RasterState{Cull: CullBack, DepthTest: true, DepthWrite: true}
}

// Rasterizer handles software triangle rasterization.
type Rasterizer struct {
	camera       *Camera
	fb           *Framebuffer
	zbuffer      []float64    // Depth buffer (1D array, row-major)
	frustum      Frustum      // Cached frustum planes
	frustumDirty bool         // Whether frustum needs recalculation
	CullingStats CullingStats // Statistics for debugging/benchmarking
}

// CullingStats tracks frustum culling performance.
type CullingStats struct {
	MeshesTested int // Total meshes tested for culling
	MeshesCulled int // Meshes culled (not rendered)
	MeshesDrawn  int // Meshes that passed culling
}

// NewRasterizer creates a new rasterizer.
func NewRasterizer(camera *Camera, fb *Framebuffer) *Rasterizer {
	r := &Rasterizer{
		camera:       camera,
		fb:           fb,
		frustumDirty: true,
	}
	r.Resize()
	return r
}

// Resize resizes the rasterizer's buffer to match the framebuffer.
func (r *Rasterizer) Resize() {
	if r.fb == nil {
		r.zbuffer = nil
		return
	}
	if n := r.fb.Width * r.fb.Height; len(r.zbuffer) != n {
		r.zbuffer = make([]float64, n)
	}
	r.ClearDepth()
}

// SetCamera swaps the camera used for projection.
func (r *Rasterizer) SetCamera(c *Camera) {
	r.camera = c
	r.frustumDirty = true
}

// Camera returns the active camera.
func (r *Rasterizer) Camera() *Camera {
	return r.camera
}

// Framebuffer returns the color target.
func (r *Rasterizer) Framebuffer() *Framebuffer {
	return r.fb
}

// Width returns the framebuffer width.
func (r *Rasterizer) Width() int {
	if r.fb == nil {
		return 0
	}
	return r.fb.Width
}

// Height returns the framebuffer height.
func (r *Rasterizer) Height() int {
	if r.fb == nil {
		return 0
	}
	return r.fb.Height
}

// ClearDepth clears the Z-buffer (call before each frame).
func (r *Rasterizer) ClearDepth() {
	// Use copy-doubling for faster clearing
	n := len(r.zbuffer)
	if n == 0 {
		return
	}
	r.zbuffer[0] = math.MaxFloat64
	for i := 1; i < n; i *= 2 {
		copy(r.zbuffer[i:], r.zbuffer[:i])
	}
}

// InvalidateFrustum marks the frustum as needing recalculation.
// Call this when the camera moves or rotates.
func (r *Rasterizer) InvalidateFrustum() {
	r.frustumDirty = true
}

// UpdateFrustum recalculates the frustum planes from the camera.
func (r *Rasterizer) UpdateFrustum() {
	if r.frustumDirty {
		r.frustum = r.camera.Frustum()
		r.frustumDirty = false
	}
}

// ResetCullingStats resets the culling statistics (call once per frame).
func (r *Rasterizer) ResetCullingStats() {
	r.CullingStats = CullingStats{}
}

// IsVisible tests if a world-space box is visible in the frustum.
func (r *Rasterizer) IsVisible(worldBounds math3d.Box3) bool {
	r.UpdateFrustum()
	return r.frustum.IntersectsBox(worldBounds)
}

// DepthAt returns the stored NDC depth at (x, y), or math.MaxFloat64 if
// nothing was drawn there.
func (r *Rasterizer) DepthAt(x, y int) float64 {
	return r.getDepth(x, y)
}

func (r *Rasterizer) getDepth(x, y int) float64 {
	if x < 0 || x >= r.Width() || y < 0 || y >= r.Height() {
		return math.MaxFloat64
	}
	return r.zbuffer[y*r.Width()+x]
}

func (r *Rasterizer) setDepth(x, y int, z float64) {
	if x < 0 || x >= r.Width() || y < 0 || y >= r.Height() {
		return
	}
	r.zbuffer[y*r.Width()+x] = z
}

// screenVertex holds a vertex transformed to screen space.
type screenVertex struct {
	X, Y  float64 // Screen coordinates
	Z     float64 // Depth (for Z-buffer)
	W     float64 // W coordinate (for perspective-correct interpolation)
	Color Color
	UV    math3d.Vec2
}

// project maps a world-space vertex to screen space. ok is false when the
// vertex is on or behind the camera plane.
func (r *Rasterizer) project(viewProj math3d.Mat4, v Vertex) (sv screenVertex, ok bool) {
	clipPos := viewProj.MulVec4(math3d.V4FromV3(v.Position, 1))
	if clipPos.W <= 1e-9 {
		return sv, false
	}

	sv.X = clipPos.X / clipPos.W
	sv.Y = clipPos.Y / clipPos.W
	sv.Z = clipPos.Z / clipPos.W
	sv.W = clipPos.W

	// NDC to screen coordinates
	sv.X = (sv.X + 1) * 0.5 * float64(r.Width())
	sv.Y = (1 - sv.Y) * 0.5 * float64(r.Height()) // Y flipped

	sv.Color = v.Color
	sv.UV = v.UV
	return sv, true
}

// DrawTriangle rasterizes a single triangle with the given state.
// Vertex colors are interpolated linearly; UVs are perspective-correct.
func (r *Rasterizer) DrawTriangle(tri Triangle, st RasterState) {
	if r.fb == nil {
		return
	}
	viewProj := r.camera.ViewProjectionMatrix()

	var sv [3]screenVertex
	for i := range 3 {
		var ok bool
		if sv[i], ok = r.project(viewProj, tri.V[i]); !ok {
			return
		}
	}

	// Screen-space winding. Front faces are positive after the Y flip.
	area := (sv[1].X-sv[0].X)*(sv[2].Y-sv[0].Y) - (sv[1].Y-sv[0].Y)*(sv[2].X-sv[0].X)
	if area == 0 {
		return
	}
	switch st.Cull {
	case CullBack:
		if area < 0 {
			return
		}
	case CullFront:
		if area > 0 {
			return
		}
	}

	r.scanTriangle(&sv, area, st)
}

// DrawTriangleFlat draws a triangle with a single color.
func (r *Rasterizer) DrawTriangleFlat(v0, v1, v2 math3d.Vec3, color Color, st RasterState) {
	r.DrawTriangle(Triangle{
		V: [3]Vertex{
			{Position: v0, Color: color},
			{Position: v1, Color: color},
			{Position: v2, Color: color},
		},
	}, st)
}

// interpolateColor3 interpolates between 3 colors using barycentric coords.
func interpolateColor3(c0, c1, c2 Color, bc math3d.Vec3) Color {
	return Color{
		R: blend3(c0.R, c1.R, c2.R, bc.X, bc.Y, bc.Z),
		G: blend3(c0.G, c1.G, c2.G, bc.X, bc.Y, bc.Z),
		B: blend3(c0.B, c1.B, c2.B, bc.X, bc.Y, bc.Z),
		A: blend3(c0.A, c1.A, c2.A, bc.X, bc.Y, bc.Z),
	}
}

func min3(a, b, c float64) float64 {
	return math.Min(a, math.Min(b, c))
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}

// MeshRenderer is the geometry interface the rasterizer draws.
// It lets callers draw meshes without importing the models package.
type MeshRenderer interface {
	VertexCount() int
	TriangleCount() int
	GetVertex(i int) (pos, normal math3d.Vec3, uv math3d.Vec2)
	GetFace(i int) [3]int
}

// BoundedMeshRenderer extends MeshRenderer with bounding box support for frustum culling.
type BoundedMeshRenderer interface {
	MeshRenderer
	GetBounds() (min, max math3d.Vec3)
}

// VertexShader computes the color of a transformed vertex.
type VertexShader func(worldPos, worldNormal math3d.Vec3) Color

// tryFrustumCull attempts to cull a mesh using its bounds if available.
// Returns true if the mesh should be culled (not visible).
func (r *Rasterizer) tryFrustumCull(mesh MeshRenderer, transform math3d.Mat4) bool {
	bounded, ok := mesh.(BoundedMeshRenderer)
	if !ok {
		return false
	}

	r.CullingStats.MeshesTested++

	minBounds, maxBounds := bounded.GetBounds()
	world := math3d.NewBox3(minBounds, maxBounds).Transform(transform)
	if !r.IsVisible(world) {
		r.CullingStats.MeshesCulled++
		return true
	}

	r.CullingStats.MeshesDrawn++
	return false
}

// DrawMesh renders a mesh with per-vertex (Gouraud) shading computed by
// shade. Automatically performs frustum culling if the mesh provides bounds.
func (r *Rasterizer) DrawMesh(mesh MeshRenderer, transform math3d.Mat4, shade VertexShader, st RasterState) {
	if r.tryFrustumCull(mesh, transform) {
		return
	}

	for i := 0; i < mesh.TriangleCount(); i++ {
		face := mesh.GetFace(i)

		var tri Triangle
		for k := range 3 {
			p, n, uv := mesh.GetVertex(face[k])

			// Transform to world space
			wp := transform.MulVec3(p)
			wn := transform.MulVec3Dir(n).Normalize()

			tri.V[k] = Vertex{Position: wp, Normal: wn, UV: uv}
			if shade != nil {
				tri.V[k].Color = shade(wp, wn)
			} else {
				tri.V[k].Color = ColorWhite
			}
		}

		r.DrawTriangle(tri, st)
	}
}

// DrawMeshDepth writes only depth for a mesh, ignoring winding.
func (r *Rasterizer) DrawMeshDepth(mesh MeshRenderer, transform math3d.Mat4) {
	r.DrawMesh(mesh, transform, nil, RasterState{
		Cull:       CullNone,
		DepthTest:  true,
		DepthWrite: true,
		DepthOnly:  true,
	})
}

// DrawMeshWireframe renders a mesh as wireframe.
// Automatically performs frustum culling if the mesh provides bounds.
func (r *Rasterizer) DrawMeshWireframe(mesh MeshRenderer, transform math3d.Mat4, color Color) {
	if r.tryFrustumCull(mesh, transform) {
		return
	}

	for i := 0; i < mesh.TriangleCount(); i++ {
		face := mesh.GetFace(i)

		p0, _, _ := mesh.GetVertex(face[0])
		p1, _, _ := mesh.GetVertex(face[1])
		p2, _, _ := mesh.GetVertex(face[2])

		v0 := transform.MulVec3(p0)
		v1 := transform.MulVec3(p1)
		v2 := transform.MulVec3(p2)

		r.DrawLine3D(v0, v1, color)
		r.DrawLine3D(v1, v2, color)
		r.DrawLine3D(v2, v0, color)
	}
}

// DrawLine3D draws a projected 3D line without depth testing.
func (r *Rasterizer) DrawLine3D(a, b math3d.Vec3, color Color) {
	viewProj := r.camera.ViewProjectionMatrix()

	clipA := viewProj.MulVec4(math3d.V4FromV3(a, 1))
	clipB := viewProj.MulVec4(math3d.V4FromV3(b, 1))

	// Skip if either end is behind the camera
	if clipA.Behind() || clipB.Behind() {
		return
	}

	clipA.X /= clipA.W
	clipA.Y /= clipA.W
	clipB.X /= clipB.W
	clipB.Y /= clipB.W

	x0 := int((clipA.X + 1) * 0.5 * float64(r.Width()))
	y0 := int((1 - clipA.Y) * 0.5 * float64(r.Height()))
	x1 := int((clipB.X + 1) * 0.5 * float64(r.Width()))
	y1 := int((1 - clipB.Y) * 0.5 * float64(r.Height()))

	r.fb.DrawLine(x0, y0, x1, y1, color)
}
