// Package models provides 3D model loading and representation for plinth.
package models

import (
	"image"
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// Model is a decoded asset: named mesh parts baked into one local frame.
type Model struct {
	Name   string
	Parts  []*Mesh
	Bounds math3d.Box3
}

// NewModel groups parts and computes their combined bounds.
func NewModel(name string, parts ...*Mesh) *Model {
	m := &Model{Name: name, Parts: parts}
	m.CalculateBounds()
	return m
}

// CalculateBounds recomputes the union of all part bounds.
func (m *Model) CalculateBounds() {
	m.Bounds = math3d.EmptyBox()
	for _, p := range m.Parts {
		m.Bounds = m.Bounds.Union(p.Bounds)
	}
}

// TriangleCount returns the number of triangles across all parts.
func (m *Model) TriangleCount() int {
	n := 0
	for _, p := range m.Parts {
		n += p.TriangleCount()
	}
	return n
}

// Mesh represents one drawable part with a single material.
type Mesh struct {
	Name     string
	Vertices []MeshVertex
	Faces    []Face
	Material Material

	// Bounding box (calculated on load)
	Bounds math3d.Box3
}

// MeshVertex holds all vertex attributes.
type MeshVertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
	UV       math3d.Vec2
}

// Face represents a triangle by vertex indices.
type Face struct {
	V [3]int // Indices into Mesh.Vertices
}

// Material represents a PBR material from GLTF.
type Material struct {
	Name       string
	BaseColor  [4]float64  // RGBA in 0-1 range
	Metallic   float64     // 0 = dielectric, 1 = metal
	Roughness  float64     // 0 = smooth, 1 = rough
	BaseMap    image.Image // Optional base color texture
	HasTexture bool
}

// DefaultMaterial is opaque white, fully rough.
func DefaultMaterial() Material {
	return Material{
		Name:      "default",
		BaseColor: [4]float64{1, 1, 1, 1},
		Metallic:  0,
		Roughness: 1,
	}
}

// NewMesh creates an empty mesh with the default material.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:     name,
		Vertices: make([]MeshVertex, 0),
		Faces:    make([]Face, 0),
		Material: DefaultMaterial(),
		Bounds:   math3d.EmptyBox(),
	}
}

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	m.Bounds = math3d.EmptyBox()
	for _, v := range m.Vertices {
		m.Bounds = m.Bounds.ExpandByPoint(v.Position)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.Bounds.Center()
}

// Size returns the dimensions of the bounding box.
func (m *Mesh) Size() math3d.Vec3 {
	return m.Bounds.Size()
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// CalculateNormals computes face normals and assigns them to vertices.
// This is a simple flat-shading approach; for smooth shading, normals
// should be averaged per-vertex.
func (m *Mesh) CalculateNormals() {
	for i := range m.Faces {
		f := &m.Faces[i]
		normal := m.faceNormal(*f).Normalize()
		m.Vertices[f.V[0]].Normal = normal
		m.Vertices[f.V[1]].Normal = normal
		m.Vertices[f.V[2]].Normal = normal
	}
}

// CalculateSmoothNormals computes area-weighted averaged normals.
func (m *Mesh) CalculateSmoothNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = math3d.Zero3()
	}

	for _, f := range m.Faces {
		normal := m.faceNormal(f) // Don't normalize yet
		for _, vi := range f.V {
			m.Vertices[vi].Normal = m.Vertices[vi].Normal.Add(normal)
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}

// faceNormal is the outward normal for the stored (reversed) winding.
func (m *Mesh) faceNormal(f Face) math3d.Vec3 {
	v0 := m.Vertices[f.V[0]].Position
	v1 := m.Vertices[f.V[1]].Position
	v2 := m.Vertices[f.V[2]].Position
	return v2.Sub(v0).Cross(v1.Sub(v0))
}

// HasNormals reports whether any vertex carries a usable normal.
func (m *Mesh) HasNormals() bool {
	for _, v := range m.Vertices {
		if v.Normal.Len() > 0.001 {
			return true
		}
	}
	return false
}

// Transform bakes a matrix into positions and normals. Mirroring
// transforms flip the winding so faces stay front-facing.
func (m *Mesh) Transform(mat math3d.Mat4) {
	normalMat := mat.Inverse().Transpose()
	for i := range m.Vertices {
		m.Vertices[i].Position = mat.MulVec3(m.Vertices[i].Position)
		m.Vertices[i].Normal = normalMat.MulVec3Dir(m.Vertices[i].Normal).Normalize()
	}
	if mat.Determinant() < 0 {
		for i := range m.Faces {
			f := &m.Faces[i]
			f.V[1], f.V[2] = f.V[2], f.V[1]
		}
	}
	m.CalculateBounds()
}

// Clone creates a deep copy of the mesh. The base map image is shared.
func (m *Mesh) Clone() *Mesh {
	clone := &Mesh{
		Name:     m.Name,
		Vertices: make([]MeshVertex, len(m.Vertices)),
		Faces:    make([]Face, len(m.Faces)),
		Material: m.Material,
		Bounds:   m.Bounds,
	}
	copy(clone.Vertices, m.Vertices)
	copy(clone.Faces, m.Faces)
	return clone
}

// GetVertex returns the position, normal, and UV for vertex i.
// Implements render.MeshRenderer interface.
func (m *Mesh) GetVertex(i int) (pos, normal math3d.Vec3, uv math3d.Vec2) {
	v := m.Vertices[i]
	return v.Position, v.Normal, v.UV
}

// GetFace returns the vertex indices for face i.
// Implements render.MeshRenderer interface.
func (m *Mesh) GetFace(i int) [3]int {
	return m.Faces[i].V
}

// GetBounds returns the axis-aligned bounding box.
// Implements render.BoundedMeshRenderer interface.
func (m *Mesh) GetBounds() (min, max math3d.Vec3) {
	return m.Bounds.Min, m.Bounds.Max
}

// addQuad appends a quad given counter-clockwise (seen from outside) corners.
// Faces are stored with the winding reversed, the same as decoded GLTF.
func (m *Mesh) addQuad(corners [4]math3d.Vec3, uvs [4]math3d.Vec2, normal math3d.Vec3) {
	base := len(m.Vertices)
	for i := range corners {
		m.Vertices = append(m.Vertices, MeshVertex{Position: corners[i], Normal: normal, UV: uvs[i]})
	}
	m.Faces = append(m.Faces,
		Face{V: [3]int{base, base + 2, base + 1}},
		Face{V: [3]int{base, base + 3, base + 2}},
	)
}

var quadUVs = [4]math3d.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

// NewBox builds a closed box spanning b with outward-facing quads.
func NewBox(name string, b math3d.Box3) *Mesh {
	m := NewMesh(name)
	c := b.Center()
	h := b.HalfSize()

	// Each face: outward normal n and in-plane axes u, v with u x v = n.
	faces := [6][3]math3d.Vec3{
		{math3d.V3(1, 0, 0), math3d.V3(0, 0, -1), math3d.V3(0, 1, 0)},
		{math3d.V3(-1, 0, 0), math3d.V3(0, 0, 1), math3d.V3(0, 1, 0)},
		{math3d.V3(0, 1, 0), math3d.V3(1, 0, 0), math3d.V3(0, 0, -1)},
		{math3d.V3(0, -1, 0), math3d.V3(1, 0, 0), math3d.V3(0, 0, 1)},
		{math3d.V3(0, 0, 1), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0)},
		{math3d.V3(0, 0, -1), math3d.V3(-1, 0, 0), math3d.V3(0, 1, 0)},
	}
	for _, f := range faces {
		n, u, v := f[0], f[1], f[2]
		center := c.Add(n.Scale(extent(h, n)))
		du := u.Scale(extent(h, u))
		dv := v.Scale(extent(h, v))
		m.addQuad([4]math3d.Vec3{
			center.Sub(du).Sub(dv),
			center.Add(du).Sub(dv),
			center.Add(du).Add(dv),
			center.Sub(du).Add(dv),
		}, quadUVs, n)
	}
	m.CalculateBounds()
	return m
}

func extent(h, axis math3d.Vec3) float64 {
	return math.Abs(h.Dot(axis))
}

// NewPlane builds a width x depth quad on the XZ plane facing +Y, centered
// on the origin. U runs along +X and V along +Z.
func NewPlane(name string, width, depth float64) *Mesh {
	m := NewMesh(name)
	hw, hd := width/2, depth/2
	// Counter-clockwise seen from above: -X+Z, +X+Z, +X-Z, -X-Z.
	m.addQuad([4]math3d.Vec3{
		math3d.V3(-hw, 0, hd),
		math3d.V3(hw, 0, hd),
		math3d.V3(hw, 0, -hd),
		math3d.V3(-hw, 0, -hd),
	}, [4]math3d.Vec2{{X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}, math3d.V3(0, 1, 0))
	m.CalculateBounds()
	return m
}
