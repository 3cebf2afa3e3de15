package models

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
)

// cubeDocument builds a single-node document holding a box spanning b, with
// GLTF (counter-clockwise) winding.
func cubeDocument(t *testing.T, b math3d.Box3) *gltf.Document {
	t.Helper()
	box := NewBox("cube", b)

	positions := make([][3]float32, len(box.Vertices))
	for i, v := range box.Vertices {
		positions[i] = [3]float32{float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z)}
	}
	indices := make([]uint16, 0, len(box.Faces)*3)
	for _, f := range box.Faces {
		indices = append(indices, uint16(f.V[0]), uint16(f.V[2]), uint16(f.V[1]))
	}

	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, positions)
	idx := modeler.WriteIndices(doc, indices)
	doc.Meshes = []*gltf.Mesh{{
		Name: "cube",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{gltf.POSITION: pos},
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: "Cube", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = []int{0}
	return doc
}

func unitCube() math3d.Box3 {
	return math3d.BoxFromCenterSize(math3d.V3(0, 0.5, 0), math3d.V3(1, 1, 1))
}

func TestBuildCube(t *testing.T) {
	model, err := NewGLTFLoader().build("cube", cubeDocument(t, unitCube()))
	if err != nil {
		t.Fatal(err)
	}

	if len(model.Parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(model.Parts))
	}
	part := model.Parts[0]
	if part.Name != "Cube" {
		t.Errorf("part name = %q, want node name", part.Name)
	}
	if part.TriangleCount() != 12 {
		t.Errorf("triangles = %d, want 12", part.TriangleCount())
	}
	if model.Bounds.Min.Distance(unitCube().Min) > 1e-6 || model.Bounds.Max.Distance(unitCube().Max) > 1e-6 {
		t.Errorf("bounds = %v, want %v", model.Bounds, unitCube())
	}
	// Winding reversed on load and normals generated outward.
	faceCentroidOutward(t, part)
	for i, v := range part.Vertices {
		if v.Normal.Len() < 0.99 {
			t.Fatalf("vertex %d has no normal", i)
		}
	}
}

func TestBuildAppliesNodeTransforms(t *testing.T) {
	doc := cubeDocument(t, unitCube())
	doc.Nodes = []*gltf.Node{
		{Name: "root", Translation: [3]float64{2, 0, 0}, Children: []int{1}},
		{Name: "Cube", Mesh: gltf.Index(0), Scale: [3]float64{2, 1, 1}},
	}

	model, err := NewGLTFLoader().build("moved", doc)
	if err != nil {
		t.Fatal(err)
	}

	want := math3d.NewBox3(math3d.V3(1, 0, -0.5), math3d.V3(3, 1, 0.5))
	if model.Bounds.Min.Distance(want.Min) > 1e-6 || model.Bounds.Max.Distance(want.Max) > 1e-6 {
		t.Errorf("bounds = %v, want %v", model.Bounds, want)
	}
}

func TestBuildReadsMaterial(t *testing.T) {
	doc := cubeDocument(t, unitCube())
	doc.Materials = []*gltf.Material{{
		Name: "oak",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{0.5, 0.25, 1, 1},
		},
	}}
	doc.Meshes[0].Primitives[0].Material = gltf.Index(0)

	model, err := NewGLTFLoader().build("oak", doc)
	if err != nil {
		t.Fatal(err)
	}

	mat := model.Parts[0].Material
	if mat.Name != "oak" {
		t.Errorf("material name = %q", mat.Name)
	}
	if math.Abs(mat.BaseColor[0]-0.5) > 1e-6 || math.Abs(mat.BaseColor[1]-0.25) > 1e-6 {
		t.Errorf("BaseColor = %v", mat.BaseColor)
	}
	if mat.HasTexture {
		t.Error("material without texture reports HasTexture")
	}
}

func TestBuildRejectsCompressedGeometry(t *testing.T) {
	doc := cubeDocument(t, unitCube())
	doc.ExtensionsUsed = []string{"KHR_draco_mesh_compression"}
	doc.ExtensionsRequired = []string{"KHR_draco_mesh_compression"}

	_, err := NewGLTFLoader().build("draco", doc)
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", err)
	}
}

func TestBuildEmptyDocument(t *testing.T) {
	_, err := NewGLTFLoader().build("empty", gltf.NewDocument())
	if !errors.Is(err, errors.ErrCodeDecodeFailed) {
		t.Errorf("err = %v, want DECODE_FAILED", err)
	}
}

func TestGLBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.glb")
	if err := gltf.SaveBinary(cubeDocument(t, unitCube()), path); err != nil {
		t.Fatal(err)
	}

	fromFile, err := LoadGLB(path)
	if err != nil {
		t.Fatal(err)
	}
	if fromFile.Name != "cube" {
		t.Errorf("name = %q, want file stem", fromFile.Name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fromBytes, err := DecodeGLB("cube", data)
	if err != nil {
		t.Fatal(err)
	}
	if fromBytes.Bounds != fromFile.Bounds || fromBytes.TriangleCount() != fromFile.TriangleCount() {
		t.Error("decoding bytes and loading the file disagree")
	}
}

func TestDecodeGLBInvalid(t *testing.T) {
	_, err := DecodeGLB("junk", []byte("not a gltf document"))
	if !errors.Is(err, errors.ErrCodeDecodeFailed) {
		t.Errorf("err = %v, want DECODE_FAILED", err)
	}
}

func TestLoadGLBInvalidPath(t *testing.T) {
	_, err := LoadGLB("/nonexistent/path.glb")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestGLTFLoaderCreation(t *testing.T) {
	loader := NewGLTFLoader()
	if !loader.CalculateNormals || !loader.SmoothNormals || !loader.LoadTextures {
		t.Errorf("unexpected defaults: %+v", loader)
	}
}

func TestQuatMatrix(t *testing.T) {
	// 90 degrees about Y maps +X to -Z.
	s := math.Sqrt(0.5)
	m := quatMatrix(0, s, 0, s)
	got := m.MulVec3(math3d.V3(1, 0, 0))
	if got.Distance(math3d.V3(0, 0, -1)) > 1e-9 {
		t.Errorf("rotated +X = %v, want -Z", got)
	}
}
