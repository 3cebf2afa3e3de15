package models

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"unsafe"

	"github.com/qmuntal/gltf"
	_ "golang.org/x/image/webp" // KHR_texture_webp

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
)

// unsupportedExtensions are required extensions whose data the loader cannot
// decode.
var unsupportedExtensions = []string{
	"KHR_draco_mesh_compression",
	"EXT_meshopt_compression",
}

// GLTFLoader loads GLTF/GLB documents into a Model.
type GLTFLoader struct {
	// Options
	CalculateNormals bool
	SmoothNormals    bool
	LoadTextures     bool

	images map[int]image.Image
}

// NewGLTFLoader creates a new GLTF loader with default options.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{
		CalculateNormals: true,
		SmoothNormals:    true,
		LoadTextures:     true,
	}
}

// LoadGLB loads a .glb or .gltf file from disk.
func LoadGLB(path string) (*Model, error) {
	return NewGLTFLoader().Load(path)
}

// DecodeGLB decodes an in-memory GLB (or self-contained GLTF) document.
func DecodeGLB(name string, data []byte) (*Model, error) {
	return NewGLTFLoader().Decode(name, data)
}

// Load loads a GLTF or GLB file and returns a Model.
func (l *GLTFLoader) Load(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "open %s", filepath.Base(path))
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return l.build(name, doc)
}

// Decode parses document bytes and returns a Model.
func (l *GLTFLoader) Decode(name string, data []byte) (*Model, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "decode %s", name)
	}
	return l.build(name, doc)
}

func (l *GLTFLoader) build(name string, doc *gltf.Document) (*Model, error) {
	for _, ext := range unsupportedExtensions {
		if slices.Contains(doc.ExtensionsRequired, ext) {
			return nil, errors.New(errors.ErrCodeUnsupported, "%s requires %s", name, ext)
		}
	}

	l.images = make(map[int]image.Image)
	model := &Model{Name: name}

	roots := sceneRoots(doc)
	if roots == nil {
		// No scene graph: take every mesh untransformed.
		for i, m := range doc.Meshes {
			parts, err := l.processMesh(doc, m, meshName(m, i), math3d.Identity())
			if err != nil {
				return nil, err
			}
			model.Parts = append(model.Parts, parts...)
		}
	} else {
		for _, ni := range roots {
			if err := l.walk(doc, ni, math3d.Identity(), model, 0); err != nil {
				return nil, err
			}
		}
	}

	if model.TriangleCount() == 0 {
		return nil, errors.New(errors.ErrCodeDecodeFailed, "%s has no triangle geometry", name)
	}
	model.CalculateBounds()
	return model, nil
}

// sceneRoots returns the root nodes of the default scene, or nil when the
// document has no scenes.
func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) == 0 {
		return nil
	}
	si := 0
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		si = *doc.Scene
	}
	return doc.Scenes[si].Nodes
}

const maxNodeDepth = 64

// walk bakes world transforms down the node hierarchy.
func (l *GLTFLoader) walk(doc *gltf.Document, ni int, parent math3d.Mat4, model *Model, depth int) error {
	if ni < 0 || ni >= len(doc.Nodes) {
		return errors.New(errors.ErrCodeDecodeFailed, "node index %d out of range", ni)
	}
	if depth > maxNodeDepth {
		return errors.New(errors.ErrCodeDecodeFailed, "node hierarchy deeper than %d", maxNodeDepth)
	}
	node := doc.Nodes[ni]
	world := parent.Mul(localMatrix(node))

	if node.Mesh != nil && *node.Mesh < len(doc.Meshes) {
		m := doc.Meshes[*node.Mesh]
		name := node.Name
		if name == "" {
			name = meshName(m, *node.Mesh)
		}
		parts, err := l.processMesh(doc, m, name, world)
		if err != nil {
			return err
		}
		model.Parts = append(model.Parts, parts...)
	}

	for _, child := range node.Children {
		if err := l.walk(doc, child, world, model, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func meshName(m *gltf.Mesh, i int) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("mesh%d", i)
}

// localMatrix returns the node's matrix, or T*R*S when no matrix is set.
func localMatrix(n *gltf.Node) math3d.Mat4 {
	var m math3d.Mat4
	raw := n.MatrixOrDefault()
	for i := range raw {
		m[i] = float64(raw[i])
	}
	if m != math3d.Identity() && m != (math3d.Mat4{}) {
		return m
	}

	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	return math3d.Translate(math3d.V3(float64(t[0]), float64(t[1]), float64(t[2]))).
		Mul(quatMatrix(float64(r[0]), float64(r[1]), float64(r[2]), float64(r[3]))).
		Mul(math3d.Scale(math3d.V3(float64(s[0]), float64(s[1]), float64(s[2]))))
}

// quatMatrix converts a unit quaternion (x, y, z, w) to a rotation matrix.
func quatMatrix(x, y, z, w float64) math3d.Mat4 {
	if l := math.Sqrt(x*x + y*y + z*z + w*w); l > 0 {
		x, y, z, w = x/l, y/l, z/l, w/l
	}
	return math3d.Mat4{
		1 - 2*(y*y+z*z), 2 * (x*y + z*w), 2 * (x*z - y*w), 0,
		2 * (x*y - z*w), 1 - 2*(x*x+z*z), 2 * (y*z + x*w), 0,
		2 * (x*z + y*w), 2 * (y*z - x*w), 1 - 2*(x*x+y*y), 0,
		0, 0, 0, 1,
	}
}

// processMesh extracts one part per triangle primitive.
func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, name string, world math3d.Mat4) ([]*Mesh, error) {
	var parts []*Mesh
	for pi, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			// Skip non-triangle primitives (lines, points, etc)
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}

		partName := name
		if len(m.Primitives) > 1 {
			partName = fmt.Sprintf("%s.%d", name, pi)
		}
		part := NewMesh(partName)

		positions, err := readVec3Accessor(doc, posIdx)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "%s: read positions", partName)
		}

		var normals []math3d.Vec3
		if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
			normals, err = readVec3Accessor(doc, normIdx)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "%s: read normals", partName)
			}
		}

		var uvs []math3d.Vec2
		if uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
			uvs, err = readVec2Accessor(doc, uvIdx)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "%s: read uvs", partName)
			}
		}

		for i := range positions {
			v := MeshVertex{Position: positions[i]}
			if i < len(normals) {
				v.Normal = normals[i]
			}
			if i < len(uvs) {
				// GLTF uses top-left origin (V=0 at top), flip V for bottom-left origin
				v.UV = math3d.V2(uvs[i].X, 1.0-uvs[i].Y)
			}
			part.Vertices = append(part.Vertices, v)
		}

		var indices []int
		if prim.Indices != nil {
			indices, err = readIndices(doc, *prim.Indices)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "%s: read indices", partName)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}

		// GLTF uses CCW winding for front faces; the rasterizer's Y flip makes
		// that negative area, so reverse the winding here.
		for i := 0; i+2 < len(indices); i += 3 {
			a, b, c := indices[i], indices[i+1], indices[i+2]
			if a >= len(positions) || b >= len(positions) || c >= len(positions) {
				return nil, errors.New(errors.ErrCodeDecodeFailed, "%s: index out of range", partName)
			}
			part.Faces = append(part.Faces, Face{V: [3]int{a, c, b}})
		}
		if len(part.Faces) == 0 {
			continue
		}

		if l.CalculateNormals && !part.HasNormals() {
			if l.SmoothNormals {
				part.CalculateSmoothNormals()
			} else {
				part.CalculateNormals()
			}
		}

		if prim.Material != nil && *prim.Material < len(doc.Materials) {
			part.Material = l.readMaterial(doc, doc.Materials[*prim.Material])
		}

		part.Transform(world)
		parts = append(parts, part)
	}
	return parts, nil
}

// readMaterial converts a GLTF PBR material. Texture decode failures leave
// the material untextured.
func (l *GLTFLoader) readMaterial(doc *gltf.Document, gm *gltf.Material) Material {
	mat := DefaultMaterial()
	mat.Name = gm.Name
	pbr := gm.PBRMetallicRoughness
	if pbr == nil {
		return mat
	}

	bc := pbr.BaseColorFactorOrDefault()
	for i := range bc {
		mat.BaseColor[i] = float64(bc[i])
	}
	mat.Metallic = float64(pbr.MetallicFactorOrDefault())
	mat.Roughness = float64(pbr.RoughnessFactorOrDefault())

	if l.LoadTextures && pbr.BaseColorTexture != nil {
		ti := pbr.BaseColorTexture.Index
		if ti < len(doc.Textures) && doc.Textures[ti].Source != nil {
			if img := l.image(doc, *doc.Textures[ti].Source); img != nil {
				mat.BaseMap = img
				mat.HasTexture = true
			}
		}
	}
	return mat
}

// image decodes an embedded image once per document.
func (l *GLTFLoader) image(doc *gltf.Document, idx int) image.Image {
	if img, ok := l.images[idx]; ok {
		return img
	}
	if idx < 0 || idx >= len(doc.Images) {
		return nil
	}

	var data []byte
	src := doc.Images[idx]
	switch {
	case src.BufferView != nil:
		bv := doc.BufferViews[*src.BufferView]
		buf := doc.Buffers[bv.Buffer]
		if end := bv.ByteOffset + bv.ByteLength; buf.Data != nil && end <= len(buf.Data) {
			data = buf.Data[bv.ByteOffset:end]
		}
	case strings.HasPrefix(src.URI, "data:"):
		if i := strings.Index(src.URI, ";base64,"); i >= 0 {
			data, _ = base64.StdEncoding.DecodeString(src.URI[i+len(";base64,"):])
		}
	}

	var img image.Image
	if len(data) > 0 {
		img, _, _ = image.Decode(bytes.NewReader(data))
	}
	l.images[idx] = img
	return img
}

// readVec3Accessor reads Vec3 data from a GLTF accessor.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec3 {
		return nil, fmt.Errorf("expected VEC3, got %v", accessor.Type)
	}

	data, err := readAccessorData(doc, accessor)
	if err != nil {
		return nil, err
	}

	floats, ok := data.([][3]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected data type for VEC3")
	}

	result := make([]math3d.Vec3, len(floats))
	for i, f := range floats {
		result[i] = math3d.V3(float64(f[0]), float64(f[1]), float64(f[2]))
	}

	return result, nil
}

// readVec2Accessor reads Vec2 data from a GLTF accessor.
func readVec2Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec2, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec2 {
		return nil, fmt.Errorf("expected VEC2, got %v", accessor.Type)
	}

	data, err := readAccessorData(doc, accessor)
	if err != nil {
		return nil, err
	}

	floats, ok := data.([][2]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected data type for VEC2")
	}

	result := make([]math3d.Vec2, len(floats))
	for i, f := range floats {
		result[i] = math3d.V2(float64(f[0]), float64(f[1]))
	}

	return result, nil
}

// readIndices reads index data from a GLTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	data, err := readAccessorData(doc, doc.Accessors[accessorIdx])
	if err != nil {
		return nil, err
	}

	switch v := data.(type) {
	case []uint8:
		return widen(v), nil
	case []uint16:
		return widen(v), nil
	case []uint32:
		return widen(v), nil
	default:
		return nil, fmt.Errorf("unexpected index type: %T", data)
	}
}

func widen[T uint8 | uint16 | uint32](v []T) []int {
	result := make([]int, len(v))
	for i, x := range v {
		result[i] = int(x)
	}
	return result
}

// readAccessorData reads raw data from a GLTF accessor.
func readAccessorData(doc *gltf.Document, accessor *gltf.Accessor) (any, error) {
	if accessor.BufferView == nil {
		return nil, fmt.Errorf("accessor has no buffer view")
	}

	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]

	// Embedded (GLB, data URI) and resolved external buffers are all in Data.
	bufData := buffer.Data
	if bufData == nil {
		return nil, fmt.Errorf("buffer %q has no data", buffer.URI)
	}

	start := bufferView.ByteOffset + accessor.ByteOffset
	stride := bufferView.ByteStride
	count := accessor.Count

	need := func(elem int) error {
		if stride == 0 {
			stride = elem
		}
		if count > 0 && start+(count-1)*stride+elem > len(bufData) {
			return fmt.Errorf("accessor reads past buffer end")
		}
		return nil
	}

	switch accessor.Type {
	case gltf.AccessorVec3:
		if err := need(12); err != nil {
			return nil, err
		}
		result := make([][3]float32, count)
		for i := range count {
			offset := start + i*stride
			for j := range 3 {
				result[i][j] = readFloat32(bufData[offset+j*4:])
			}
		}
		return result, nil

	case gltf.AccessorVec2:
		if err := need(8); err != nil {
			return nil, err
		}
		result := make([][2]float32, count)
		for i := range count {
			offset := start + i*stride
			for j := range 2 {
				result[i][j] = readFloat32(bufData[offset+j*4:])
			}
		}
		return result, nil

	case gltf.AccessorScalar:
		switch accessor.ComponentType {
		case gltf.ComponentUbyte:
			if err := need(1); err != nil {
				return nil, err
			}
			result := make([]uint8, count)
			for i := range count {
				result[i] = bufData[start+i*stride]
			}
			return result, nil
		case gltf.ComponentUshort:
			if err := need(2); err != nil {
				return nil, err
			}
			result := make([]uint16, count)
			for i := range count {
				offset := start + i*stride
				result[i] = uint16(bufData[offset]) | uint16(bufData[offset+1])<<8
			}
			return result, nil
		case gltf.ComponentUint:
			if err := need(4); err != nil {
				return nil, err
			}
			result := make([]uint32, count)
			for i := range count {
				offset := start + i*stride
				result[i] = uint32(bufData[offset]) |
					uint32(bufData[offset+1])<<8 |
					uint32(bufData[offset+2])<<16 |
					uint32(bufData[offset+3])<<24
			}
			return result, nil
		}
	}

	return nil, fmt.Errorf("unsupported accessor type: %v / %v", accessor.Type, accessor.ComponentType)
}

// readFloat32 reads a little-endian float32.
func readFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return float32frombits(bits)
}

// float32frombits converts bits to float32.
func float32frombits(b uint32) float32 {
	return *(*float32)(unsafe.Pointer(&b))
}
