package models

import (
	"bytes"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/taigrr/plinth/pkg/errors"
)

// EncodeGLB writes model as a binary GLTF container with one node per part.
// Geometry is emitted in the model's local frame with GLTF winding, so
// DecodeGLB of the result reproduces the parts and bounds. Textures are not
// written.
func EncodeGLB(model *Model) ([]byte, error) {
	if model == nil || len(model.Parts) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "encode: model has no parts")
	}

	doc := gltf.NewDocument()
	for _, part := range model.Parts {
		if len(part.Faces) == 0 {
			continue
		}
		positions := make([][3]float32, len(part.Vertices))
		normals := make([][3]float32, len(part.Vertices))
		uvs := make([][2]float32, len(part.Vertices))
		for i, v := range part.Vertices {
			positions[i] = [3]float32{float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z)}
			normals[i] = [3]float32{float32(v.Normal.X), float32(v.Normal.Y), float32(v.Normal.Z)}
			uvs[i] = [2]float32{float32(v.UV.X), float32(1 - v.UV.Y)}
		}
		indices := make([]uint32, 0, len(part.Faces)*3)
		for _, f := range part.Faces {
			indices = append(indices, uint32(f.V[0]), uint32(f.V[2]), uint32(f.V[1]))
		}

		attrs := map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
		}
		if part.HasNormals() {
			attrs[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
		}

		mat := part.Material
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name: mat.Name,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &mat.BaseColor,
				MetallicFactor:  gltf.Float(mat.Metallic),
				RoughnessFactor: gltf.Float(mat.Roughness),
			},
		})
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{
			Name: part.Name,
			Primitives: []*gltf.Primitive{{
				Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
				Attributes: attrs,
				Material:   gltf.Index(len(doc.Materials) - 1),
			}},
		})
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: part.Name, Mesh: gltf.Index(len(doc.Meshes) - 1)})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}
	if len(doc.Nodes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "encode: model has no triangles")
	}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecodeFailed, err, "encode %s", model.Name)
	}
	return buf.Bytes(), nil
}
