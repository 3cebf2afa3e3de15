package viewer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
)

func TestSnapRotation90(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{44, 0},
		{46, 90},
		{100, 90},
		{-90, 270},
		{-100, 270},
		{359, 0},
		{315, 0},
		{405, 90},
		{-720, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		got := SnapRotation90(tt.in)
		assert.Equal(t, tt.want, got, "SnapRotation90(%v)", tt.in)
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2349))
	assert.Equal(t, 1.24, round2(1.235001))
	z := round2(-0.001)
	assert.False(t, math.Signbit(z), "negative zero folded")
}

func TestExportSnapsRotation(t *testing.T) {
	f := newFakeFetcher()
	url := "https://cdn.example.com/mods/sofa-left.glb?v=3"
	f.set(url, cubeGLB(t, unitBox()))
	v := newTestViewer(t, f)

	_, err := v.AddModuleAt(context.Background(), url, Transform{
		Position:     math3d.V3(2, 0, 1),
		RotationYDeg: 100,
	})
	require.NoError(t, err)

	l := v.ExportLayout()
	require.Len(t, l.Modules, 1)
	m := l.Modules[0]
	assert.Equal(t, "sofa-left", m.ID)
	assert.Equal(t, 90.0, m.Rotation)
	assert.InDelta(t, 2, m.Position.X, 1e-9)
	assert.InDelta(t, 0, m.Position.Y, 1e-9)
	assert.InDelta(t, 1, m.Position.Z, 1e-9)
}

func TestExportEmpty(t *testing.T) {
	v := newTestViewer(t, nil)
	l := v.ExportLayout()
	assert.NotNil(t, l.Modules)
	data, err := l.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"modules":[]}`, string(data))
}

func TestParseLayout(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		l, err := ParseLayout([]byte(`{"modules":[{"id":"a","position":{"x":1,"y":0,"z":2},"rotation":90}]}`))
		require.NoError(t, err)
		require.Len(t, l.Modules, 1)
		assert.Equal(t, LayoutModule{ID: "a", Position: math3d.V3(1, 0, 2), Rotation: 90}, l.Modules[0])
	})
	t.Run("yaml", func(t *testing.T) {
		l, err := ParseLayout([]byte("modules:\n  - id: b\n    position: {x: -1.5, y: 0, z: 0}\n    rotation: 270\n"))
		require.NoError(t, err)
		require.Len(t, l.Modules, 1)
		assert.Equal(t, "b", l.Modules[0].ID)
		assert.Equal(t, -1.5, l.Modules[0].Position.X)
	})
	t.Run("missing id", func(t *testing.T) {
		_, err := ParseLayout([]byte(`{"modules":[{"rotation":90}]}`))
		assert.True(t, errors.Is(err, errors.ErrCodeDecodeFailed))
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := ParseLayout([]byte("modules: [unterminated"))
		assert.True(t, errors.Is(err, errors.ErrCodeDecodeFailed))
	})
}

func TestLayoutRoundTrip(t *testing.T) {
	f := newFakeFetcher()
	f.set("assets/cube.glb", cubeGLB(t, unitBox()))
	src := newTestViewer(t, f)
	ctx := context.Background()

	_, err := src.AddModule(ctx, "assets/cube.glb")
	require.NoError(t, err)
	_, err = src.AddModuleAt(ctx, "assets/cube.glb", Transform{Position: math3d.V3(3, 0, -2), RotationYDeg: -90})
	require.NoError(t, err)

	data, err := src.ExportLayout().YAML()
	require.NoError(t, err)
	layout, err := ParseLayout(data)
	require.NoError(t, err)

	dst := newTestViewer(t, f)
	ids, err := dst.ApplyLayout(ctx, layout, func(id string) (string, error) {
		return "assets/" + id + ".glb", nil
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, src.ExportLayout(), dst.ExportLayout())
}

func TestApplyLayoutUnknownID(t *testing.T) {
	v := newTestViewer(t, nil)
	_, err := v.ApplyLayout(context.Background(), Layout{Modules: []LayoutModule{{ID: "ghost"}}},
		func(id string) (string, error) {
			return "", errors.New(errors.ErrCodeNotFound, "unknown %s", id)
		})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.Empty(t, v.Modules())
}
