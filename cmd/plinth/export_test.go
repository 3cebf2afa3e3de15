package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
	"github.com/taigrr/plinth/pkg/viewer"
)

// fixture is a scratch directory holding a small config and GLB modules.
type fixture struct {
	t      *testing.T
	dir    string
	config string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "plinth.yaml")
	data := "viewer:\n" +
		"  width: 96\n" +
		"  height: 64\n" +
		"  shadow:\n" +
		"    resolution: 32\n" +
		"logging:\n" +
		"  console: false\n" +
		"fetch:\n" +
		"  cacheDir: " + filepath.Join(dir, "cache") + "\n"
	require.NoError(t, os.WriteFile(config, []byte(data), 0o644))
	return &fixture{t: t, dir: dir, config: config}
}

// module writes a w x 1 x 1 box resting on the ground as name.glb.
func (f *fixture) module(name string, w float64) string {
	f.t.Helper()
	box := models.NewBox(name, math3d.BoxFromCenterSize(math3d.V3(0, 0.5, 0), math3d.V3(w, 1, 1)))
	data, err := models.EncodeGLB(models.NewModel(name, box))
	require.NoError(f.t, err)
	path := filepath.Join(f.dir, name+".glb")
	require.NoError(f.t, os.WriteFile(path, data, 0o644))
	return path
}

func (f *fixture) run(args ...string) (string, error) {
	f.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", f.config, "export"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportComposesModules(t *testing.T) {
	f := newFixture(t)
	left := f.module("left", 1)
	right := f.module("right", 2)

	out, err := f.run(left, right, "--format", "json")
	require.NoError(t, err)

	var l viewer.Layout
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	require.Len(t, l.Modules, 2)
	assert.Equal(t, "left", l.Modules[0].ID)
	assert.Equal(t, "right", l.Modules[1].ID)
	assert.NotEqual(t, l.Modules[0].Position, l.Modules[1].Position, "second module should be placed beside the first")
	for _, m := range l.Modules {
		assert.Zero(t, m.Position.Y)
		assert.Zero(t, m.Rotation)
	}
}

func TestExportAppliesLayout(t *testing.T) {
	f := newFixture(t)
	f.module("chair", 1)

	layout := "modules:\n" +
		"  - id: chair\n" +
		"    position: {x: -2, y: 0, z: 0}\n" +
		"    rotation: 90\n" +
		"  - id: chair\n" +
		"    position: {x: 2, y: 0, z: 1.5}\n" +
		"    rotation: 0\n"
	layoutPath := filepath.Join(f.dir, "room.yaml")
	require.NoError(t, os.WriteFile(layoutPath, []byte(layout), 0o644))
	outPath := filepath.Join(f.dir, "out.yaml")

	_, err := f.run("--layout", layoutPath, "--catalog", f.dir, "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	got, err := viewer.ParseLayout(data)
	require.NoError(t, err)
	require.Len(t, got.Modules, 2)
	assert.Equal(t, math3d.V3(-2, 0, 0), got.Modules[0].Position)
	assert.Equal(t, 90.0, got.Modules[0].Rotation)
	assert.Equal(t, math3d.V3(2, 0, 1.5), got.Modules[1].Position)
}

func TestExportWritesPNG(t *testing.T) {
	f := newFixture(t)
	cube := f.module("cube", 1)
	pngPath := filepath.Join(f.dir, "frame.png")

	_, err := f.run(cube, "--single", "--png", pngPath, "--width", "80", "--height", "48")
	require.NoError(t, err)

	file, err := os.Open(pngPath)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 80, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestExportRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	cube := f.module("cube", 1)

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"nothing to do", nil, errors.ErrCodeInvalidConfig},
		{"unknown format", []string{cube, "--format", "toml"}, errors.ErrCodeInvalidConfig},
		{"single with two models", []string{cube, cube, "--single"}, errors.ErrCodeInvalidConfig},
		{"missing module", []string{filepath.Join(f.dir, "ghost.glb")}, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(tt.args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestExportUnknownLayoutID(t *testing.T) {
	f := newFixture(t)
	layoutPath := filepath.Join(f.dir, "room.yaml")
	require.NoError(t, os.WriteFile(layoutPath, []byte("modules:\n  - id: sofa\n"), 0o644))

	_, err := f.run("--layout", layoutPath, "--catalog", f.dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestPictureWidth(t *testing.T) {
	assert.Equal(t, 120, pictureWidth(120, 0))
	assert.Equal(t, 80, pictureWidth(120, 80))
	assert.Equal(t, 60, pictureWidth(60, 80))
}

func TestCellToPixel(t *testing.T) {
	x, y := cellToPixel(0, 0)
	assert.Equal(t, 0.5, x)
	assert.Equal(t, 1.0, y)
	x, y = cellToPixel(10, 4)
	assert.Equal(t, 10.5, x)
	assert.Equal(t, 9.0, y)
}
