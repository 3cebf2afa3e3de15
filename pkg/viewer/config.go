package viewer

import (
	"math"
	"regexp"
	"time"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/render"
)

// Config enumerates every viewer tunable. Zero values are not defaults;
// start from DefaultConfig and override.
type Config struct {
	MountID    string `yaml:"mountId" json:"mountId"`
	ModelURL   string `yaml:"modelUrl,omitempty" json:"modelUrl,omitempty"`
	AllowEmpty bool   `yaml:"allowEmpty" json:"allowEmpty"`

	// Viewport size in framebuffer pixels.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	FOV                   float64 `yaml:"fov" json:"fov"` // vertical, degrees
	DefaultOrbit          Orbit   `yaml:"defaultOrbit" json:"defaultOrbit"`
	FramePadding          float64 `yaml:"framePadding" json:"framePadding"`
	InitialScreenFraction float64 `yaml:"initialScreenFraction" json:"initialScreenFraction"`
	BoundaryExpandFactor  float64 `yaml:"boundaryExpandFactor" json:"boundaryExpandFactor"`
	MinScreenFraction     float64 `yaml:"minScreenFraction" json:"minScreenFraction"`
	DollySpeed            float64 `yaml:"dollySpeed" json:"dollySpeed"`
	EnablePan             bool    `yaml:"enablePan" json:"enablePan"`

	// Optional angle clamps in degrees. Nil leaves the axis unclamped.
	MinPolarDeg   *float64 `yaml:"minPolarDeg,omitempty" json:"minPolarDeg,omitempty"`
	MaxPolarDeg   *float64 `yaml:"maxPolarDeg,omitempty" json:"maxPolarDeg,omitempty"`
	MinAzimuthDeg *float64 `yaml:"minAzimuthDeg,omitempty" json:"minAzimuthDeg,omitempty"`
	MaxAzimuthDeg *float64 `yaml:"maxAzimuthDeg,omitempty" json:"maxAzimuthDeg,omitempty"`

	EnvironmentURL        string                 `yaml:"environmentUrl,omitempty" json:"environmentUrl,omitempty"`
	ToneMapping           render.ToneMappingMode `yaml:"toneMapping" json:"toneMapping"`
	Exposure              float64                `yaml:"exposure" json:"exposure"`
	BackgroundColor       string                 `yaml:"backgroundColor" json:"backgroundColor"`
	BackgroundTransparent bool                   `yaml:"backgroundTransparent" json:"backgroundTransparent"`

	Outline     OutlineConfig    `yaml:"outline" json:"outline"`
	Drag        DragConfig       `yaml:"drag" json:"drag"`
	CameraRefit RefitConfig      `yaml:"cameraRefit" json:"cameraRefit"`
	Shadow      ShadowConfig     `yaml:"shadow" json:"shadow"`
	Dimensions  DimensionsConfig `yaml:"dimensions" json:"dimensions"`

	CameraEventInterval time.Duration `yaml:"cameraEventInterval" json:"cameraEventInterval"`
	EventBuffer         int           `yaml:"eventBuffer" json:"eventBuffer"`

	// Debug draws collider boxes as wireframes over the main pass.
	Debug bool `yaml:"debug" json:"debug"`
}

// Orbit is a camera direction around the target, in degrees.
type Orbit struct {
	ThetaDeg float64 `yaml:"thetaDeg" json:"thetaDeg"`
	PhiDeg   float64 `yaml:"phiDeg" json:"phiDeg"`
}

// OutlineConfig controls the selection shell.
type OutlineConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Color     string  `yaml:"color" json:"color"`
	Thickness float64 `yaml:"thickness" json:"thickness"` // fractional inflation
}

// DragConfig controls drag-and-place.
type DragConfig struct {
	GridSize          float64 `yaml:"gridSize" json:"gridSize"`
	CollisionBuffer   float64 `yaml:"collisionBuffer" json:"collisionBuffer"`
	EdgeSnapTolerance float64 `yaml:"edgeSnapTolerance" json:"edgeSnapTolerance"`
	Iterations        int     `yaml:"iterations" json:"iterations"`
}

// RefitConfig holds the thresholds below which structural changes leave
// the camera alone.
type RefitConfig struct {
	DeltaRadiusFrac float64 `yaml:"deltaRadiusFrac" json:"deltaRadiusFrac"`
	CenterShiftFrac float64 `yaml:"centerShiftFrac" json:"centerShiftFrac"`
	MinCenterShift  float64 `yaml:"minCenterShift" json:"minCenterShift"`
}

// Blur units for ShadowConfig.Units.
const (
	BlurUnitsPixels = "pixels"
	BlurUnitsWorld  = "world"
)

// ShadowConfig controls the contact shadow.
type ShadowConfig struct {
	Blur        float64 `yaml:"blur" json:"blur"`
	Darkness    float64 `yaml:"darkness" json:"darkness"`
	Opacity     float64 `yaml:"opacity" json:"opacity"`
	Units       string  `yaml:"units" json:"units"`
	Resolution  int     `yaml:"resolution" json:"resolution"`
	PlaneFactor float64 `yaml:"planeFactor" json:"planeFactor"`
	ResizeEps   float64 `yaml:"resizeEps" json:"resizeEps"`
	YOffset     float64 `yaml:"yOffset" json:"yOffset"`
}

// DimensionsConfig controls the measurement overlay.
type DimensionsConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Color      string  `yaml:"color" json:"color"`
	TextColor  string  `yaml:"textColor" json:"textColor"`
	Offset     float64 `yaml:"offset" json:"offset"`
	LabelScale float64 `yaml:"labelScale" json:"labelScale"`
}

// DefaultConfig returns the stock tunables for mountID.
func DefaultConfig(mountID string) Config {
	maxPolar := 88.0
	return Config{
		MountID:               mountID,
		Width:                 640,
		Height:                360,
		FOV:                   30,
		DefaultOrbit:          Orbit{ThetaDeg: 0, PhiDeg: 75},
		FramePadding:          3.5,
		InitialScreenFraction: 1,
		BoundaryExpandFactor:  3,
		MinScreenFraction:     0.5,
		DollySpeed:            0.75,
		EnablePan:             true,
		MaxPolarDeg:           &maxPolar,
		ToneMapping:           render.ToneMappingACESFilmic,
		Exposure:              1,
		BackgroundColor:       "#ffffff",
		Outline: OutlineConfig{
			Enabled:   true,
			Color:     "#2b8cff",
			Thickness: 0.01,
		},
		Drag: DragConfig{
			GridSize:          0.01,
			CollisionBuffer:   0.003,
			EdgeSnapTolerance: 0.04,
			Iterations:        18,
		},
		CameraRefit: RefitConfig{
			DeltaRadiusFrac: 0.5,
			CenterShiftFrac: 0.6,
			MinCenterShift:  0.05,
		},
		Shadow: ShadowConfig{
			Blur:        4,
			Darkness:    0.9,
			Opacity:     0.3,
			Units:       BlurUnitsPixels,
			Resolution:  256,
			PlaneFactor: 1.6,
			ResizeEps:   1e-3,
			YOffset:     -0.002,
		},
		Dimensions: DimensionsConfig{
			Enabled:    true,
			Color:      "#aaaaaa",
			TextColor:  "#000000",
			Offset:     0.02,
			LabelScale: 1,
		},
		CameraEventInterval: 100 * time.Millisecond,
		EventBuffer:         32,
	}
}

var mountIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate reports the first invalid tunable.
func (c Config) Validate() error {
	if c.MountID == "" {
		return errors.New(errors.ErrCodeMissingMount, "mount id is required")
	}
	if !mountIDPattern.MatchString(c.MountID) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid mount id %q", c.MountID)
	}

	type check struct {
		ok   bool
		name string
		val  any
	}
	checks := []check{
		{c.Width > 0 && c.Height > 0, "viewport size", [2]int{c.Width, c.Height}},
		{c.FOV > 0 && c.FOV < 180, "fov", c.FOV},
		{c.DefaultOrbit.PhiDeg >= 0 && c.DefaultOrbit.PhiDeg <= 180, "defaultOrbit.phiDeg", c.DefaultOrbit.PhiDeg},
		{positive(c.FramePadding), "framePadding", c.FramePadding},
		{c.InitialScreenFraction > 0 && c.InitialScreenFraction <= 1, "initialScreenFraction", c.InitialScreenFraction},
		{c.BoundaryExpandFactor >= 0, "boundaryExpandFactor", c.BoundaryExpandFactor},
		{c.MinScreenFraction > 0 && c.MinScreenFraction <= 1, "minScreenFraction", c.MinScreenFraction},
		{positive(c.DollySpeed), "dollySpeed", c.DollySpeed},
		{c.Exposure > 0, "exposure", c.Exposure},
		{c.Outline.Thickness >= 0, "outline.thickness", c.Outline.Thickness},
		{c.Drag.GridSize > 0, "drag.gridSize", c.Drag.GridSize},
		{c.Drag.CollisionBuffer >= 0, "drag.collisionBuffer", c.Drag.CollisionBuffer},
		{c.Drag.EdgeSnapTolerance >= 0, "drag.edgeSnapTolerance", c.Drag.EdgeSnapTolerance},
		{c.Drag.Iterations >= 1 && c.Drag.Iterations <= 64, "drag.iterations", c.Drag.Iterations},
		{c.CameraRefit.DeltaRadiusFrac >= 0, "cameraRefit.deltaRadiusFrac", c.CameraRefit.DeltaRadiusFrac},
		{c.CameraRefit.CenterShiftFrac >= 0, "cameraRefit.centerShiftFrac", c.CameraRefit.CenterShiftFrac},
		{c.CameraRefit.MinCenterShift >= 0, "cameraRefit.minCenterShift", c.CameraRefit.MinCenterShift},
		{c.Shadow.Blur >= 0, "shadow.blur", c.Shadow.Blur},
		{c.Shadow.Darkness >= 0 && c.Shadow.Darkness <= 1, "shadow.darkness", c.Shadow.Darkness},
		{c.Shadow.Opacity >= 0 && c.Shadow.Opacity <= 1, "shadow.opacity", c.Shadow.Opacity},
		{c.Shadow.Units == BlurUnitsPixels || c.Shadow.Units == BlurUnitsWorld, "shadow.units", c.Shadow.Units},
		{c.Shadow.Resolution >= 16 && c.Shadow.Resolution <= 2048, "shadow.resolution", c.Shadow.Resolution},
		{positive(c.Shadow.PlaneFactor), "shadow.planeFactor", c.Shadow.PlaneFactor},
		{c.Shadow.ResizeEps >= 0, "shadow.resizeEps", c.Shadow.ResizeEps},
		{c.Dimensions.Offset >= 0, "dimensions.offset", c.Dimensions.Offset},
		{positive(c.Dimensions.LabelScale), "dimensions.labelScale", c.Dimensions.LabelScale},
		{c.CameraEventInterval >= 0, "cameraEventInterval", c.CameraEventInterval},
		{c.EventBuffer >= 0, "eventBuffer", c.EventBuffer},
	}
	for _, ch := range checks {
		if !ch.ok {
			return errors.New(errors.ErrCodeInvalidConfig, "invalid %s: %v", ch.name, ch.val)
		}
	}

	if err := checkAnglePair("polar", c.MinPolarDeg, c.MaxPolarDeg, 0, 180); err != nil {
		return err
	}
	if err := checkAnglePair("azimuth", c.MinAzimuthDeg, c.MaxAzimuthDeg, math.Inf(-1), math.Inf(1)); err != nil {
		return err
	}

	for name, s := range map[string]string{
		"backgroundColor":      c.BackgroundColor,
		"outline.color":        c.Outline.Color,
		"dimensions.color":     c.Dimensions.Color,
		"dimensions.textColor": c.Dimensions.TextColor,
	} {
		if _, err := render.ParseHexColor(s); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid %s", name)
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func checkAnglePair(name string, lo, hi *float64, min, max float64) error {
	for _, p := range []*float64{lo, hi} {
		if p != nil && (math.IsNaN(*p) || *p < min || *p > max) {
			return errors.New(errors.ErrCodeInvalidConfig, "invalid %s limit: %v", name, *p)
		}
	}
	if lo != nil && hi != nil && *lo > *hi {
		return errors.New(errors.ErrCodeInvalidConfig, "%s limits inverted: %v > %v", name, *lo, *hi)
	}
	return nil
}

// palette is the parsed form of the config colors.
type palette struct {
	background render.Color
	outline    render.Color
	dimension  render.Color
	text       render.Color
}

func (c Config) palette() palette {
	p := palette{
		background: render.MustHexColor(c.BackgroundColor),
		outline:    render.MustHexColor(c.Outline.Color),
		dimension:  render.MustHexColor(c.Dimensions.Color),
		text:       render.MustHexColor(c.Dimensions.TextColor),
	}
	if c.BackgroundTransparent {
		p.background = render.Color{}
	}
	return p
}

func degPtr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p * math.Pi / 180
}
