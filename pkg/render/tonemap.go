package render

import (
	"fmt"
	"math"
	"strings"
)

// ToneMappingMode selects the HDR to display curve.
type ToneMappingMode int

const (
	ToneMappingNone ToneMappingMode = iota
	ToneMappingLinear
	ToneMappingReinhard
	ToneMappingCineon
	ToneMappingACESFilmic
)

var toneMappingNames = map[ToneMappingMode]string{
	ToneMappingNone:       "None",
	ToneMappingLinear:     "Linear",
	ToneMappingReinhard:   "Reinhard",
	ToneMappingCineon:     "Cineon",
	ToneMappingACESFilmic: "ACESFilmic",
}

func (m ToneMappingMode) String() string {
	if s, ok := toneMappingNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ToneMappingMode(%d)", int(m))
}

// ParseToneMapping parses a mode name, case-insensitively.
func ParseToneMapping(s string) (ToneMappingMode, error) {
	for m, name := range toneMappingNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return ToneMappingNone, fmt.Errorf("unknown tone mapping %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m ToneMappingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ToneMappingMode) UnmarshalText(b []byte) error {
	v, err := ParseToneMapping(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ToneMapping maps linear scene radiance to 8-bit sRGB.
type ToneMapping struct {
	Mode     ToneMappingMode
	Exposure float64
}

// Map tone maps a linear RGB triple and encodes it as sRGB.
func (t ToneMapping) Map(rgb [3]float64) Color {
	out := t.apply(rgb)
	return Color{
		R: LinearToSRGB(out[0]),
		G: LinearToSRGB(out[1]),
		B: LinearToSRGB(out[2]),
		A: 255,
	}
}

func (t ToneMapping) apply(c [3]float64) [3]float64 {
	e := t.Exposure
	switch t.Mode {
	case ToneMappingLinear:
		return [3]float64{c[0] * e, c[1] * e, c[2] * e}
	case ToneMappingReinhard:
		for i := range c {
			v := c[i] * e
			c[i] = v / (1 + v)
		}
		return c
	case ToneMappingCineon:
		// Optimized filmic curve by Jim Hejl and Richard Burgess-Dawson.
		for i := range c {
			v := math.Max(0, c[i]*e-0.004)
			c[i] = math.Pow((v*(6.2*v+0.5))/(v*(6.2*v+1.7)+0.06), 2.2)
		}
		return c
	case ToneMappingACESFilmic:
		return acesFilmic(c, e)
	default:
		return c
	}
}

// acesFilmic is the Stephen Hill fit of the ACES RRT and ODT.
func acesFilmic(c [3]float64, exposure float64) [3]float64 {
	s := exposure / 0.6
	r, g, b := c[0]*s, c[1]*s, c[2]*s

	// sRGB => XYZ => D65_2_D60 => AP1 => RRT_SAT
	ir := 0.59719*r + 0.35458*g + 0.04823*b
	ig := 0.07600*r + 0.90834*g + 0.01566*b
	ib := 0.02840*r + 0.13383*g + 0.83777*b

	ir, ig, ib = rrtAndODTFit(ir), rrtAndODTFit(ig), rrtAndODTFit(ib)

	// ODT_SAT => XYZ => D60_2_D65 => sRGB
	return [3]float64{
		clamp01(1.60475*ir - 0.53108*ig - 0.07367*ib),
		clamp01(-0.10208*ir + 1.10813*ig - 0.00605*ib),
		clamp01(-0.00327*ir - 0.07276*ig + 1.07602*ib),
	}
}

func rrtAndODTFit(v float64) float64 {
	a := v*(v+0.0245786) - 0.000090537
	b := v*(0.983729*v+0.4329510) + 0.238081
	return a / b
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
