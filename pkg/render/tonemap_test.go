package render

import (
	"math"
	"testing"
)

func TestParseToneMapping(t *testing.T) {
	tests := []struct {
		in      string
		want    ToneMappingMode
		wantErr bool
	}{
		{"ACESFilmic", ToneMappingACESFilmic, false},
		{"acesfilmic", ToneMappingACESFilmic, false},
		{"Reinhard", ToneMappingReinhard, false},
		{"cineon", ToneMappingCineon, false},
		{"Linear", ToneMappingLinear, false},
		{"None", ToneMappingNone, false},
		{"filmic", ToneMappingNone, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseToneMapping(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestToneMappingTextRoundTrip(t *testing.T) {
	for m := range toneMappingNames {
		b, err := m.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back ToneMappingMode
		if err := back.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if back != m {
			t.Errorf("%v round-tripped to %v", m, back)
		}
	}
}

func TestToneMappingCurves(t *testing.T) {
	modes := []ToneMappingMode{ToneMappingLinear, ToneMappingReinhard, ToneMappingCineon, ToneMappingACESFilmic}

	for _, m := range modes {
		t.Run(m.String(), func(t *testing.T) {
			tm := ToneMapping{Mode: m, Exposure: 1}

			black := tm.Map([3]float64{0, 0, 0})
			if black.R > 1 {
				t.Errorf("black maps to %v", black)
			}

			// Monotonic in input.
			prev := -1
			for _, v := range []float64{0.05, 0.2, 0.5, 1, 2, 8} {
				c := tm.Map([3]float64{v, v, v})
				if int(c.R) < prev {
					t.Errorf("not monotonic at %v: %d < %d", v, c.R, prev)
				}
				prev = int(c.R)
			}
		})
	}
}

func TestReinhardValue(t *testing.T) {
	tm := ToneMapping{Mode: ToneMappingReinhard, Exposure: 1}
	out := tm.apply([3]float64{1, 3, 0})
	want := [3]float64{0.5, 0.75, 0}
	for i := range out {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("channel %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestACESFilmicCompressesHighlights(t *testing.T) {
	tm := ToneMapping{Mode: ToneMappingACESFilmic, Exposure: 1}
	out := tm.apply([3]float64{100, 100, 100})
	for i, v := range out {
		if v > 1 || v < 0.9 {
			t.Errorf("channel %d = %v, want near but not above 1", i, v)
		}
	}
}

func TestExposureScales(t *testing.T) {
	lo := ToneMapping{Mode: ToneMappingLinear, Exposure: 0.5}.Map([3]float64{0.5, 0.5, 0.5})
	hi := ToneMapping{Mode: ToneMappingLinear, Exposure: 2}.Map([3]float64{0.5, 0.5, 0.5})
	if lo.R >= hi.R {
		t.Errorf("exposure 0.5 gives %d, exposure 2 gives %d", lo.R, hi.R)
	}
	if hi.R != 255 {
		t.Errorf("linear overexposure should clip, got %d", hi.R)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{"#2b8cff", RGB(0x2b, 0x8c, 0xff), false},
		{"2B8CFF", RGB(0x2b, 0x8c, 0xff), false},
		{"#fff", ColorWhite, false},
		{"#00000080", RGBA(0, 0, 0, 0x80), false},
		{"#12345", Color{}, true},
		{"#gggggg", Color{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseHexColor(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSRGBRoundTrip(t *testing.T) {
	for c := 0; c < 256; c += 17 {
		if got := LinearToSRGB(SRGBToLinear(uint8(c))); int(got) != c {
			t.Errorf("round trip %d -> %d", c, got)
		}
	}
}
