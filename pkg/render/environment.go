package render

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/taigrr/plinth/pkg/math3d"
)

// Environment is an equirectangular radiance map reduced to the terms the
// rasterizer can use: an ambient tint and a key light direction.
type Environment struct {
	Width   int
	Height  int
	Pixels  [][3]float64 // linear radiance, row-major, row 0 at the top
	Ambient [3]float64
	KeyDir  math3d.Vec3
}

// ErrNotRadiance is returned when data has no Radiance header.
var ErrNotRadiance = errors.New("not a radiance hdr file")

// DecodeEnvironment decodes a Radiance .hdr (RGBE) map, falling back to any
// registered LDR image format.
func DecodeEnvironment(data []byte) (*Environment, error) {
	env, err := decodeRGBE(data)
	if errors.Is(err, ErrNotRadiance) {
		img, _, ierr := image.Decode(bytes.NewReader(data))
		if ierr != nil {
			return nil, fmt.Errorf("decode environment: %w", ierr)
		}
		env = environmentFromImage(img)
	} else if err != nil {
		return nil, err
	}
	env.summarize()
	return env, nil
}

func environmentFromImage(img image.Image) *Environment {
	b := img.Bounds()
	env := &Environment{Width: b.Dx(), Height: b.Dy()}
	env.Pixels = make([][3]float64, env.Width*env.Height)
	for y := range env.Height {
		for x := range env.Width {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			env.Pixels[y*env.Width+x] = [3]float64{
				SRGBToLinear(uint8(r >> 8)),
				SRGBToLinear(uint8(g >> 8)),
				SRGBToLinear(uint8(bl >> 8)),
			}
		}
	}
	return env
}

// decodeRGBE parses the Radiance picture format with flat or new-style
// run-length encoded scanlines.
func decodeRGBE(data []byte) (*Environment, error) {
	br := bufio.NewReader(bytes.NewReader(data))

	magic, err := br.ReadString('\n')
	if err != nil || !(strings.HasPrefix(magic, "#?RADIANCE") || strings.HasPrefix(magic, "#?RGBE")) {
		return nil, ErrNotRadiance
	}

	// Header ends at an empty line.
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read hdr header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "FORMAT=") && line != "FORMAT=32-bit_rle_rgbe" {
			return nil, fmt.Errorf("unsupported hdr format %q", line)
		}
	}

	res, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read hdr resolution: %w", err)
	}
	fields := strings.Fields(res)
	if len(fields) != 4 || fields[0] != "-Y" || fields[2] != "+X" {
		return nil, fmt.Errorf("unsupported hdr orientation %q", strings.TrimSpace(res))
	}
	h, err1 := strconv.Atoi(fields[1])
	w, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid hdr size %q", strings.TrimSpace(res))
	}

	env := &Environment{Width: w, Height: h, Pixels: make([][3]float64, w*h)}
	scan := make([]byte, w*4)
	for y := range h {
		if err := readScanline(br, scan, w); err != nil {
			return nil, fmt.Errorf("read hdr scanline %d: %w", y, err)
		}
		for x := range w {
			env.Pixels[y*w+x] = rgbeToFloat(scan[x*4], scan[x*4+1], scan[x*4+2], scan[x*4+3])
		}
	}
	return env, nil
}

func readScanline(br *bufio.Reader, scan []byte, w int) error {
	head := make([]byte, 4)
	if _, err := io.ReadFull(br, head); err != nil {
		return err
	}
	if w < 8 || w > 0x7fff || head[0] != 2 || head[1] != 2 || head[2]&0x80 != 0 {
		// Flat scanline.
		copy(scan, head)
		_, err := io.ReadFull(br, scan[4:])
		return err
	}
	if int(head[2])<<8|int(head[3]) != w {
		return errors.New("scanline width mismatch")
	}

	// Each of the four channels is run-length encoded separately.
	for ch := range 4 {
		for x := 0; x < w; {
			count, err := br.ReadByte()
			if err != nil {
				return err
			}
			if count > 128 {
				n := int(count - 128)
				val, err := br.ReadByte()
				if err != nil {
					return err
				}
				if x+n > w {
					return errors.New("bad run length")
				}
				for range n {
					scan[x*4+ch] = val
					x++
				}
				continue
			}
			n := int(count)
			if n == 0 || x+n > w {
				return errors.New("bad literal length")
			}
			for range n {
				val, err := br.ReadByte()
				if err != nil {
					return err
				}
				scan[x*4+ch] = val
				x++
			}
		}
	}
	return nil
}

func rgbeToFloat(r, g, b, e byte) [3]float64 {
	if e == 0 {
		return [3]float64{}
	}
	f := math.Ldexp(1, int(e)-136)
	return [3]float64{float64(r) * f, float64(g) * f, float64(b) * f}
}

// texelDir maps an equirectangular texel center to a world direction.
func (e *Environment) texelDir(x, y int) (dir math3d.Vec3, weight float64) {
	u := (float64(x) + 0.5) / float64(e.Width)
	v := 1 - (float64(y)+0.5)/float64(e.Height)
	lat := (v - 0.5) * math.Pi
	lon := (u - 0.5) * 2 * math.Pi
	return math3d.V3(math.Cos(lat)*math.Cos(lon), math.Sin(lat), math.Cos(lat)*math.Sin(lon)), math.Cos(lat)
}

// summarize computes the solid-angle weighted average and the brightest
// direction above the horizon.
func (e *Environment) summarize() {
	var sum [3]float64
	var wsum, best float64
	e.KeyDir = DefaultLight().Direction
	for y := range e.Height {
		for x := range e.Width {
			p := e.Pixels[y*e.Width+x]
			dir, w := e.texelDir(x, y)
			for i := range sum {
				sum[i] += p[i] * w
			}
			wsum += w
			if lum := luminance(p); dir.Y > 0.1 && lum > best {
				best = lum
				e.KeyDir = dir
			}
		}
	}
	if wsum > 0 {
		for i := range sum {
			e.Ambient[i] = sum[i] / wsum
		}
	}
}

// Light derives a key light tinted by the environment's average color.
func (e *Environment) Light() Light {
	l := DefaultLight()
	l.Direction = e.KeyDir.Normalize()
	if lum := luminance(e.Ambient); lum > 1e-6 {
		for i := range l.Tint {
			l.Tint[i] = e.Ambient[i] / lum
		}
	}
	return l
}

func luminance(c [3]float64) float64 {
	return 0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2]
}
