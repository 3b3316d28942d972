package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/golang/freetype/truetype"
	"github.com/gorgonia/emcaps/capsule"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi        = 72.0
	fontsize   = 10.0
	lineheight = 1.2
	captions   = 3 // title, step, best class
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// Frame is one segmentation map to render.
type Frame struct {
	Title string
	Step  int

	Classes, H, W int
	Seg           []float32 // (Classes, H, W), a distribution over classes per pixel
	Acts          []float32 // optional class activations, (Classes)
}

// Encoder renders segmentation maps as the frames of an animated gif: every pixel is painted with the
// colour of its most likely class, and a caption is written underneath.
type Encoder struct {
	io.Writer
	font.Drawer

	palette color.Palette // class colours, then black and white
	scale   int
	padW    int
	delay   int

	out *gif.GIF
}

// NewGifEncoder creates an encoder that paints class i with classColours[i], enlarging every pixel scale times.
func NewGifEncoder(w io.Writer, classColours []color.Color, scale int) *Encoder {
	if scale < 1 {
		scale = 1
	}
	palette := make(color.Palette, 0, len(classColours)+2)
	palette = append(palette, classColours...)
	palette = append(palette, color.Gray{0}, color.Gray{253})
	return &Encoder{
		Writer:  w,
		palette: palette,
		scale:   scale,
		padW:    4,
		delay:   50,
		Drawer: font.Drawer{
			Src: image.Black,
			Face: truetype.NewFace(regular, &truetype.Options{
				Size:    fontsize,
				DPI:     dpi,
				Hinting: font.HintingFull,
			}),
		},
		out: &gif.GIF{LoopCount: 0},
	}
}

// DefaultColours spreads n colours around the hue wheel.
func DefaultColours(n int) []color.Color {
	retVal := make([]color.Color, n)
	for i := range retVal {
		retVal[i] = hue(float64(i) / float64(n))
	}
	return retVal
}

// hue returns a fully saturated colour for h in [0, 1).
func hue(h float64) color.Color {
	h6 := h * 6
	x := uint8(255 * (1 - math.Abs(math.Mod(h6, 2)-1)))
	switch int(h6) {
	case 0:
		return color.RGBA{255, x, 0, 255}
	case 1:
		return color.RGBA{x, 255, 0, 255}
	case 2:
		return color.RGBA{0, 255, x, 255}
	case 3:
		return color.RGBA{0, x, 255, 255}
	case 4:
		return color.RGBA{x, 0, 255, 255}
	default:
		return color.RGBA{255, 0, x, 255}
	}
}

// Encode a frame
func (enc *Encoder) Encode(f Frame) error {
	if f.Classes < 1 || f.Classes > len(enc.palette)-2 {
		return capsule.Invalid("gif", "classes", "%d classes but %d colours", f.Classes, len(enc.palette)-2)
	}
	if len(f.Seg) != f.Classes*f.H*f.W {
		return capsule.Mismatch("gif", "segmentation size", f.Classes*f.H*f.W, len(f.Seg))
	}
	if f.Acts != nil && len(f.Acts) != f.Classes {
		return capsule.Mismatch("gif", "activations", f.Classes, len(f.Acts))
	}

	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	w := f.W * enc.scale
	mapH := f.H * enc.scale
	h := mapH + captions*dy + enc.padW

	im := image.NewPaletted(image.Rect(0, 0, w, h), enc.palette)
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)

	plane := f.H * f.W
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			best, bestP := 0, f.Seg[y*f.W+x]
			for c := 1; c < f.Classes; c++ {
				if p := f.Seg[c*plane+y*f.W+x]; p > bestP {
					best, bestP = c, p
				}
			}
			r := image.Rect(x*enc.scale, y*enc.scale, (x+1)*enc.scale, (y+1)*enc.scale)
			draw.Draw(im, r, image.NewUniform(enc.palette[best]), image.Point{}, draw.Src)
		}
	}

	enc.Dst = im
	y := mapH + dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(f.Title)
	y += dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("Step %d", f.Step))
	if f.Acts != nil {
		best := 0
		for c, a := range f.Acts {
			if a > f.Acts[best] {
				best = c
			}
		}
		y += dy
		enc.Dot = fixed.P(enc.padW, y)
		enc.DrawString(fmt.Sprintf("Class %d: %.3f", best, f.Acts[best]))
	}

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, enc.delay)
	return nil
}

// Frames is the number of frames encoded so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error { return gif.EncodeAll(enc.Writer, enc.out) }
