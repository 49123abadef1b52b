package overlay

import (
	"github.com/sceneit/vcam/internal/frame"
)

type rgba struct {
	r, g, b, a uint8
}

// Border geometry and colors per overlay.
var (
	professionalColor = rgba{51, 51, 51, 204}
	casualStripes     = []rgba{
		{255, 77, 77, 178},
		{255, 204, 77, 178},
		{77, 255, 77, 178},
		{77, 204, 255, 178},
	}
	minimalistColor = rgba{255, 255, 255, 77}
	brandedColor    = rgba{20, 40, 90, 217}
	plateColor      = rgba{0, 0, 0, 153}
)

const (
	professionalWidth = 8
	casualWidth       = 12
	minimalistCorner  = 40
	minimalistWidth   = 2
	brandedBarHeight  = 60
	blurRadius        = 4
)

// Renderer is the reference Transform. It draws simple geometric borders and
// applies effects on the CPU. A Renderer is stateless and safe for
// concurrent use.
type Renderer struct{}

// NewRenderer returns a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Transform returns f decorated according to spec. The input is never
// modified; an empty spec returns f unchanged. Invalid frames pass through
// so the publisher can reject them.
func (r *Renderer) Transform(f frame.Frame, spec Spec) frame.Frame {
	if spec.IsZero() || frame.Validate(f) != nil {
		return f
	}

	out := f.Clone()
	switch spec.Effect {
	case EffectMonochrome:
		monochrome(out)
	case EffectVintage:
		vintage(out)
	case EffectBlur:
		boxBlur(out, blurRadius)
	}

	switch spec.OverlayID {
	case ProfessionalFrame:
		border(out, professionalWidth, professionalColor)
	case CasualBorder:
		step := casualWidth / len(casualStripes)
		for i, c := range casualStripes {
			inset := i * step
			frameRect(out, inset, step, c)
		}
	case Minimalist:
		corners(out, minimalistCorner, minimalistWidth, minimalistColor)
	case Branded:
		h := min(brandedBarHeight, int(out.Height))
		fillRect(out, 0, int(out.Height)-h, int(out.Width), h, brandedColor)
		if spec.Caption != "" {
			nameplate(out, spec.Caption)
		}
	}
	return out
}

func pixel(f frame.Frame, x, y int) []byte {
	off := y*int(f.BytesPerRow) + x*frame.BytesPerPixel
	return f.Data[off : off+frame.BytesPerPixel]
}

// blend composites c over the BGRA pixel px.
func blend(px []byte, c rgba) {
	a := uint32(c.a)
	inv := 255 - a
	px[0] = uint8((uint32(c.b)*a + uint32(px[0])*inv) / 255)
	px[1] = uint8((uint32(c.g)*a + uint32(px[1])*inv) / 255)
	px[2] = uint8((uint32(c.r)*a + uint32(px[2])*inv) / 255)
}

func fillRect(f frame.Frame, x0, y0, w, h int, c rgba) {
	x1 := min(x0+w, int(f.Width))
	y1 := min(y0+h, int(f.Height))
	for y := max(y0, 0); y < y1; y++ {
		for x := max(x0, 0); x < x1; x++ {
			blend(pixel(f, x, y), c)
		}
	}
}

// frameRect draws a hollow rectangle of thickness t, inset from the edges.
func frameRect(f frame.Frame, inset, t int, c rgba) {
	w, h := int(f.Width)-2*inset, int(f.Height)-2*inset
	if w <= 0 || h <= 0 {
		return
	}
	t = min(t, w/2, h/2)
	fillRect(f, inset, inset, w, t, c)
	fillRect(f, inset, inset+h-t, w, t, c)
	fillRect(f, inset, inset+t, t, h-2*t, c)
	fillRect(f, inset+w-t, inset+t, t, h-2*t, c)
}

func border(f frame.Frame, t int, c rgba) {
	frameRect(f, 0, t, c)
}

// corners draws L-shaped brackets of arm length n at each corner.
func corners(f frame.Frame, n, t int, c rgba) {
	w, h := int(f.Width), int(f.Height)
	n = min(n, w/2, h/2)
	t = min(t, n)
	for _, p := range [][2]int{{0, 0}, {w - n, 0}, {0, h - t}, {w - n, h - t}} {
		fillRect(f, p[0], p[1], n, t, c)
	}
	for _, p := range [][2]int{{0, 0}, {w - t, 0}, {0, h - n}, {w - t, h - n}} {
		fillRect(f, p[0], p[1], t, n, c)
	}
}

// nameplate reserves a plate sized to the caption in the bottom-left corner.
// Text rendering is left to the host UI.
func nameplate(f frame.Frame, caption string) {
	w := min(40+12*len(caption), int(f.Width)/2)
	h := min(brandedBarHeight-20, int(f.Height))
	fillRect(f, 10, int(f.Height)-h-10, w, h, plateColor)
}

func luma(px []byte) uint8 {
	// BT.601 weights in 8.8 fixed point
	return uint8((uint32(px[2])*77 + uint32(px[1])*150 + uint32(px[0])*29) >> 8)
}

func monochrome(f frame.Frame) {
	for y := range int(f.Height) {
		for x := range int(f.Width) {
			px := pixel(f, x, y)
			l := luma(px)
			px[0], px[1], px[2] = l, l, l
		}
	}
}

func vintage(f frame.Frame) {
	for y := range int(f.Height) {
		for x := range int(f.Width) {
			px := pixel(f, x, y)
			r, g, b := float32(px[2]), float32(px[1]), float32(px[0])
			px[2] = clamp(0.393*r + 0.769*g + 0.189*b)
			px[1] = clamp(0.349*r + 0.686*g + 0.168*b)
			px[0] = clamp(0.272*r + 0.534*g + 0.131*b)
		}
	}
}

func clamp(v float32) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// boxBlur is a separable box blur over the color channels.
func boxBlur(f frame.Frame, radius int) {
	w, h := int(f.Width), int(f.Height)
	tmp := make([]byte, len(f.Data))
	copy(tmp, f.Data)
	src := frame.Frame{Width: f.Width, Height: f.Height, BytesPerRow: f.BytesPerRow, Data: tmp}

	// horizontal pass: f -> src
	for y := range h {
		for x := range w {
			lo, hi := max(x-radius, 0), min(x+radius, w-1)
			var sum [3]uint32
			for i := lo; i <= hi; i++ {
				px := pixel(f, i, y)
				sum[0] += uint32(px[0])
				sum[1] += uint32(px[1])
				sum[2] += uint32(px[2])
			}
			n := uint32(hi - lo + 1)
			dst := pixel(src, x, y)
			dst[0], dst[1], dst[2] = uint8(sum[0]/n), uint8(sum[1]/n), uint8(sum[2]/n)
		}
	}
	// vertical pass: src -> f
	for y := range h {
		lo, hi := max(y-radius, 0), min(y+radius, h-1)
		n := uint32(hi - lo + 1)
		for x := range w {
			var sum [3]uint32
			for j := lo; j <= hi; j++ {
				px := pixel(src, x, j)
				sum[0] += uint32(px[0])
				sum[1] += uint32(px[1])
				sum[2] += uint32(px[2])
			}
			dst := pixel(f, x, y)
			dst[0], dst[1], dst[2] = uint8(sum[0]/n), uint8(sum[1]/n), uint8(sum[2]/n)
		}
	}
}
