package surface

import (
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/Tk21111/meeting_board/action"
)

const (
	eraserScale = 2

	// Bounds on values that arrive from peers. Rasterizing is done under the
	// surface lock, so a single oversized action must stay cheap.
	maxStrokeWidth = 256
	maxFontSize    = 256
	maxTextRunes   = 1024
	maxCoord       = 1 << 16
	maxCachedFaces = 32
	defaultFont    = 16
)

var (
	regularOnce sync.Once
	regular     *opentype.Font
)

// paintPath replays a freehand path one segment at a time, exactly as
// ExtendStroke painted it on the author's canvas.
func (s *Surface) paintPath(dst *image.RGBA, d action.Draw) {
	for i := 1; i < len(d.Path); i++ {
		s.paintSegment(dst, d.Path[i-1], d.Path[i], d.Tool)
	}
}

func (s *Surface) paintSegment(dst *image.RGBA, a, b action.Point, tool action.Tool) {
	clr := parseColor(b.Color)
	width := b.StrokeWidth
	if tool == action.ToolEraser {
		clr = s.background
		width *= eraserScale
	}

	strokeOn(dst, clr, width, func(p *rasterx.Stroker) {
		p.Start(toFixed(a.X, a.Y))
		p.Line(toFixed(b.X, b.Y))
		p.Stop(false)
	})
}

func (s *Surface) paintShape(dst *image.RGBA, sh action.Shape) {
	clr := parseColor(sh.Color)

	switch sh.Tool {
	case action.ToolLine:
		strokeOn(dst, clr, sh.StrokeWidth, func(p *rasterx.Stroker) {
			p.Start(toFixed(sh.StartX, sh.StartY))
			p.Line(toFixed(sh.EndX, sh.EndY))
			p.Stop(false)
		})

	case action.ToolRectangle:
		strokeOn(dst, clr, sh.StrokeWidth, func(p *rasterx.Stroker) {
			p.Start(toFixed(sh.StartX, sh.StartY))
			p.Line(toFixed(sh.EndX, sh.StartY))
			p.Line(toFixed(sh.EndX, sh.EndY))
			p.Line(toFixed(sh.StartX, sh.EndY))
			p.Stop(true)
		})

	case action.ToolCircle:
		r := math.Hypot(sh.EndX-sh.StartX, sh.EndY-sh.StartY)
		if r == 0 {
			return
		}
		n := circleSegments(r)
		strokeOn(dst, clr, sh.StrokeWidth, func(p *rasterx.Stroker) {
			p.Start(toFixed(sh.StartX+r, sh.StartY))
			for i := 1; i < n; i++ {
				theta := 2 * math.Pi * float64(i) / float64(n)
				p.Line(toFixed(sh.StartX+r*math.Cos(theta), sh.StartY+r*math.Sin(theta)))
			}
			p.Stop(true)
		})
	}
}

func (s *Surface) paintText(dst *image.RGBA, t action.Text) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(parseColor(t.Color)),
		Face: s.face(fontSize(t.FontSize, dst.Rect)),
		Dot:  toFixed(t.X, t.Y),
	}
	d.DrawString(truncateRunes(t.Text, maxTextRunes))
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// fontSize rounds to whole points and keeps glyphs no larger than the canvas.
func fontSize(size float64, r image.Rectangle) float64 {
	if !(size > 0) {
		size = defaultFont
	}
	limit := min(float64(maxFontSize), float64(max(r.Dx(), r.Dy())))
	return max(1, math.Round(min(size, limit)))
}

func (s *Surface) face(size float64) font.Face {
	if f, ok := s.faces[size]; ok {
		return f
	}
	if len(s.faces) >= maxCachedFaces {
		clear(s.faces)
	}

	regularOnce.Do(func() {
		regular, _ = opentype.Parse(goregular.TTF)
	})

	var f font.Face = basicfont.Face7x13
	if regular != nil {
		if of, err := opentype.NewFace(regular, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingNone,
		}); err == nil {
			f = of
		}
	}
	s.faces[size] = f
	return f
}

func strokeOn(dst *image.RGBA, clr color.Color, width float64, build func(p *rasterx.Stroker)) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	width = strokeWidth(width, dst.Rect)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	stroker := rasterx.NewStroker(w, h, scanner)
	stroker.SetStroke(fixed.Int26_6(width*64), 4*64, rasterx.RoundCap, nil, rasterx.RoundGap, rasterx.Round)
	stroker.SetColor(clr)

	build(stroker)
	stroker.Draw()
}

// strokeWidth keeps a pen between one pixel and the canvas's larger side.
func strokeWidth(width float64, r image.Rectangle) float64 {
	if !(width > 0) {
		return 1
	}
	return min(width, float64(maxStrokeWidth), float64(max(r.Dx(), r.Dy())))
}

func circleSegments(r float64) int {
	n := int(math.Ceil(2 * math.Pi * r / 4))
	return min(max(n, 24), 720)
}

func toFixed(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{
		X: fixed.Int26_6(math.Round(clampCoord(x) * 64)),
		Y: fixed.Int26_6(math.Round(clampCoord(y) * 64)),
	}
}

func clampCoord(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, -maxCoord), maxCoord)
}

// parseColor accepts #RGB, #RRGGBB and #RRGGBBAA; anything else is opaque black.
func parseColor(s string) color.Color {
	black := color.NRGBA{A: 255}

	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok {
		return black
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return black
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return black
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}
}
