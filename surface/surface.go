// Package surface owns the whiteboard raster: local input capture, tool
// state, undo/redo history and replay of remote actions.
package surface

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/Tk21111/meeting_board/action"
)

const DefaultMaxHistory = 50

var White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

type Option func(*Surface)

func WithMaxHistory(n int) Option {
	return func(s *Surface) {
		if n >= 1 {
			s.maxHistory = n
		}
	}
}

func WithBackground(c color.RGBA) Option {
	return func(s *Surface) {
		s.background = c
	}
}

// Surface is safe for concurrent use; every mutation is serialized so local
// input and remote replay never interleave mid-render.
type Surface struct {
	mu sync.Mutex

	img        *image.RGBA
	background color.RGBA
	maxHistory int

	// undo always holds at least the initial blank snapshot.
	undo []*image.RGBA
	redo []*image.RGBA

	stroke      *stroke
	previewBase *image.RGBA

	faces map[float64]font.Face
}

type stroke struct {
	tool   action.Tool
	color  string
	width  float64
	anchor action.Point
	path   []action.Point
}

func New(width, height int, opts ...Option) *Surface {
	s := &Surface{
		background: White,
		maxHistory: DefaultMaxHistory,
		faces:      make(map[float64]font.Face),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.img = image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	s.fill(s.img)
	s.undo = []*image.RGBA{clone(s.img)}

	return s
}

func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.Rect.Dx(), s.img.Rect.Dy()
}

// Snapshot returns a copy of the current raster.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.img)
}

func (s *Surface) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 1
}

func (s *Surface) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

func (s *Surface) HistoryDepth() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}

// Undo is local only; peers keep whatever they last rendered.
func (s *Surface) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undo) <= 1 {
		return false
	}

	current := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, current)

	s.previewBase = nil
	s.restore(s.undo[len(s.undo)-1])
	return true
}

func (s *Surface) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.redo) == 0 {
		return false
	}

	next := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, next)

	s.previewBase = nil
	s.restore(next)
	return true
}

// Resize keeps existing pixels anchored at the origin and fills newly exposed
// area with the background. History is left untouched.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	width, height = max(width, 1), max(height, 1)
	if s.img.Rect.Dx() == width && s.img.Rect.Dy() == height {
		return
	}

	s.img = s.resized(s.img, width, height)
	if s.previewBase != nil {
		s.previewBase = s.resized(s.previewBase, width, height)
	}
}

// commit must be called with mu held.
func (s *Surface) commit() {
	s.undo = append(s.undo, clone(s.img))
	if len(s.undo) > s.maxHistory {
		s.undo = s.undo[len(s.undo)-s.maxHistory:]
	}
	s.redo = nil
}

func (s *Surface) restore(snap *image.RGBA) {
	if snap.Rect == s.img.Rect {
		copy(s.img.Pix, snap.Pix)
		return
	}
	s.fill(s.img)
	draw.Copy(s.img, image.Point{}, snap, snap.Bounds(), draw.Src, nil)
}

func (s *Surface) resized(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	s.fill(dst)
	draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
	return dst
}

func (s *Surface) fill(dst *image.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)
}

func clone(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
