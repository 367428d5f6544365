package surface

import (
	"image"
	"strings"

	"github.com/Tk21111/meeting_board/action"
)

// BeginStroke anchors a freehand stroke. Nothing is painted until the first
// ExtendStroke. It returns false when a stroke is already in progress or the
// tool is not freehand. An open shape preview is discarded.
func (s *Surface) BeginStroke(x, y float64, tool action.Tool, color string, width float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stroke != nil || !tool.Freehand() {
		return false
	}
	s.dropPreview()

	s.stroke = &stroke{
		tool:   tool,
		color:  color,
		width:  width,
		anchor: action.Point{X: x, Y: y, Color: color, StrokeWidth: width},
	}
	return true
}

// ExtendStroke paints the new segment immediately.
func (s *Surface) ExtendStroke(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stroke
	if st == nil {
		return
	}

	if len(st.path) == 0 {
		st.path = append(st.path, st.anchor)
	}
	p := action.Point{X: x, Y: y, Color: st.color, StrokeWidth: st.width}
	prev := st.path[len(st.path)-1]
	st.path = append(st.path, p)

	s.paintSegment(s.img, prev, p, st.tool)
}

// EndStroke finalizes the stroke. A stroke that never moved yields no action
// and leaves the raster and history untouched.
func (s *Surface) EndStroke() (action.Draw, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stroke
	s.stroke = nil
	if st == nil || len(st.path) == 0 {
		return action.Draw{}, false
	}

	s.commit()
	return action.Draw{Path: st.path, Tool: st.tool}, true
}

// Drawing reports whether a freehand stroke is in progress.
func (s *Surface) Drawing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stroke != nil
}

// PreviewShape draws a transient shape over the raster as it was when the
// preview started. History is never touched. It is ignored while a freehand
// stroke is in progress.
func (s *Surface) PreviewShape(startX, startY, curX, curY float64, tool action.Tool, color string, width float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !tool.Geometric() || s.stroke != nil {
		return
	}

	if s.previewBase == nil {
		s.previewBase = clone(s.img)
	} else {
		s.restore(s.previewBase)
	}

	s.paintShape(s.img, action.Shape{
		Tool:        tool,
		StartX:      startX,
		StartY:      startY,
		EndX:        curX,
		EndY:        curY,
		Color:       color,
		StrokeWidth: width,
	})
}

func (s *Surface) CancelPreview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPreview()
}

// dropPreview puts back the raster the preview was drawn over.
func (s *Surface) dropPreview() {
	if s.previewBase != nil {
		s.restore(s.previewBase)
		s.previewBase = nil
	}
}

func (s *Surface) CommitShape(startX, startY, endX, endY float64, tool action.Tool, color string, width float64) (action.Shape, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !tool.Geometric() {
		return action.Shape{}, false
	}

	s.dropPreview()

	sh := action.Shape{
		Tool:        tool,
		StartX:      startX,
		StartY:      startY,
		EndX:        endX,
		EndY:        endY,
		Color:       color,
		StrokeWidth: width,
	}
	s.paintShape(s.img, sh)
	s.commit()
	return sh, true
}

// CommitText rejects empty or whitespace-only text. An open shape preview is
// discarded first.
func (s *Surface) CommitText(text string, x, y float64, color string, fontSize float64) (action.Text, bool) {
	if strings.TrimSpace(text) == "" {
		return action.Text{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropPreview()

	t := action.Text{Text: text, X: x, Y: y, Color: color, FontSize: fontSize}
	s.paintText(s.img, t)
	s.commit()
	return t, true
}

func (s *Surface) Clear() action.Clear {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.previewBase = nil
	s.fill(s.img)
	s.commit()
	return action.Clear{}
}

// ApplyRemote renders an action received from a peer. It never records
// history and never produces an action of its own, so replay cannot echo.
func (s *Surface) ApplyRemote(a action.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.render(s.img, a)
	if s.previewBase != nil {
		s.render(s.previewBase, a)
	}
}

func (s *Surface) render(dst *image.RGBA, a action.Action) {
	switch v := a.(type) {
	case action.Draw:
		s.paintPath(dst, v)
	case *action.Draw:
		s.paintPath(dst, *v)
	case action.Shape:
		s.paintShape(dst, v)
	case *action.Shape:
		s.paintShape(dst, *v)
	case action.Text:
		s.paintText(dst, v)
	case *action.Text:
		s.paintText(dst, *v)
	case action.Clear, *action.Clear:
		s.fill(dst)
	}
}
