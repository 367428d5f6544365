package action

// Kind is the wire discriminator of an Action.
type Kind string

const (
	KindDraw  Kind = "draw"
	KindShape Kind = "shape"
	KindText  Kind = "text"
	KindClear Kind = "clear"
)

type Tool string

const (
	ToolPen       Tool = "pen"
	ToolEraser    Tool = "eraser"
	ToolLine      Tool = "line"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolText      Tool = "text"
)

// Freehand reports whether t produces Draw actions.
func (t Tool) Freehand() bool {
	return t == ToolPen || t == ToolEraser
}

// Geometric reports whether t produces Shape actions.
func (t Tool) Geometric() bool {
	return t == ToolLine || t == ToolRectangle || t == ToolCircle
}

// Action is one replayable whiteboard operation. Values are never mutated
// after construction; coordinates are raw canvas pixels.
type Action interface {
	Kind() Kind
}

type Point struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"width"`
}

type Draw struct {
	Path []Point `json:"path"`
	Tool Tool    `json:"tool"`
}

type Shape struct {
	Tool        Tool    `json:"tool"`
	StartX      float64 `json:"startX"`
	StartY      float64 `json:"startY"`
	EndX        float64 `json:"endX"`
	EndY        float64 `json:"endY"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"width"`
}

type Text struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
	FontSize float64 `json:"fontSize"`
}

type Clear struct{}

func (Draw) Kind() Kind  { return KindDraw }
func (Shape) Kind() Kind { return KindShape }
func (Text) Kind() Kind  { return KindText }
func (Clear) Kind() Kind { return KindClear }
