package action

import (
	"encoding/json"
	"fmt"
)

// DecodeError is returned by Deserialize for payloads that cannot become an
// Action. Receivers log and drop it.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode action: %s: %v", e.Reason, e.Err)
	}
	return "decode action: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type wireAction struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

var emptyData = json.RawMessage(`{}`)

func Serialize(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("serialize action: nil action")
	}

	var data json.RawMessage
	switch v := a.(type) {
	case Clear, *Clear:
		data = emptyData
	case *Draw:
		return Serialize(*v)
	case *Shape:
		return Serialize(*v)
	case *Text:
		return Serialize(*v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", a.Kind(), err)
		}
		data = b
	}

	return json.Marshal(wireAction{Type: a.Kind(), Data: data})
}

func Deserialize(b []byte) (Action, error) {
	var w wireAction
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Err: err}
	}

	if w.Type != KindClear && len(w.Data) == 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("missing data for %q", w.Type)}
	}

	switch w.Type {
	case KindDraw:
		var d Draw
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, &DecodeError{Reason: "malformed draw", Err: err}
		}
		if !d.Tool.Freehand() {
			return nil, &DecodeError{Reason: fmt.Sprintf("unknown draw tool %q", d.Tool)}
		}
		return d, nil

	case KindShape:
		var s Shape
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return nil, &DecodeError{Reason: "malformed shape", Err: err}
		}
		if !s.Tool.Geometric() {
			return nil, &DecodeError{Reason: fmt.Sprintf("unknown shape tool %q", s.Tool)}
		}
		return s, nil

	case KindText:
		var t Text
		if err := json.Unmarshal(w.Data, &t); err != nil {
			return nil, &DecodeError{Reason: "malformed text", Err: err}
		}
		return t, nil

	case KindClear:
		return Clear{}, nil

	case "":
		return nil, &DecodeError{Reason: "missing type"}

	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown type %q", w.Type)}
	}
}
