package ws

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/Tk21111/meeting_board/action"
	"github.com/Tk21111/meeting_board/broadcast"
	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/middleware"
)

var botColors = []string{"#000000", "#E53935", "#1E88E5", "#43A047", "#FB8C00"}

// RandomStroke builds a pen stroke of n points wandering inside w x h.
func RandomStroke(w, h float64, n int) action.Draw {
	color := botColors[rand.IntN(len(botColors))]
	width := 1 + rand.Float64()*5

	x, y := rand.Float64()*w, rand.Float64()*h
	path := make([]action.Point, 0, n)
	for i := 0; i < n; i++ {
		path = append(path, action.Point{X: x, Y: y, Color: color, StrokeWidth: width})
		x = clamp(x+rand.Float64()*40-20, 0, w)
		y = clamp(y+rand.Float64()*40-20, 0, h)
	}
	return action.Draw{Path: path, Tool: action.ToolPen}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// genStrokeFrame wraps a stroke the way a client would broadcast it, as seen
// by receivers of the relay.
func genStrokeFrame(from string, clock int64, d action.Draw) []byte {
	inner, err := action.Serialize(d)
	if err != nil {
		return nil
	}
	envelope, err := json.Marshal(broadcast.Message{
		Kind:     broadcast.KindWhiteboard,
		SenderID: from,
		Payload:  inner,
	})
	if err != nil {
		return nil
	}

	return middleware.EncodeNetworkMsg([]config.ServerMsg{{
		Clock: clock,
		Payload: config.NetworkMsg{
			Operation: config.OpData,
			ID:        uuid.NewString(),
			From:      from,
			Data:      envelope,
		},
	}})
}

// BurnRoom floods roomID with random strokes from a synthetic sender. It is
// used for load testing the relay.
func BurnRoom(h *Hub, roomID string, strokes int, pointsPerStroke int) {
	go func() {
		for i := 0; i < strokes; i++ {
			frame := genStrokeFrame("relay-bot", h.NextClock(roomID), RandomStroke(1920, 1080, pointsPerStroke))
			if frame == nil {
				continue
			}
			h.Broadcast(roomID, frame, nil)
		}
	}()
}
