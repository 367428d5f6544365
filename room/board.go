package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/action"
	"github.com/Tk21111/meeting_board/broadcast"
	"github.com/Tk21111/meeting_board/transport"
)

// Whiteboard input. Every committed action is applied locally first and then
// broadcast; undo and redo stay local.

func (c *Controller) BeginStroke(x, y float64, tool action.Tool, color string, width float64) bool {
	return c.board.BeginStroke(x, y, tool, color, width)
}

func (c *Controller) ExtendStroke(x, y float64) {
	c.board.ExtendStroke(x, y)
}

func (c *Controller) EndStroke(ctx context.Context) (action.Draw, bool) {
	d, ok := c.board.EndStroke()
	if ok {
		c.publish(ctx, d)
	}
	return d, ok
}

func (c *Controller) PreviewShape(startX, startY, curX, curY float64, tool action.Tool, color string, width float64) {
	c.board.PreviewShape(startX, startY, curX, curY, tool, color, width)
}

func (c *Controller) CancelPreview() {
	c.board.CancelPreview()
}

func (c *Controller) CommitShape(ctx context.Context, startX, startY, endX, endY float64, tool action.Tool, color string, width float64) (action.Shape, bool) {
	sh, ok := c.board.CommitShape(startX, startY, endX, endY, tool, color, width)
	if ok {
		c.publish(ctx, sh)
	}
	return sh, ok
}

func (c *Controller) CommitText(ctx context.Context, text string, x, y float64, color string, fontSize float64) (action.Text, error) {
	t, ok := c.board.CommitText(text, x, y, color, fontSize)
	if !ok {
		return action.Text{}, ErrEmptyInput
	}
	c.publish(ctx, t)
	return t, nil
}

func (c *Controller) ClearBoard(ctx context.Context) {
	c.publish(ctx, c.board.Clear())
}

func (c *Controller) Undo() bool { return c.board.Undo() }
func (c *Controller) Redo() bool { return c.board.Redo() }

func (c *Controller) publish(ctx context.Context, a action.Action) {
	data, err := action.Serialize(a)
	if err != nil {
		c.log.Error("encode action", zap.String("kind", string(a.Kind())), zap.Error(err))
		return
	}

	err = c.adapter.Send(ctx, broadcast.KindWhiteboard, json.RawMessage(data))
	if err != nil && !errors.Is(err, transport.ErrNotConnected) {
		c.log.Warn("whiteboard broadcast failed", zap.String("kind", string(a.Kind())), zap.Error(err))
	}
}

func (c *Controller) applyWhiteboard(m broadcast.Message) {
	a, err := action.Deserialize(m.Payload)
	if err != nil {
		c.log.Warn("dropping whiteboard message", zap.String("sender", m.SenderID), zap.Error(err))
		return
	}
	c.board.ApplyRemote(a)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
