package room

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/broadcast"
	"github.com/Tk21111/meeting_board/presence"
)

// SendChat appends the trimmed text locally and broadcasts it.
func (c *Controller) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	_, local, err := c.joinedSession()
	if err != nil {
		return err
	}

	msg := presence.ChatMessage{
		Text:       text,
		SenderID:   local.Identity,
		SenderName: local.Name,
		Timestamp:  time.Now(),
	}
	c.presence.AppendChat(msg)

	return c.adapter.Send(ctx, broadcast.KindChat, msg.Payload())
}

// RaiseHand is a no-op when the hand is already in the requested state.
func (c *Controller) RaiseHand(ctx context.Context, raised bool) error {
	_, local, err := c.joinedSession()
	if err != nil {
		return err
	}

	if !c.presence.ApplyRaiseHand(local.Identity, raised) {
		return nil
	}
	return c.adapter.Send(ctx, broadcast.KindRaiseHand, presence.RaiseHandPayload{Raised: raised})
}

func (c *Controller) SendReaction(ctx context.Context, emoji string, x, y float64) (presence.Reaction, error) {
	if blank(emoji) {
		return presence.Reaction{}, ErrEmptyInput
	}

	_, local, err := c.joinedSession()
	if err != nil {
		return presence.Reaction{}, err
	}

	r, _ := c.presence.AddReaction(presence.Reaction{
		Emoji:    emoji,
		X:        x,
		Y:        y,
		SenderID: local.Identity,
	})
	return r, c.adapter.Send(ctx, broadcast.KindReaction, r.Payload())
}

func (c *Controller) route(m broadcast.Message) {
	switch m.Kind {
	case broadcast.KindWhiteboard:
		c.applyWhiteboard(m)

	case broadcast.KindRaiseHand:
		var p presence.RaiseHandPayload
		if !c.decode(m, &p) {
			return
		}
		c.presence.ApplyRaiseHand(m.SenderID, p.Raised)

	case broadcast.KindChat:
		var p presence.ChatPayload
		if !c.decode(m, &p) || blank(p.Text) {
			return
		}
		c.presence.AppendChat(p.Message(m.SenderID))

	case broadcast.KindReaction:
		var p presence.ReactionPayload
		if !c.decode(m, &p) || blank(p.Emoji) {
			return
		}
		c.presence.AddReaction(p.Reaction(m.SenderID))

	default:
		c.log.Debug("dropping unknown message kind", zap.String("type", string(m.Kind)), zap.String("sender", m.SenderID))
	}
}

func (c *Controller) decode(m broadcast.Message, v any) bool {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		c.log.Warn("dropping malformed payload",
			zap.String("type", string(m.Kind)),
			zap.String("sender", m.SenderID),
			zap.Error(err),
		)
		return false
	}
	return true
}
