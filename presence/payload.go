package presence

import "time"

// Wire payloads carried inside broadcast envelopes.

type RaiseHandPayload struct {
	Raised bool `json:"raised"`
}

type ChatPayload struct {
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
	Timestamp  int64  `json:"ts"`
}

type ReactionPayload struct {
	ID    string  `json:"id"`
	Emoji string  `json:"emoji"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Message stamps the arrival time when the sender sent none.
func (p ChatPayload) Message(senderID string) ChatMessage {
	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}
	return ChatMessage{
		Text:       p.Text,
		SenderID:   senderID,
		SenderName: p.SenderName,
		Timestamp:  ts,
	}
}

func (m ChatMessage) Payload() ChatPayload {
	return ChatPayload{Text: m.Text, SenderName: m.SenderName, Timestamp: m.Timestamp.UnixMilli()}
}

func (p ReactionPayload) Reaction(senderID string) Reaction {
	return Reaction{ID: p.ID, Emoji: p.Emoji, X: p.X, Y: p.Y, SenderID: senderID}
}

func (r Reaction) Payload() ReactionPayload {
	return ReactionPayload{ID: r.ID, Emoji: r.Emoji, X: r.X, Y: r.Y}
}
