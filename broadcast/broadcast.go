// Package broadcast carries typed envelopes over a joined session's data
// channel.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/transport"
)

type Kind string

const (
	KindWhiteboard Kind = "whiteboard"
	KindReaction   Kind = "reaction"
	KindRaiseHand  Kind = "raiseHand"
	KindChat       Kind = "chat"
)

// Message is the wire envelope. SenderID on inbound messages is always the
// identity reported by the transport, never the claimed one.
type Message struct {
	Kind     Kind            `json:"type"`
	SenderID string          `json:"senderId"`
	Payload  json.RawMessage `json:"payload"`
}

type Handler func(Message)

var errEmptyKind = errors.New("envelope without type")

type Adapter struct {
	mu      sync.RWMutex
	session transport.Session
	local   string
	handler Handler

	log *zap.Logger
}

func New(log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{log: log.Named("broadcast")}
}

// Attach binds the adapter to s and starts routing its inbound data. A
// previously attached session stops being routed.
func (a *Adapter) Attach(s transport.Session) {
	a.mu.Lock()
	a.session = s
	a.local = s.LocalParticipant().Identity
	a.mu.Unlock()

	s.OnDataReceived(func(data []byte, sender string) {
		a.receive(s, data, sender)
	})
}

// Detach drops the session. Later sends fail fast and late inbound data from
// the old session is ignored.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
	a.local = ""
}

func (a *Adapter) Attached() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session != nil
}

// OnReceive replaces the inbound handler.
func (a *Adapter) OnReceive(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Send publishes payload reliably to every peer. Failures are logged and
// returned; the message is not retried.
func (a *Adapter) Send(ctx context.Context, kind Kind, payload any) error {
	a.mu.RLock()
	s, local := a.session, a.local
	a.mu.RUnlock()

	if s == nil {
		a.log.Debug("send without session", zap.String("type", string(kind)))
		return transport.ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		a.log.Warn("encode payload", zap.String("type", string(kind)), zap.Error(err))
		return fmt.Errorf("broadcast: encode %s: %w", kind, err)
	}

	data, err := json.Marshal(Message{Kind: kind, SenderID: local, Payload: raw})
	if err != nil {
		return fmt.Errorf("broadcast: encode envelope: %w", err)
	}

	if err := s.SendData(ctx, data, transport.DataOptions{Reliable: true}); err != nil {
		a.log.Warn("send failed", zap.String("type", string(kind)), zap.Error(err))
		return fmt.Errorf("broadcast: send %s: %w", kind, err)
	}
	return nil
}

func (a *Adapter) receive(from transport.Session, data []byte, sender string) {
	a.mu.RLock()
	current, h := a.session, a.handler
	a.mu.RUnlock()

	if current != from || h == nil {
		return
	}

	msg, err := Decode(data)
	if err != nil {
		a.log.Warn("dropping malformed envelope", zap.String("sender", sender), zap.Error(err))
		return
	}
	if sender == "" {
		a.log.Warn("dropping envelope without sender", zap.String("type", string(msg.Kind)))
		return
	}

	msg.SenderID = sender
	h(msg)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Kind == "" {
		return Message{}, errEmptyKind
	}
	return m, nil
}
