package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/middleware"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
	sendBuffer        = 256
)

// Client is one relay connection, server side.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	roomID string

	identity string
	name     string
	color    string

	mu       sync.Mutex
	tracks   config.Tracks
	speaking bool

	limiter  *rate.Limiter
	replaced atomic.Bool
	log      *zap.Logger
}

func (c *Client) participant() *config.ParticipantData {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &config.ParticipantData{
		ID:       c.identity,
		Name:     c.name,
		Color:    c.color,
		HasVideo: c.tracks.Video,
		HasAudio: c.tracks.Audio,
		Speaking: c.speaking,
	}
}

func (c *Client) frame(msg config.NetworkMsg) []byte {
	return middleware.EncodeNetworkMsg([]config.ServerMsg{{
		Clock:   c.hub.NextClock(c.roomID),
		Payload: msg,
	}})
}

func (c *Client) read() {
	defer func() {
		c.hub.Leave(c.roomID, c)
		c.conn.Close()

		if !c.replaced.Load() {
			c.hub.Broadcast(c.roomID, c.frame(config.NetworkMsg{
				Operation: config.OpParticipantLeave,
				ID:        c.identity,
			}), c)
		}
		c.log.Info("left room")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	dropped := 0
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			dropped++
			if dropped%100 == 1 {
				c.log.Warn("rate limit exceeded", zap.Int("dropped", dropped))
			}
			continue
		}

		msgs, err := middleware.DecodeNetworkMsg(msg)
		if err != nil {
			c.log.Debug("invalid frame", zap.Error(err))
			continue
		}
		for _, m := range msgs {
			c.handle(m)
		}
	}
}

func (c *Client) handle(m config.NetworkMsg) {
	switch m.Operation {

	case config.OpData:
		if len(m.Data) == 0 {
			return
		}
		out := c.frame(config.NetworkMsg{
			Operation: config.OpData,
			ID:        m.ID,
			From:      c.identity,
			Data:      m.Data,
		})
		if len(m.To) > 0 {
			c.hub.SendTo(c.roomID, out, m.To, c)
			return
		}
		c.hub.Broadcast(c.roomID, out, c)

	case config.OpTracks:
		if m.Tracks == nil {
			return
		}
		c.mu.Lock()
		c.tracks = *m.Tracks
		c.mu.Unlock()

		c.hub.Broadcast(c.roomID, c.frame(config.NetworkMsg{
			Operation:   config.OpParticipantUpdate,
			ID:          c.identity,
			Participant: c.participant(),
		}), c)

	case config.OpSpeaking:
		if m.Speaking == nil {
			return
		}
		c.mu.Lock()
		changed := c.speaking != *m.Speaking
		c.speaking = *m.Speaking
		c.mu.Unlock()

		if changed {
			c.hub.Broadcast(c.roomID, c.frame(config.NetworkMsg{
				Operation: config.OpSpeaking,
				ID:        c.identity,
				Speaking:  m.Speaking,
			}), c)
		}

	default:
		c.log.Debug("unknown operation", zap.String("operation", m.Operation))
	}
}

func (c *Client) write() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
