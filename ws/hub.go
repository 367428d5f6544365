package ws

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/middleware"
)

// Journal records who was in which room. *db.Writer satisfies it.
type Journal interface {
	RecordJoin(roomID, identity, name string)
	RecordLeave(roomID, identity string)
}

type Room struct {
	clients map[*Client]bool
	clock   atomic.Int64
}

type Hub struct {
	rooms map[string]*Room
	mu    sync.Mutex

	journal Journal
	log     *zap.Logger
}

func NewHub(journal Journal, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]*Room),
		journal: journal,
		log:     log.Named("hub"),
	}
}

// NextClock returns the room's next frame number, or 0 for an unknown room.
func (h *Hub) NextClock(roomID string) int64 {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	h.mu.Unlock()

	if !ok {
		return 0
	}
	return room.clock.Add(1)
}

// Join registers c, sends it the welcome frame with the current roster and
// announces it to the others, all under one lock so no frame about c can
// precede its join. A previous connection with the same identity is evicted
// silently and returned.
func (h *Hub) Join(roomID string, c *Client) (replaced *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		room = &Room{
			clients: make(map[*Client]bool),
		}
		h.rooms[roomID] = room
	}

	var existing []*Client
	for other := range room.clients {
		if other.identity == c.identity {
			replaced = other
			other.replaced.Store(true)
			delete(room.clients, other)
			close(other.send)
			continue
		}
		existing = append(existing, other)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].identity < existing[j].identity })

	self := c.participant()
	msgs := make([]config.ServerMsg, 0, len(existing)+1)
	msgs = append(msgs, config.ServerMsg{
		Payload: config.NetworkMsg{Operation: config.OpWelcome, ID: c.identity, Participant: self},
	})
	for _, other := range existing {
		msgs = append(msgs, config.ServerMsg{
			Payload: config.NetworkMsg{Operation: config.OpParticipantJoin, ID: other.identity, Participant: other.participant()},
		})
	}
	if data := middleware.EncodeNetworkMsg(msgs); data != nil {
		c.send <- data
	}

	if replaced == nil {
		join := middleware.EncodeNetworkMsg([]config.ServerMsg{{
			Clock:   room.clock.Add(1),
			Payload: config.NetworkMsg{Operation: config.OpParticipantJoin, ID: c.identity, Participant: self},
		}})
		for _, other := range existing {
			select {
			case other.send <- join:
			default:
			}
		}
	}

	room.clients[c] = true
	if h.journal != nil && replaced == nil {
		h.journal.RecordJoin(roomID, c.identity, c.name)
	}
	return replaced
}

// Leave reports whether c was still registered.
func (h *Hub) Leave(roomID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := room.clients[c]; !ok {
		return false
	}

	delete(room.clients, c)
	close(c.send)
	if len(room.clients) == 0 {
		delete(h.rooms, roomID)
	}
	if h.journal != nil {
		h.journal.RecordLeave(roomID, c.identity)
	}
	return true
}

// Broadcast queues msg for every client in the room except one. Clients
// whose queue is full are dropped.
func (h *Hub) Broadcast(roomID string, msg []byte, except *Client) {
	h.deliver(roomID, msg, func(c *Client) bool { return c != except })
}

// SendTo queues msg for the listed identities only.
func (h *Hub) SendTo(roomID string, msg []byte, identities []string, except *Client) {
	want := make(map[string]bool, len(identities))
	for _, id := range identities {
		want[id] = true
	}
	h.deliver(roomID, msg, func(c *Client) bool { return c != except && want[c.identity] })
}

func (h *Hub) deliver(roomID string, msg []byte, match func(*Client) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	for c := range room.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Warn("client too slow, dropping", zap.String("room", roomID), zap.String("identity", c.identity))
			close(c.send)
			delete(room.clients, c)
			if h.journal != nil {
				h.journal.RecordLeave(roomID, c.identity)
			}
		}
	}
}

// Count returns the number of connected clients in roomID.
func (h *Hub) Count(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return 0
	}
	return len(room.clients)
}
