package presence

type EventType string

const (
	EventJoined          EventType = "participant-joined"
	EventLeft            EventType = "participant-left"
	EventUpdated         EventType = "participant-updated"
	EventSpeaking        EventType = "speaking"
	EventHand            EventType = "hand"
	EventChat            EventType = "chat"
	EventReactionAdded   EventType = "reaction-added"
	EventReactionExpired EventType = "reaction-expired"
	EventReset           EventType = "reset"
)

type Event struct {
	Type     EventType
	Identity string
}

// Subscribe registers a listener. Events are dropped for a lagging
// subscriber; state accessors always reflect the latest view.
func (c *Coordinator) Subscribe() chan Event {
	ch := make(chan Event, 32)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Coordinator) Unsubscribe(ch chan Event) {
	c.subMu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()
}

func (c *Coordinator) publish(e Event) {
	c.subMu.Lock()
	for ch := range c.subs {
		select {
		case ch <- e:
		default:
		}
	}
	c.subMu.Unlock()
}
