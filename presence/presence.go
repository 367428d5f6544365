// Package presence tracks who is in the room and their ephemeral state:
// speaking, raised hands, reactions and chat.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/transport"
)

const (
	DefaultReactionTTL      = 3 * time.Second
	DefaultSpeakingInterval = 50 * time.Millisecond
	maxSpeakingInterval     = 100 * time.Millisecond
)

type Participant struct {
	Identity     string
	Name         string
	Color        string
	IsLocal      bool
	IsSpeaking   bool
	IsHandRaised bool
	HasVideo     bool
	HasAudio     bool
}

type ChatMessage struct {
	Text       string
	SenderID   string
	SenderName string
	Timestamp  time.Time
}

type Reaction struct {
	ID        string
	Emoji     string
	X, Y      float64
	SenderID  string
	CreatedAt time.Time
}

type Options struct {
	ReactionTTL time.Duration
	// ChatLimit keeps only the newest messages when positive.
	ChatLimit int
}

// SpeakingSource reports per-participant audio activity. transport.Session
// satisfies it.
type SpeakingSource interface {
	IsSpeaking(identity string) bool
}

type Coordinator struct {
	mu        sync.Mutex
	roster    map[string]*Participant
	chat      []ChatMessage
	reactions map[string]*reactionEntry

	opts Options
	log  *zap.Logger

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

type reactionEntry struct {
	Reaction
	timer *time.Timer
}

func New(opts Options, log *zap.Logger) *Coordinator {
	if opts.ReactionTTL <= 0 {
		opts.ReactionTTL = DefaultReactionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		roster:    make(map[string]*Participant),
		reactions: make(map[string]*reactionEntry),
		opts:      opts,
		log:       log.Named("presence"),
		subs:      make(map[chan Event]struct{}),
	}
}

/* --------------------------------------------------
   roster
   -------------------------------------------------- */

// Join marks identity present. Joining twice only refreshes track state.
func (c *Coordinator) Join(info transport.ParticipantInfo, local bool) {
	if info.Identity == "" {
		return
	}

	c.mu.Lock()
	p, exists := c.roster[info.Identity]
	if !exists {
		p = &Participant{
			Identity: info.Identity,
			Color:    ColorFromIdentity(info.Identity),
			IsLocal:  local,
		}
		c.roster[info.Identity] = p
	}
	p.Name = displayName(info)
	p.HasVideo = info.HasVideo
	p.HasAudio = info.HasAudio
	c.mu.Unlock()

	if exists {
		c.publish(Event{Type: EventUpdated, Identity: info.Identity})
		return
	}
	c.log.Debug("participant joined", zap.String("identity", info.Identity), zap.Bool("local", local))
	c.publish(Event{Type: EventJoined, Identity: info.Identity})
}

// Leave removes identity from the roster together with every reaction it
// authored.
func (c *Coordinator) Leave(identity string) {
	c.mu.Lock()
	_, ok := c.roster[identity]
	delete(c.roster, identity)
	for id, r := range c.reactions {
		if r.SenderID == identity {
			r.timer.Stop()
			delete(c.reactions, id)
		}
	}
	c.mu.Unlock()

	if ok {
		c.log.Debug("participant left", zap.String("identity", identity))
		c.publish(Event{Type: EventLeft, Identity: identity})
	}
}

// Update refreshes name and track flags of a known participant.
func (c *Coordinator) Update(info transport.ParticipantInfo) {
	c.mu.Lock()
	p, ok := c.roster[info.Identity]
	if ok {
		p.Name = displayName(info)
		p.HasVideo = info.HasVideo
		p.HasAudio = info.HasAudio
	}
	c.mu.Unlock()

	if ok {
		c.publish(Event{Type: EventUpdated, Identity: info.Identity})
	}
}

// SetLocalMedia updates the local participant's track flags after a device
// toggle succeeded.
func (c *Coordinator) SetLocalMedia(identity string, hasVideo, hasAudio bool) {
	c.mu.Lock()
	p, ok := c.roster[identity]
	if ok {
		p.HasVideo = hasVideo
		p.HasAudio = hasAudio
	}
	c.mu.Unlock()

	if ok {
		c.publish(Event{Type: EventUpdated, Identity: identity})
	}
}

func (c *Coordinator) Participant(identity string) (Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.roster[identity]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Roster returns a copy sorted by identity.
func (c *Coordinator) Roster() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Participant, 0, len(c.roster))
	for _, p := range c.roster {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Reset forgets the roster, chat and reactions.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	for _, r := range c.reactions {
		r.timer.Stop()
	}
	c.roster = make(map[string]*Participant)
	c.reactions = make(map[string]*reactionEntry)
	c.chat = nil
	c.mu.Unlock()

	c.publish(Event{Type: EventReset})
}

/* --------------------------------------------------
   speaking
   -------------------------------------------------- */

// PollSpeaking refreshes every participant's speaking flag from src.
func (c *Coordinator) PollSpeaking(src SpeakingSource) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.roster))
	for id := range c.roster {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	// src may take its own locks, so it is queried outside c.mu.
	speaking := make(map[string]bool, len(ids))
	for _, id := range ids {
		speaking[id] = src.IsSpeaking(id)
	}

	var changed []string
	c.mu.Lock()
	for id, now := range speaking {
		p, ok := c.roster[id]
		if ok && p.IsSpeaking != now {
			p.IsSpeaking = now
			changed = append(changed, id)
		}
	}
	c.mu.Unlock()

	sort.Strings(changed)
	for _, id := range changed {
		c.publish(Event{Type: EventSpeaking, Identity: id})
	}
}

// RunSpeakingPoll polls src until ctx ends. Intervals outside (0, 100ms) fall
// back to DefaultSpeakingInterval.
func (c *Coordinator) RunSpeakingPoll(ctx context.Context, src SpeakingSource, interval time.Duration) {
	if interval <= 0 || interval >= maxSpeakingInterval {
		interval = DefaultSpeakingInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PollSpeaking(src)
		}
	}
}

/* --------------------------------------------------
   signaling
   -------------------------------------------------- */

// ApplyRaiseHand reports whether the flag changed. Unknown identities and
// repeats of the current state are no-ops.
func (c *Coordinator) ApplyRaiseHand(identity string, raised bool) bool {
	c.mu.Lock()
	p, ok := c.roster[identity]
	changed := ok && p.IsHandRaised != raised
	if changed {
		p.IsHandRaised = raised
	}
	c.mu.Unlock()

	if changed {
		c.publish(Event{Type: EventHand, Identity: identity})
	}
	return changed
}

func (c *Coordinator) AppendChat(m ChatMessage) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.chat = append(c.chat, m)
	if limit := c.opts.ChatLimit; limit > 0 && len(c.chat) > limit {
		c.chat = append([]ChatMessage(nil), c.chat[len(c.chat)-limit:]...)
	}
	c.mu.Unlock()

	c.publish(Event{Type: EventChat, Identity: m.SenderID})
}

// Chat returns the history in arrival order.
func (c *Coordinator) Chat() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatMessage(nil), c.chat...)
}

// AddReaction shows r until ReactionTTL elapses. A missing ID is generated;
// a reaction from the same sender with an ID already showing is ignored.
// IDs are scoped per sender so one peer cannot shadow another's reaction.
func (c *Coordinator) AddReaction(r Reaction) (Reaction, bool) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	c.mu.Lock()
	if _, dup := c.reactions[reactionKey(r)]; dup {
		c.mu.Unlock()
		return r, false
	}
	e := &reactionEntry{Reaction: r}
	e.timer = time.AfterFunc(c.opts.ReactionTTL, func() { c.expire(e) })
	c.reactions[reactionKey(r)] = e
	c.mu.Unlock()

	c.publish(Event{Type: EventReactionAdded, Identity: r.SenderID})
	return r, true
}

func reactionKey(r Reaction) string {
	return r.SenderID + "\x00" + r.ID
}

func (c *Coordinator) expire(e *reactionEntry) {
	c.mu.Lock()
	key := reactionKey(e.Reaction)
	cur, ok := c.reactions[key]
	if ok && cur == e {
		delete(c.reactions, key)
	}
	c.mu.Unlock()

	if ok && cur == e {
		c.publish(Event{Type: EventReactionExpired, Identity: e.SenderID})
	}
}

// Reactions returns the active reactions ordered by creation time.
func (c *Coordinator) Reactions() []Reaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Reaction, 0, len(c.reactions))
	for _, e := range c.reactions {
		out = append(out, e.Reaction)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func displayName(info transport.ParticipantInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return info.Identity
}
