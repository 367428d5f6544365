// Package room drives a meeting session: it fetches a token, joins the room
// through the injected transport and wires the whiteboard and presence state
// to the shared data channel.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/broadcast"
	"github.com/Tk21111/meeting_board/presence"
	"github.com/Tk21111/meeting_board/surface"
	"github.com/Tk21111/meeting_board/transport"
)

var (
	ErrEmptyInput      = errors.New("room: empty input")
	ErrJoinInProgress  = errors.New("room: join in progress")
	ErrLeaveInProgress = errors.New("room: leave in progress")
	ErrJoinCancelled   = errors.New("room: join cancelled")
)

type Credentials struct {
	Token    string `json:"token"`
	RoomName string `json:"roomName"`
	WSURL    string `json:"wsUrl"`
}

type TokenSource interface {
	MeetingToken(ctx context.Context, topicID, courseID string) (Credentials, error)
}

type Options struct {
	TopicID  string
	CourseID string

	StartAudio bool
	StartVideo bool

	SpeakingPollInterval time.Duration
	Presence             presence.Options
}

// DefaultOptions joins with the microphone on and the camera off.
func DefaultOptions(topicID, courseID string) Options {
	return Options{
		TopicID:              topicID,
		CourseID:             courseID,
		StartAudio:           true,
		SpeakingPollInterval: presence.DefaultSpeakingInterval,
	}
}

type Controller struct {
	opts      Options
	tokens    TokenSource
	connector transport.Connector

	board    *surface.Surface
	adapter  *broadcast.Adapter
	presence *presence.Coordinator
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	seq        uint64
	joinCancel context.CancelFunc
	session    transport.Session
	creds      Credentials
	local      transport.ParticipantInfo
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	lastErr    error

	deviceMu sync.Mutex
	videoOn  bool
	audioOn  bool
	warnings []string
}

func New(opts Options, tokens TokenSource, connector transport.Connector, board *surface.Surface, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		opts:      opts,
		tokens:    tokens,
		connector: connector,
		board:     board,
		adapter:   broadcast.New(log),
		presence:  presence.New(opts.Presence, log),
		log:       log.Named("room").With(zap.String("topic", opts.TopicID), zap.String("course", opts.CourseID)),
	}
	c.adapter.OnReceive(c.route)
	return c
}

func (c *Controller) Board() *surface.Surface { return c.board }
func (c *Controller) Presence() *presence.Coordinator { return c.presence }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that moved the controller to StateErrored.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.Identity
}

func (c *Controller) RoomName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.RoomName
}

// Join fetches a token and connects. Failures leave the controller Errored,
// from where Join may be retried.
func (c *Controller) Join(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateJoined:
		c.mu.Unlock()
		c.log.Info("join ignored, already joined")
		return nil
	case StateTokenFetching, StateJoining:
		c.mu.Unlock()
		return ErrJoinInProgress
	case StateLeaving:
		c.mu.Unlock()
		return ErrLeaveInProgress
	}

	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.seq++
	seq := c.seq
	c.joinCancel = cancel
	c.lastErr = nil
	c.state = StateTokenFetching
	c.mu.Unlock()

	creds, err := c.tokens.MeetingToken(joinCtx, c.opts.TopicID, c.opts.CourseID)
	if err != nil {
		return c.failJoin(seq, fmt.Errorf("%w: token: %w", transport.ErrTransportUnavailable, err))
	}
	if !c.advance(seq, StateJoining) {
		return ErrJoinCancelled
	}

	session, err := c.connector.Connect(joinCtx, creds.WSURL, creds.Token)
	if err != nil {
		if !errors.Is(err, transport.ErrTransportUnavailable) {
			err = fmt.Errorf("%w: %w", transport.ErrTransportUnavailable, err)
		}
		return c.failJoin(seq, fmt.Errorf("connect %s: %w", creds.RoomName, err))
	}

	c.mu.Lock()
	if c.seq != seq || c.state != StateJoining {
		c.mu.Unlock()
		_ = session.Disconnect(context.Background())
		return ErrJoinCancelled
	}
	c.session = session
	c.creds = creds
	c.local = session.LocalParticipant()
	c.joinCancel = nil
	c.wire(session)
	c.state = StateJoined
	c.mu.Unlock()

	c.log.Info("room joined",
		zap.String("room", creds.RoomName),
		zap.String("identity", c.local.Identity),
	)

	c.attachMedia(ctx)
	return nil
}

func (c *Controller) advance(seq uint64, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		return false
	}
	c.state = to
	return true
}

func (c *Controller) failJoin(seq uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seq != seq {
		return ErrJoinCancelled
	}
	c.state = StateErrored
	c.lastErr = err
	c.joinCancel = nil
	c.log.Warn("join failed", zap.Error(err))
	return err
}

// wire must be called with c.mu held.
func (c *Controller) wire(s transport.Session) {
	s.OnParticipantConnected(func(p transport.ParticipantInfo) {
		c.presence.Join(p, false)
	})
	s.OnParticipantDisconnected(func(p transport.ParticipantInfo) {
		c.presence.Leave(p.Identity)
	})
	s.OnParticipantUpdated(func(p transport.ParticipantInfo) {
		c.presence.Update(p)
	})
	s.OnReconnected(func() { c.reseed(s) })
	s.OnDisconnected(func(err error) { c.dropped(s, err) })

	c.adapter.Attach(s)

	c.presence.Join(c.local, true)
	for _, p := range s.RemoteParticipants() {
		c.presence.Join(p, false)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.pollCancel, c.pollDone = cancel, done
	go func() {
		defer close(done)
		c.presence.RunSpeakingPoll(pollCtx, s, c.opts.SpeakingPollInterval)
	}()
}

func (c *Controller) attachMedia(ctx context.Context) {
	if c.opts.StartAudio {
		if err := c.setMicrophone(ctx, true); err != nil {
			c.log.Warn("microphone unavailable at join", zap.Error(err))
		}
	}
	if c.opts.StartVideo {
		if err := c.setCamera(ctx, true); err != nil {
			c.log.Warn("camera unavailable at join", zap.Error(err))
		}
	}
}

// Leave is safe from any state. An in-flight join is cancelled.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateLeaving:
		c.mu.Unlock()
		return nil
	case StateErrored:
		c.state = StateIdle
		c.mu.Unlock()
		return nil
	}

	if c.joinCancel != nil {
		c.joinCancel()
		c.joinCancel = nil
	}
	c.seq++
	session := c.session
	stop, done := c.pollCancel, c.pollDone
	c.session, c.pollCancel, c.pollDone = nil, nil, nil
	c.state = StateLeaving
	c.mu.Unlock()

	c.adapter.Detach()
	if stop != nil {
		stop()
		<-done
	}

	var err error
	if session != nil {
		if err = session.Disconnect(ctx); err != nil {
			c.log.Warn("disconnect", zap.Error(err))
			err = fmt.Errorf("room: disconnect: %w", err)
		}
	}

	c.presence.Reset()
	c.resetDevices()

	c.mu.Lock()
	c.state = StateIdle
	c.local = transport.ParticipantInfo{}
	c.creds = Credentials{}
	c.mu.Unlock()

	c.log.Info("room left")
	return err
}

// dropped handles a disconnect the user did not ask for.
func (c *Controller) dropped(s transport.Session, cause error) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	stop := c.pollCancel
	c.session, c.pollCancel, c.pollDone = nil, nil, nil
	c.local = transport.ParticipantInfo{}
	c.state = StateIdle
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.adapter.Detach()
	c.presence.Reset()
	c.resetDevices()

	c.log.Warn("room connection lost", zap.Error(cause))
}

// reseed rebuilds the roster after the transport recovered. Chat and board
// state are kept; nothing is requested from peers.
func (c *Controller) reseed(s transport.Session) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	local := s.LocalParticipant()
	c.mu.Unlock()

	current := map[string]bool{local.Identity: true}
	c.presence.Join(local, true)
	for _, p := range s.RemoteParticipants() {
		current[p.Identity] = true
		c.presence.Join(p, false)
	}
	for _, p := range c.presence.Roster() {
		if !current[p.Identity] {
			c.presence.Leave(p.Identity)
		}
	}

	c.log.Info("room reconnected", zap.Int("participants", len(current)))
}

func (c *Controller) joinedSession() (transport.Session, transport.ParticipantInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateJoined || c.session == nil {
		return nil, transport.ParticipantInfo{}, transport.ErrNotConnected
	}
	return c.session, c.local, nil
}
