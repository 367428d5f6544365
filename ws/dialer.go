package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/middleware"
	"github.com/Tk21111/meeting_board/transport"
)

const (
	welcomeWait       = 10 * time.Second
	defaultSendQueue  = 512
	defaultRedials    = 3
	redialBackoffStep = 500 * time.Millisecond
	maxPendingData    = 256
)

var errQueueFull = errors.New("ws: send queue full")

// Devices switches local capture hardware. A nil Devices always succeeds.
type Devices interface {
	SetCamera(ctx context.Context, on bool) error
	SetMicrophone(ctx context.Context, on bool) error
}

// Dialer connects to the relay. It implements transport.Connector.
type Dialer struct {
	WS        *websocket.Dialer
	Devices   Devices
	SendQueue int
	// Redials is how many times a dropped connection is re-established
	// before the session reports a disconnect. Negative disables redialing.
	Redials int
	Log     *zap.Logger
}

var _ transport.Connector = (*Dialer)(nil)

func (d *Dialer) Connect(ctx context.Context, rawURL, token string) (transport.Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url %q: %v", transport.ErrTransportUnavailable, rawURL, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	queue := d.SendQueue
	if queue <= 0 {
		queue = defaultSendQueue
	}

	s := &Session{
		url:      u.String(),
		dialer:   d.WS,
		devices:  d.Devices,
		redials:  d.Redials,
		send:     make(chan []byte, queue),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		remotes:  make(map[string]transport.ParticipantInfo),
		speaking: make(map[string]bool),
		log:      log.Named("ws-client"),
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.redials == 0 {
		s.redials = defaultRedials
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	go s.run(conn)
	return s, nil
}

// Session is a joined relay room, client side. Handlers run on the read
// goroutine in frame order. Data frames that arrive before the first
// OnDataReceived are held and handed to that handler when it is set.
type Session struct {
	url     string
	dialer  *websocket.Dialer
	devices Devices
	redials int

	send chan []byte
	quit chan struct{}
	done chan struct{}

	mu       sync.Mutex
	local    transport.ParticipantInfo
	remotes  map[string]transport.ParticipantInfo
	speaking map[string]bool
	closing  bool

	// dataMu keeps pending frames ahead of live ones when the first data
	// handler is installed.
	dataMu    sync.Mutex
	pending   []pendingData
	dataReady bool

	onData          func([]byte, string)
	onConnected     func(transport.ParticipantInfo)
	onDisconnectedP func(transport.ParticipantInfo)
	onUpdated       func(transport.ParticipantInfo)
	onReconnected   func()
	onDisconnected  func(error)

	log *zap.Logger
}

var _ transport.Session = (*Session)(nil)

type pendingData struct {
	data []byte
	from string
}

/* --------------------------------------------------
   connection lifecycle
   -------------------------------------------------- */

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial: %v (status %d)", transport.ErrTransportUnavailable, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial: %v", transport.ErrTransportUnavailable, err)
	}

	if err := s.readWelcome(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	return conn, nil
}

func (s *Session) readWelcome(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(welcomeWait))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	msgs, err := middleware.DecodeServerMsg(data)
	if err != nil {
		return fmt.Errorf("decode welcome: %w", err)
	}
	if len(msgs) == 0 || msgs[0].Payload.Operation != config.OpWelcome || msgs[0].Payload.Participant == nil {
		return errors.New("relay did not send a welcome")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	local := toInfo(msgs[0].Payload.Participant)
	local.HasVideo, local.HasAudio = s.local.HasVideo, s.local.HasAudio
	s.local = local

	s.remotes = make(map[string]transport.ParticipantInfo)
	s.speaking = make(map[string]bool)
	for _, m := range msgs[1:] {
		if m.Payload.Operation == config.OpParticipantJoin && m.Payload.Participant != nil {
			p := m.Payload.Participant
			s.remotes[p.ID] = toInfo(p)
			s.speaking[p.ID] = p.Speaking
		}
	}
	return nil
}

func (s *Session) run(conn *websocket.Conn) {
	for {
		s.restoreTracks()

		stop := make(chan struct{})
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			s.writePump(conn, stop)
		}()

		err := s.readPump(conn)
		close(stop)
		<-writerDone
		conn.Close()

		if s.isClosing() {
			s.finish(nil)
			return
		}

		s.log.Warn("relay connection lost", zap.Error(err))
		conn, err = s.redial()
		if err != nil {
			s.finish(err)
			return
		}

		s.mu.Lock()
		h := s.onReconnected
		s.mu.Unlock()
		if h != nil {
			h()
		}
	}
}

func (s *Session) redial() (*websocket.Conn, error) {
	if s.redials < 0 {
		return nil, errors.New("redial disabled")
	}

	var last error
	for attempt := 1; attempt <= s.redials; attempt++ {
		select {
		case <-s.quit:
			return nil, errors.New("session closed")
		case <-time.After(time.Duration(attempt) * redialBackoffStep):
		}

		ctx, cancel := context.WithTimeout(context.Background(), welcomeWait)
		conn, err := s.dial(ctx)
		cancel()
		if err == nil {
			s.log.Info("relay reconnected", zap.Int("attempt", attempt))
			return conn, nil
		}
		last = err
	}
	return nil, last
}

func (s *Session) finish(cause error) {
	s.mu.Lock()
	intentional := s.closing
	s.closing = true
	h := s.onDisconnected
	s.mu.Unlock()

	if cause != nil && !intentional && h != nil {
		h(fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, cause))
	}
	close(s.done)
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// restoreTracks republishes local track state after a (re)connect.
func (s *Session) restoreTracks() {
	s.mu.Lock()
	tracks := config.Tracks{Video: s.local.HasVideo, Audio: s.local.HasAudio}
	s.mu.Unlock()

	if tracks.Video || tracks.Audio {
		_ = s.enqueue(config.NetworkMsg{Operation: config.OpTracks, Tracks: &tracks})
	}
}

func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	already := s.closing
	s.closing = true
	s.mu.Unlock()

	if !already {
		close(s.quit)
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/* --------------------------------------------------
   pumps
   -------------------------------------------------- */

func (s *Session) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		msgs, err := middleware.DecodeServerMsg(data)
		if err != nil {
			s.log.Debug("invalid relay frame", zap.Error(err))
			continue
		}
		for _, m := range msgs {
			s.dispatch(m.Payload)
		}
	}
}

func (s *Session) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-s.quit:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
			return

		case msg := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (s *Session) dispatch(m config.NetworkMsg) {
	switch m.Operation {

	case config.OpData:
		if m.From == "" {
			return
		}
		s.dataMu.Lock()
		defer s.dataMu.Unlock()

		s.mu.Lock()
		h := s.onData
		if !s.dataReady && len(s.pending) < maxPendingData {
			s.pending = append(s.pending, pendingData{data: []byte(m.Data), from: m.From})
		}
		s.mu.Unlock()
		if h != nil {
			h([]byte(m.Data), m.From)
		}

	case config.OpParticipantJoin, config.OpParticipantUpdate:
		if m.Participant == nil {
			return
		}
		info := toInfo(m.Participant)

		s.mu.Lock()
		_, known := s.remotes[info.Identity]
		s.remotes[info.Identity] = info
		s.speaking[info.Identity] = m.Participant.Speaking
		h := s.onUpdated
		if !known {
			h = s.onConnected
		}
		s.mu.Unlock()
		if h != nil {
			h(info)
		}

	case config.OpParticipantLeave:
		s.mu.Lock()
		info, known := s.remotes[m.ID]
		delete(s.remotes, m.ID)
		delete(s.speaking, m.ID)
		h := s.onDisconnectedP
		s.mu.Unlock()
		if known && h != nil {
			h(info)
		}

	case config.OpSpeaking:
		if m.Speaking == nil {
			return
		}
		s.mu.Lock()
		if _, ok := s.remotes[m.ID]; ok {
			s.speaking[m.ID] = *m.Speaking
		}
		s.mu.Unlock()
	}
}

func (s *Session) enqueue(msg config.NetworkMsg) error {
	data := middleware.EncodeNetworkMsg([]config.NetworkMsg{msg})
	if data == nil {
		return fmt.Errorf("ws: encode %s frame", msg.Operation)
	}

	select {
	case <-s.done:
		return transport.ErrNotConnected
	case <-s.quit:
		return transport.ErrNotConnected
	default:
	}

	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: %w", transport.ErrTransportUnavailable, errQueueFull)
	}
}

/* --------------------------------------------------
   transport.Session
   -------------------------------------------------- */

func (s *Session) LocalParticipant() transport.ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Session) RemoteParticipants() []transport.ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]transport.ParticipantInfo, 0, len(s.remotes))
	for _, p := range s.remotes {
		out = append(out, p)
	}
	sortInfos(out)
	return out
}

func (s *Session) SendData(ctx context.Context, data []byte, opts transport.DataOptions) error {
	return s.enqueue(config.NetworkMsg{
		Operation: config.OpData,
		To:        opts.DestinationIdentities,
		Data:      data,
	})
}

func (s *Session) SetCameraEnabled(ctx context.Context, enabled bool) error {
	if s.isClosing() {
		return transport.ErrNotConnected
	}
	if s.devices != nil {
		if err := s.devices.SetCamera(ctx, enabled); err != nil {
			return fmt.Errorf("%w: camera: %w", transport.ErrDeviceUnavailable, err)
		}
	}
	return s.publishTracks(func(t *transport.ParticipantInfo) { t.HasVideo = enabled })
}

func (s *Session) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	if s.isClosing() {
		return transport.ErrNotConnected
	}
	if s.devices != nil {
		if err := s.devices.SetMicrophone(ctx, enabled); err != nil {
			return fmt.Errorf("%w: microphone: %w", transport.ErrDeviceUnavailable, err)
		}
	}
	return s.publishTracks(func(t *transport.ParticipantInfo) { t.HasAudio = enabled })
}

func (s *Session) publishTracks(apply func(*transport.ParticipantInfo)) error {
	s.mu.Lock()
	apply(&s.local)
	tracks := config.Tracks{Video: s.local.HasVideo, Audio: s.local.HasAudio}
	s.mu.Unlock()

	return s.enqueue(config.NetworkMsg{Operation: config.OpTracks, Tracks: &tracks})
}

// ReportSpeaking publishes local audio activity, typically fed by a
// media.Detector.
func (s *Session) ReportSpeaking(speaking bool) error {
	s.mu.Lock()
	id := s.local.Identity
	changed := s.speaking[id] != speaking
	s.speaking[id] = speaking
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return s.enqueue(config.NetworkMsg{Operation: config.OpSpeaking, ID: id, Speaking: &speaking})
}

func (s *Session) IsSpeaking(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking[identity]
}

func (s *Session) OnDataReceived(h func([]byte, string)) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	s.mu.Lock()
	s.onData = h
	var backlog []pendingData
	if h != nil && !s.dataReady {
		s.dataReady = true
		backlog, s.pending = s.pending, nil
	}
	s.mu.Unlock()

	for _, p := range backlog {
		h(p.data, p.from)
	}
}

func (s *Session) OnParticipantConnected(h func(transport.ParticipantInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = h
}

func (s *Session) OnParticipantDisconnected(h func(transport.ParticipantInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnectedP = h
}

func (s *Session) OnParticipantUpdated(h func(transport.ParticipantInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdated = h
}

func (s *Session) OnReconnected(h func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnected = h
}

func (s *Session) OnDisconnected(h func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnected = h
}
