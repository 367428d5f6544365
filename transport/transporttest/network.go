// Package transporttest provides an in-memory transport whose sessions
// deliver to each other synchronously on the caller's goroutine.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Tk21111/meeting_board/transport"
)

var ErrDropped = errors.New("transporttest: participant dropped")

type Network struct {
	mu       sync.Mutex
	sessions map[string]*Session
	speaking map[string]bool

	connectErr   error
	hold         chan struct{}
	deniedCamera map[string]bool
	deniedMic    map[string]bool
}

func NewNetwork() *Network {
	return &Network{
		sessions:     make(map[string]*Session),
		speaking:     make(map[string]bool),
		deniedCamera: make(map[string]bool),
		deniedMic:    make(map[string]bool),
	}
}

// Connector returns a connector that joins as the given identity.
func (n *Network) Connector(identity, name string) transport.Connector {
	return &connector{net: n, identity: identity, name: name}
}

// FailConnect makes every following Connect fail with err. Pass nil to heal.
func (n *Network) FailConnect(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectErr = err
}

// HoldConnect blocks Connect until the returned release func is called or the
// caller's context ends.
func (n *Network) HoldConnect() (release func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{})
	n.hold = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			if n.hold == ch {
				n.hold = nil
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *Network) DenyCamera(identity string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deniedCamera[identity] = true
}

func (n *Network) DenyMicrophone(identity string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deniedMic[identity] = true
}

func (n *Network) SetSpeaking(identity string, speaking bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.speaking[identity] = speaking
}

// Session returns the live session for identity, or nil.
func (n *Network) Session(identity string) *Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessions[identity]
}

// Drop simulates an unexpected loss of identity's connection: peers see it
// leave and the dropped session's disconnect handler fires.
func (n *Network) Drop(identity string) {
	s := n.remove(identity)
	if s == nil {
		return
	}
	s.mu.Lock()
	h := s.onDisconnected
	s.mu.Unlock()
	if h != nil {
		h(ErrDropped)
	}
}

// Reconnect fires the reconnected handler of identity's session.
func (n *Network) Reconnect(identity string) {
	s := n.Session(identity)
	if s == nil {
		return
	}
	s.mu.Lock()
	h := s.onReconnected
	s.mu.Unlock()
	if h != nil {
		h()
	}
}

func (n *Network) remove(identity string) *Session {
	n.mu.Lock()
	s, ok := n.sessions[identity]
	if !ok {
		n.mu.Unlock()
		return nil
	}
	delete(n.sessions, identity)
	peers := n.peersLocked(identity)
	n.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	info := s.info
	s.mu.Unlock()

	for _, p := range peers {
		p.participantDisconnected(info)
	}
	return s
}

func (n *Network) peersLocked(except string) []*Session {
	ids := make([]string, 0, len(n.sessions))
	for id := range n.sessions {
		if id != except {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, n.sessions[id])
	}
	return out
}

type connector struct {
	net      *Network
	identity string
	name     string
}

func (c *connector) Connect(ctx context.Context, url, token string) (transport.Session, error) {
	n := c.net

	n.mu.Lock()
	hold := n.hold
	n.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}

	n.mu.Lock()
	if n.connectErr != nil {
		err := n.connectErr
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	if _, exists := n.sessions[c.identity]; exists {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: identity %q already connected", transport.ErrTransportUnavailable, c.identity)
	}

	s := &Session{
		net:   n,
		info:  transport.ParticipantInfo{Identity: c.identity, Name: c.name},
		URL:   url,
		Token: token,
	}
	peers := n.peersLocked(c.identity)
	n.sessions[c.identity] = s
	n.mu.Unlock()

	for _, p := range peers {
		p.participantConnected(s.info)
	}
	return s, nil
}

var _ transport.Session = (*Session)(nil)

type Session struct {
	net *Network

	URL   string
	Token string

	mu     sync.Mutex
	info   transport.ParticipantInfo
	closed bool
	sent   [][]byte

	onData          func([]byte, string)
	onConnected     func(transport.ParticipantInfo)
	onDisconnectedP func(transport.ParticipantInfo)
	onUpdated       func(transport.ParticipantInfo)
	onReconnected   func()
	onDisconnected  func(error)
}

func (s *Session) LocalParticipant() transport.ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) RemoteParticipants() []transport.ParticipantInfo {
	s.mu.Lock()
	self := s.info.Identity
	s.mu.Unlock()

	s.net.mu.Lock()
	peers := s.net.peersLocked(self)
	s.net.mu.Unlock()

	out := make([]transport.ParticipantInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.LocalParticipant())
	}
	return out
}

func (s *Session) SetCameraEnabled(ctx context.Context, enabled bool) error {
	return s.setDevice(enabled, true)
}

func (s *Session) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	return s.setDevice(enabled, false)
}

func (s *Session) setDevice(enabled, camera bool) error {
	s.net.mu.Lock()
	denied := s.net.deniedMic
	if camera {
		denied = s.net.deniedCamera
	}
	s.mu.Lock()
	id := s.info.Identity
	closed := s.closed
	s.mu.Unlock()
	refused := enabled && denied[id]
	s.net.mu.Unlock()

	if closed {
		return transport.ErrNotConnected
	}
	if refused {
		name := "microphone"
		if camera {
			name = "camera"
		}
		return fmt.Errorf("%w: %s permission denied", transport.ErrDeviceUnavailable, name)
	}

	s.mu.Lock()
	if camera {
		s.info.HasVideo = enabled
	} else {
		s.info.HasAudio = enabled
	}
	info := s.info
	s.mu.Unlock()

	for _, p := range s.peers() {
		p.participantUpdated(info)
	}
	return nil
}

func (s *Session) SendData(ctx context.Context, data []byte, opts transport.DataOptions) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrNotConnected
	}
	from := s.info.Identity
	s.sent = append(s.sent, append([]byte(nil), data...))
	s.mu.Unlock()

	var only map[string]bool
	if len(opts.DestinationIdentities) > 0 {
		only = make(map[string]bool, len(opts.DestinationIdentities))
		for _, id := range opts.DestinationIdentities {
			only[id] = true
		}
	}

	for _, p := range s.peers() {
		if only != nil && !only[p.LocalParticipant().Identity] {
			continue
		}
		p.deliver(append([]byte(nil), data...), from)
	}
	return nil
}

// Sent returns copies of every payload this session published.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

func (s *Session) IsSpeaking(identity string) bool {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return s.net.speaking[identity]
}

func (s *Session) OnDataReceived(h func([]byte, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = h
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

func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	id := s.info.Identity
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	if s.net.Session(id) == s {
		s.net.remove(id)
	}
	return nil
}

func (s *Session) peers() []*Session {
	s.mu.Lock()
	id := s.info.Identity
	s.mu.Unlock()

	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return s.net.peersLocked(id)
}

func (s *Session) deliver(data []byte, from string) {
	s.mu.Lock()
	h := s.onData
	s.mu.Unlock()
	if h != nil {
		h(data, from)
	}
}

func (s *Session) participantConnected(p transport.ParticipantInfo) {
	s.mu.Lock()
	h := s.onConnected
	s.mu.Unlock()
	if h != nil {
		h(p)
	}
}

func (s *Session) participantDisconnected(p transport.ParticipantInfo) {
	s.mu.Lock()
	h := s.onDisconnectedP
	s.mu.Unlock()
	if h != nil {
		h(p)
	}
}

func (s *Session) participantUpdated(p transport.ParticipantInfo) {
	s.mu.Lock()
	h := s.onUpdated
	s.mu.Unlock()
	if h != nil {
		h(p)
	}
}
