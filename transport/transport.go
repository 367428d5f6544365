// Package transport describes the real-time room capabilities the meeting
// core depends on. Concrete implementations live in ws (websocket relay) and
// transporttest (in-memory).
package transport

import (
	"context"
	"errors"
)

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrDeviceUnavailable    = errors.New("device unavailable")
	ErrNotConnected         = errors.New("not connected")
)

type ParticipantInfo struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	HasVideo bool   `json:"hasVideo"`
	HasAudio bool   `json:"hasAudio"`
}

type DataOptions struct {
	Reliable bool
	// DestinationIdentities limits delivery; empty means every peer.
	DestinationIdentities []string
}

type Connector interface {
	Connect(ctx context.Context, url, token string) (Session, error)
}

// Session is a joined room. Handlers may be invoked from transport
// goroutines; each handler kind is invoked in arrival order.
type Session interface {
	LocalParticipant() ParticipantInfo
	RemoteParticipants() []ParticipantInfo

	SetCameraEnabled(ctx context.Context, enabled bool) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error

	SendData(ctx context.Context, data []byte, opts DataOptions) error
	IsSpeaking(identity string) bool

	OnDataReceived(func(data []byte, senderID string))
	OnParticipantConnected(func(ParticipantInfo))
	OnParticipantDisconnected(func(ParticipantInfo))
	OnParticipantUpdated(func(ParticipantInfo))
	OnReconnected(func())
	OnDisconnected(func(err error))

	Disconnect(ctx context.Context) error
}
