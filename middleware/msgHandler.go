package middleware

import (
	"encoding/json"
	"errors"

	"github.com/Tk21111/meeting_board/config"
)

var errEmptyFrame = errors.New("empty frame")

// DecodeNetworkMsg reads a client frame: a JSON array of operations.
func DecodeNetworkMsg(msg []byte) ([]config.NetworkMsg, error) {
	var m []config.NetworkMsg

	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errEmptyFrame
	}

	return m, nil
}

// DecodeServerMsg reads a relay frame.
func DecodeServerMsg(msg []byte) ([]config.ServerMsg, error) {
	var m []config.ServerMsg

	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}

	return m, nil
}

// EncodeNetworkMsg returns nil when v cannot be encoded.
func EncodeNetworkMsg(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
