package config

import "encoding/json"

// NetworkMsg is the operation payload. Clients send []NetworkMsg and receive
// []ServerMsg.
type NetworkMsg struct {
	Operation string `json:"operation"`
	ID        string `json:"id"`

	// data
	From string          `json:"from,omitempty"`
	To   []string        `json:"to,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`

	// roster
	Participant *ParticipantData `json:"participant,omitempty"`
	Tracks      *Tracks          `json:"tracks,omitempty"`
	Speaking    *bool            `json:"speaking,omitempty"`
}

type ParticipantData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	HasVideo bool   `json:"hasVideo"`
	HasAudio bool   `json:"hasAudio"`
	Speaking bool   `json:"speaking"`
}

type Tracks struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}
