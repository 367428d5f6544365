package config

// ServerMsg is one relay-to-client frame entry. Clock is assigned per room
// and only orders diagnostics, peers apply frames in arrival order.
type ServerMsg struct {
	Clock   int64      `json:"clock"`
	Payload NetworkMsg `json:"payload"`
}

const (
	OpWelcome           = "welcome"
	OpParticipantJoin   = "participant-join"
	OpParticipantLeave  = "participant-leave"
	OpParticipantUpdate = "participant-update"
	OpData              = "data"
	OpTracks            = "tracks"
	OpSpeaking          = "speaking"
)
