package room

type State int

const (
	StateIdle State = iota
	StateTokenFetching
	StateJoining
	StateJoined
	StateLeaving
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTokenFetching:
		return "token-fetching"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}
