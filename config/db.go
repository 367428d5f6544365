package config

const (
	AttendanceJoin  = "join"
	AttendanceLeave = "leave"
)

type AttendanceEvent struct {
	RoomID   string
	Identity string
	Name     string
	Op       string
	At       int64
	Result   chan error
}

type Attendance struct {
	ID       int64  `json:"id"`
	RoomID   string `json:"roomId"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
	LeftAt   *int64 `json:"leftAt,omitempty"`
}
