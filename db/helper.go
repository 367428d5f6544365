package db

import (
	"database/sql"

	"github.com/Tk21111/meeting_board/config"
)

func scanAttendance(rows *sql.Rows) ([]config.Attendance, error) {
	out := []config.Attendance{}

	for rows.Next() {
		var (
			a    config.Attendance
			left sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.RoomID, &a.Identity, &a.Name, &a.JoinedAt, &left); err != nil {
			return nil, err
		}
		if left.Valid {
			v := left.Int64
			a.LeftAt = &v
		}
		out = append(out, a)
	}

	return out, rows.Err()
}
