package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Tk21111/meeting_board/config"
)

// Operation Types
const (
	OpJoin = iota
	OpLeave
	OpFlush
)

var ErrClosed = errors.New("db: writer closed")

type DbJob struct {
	Type   int
	Event  config.AttendanceEvent
	Result chan error
}

// Writer owns the only write connection. Writes are queued and applied in
// order by a single goroutine; reads go straight to the pool.
type Writer struct {
	db   *sql.DB
	opCh chan DbJob
	done chan struct{}
	log  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewWriter(dbPath string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(`
        PRAGMA journal_mode = WAL;
        PRAGMA synchronous = NORMAL;
        PRAGMA busy_timeout = 5000; -- Wait 5s if db is locked
    `); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: pragmas: %w", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS attendance (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            room_id TEXT NOT NULL,
            identity TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            joined_at INTEGER NOT NULL,
            left_at INTEGER
        );
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db: create attendance: %w", err)
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_attendance_room
        ON attendance(room_id, identity, id);
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db: create index: %w", err)
	}

	// sessions left open by a previous process ended when it did
	res, err := db.Exec(`UPDATE attendance SET left_at = ? WHERE left_at IS NULL`, time.Now().UnixMilli())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db: close stale sessions: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Info("closed stale attendance rows", zap.Int64("rows", n))
	}

	w := &Writer{
		db:   db,
		opCh: make(chan DbJob, 4096),
		done: make(chan struct{}),
		log:  log.Named("db"),
	}

	stmts, err := w.prepare()
	if err != nil {
		db.Close()
		return nil, err
	}

	go w.writerLoop(stmts)
	return w, nil
}

type statements struct {
	join  *sql.Stmt
	leave *sql.Stmt
}

func (w *Writer) prepare() (*statements, error) {
	join, err := w.db.Prepare(`
        INSERT INTO attendance (room_id, identity, name, joined_at)
        VALUES (?, ?, ?, ?)
    `)
	if err != nil {
		return nil, fmt.Errorf("db: prepare join: %w", err)
	}

	leave, err := w.db.Prepare(`
        UPDATE attendance
        SET left_at = ?
        WHERE id = (
            SELECT id FROM attendance
            WHERE room_id = ? AND identity = ? AND left_at IS NULL
            ORDER BY id DESC
            LIMIT 1
        )
    `)
	if err != nil {
		join.Close()
		return nil, fmt.Errorf("db: prepare leave: %w", err)
	}

	return &statements{join: join, leave: leave}, nil
}

func (w *Writer) writerLoop(s *statements) {
	defer close(w.done)
	defer s.join.Close()
	defer s.leave.Close()

	// --- Main Loop ---
	for job := range w.opCh {
		var err error

		switch job.Type {
		case OpJoin:
			e := job.Event
			_, err = s.join.Exec(e.RoomID, e.Identity, e.Name, e.At)

		case OpLeave:
			e := job.Event
			_, err = s.leave.Exec(e.At, e.RoomID, e.Identity)

		case OpFlush:
		}

		if err != nil {
			w.log.Error("attendance write failed",
				zap.Int("op", job.Type),
				zap.String("room", job.Event.RoomID),
				zap.String("identity", job.Event.Identity),
				zap.Error(err),
			)
		}
		if job.Result != nil {
			job.Result <- err
		}
	}
}

// --- Public Write Methods ---

func (w *Writer) RecordJoin(roomID, identity, name string) {
	w.enqueue(DbJob{Type: OpJoin, Event: config.AttendanceEvent{
		RoomID:   roomID,
		Identity: identity,
		Name:     name,
		Op:       config.AttendanceJoin,
		At:       time.Now().UnixMilli(),
	}})
}

func (w *Writer) RecordLeave(roomID, identity string) {
	w.enqueue(DbJob{Type: OpLeave, Event: config.AttendanceEvent{
		RoomID:   roomID,
		Identity: identity,
		Op:       config.AttendanceLeave,
		At:       time.Now().UnixMilli(),
	}})
}

// Flush waits until every write queued before it has been applied.
func (w *Writer) Flush(ctx context.Context) error {
	result := make(chan error, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	select {
	case w.opCh <- DbJob{Type: OpFlush, Result: result}:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) enqueue(job DbJob) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return
	}
	select {
	case w.opCh <- job:
	default:
		w.log.Warn("attendance queue full, dropping",
			zap.String("room", job.Event.RoomID),
			zap.String("identity", job.Event.Identity),
		)
	}
}

// Close drains queued writes and closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.opCh)
	w.mu.Unlock()

	<-w.done
	return w.db.Close()
}

// --- Read Methods (safe for concurrent read) ---

func (w *Writer) ListAttendance(ctx context.Context, roomID string) ([]config.Attendance, error) {
	rows, err := w.db.QueryContext(ctx, `
        SELECT id, room_id, identity, name, joined_at, left_at
        FROM attendance
        WHERE room_id = ?
        ORDER BY id ASC
    `, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAttendance(rows)
}

// Present lists identities with an open session in roomID.
func (w *Writer) Present(ctx context.Context, roomID string) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
        SELECT DISTINCT identity
        FROM attendance
        WHERE room_id = ? AND left_at IS NULL
        ORDER BY identity ASC
    `, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
