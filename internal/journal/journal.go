// Package journal records task outcomes in a SQLite database. Writes are
// queued and performed by a background goroutine so the runtime loop never
// waits on disk.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status of a finished task.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
	// StatusLost marks tasks abandoned by a fatal loop failure.
	StatusLost Status = "lost"
)

// Entry is one journal row.
type Entry struct {
	ID        uuid.UUID
	Name      string
	Status    Status
	Error     string
	Offloads  int
	Submitted time.Time
	Finished  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	status    TEXT NOT NULL,
	error     TEXT NOT NULL DEFAULT '',
	offloads  INTEGER NOT NULL DEFAULT 0,
	submitted INTEGER NOT NULL,
	finished  INTEGER NOT NULL
)`

const queueSize = 256

// Journal is safe for concurrent use.
type Journal struct {
	db      *sql.DB
	queue   chan Entry
	wg      sync.WaitGroup
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
	dropped int
}

// Open opens or creates the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	j := &Journal{
		db:     db,
		queue:  make(chan Entry, queueSize),
		logger: logger.With("component", "journal"),
	}
	j.wg.Add(1)
	go j.writer()
	return j, nil
}

// Record queues e. If the queue is full the entry is dropped and logged.
func (j *Journal) Record(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.dropped++
		j.logger.Warn("journal queue full, entry dropped", "task", e.Name, "id", e.ID)
	}
}

func (j *Journal) writer() {
	defer j.wg.Done()
	for e := range j.queue {
		if err := j.insert(e); err != nil {
			j.logger.Error("journal write failed", "task", e.Name, "err", err)
		}
	}
}

func (j *Journal) insert(e Entry) error {
	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO tasks (id, name, status, error, offloads, submitted, finished)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Name, string(e.Status), e.Error, e.Offloads,
		e.Submitted.UnixNano(), e.Finished.UnixNano(),
	)
	return err
}

// Entries returns every recorded entry in submission order. Entries still
// queued are not visible until the writer catches up; Close flushes them.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, name, status, error, offloads, submitted, finished FROM tasks ORDER BY submitted, id`)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			id, name, status, msg string
			offloads              int
			submitted, finished   int64
		)
		if err := rows.Scan(&id, &name, &status, &msg, &offloads, &submitted, &finished); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("journal: bad id %q: %w", id, err)
		}
		out = append(out, Entry{
			ID:        uid,
			Name:      name,
			Status:    Status(status),
			Error:     msg,
			Offloads:  offloads,
			Submitted: time.Unix(0, submitted),
			Finished:  time.Unix(0, finished),
		})
	}
	return out, rows.Err()
}

// Dropped returns how many entries were lost to a full queue.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Flush closes the queue and waits for pending writes. The database stays
// readable until Close.
func (j *Journal) Flush() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	j.wg.Wait()
}

// Close flushes pending writes and closes the database.
func (j *Journal) Close() error {
	j.Flush()
	return j.db.Close()
}
