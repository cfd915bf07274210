// Package events persists notable state changes (connection lifecycle,
// setpoint updates) to a local SQLite database. Recording is asynchronous
// and lossy under pressure so the control loop never blocks on it.
package events

import (
	"database/sql"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// Type classifies an event.
type Type string

const (
	TypeStartup        Type = "STARTUP"
	TypeShutdown       Type = "SHUTDOWN"
	TypeConnected      Type = "CONNECTED"
	TypeDisconnected   Type = "DISCONNECTED"
	TypeSetpointChange Type = "SETPOINT_CHANGE"
)

// Event is one row in the event log.
type Event struct {
	Timestamp time.Time
	Type      Type
	Detail    string
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    event_type TEXT NOT NULL,
    detail TEXT
);`

// Store writes events to SQLite from a dedicated goroutine fed by a buffered
// channel. A nil *Store is valid and records nothing, so callers need no
// guard when the event log is disabled.
type Store struct {
	db *sql.DB
	ch chan Event
	wg sync.WaitGroup
}

// Open opens (creating if needed) the event database at path and starts the
// writer goroutine.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open event database %s", path)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "failed to create events table")
	}

	s := &Store{
		db: db,
		ch: make(chan Event, 64),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Record queues an event for persistence. It never blocks: when the buffer
// is full the event is dropped with a warning.
func (s *Store) Record(t Type, detail string) {
	if s == nil {
		return
	}
	ev := Event{Timestamp: time.Now(), Type: t, Detail: detail}
	select {
	case s.ch <- ev:
	default:
		logrus.WithField("type", t).Warn("event buffer full, dropping event")
	}
}

// Close drains queued events and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	close(s.ch)
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for ev := range s.ch {
		s.write(ev)
	}
}

func (s *Store) write(ev Event) {
	_, err := s.db.Exec(
		"INSERT INTO events(timestamp, event_type, detail) VALUES(?, ?, ?)",
		ev.Timestamp.Format("2006-01-02 15:04:05.000"), string(ev.Type), ev.Detail,
	)
	if err != nil {
		logrus.Errorf("failed to insert event: %v", err)
	}
}
