// Package memory is an in-process store.Store for tests and local runs
// without Postgres.
package memory

import (
	"context"
	"strings"
	"sync"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
	"clubhours/internal/store"
)

type tables struct {
	students      map[string]model.Student
	credentials   map[string]model.Credential
	hours         map[string]model.HourRequest
	meetings      map[string]model.Meeting
	attendance    map[string]model.Attendance
	events        map[string]model.Event
	attendees     map[string]model.EventAttendee
	announcements map[string]model.Announcement
}

func newTables() tables {
	return tables{
		students:      map[string]model.Student{},
		credentials:   map[string]model.Credential{},
		hours:         map[string]model.HourRequest{},
		meetings:      map[string]model.Meeting{},
		attendance:    map[string]model.Attendance{},
		events:        map[string]model.Event{},
		attendees:     map[string]model.EventAttendee{},
		announcements: map[string]model.Announcement{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t tables) clone() tables {
	return tables{
		students:      cloneMap(t.students),
		credentials:   cloneMap(t.credentials),
		hours:         cloneMap(t.hours),
		meetings:      cloneMap(t.meetings),
		attendance:    cloneMap(t.attendance),
		events:        cloneMap(t.events),
		attendees:     cloneMap(t.attendees),
		announcements: cloneMap(t.announcements),
	}
}

type state struct {
	mu sync.RWMutex
	// txMu is held by a running transaction and by every write made outside
	// one, so a rollback never drops a concurrent write.
	txMu sync.Mutex
	t    tables
}

// db is a view of the shared state. Views handed to a transaction already
// hold txMu.
type db struct {
	*state
	inTx bool
}

func (d *db) lockWrite() {
	if !d.inTx {
		d.txMu.Lock()
	}
	d.mu.Lock()
}

func (d *db) unlockWrite() {
	d.mu.Unlock()
	if !d.inTx {
		d.txMu.Unlock()
	}
}

// Store implements store.Store over maps guarded by a mutex. Transactions are
// serialized and roll back by restoring a snapshot.
type Store struct {
	db *db
}

// New returns an empty store.
func New() *Store {
	return &Store{db: &db{state: &state{t: newTables()}}}
}

func (s *Store) Students() store.Students           { return students{s.db} }
func (s *Store) Credentials() store.Credentials     { return credentials{s.db} }
func (s *Store) HourRequests() store.HourRequests   { return hours{s.db} }
func (s *Store) Meetings() store.Meetings           { return meetings{s.db} }
func (s *Store) Attendance() store.Attendance       { return attendance{s.db} }
func (s *Store) Events() store.Events               { return events{s.db} }
func (s *Store) Announcements() store.Announcements { return announcements{s.db} }

// WithTx runs fn with exclusive write access; an error restores the data
// as it was before fn ran.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.db.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()

	s.db.mu.RLock()
	snapshot := s.db.t.clone()
	s.db.mu.RUnlock()

	if err := fn(&Store{db: &db{state: s.db.state, inTx: true}}); err != nil {
		s.db.mu.Lock()
		s.db.t = snapshot
		s.db.mu.Unlock()
		return err
	}
	return nil
}

func notFound(what string) error {
	return apperr.E(apperr.NotFound, what+" not found")
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
