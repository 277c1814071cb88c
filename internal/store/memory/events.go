package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
)

type events struct{ db *db }

func (r events) Create(_ context.Context, e model.Event) (model.Event, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	e.Attendees = nil
	r.db.t.events[e.ID] = e
	return e, nil
}

func (r events) Get(_ context.Context, id string) (model.Event, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	e, ok := r.db.t.events[id]
	if !ok {
		return model.Event{}, notFound("event")
	}
	return e, nil
}

func (r events) Lock(ctx context.Context, id string) (model.Event, error) {
	return r.Get(ctx, id)
}

func (r events) List(_ context.Context, fromDate string, limit int) ([]model.Event, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var res []model.Event
	for _, e := range r.db.t.events {
		if e.Date >= fromDate {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r events) Update(_ context.Context, e model.Event) (model.Event, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	cur, ok := r.db.t.events[e.ID]
	if !ok {
		return model.Event{}, notFound("event")
	}
	e.CreatedAt = cur.CreatedAt
	e.CreatedBy = cur.CreatedBy
	e.Attendees = nil
	r.db.t.events[e.ID] = e
	return e, nil
}

func (r events) Delete(_ context.Context, id string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.events[id]; !ok {
		return notFound("event")
	}
	for _, a := range r.db.t.attendees {
		if a.EventID == id {
			return apperr.E(apperr.Conflict, "event still has attendees")
		}
	}
	delete(r.db.t.events, id)
	return nil
}

func (r events) Attendees(_ context.Context, eventIDs ...string) ([]model.EventAttendee, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	want := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = true
	}
	var res []model.EventAttendee
	for _, a := range r.db.t.attendees {
		if want[a.EventID] {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RegisteredAt.Before(res[j].RegisteredAt) })
	return res, nil
}

func matchesAttendee(a model.EventAttendee, eventID, studentID, email string) bool {
	if a.EventID != eventID {
		return false
	}
	return (studentID != "" && a.StudentID == studentID) ||
		(email != "" && strings.EqualFold(a.Email, email))
}

func (r events) FindAttendee(_ context.Context, eventID, studentID, email string) (model.EventAttendee, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, a := range r.db.t.attendees {
		if matchesAttendee(a, eventID, studentID, email) {
			return a, nil
		}
	}
	return model.EventAttendee{}, notFound("attendee")
}

func (r events) AddAttendee(_ context.Context, a model.EventAttendee) (model.EventAttendee, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.events[a.EventID]; !ok {
		return model.EventAttendee{}, apperr.E(apperr.NotFound, "referenced record not found")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.RegisteredAt = time.Now().UTC()
	r.db.t.attendees[a.ID] = a
	return a, nil
}

func (r events) RemoveAttendee(_ context.Context, eventID, studentID, email string) (int64, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	var n int64
	for id, a := range r.db.t.attendees {
		if matchesAttendee(a, eventID, studentID, email) {
			delete(r.db.t.attendees, id)
			n++
		}
	}
	return n, nil
}

func (r events) DeleteAttendees(_ context.Context, eventID string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	for id, a := range r.db.t.attendees {
		if a.EventID == eventID {
			delete(r.db.t.attendees, id)
		}
	}
	return nil
}

type announcements struct{ db *db }

func (r announcements) List(_ context.Context) ([]model.Announcement, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	res := make([]model.Announcement, 0, len(r.db.t.announcements))
	for _, a := range r.db.t.announcements {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.After(res[j].Date) })
	return res, nil
}

func (r announcements) Create(_ context.Context, a model.Announcement) (model.Announcement, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.db.t.announcements[a.ID] = a
	return a, nil
}

func (r announcements) Delete(_ context.Context, id string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.announcements[id]; !ok {
		return notFound("announcement")
	}
	delete(r.db.t.announcements, id)
	return nil
}
