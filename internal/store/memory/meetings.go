package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
)

type meetings struct{ db *db }

func (r meetings) Create(_ context.Context, m model.Meeting) (model.Meeting, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	r.db.t.meetings[m.ID] = m
	return m, nil
}

func (r meetings) Get(_ context.Context, id string) (model.Meeting, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	m, ok := r.db.t.meetings[id]
	if !ok {
		return model.Meeting{}, notFound("meeting")
	}
	return m, nil
}

func (r meetings) FindByDate(_ context.Context, date string) (model.Meeting, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var (
		found model.Meeting
		ok    bool
	)
	for _, m := range r.db.t.meetings {
		if m.MeetingDate == date && (!ok || m.CreatedAt.Before(found.CreatedAt)) {
			found, ok = m, true
		}
	}
	if !ok {
		return model.Meeting{}, notFound("meeting")
	}
	return found, nil
}

func (r meetings) List(_ context.Context) ([]model.Meeting, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	res := make([]model.Meeting, 0, len(r.db.t.meetings))
	for _, m := range r.db.t.meetings {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].MeetingDate != res[j].MeetingDate {
			return res[i].MeetingDate > res[j].MeetingDate
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (r meetings) update(id string, fn func(*model.Meeting)) (model.Meeting, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	m, ok := r.db.t.meetings[id]
	if !ok {
		return model.Meeting{}, notFound("meeting")
	}
	fn(&m)
	r.db.t.meetings[id] = m
	return m, nil
}

func (r meetings) SetOpen(_ context.Context, id string, open bool) (model.Meeting, error) {
	return r.update(id, func(m *model.Meeting) { m.IsOpen = open })
}

func (r meetings) SetCode(_ context.Context, id, code string) (model.Meeting, error) {
	return r.update(id, func(m *model.Meeting) { m.AttendanceCode = code })
}

func (r meetings) Delete(_ context.Context, id string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.meetings[id]; !ok {
		return notFound("meeting")
	}
	for _, a := range r.db.t.attendance {
		if a.MeetingID == id {
			return apperr.E(apperr.Conflict, "meeting still has attendance")
		}
	}
	delete(r.db.t.meetings, id)
	return nil
}

type attendance struct{ db *db }

func (r attendance) Find(_ context.Context, meetingID, sNumber string) (model.Attendance, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, a := range r.db.t.attendance {
		if a.MeetingID == meetingID && a.StudentSNumber == sNumber {
			return a, nil
		}
	}
	return model.Attendance{}, notFound("attendance")
}

func (r attendance) Insert(_ context.Context, a model.Attendance) (model.Attendance, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.meetings[a.MeetingID]; !ok {
		return model.Attendance{}, apperr.E(apperr.NotFound, "referenced record not found")
	}
	for _, existing := range r.db.t.attendance {
		if existing.MeetingID == a.MeetingID && existing.StudentSNumber == a.StudentSNumber {
			return model.Attendance{}, apperr.E(apperr.Duplicate, "attendance already exists")
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.SubmittedAt = time.Now().UTC()
	a.Meeting = nil
	r.db.t.attendance[a.ID] = a
	return a, nil
}

func (r attendance) ListByStudent(_ context.Context, sNumber string) ([]model.Attendance, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var res []model.Attendance
	for _, a := range r.db.t.attendance {
		if a.StudentSNumber != sNumber {
			continue
		}
		if m, ok := r.db.t.meetings[a.MeetingID]; ok {
			a.Meeting = &m
		}
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool {
		return meetingDate(res[i]) > meetingDate(res[j])
	})
	return res, nil
}

func meetingDate(a model.Attendance) string {
	if a.Meeting == nil {
		return ""
	}
	return a.Meeting.MeetingDate
}

func (r attendance) ListByMeeting(_ context.Context, meetingID string) ([]model.Attendance, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var res []model.Attendance
	for _, a := range r.db.t.attendance {
		if a.MeetingID == meetingID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SubmittedAt.Before(res[j].SubmittedAt) })
	return res, nil
}

func (r attendance) Delete(_ context.Context, id string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.attendance[id]; !ok {
		return notFound("attendance")
	}
	delete(r.db.t.attendance, id)
	return nil
}

func (r attendance) DeleteByMeeting(_ context.Context, meetingID string) (int64, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	var n int64
	for id, a := range r.db.t.attendance {
		if a.MeetingID == meetingID {
			delete(r.db.t.attendance, id)
			n++
		}
	}
	return n, nil
}
