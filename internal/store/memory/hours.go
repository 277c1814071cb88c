package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
	"clubhours/internal/store"
)

type hours struct{ db *db }

func (r hours) Insert(_ context.Context, h model.HourRequest) (model.HourRequest, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.students[h.StudentSNumber]; !ok {
		return model.HourRequest{}, apperr.E(apperr.NotFound, "referenced record not found")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if _, ok := r.db.t.hours[h.ID]; ok {
		return model.HourRequest{}, apperr.E(apperr.Duplicate, "hour request already exists")
	}
	if h.SubmittedAt.IsZero() {
		h.SubmittedAt = time.Now().UTC()
	}
	if h.Status == "" {
		h.Status = model.Pending
	}
	r.db.t.hours[h.ID] = h
	return h, nil
}

func (r hours) Get(_ context.Context, id string) (model.HourRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	h, ok := r.db.t.hours[id]
	if !ok {
		return model.HourRequest{}, notFound("hour request")
	}
	return h, nil
}

func (r hours) Lock(ctx context.Context, id string) (model.HourRequest, error) {
	return r.Get(ctx, id)
}

func (r hours) List(_ context.Context, f store.HourFilter) ([]model.HourRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var res []model.HourRequest
	for _, h := range r.db.t.hours {
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		if f.StudentSNumber != "" && h.StudentSNumber != f.StudentSNumber {
			continue
		}
		if f.Search != "" && !contains(h.StudentName, f.Search) && !contains(h.StudentSNumber, f.Search) &&
			!contains(h.EventName, f.Search) && !contains(h.Description, f.Search) {
			continue
		}
		if f.DescriptionContains != "" && !strings.Contains(h.Description, f.DescriptionContains) {
			continue
		}
		if f.DescriptionLacks != "" && strings.Contains(h.Description, f.DescriptionLacks) {
			continue
		}
		if !f.SubmittedAfter.IsZero() && !after(h, f.SubmittedAfter, f.AfterID) {
			continue
		}
		if f.EventFrom != "" && h.EventDate < f.EventFrom {
			continue
		}
		if f.EventTo != "" && h.EventDate > f.EventTo {
			continue
		}
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if f.NewestFirst {
			a, b = b, a
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

// after reports whether h sorts past the (at, id) cursor. Without an id only
// the time counts.
func after(h model.HourRequest, at time.Time, id string) bool {
	if id == "" || !h.SubmittedAt.Equal(at) {
		return h.SubmittedAt.After(at)
	}
	return h.ID > id
}

func (r hours) update(id string, fn func(*model.HourRequest)) (model.HourRequest, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	h, ok := r.db.t.hours[id]
	if !ok {
		return model.HourRequest{}, notFound("hour request")
	}
	fn(&h)
	r.db.t.hours[id] = h
	return h, nil
}

func (r hours) SetReview(_ context.Context, id string, status model.Status, at time.Time, reviewedBy, notes string) (model.HourRequest, error) {
	return r.update(id, func(h *model.HourRequest) {
		h.Status = status
		h.ReviewedAt = &at
		h.ReviewedBy = reviewedBy
		h.AdminNotes = notes
	})
}

func (r hours) SetType(_ context.Context, id string, b model.Bucket) (model.HourRequest, error) {
	return r.update(id, func(h *model.HourRequest) { h.Type = b })
}

func (r hours) SetHours(_ context.Context, id string, amount float64) (model.HourRequest, error) {
	return r.update(id, func(h *model.HourRequest) { h.HoursRequested = amount })
}

func (r hours) SetPhoto(_ context.Context, id, description, imageName string) error {
	_, err := r.update(id, func(h *model.HourRequest) {
		h.Description = description
		h.ImageName = imageName
	})
	return err
}

func (r hours) SetCredited(_ context.Context, id string, amount float64) error {
	_, err := r.update(id, func(h *model.HourRequest) { h.HoursCredited = &amount })
	return err
}

func (r hours) Delete(_ context.Context, id string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.hours[id]; !ok {
		return notFound("hour request")
	}
	delete(r.db.t.hours, id)
	return nil
}
