package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
)

type students struct{ db *db }

func (r students) Get(_ context.Context, sNumber string) (model.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.t.students[sNumber]
	if !ok {
		return model.Student{}, notFound("student")
	}
	return s, nil
}

func (r students) Lock(ctx context.Context, sNumber string) (model.Student, error) {
	return r.Get(ctx, sNumber)
}

func (r students) Create(_ context.Context, s model.Student) (model.Student, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.students[s.SNumber]; ok {
		return model.Student{}, apperr.E(apperr.Duplicate, "student already exists")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Role == "" {
		s.Role = model.RoleStudent
	}
	s.TotalHours = s.VolunteeringHours + s.SocialHours
	s.CreatedAt = time.Now().UTC()
	r.db.t.students[s.SNumber] = s
	return s, nil
}

func (r students) sorted(keep func(model.Student) bool, limit int) []model.Student {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var res []model.Student
	for _, s := range r.db.t.students {
		if keep(s) {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (r students) Search(_ context.Context, term string, limit int) ([]model.Student, error) {
	return r.sorted(func(s model.Student) bool {
		return contains(s.SNumber, term) || contains(s.Name, term)
	}, limit), nil
}

func (r students) ListWithAccounts(_ context.Context, limit int) ([]model.Student, error) {
	return r.sorted(func(s model.Student) bool {
		_, ok := r.db.t.credentials[s.SNumber]
		return ok
	}, limit), nil
}

func (r students) update(sNumber string, fn func(*model.Student)) (model.Student, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	s, ok := r.db.t.students[sNumber]
	if !ok {
		return model.Student{}, notFound("student")
	}
	fn(&s)
	r.db.t.students[sNumber] = s
	return s, nil
}

func (r students) SetBalance(_ context.Context, sNumber string, volunteering, social float64, at time.Time) (model.Student, error) {
	return r.update(sNumber, func(s *model.Student) {
		s.VolunteeringHours = volunteering
		s.SocialHours = social
		s.TotalHours = volunteering + social
		s.LastHourUpdate = &at
	})
}

func (r students) Activate(_ context.Context, sNumber, name, tshirtSize string, at time.Time) error {
	_, err := r.update(sNumber, func(s *model.Student) {
		s.AccountStatus = "active"
		s.AccountCreated = &at
		if name != "" {
			s.Name = name
		}
		if tshirtSize != "" {
			s.TshirtSize = tshirtSize
		}
	})
	return err
}

func (r students) TouchLogin(_ context.Context, sNumber string, at time.Time) error {
	_, err := r.update(sNumber, func(s *model.Student) { s.LastLogin = &at })
	return err
}

func (r students) SetTshirtSize(_ context.Context, sNumber, size string) error {
	_, err := r.update(sNumber, func(s *model.Student) { s.TshirtSize = size })
	return err
}

type credentials struct{ db *db }

func (r credentials) Get(_ context.Context, sNumber string) (model.Credential, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.t.credentials[sNumber]
	if !ok {
		return model.Credential{}, notFound("account")
	}
	return c, nil
}

func (r credentials) Create(_ context.Context, c model.Credential) (model.Credential, error) {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	if _, ok := r.db.t.students[c.SNumber]; !ok {
		return model.Credential{}, apperr.E(apperr.NotFound, "referenced record not found")
	}
	if _, ok := r.db.t.credentials[c.SNumber]; ok {
		return model.Credential{}, apperr.E(apperr.Duplicate, "account already exists")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	r.db.t.credentials[c.SNumber] = c
	return c, nil
}

func (r credentials) SetHash(_ context.Context, sNumber, hash string) error {
	r.db.lockWrite()
	defer r.db.unlockWrite()
	c, ok := r.db.t.credentials[sNumber]
	if !ok {
		return notFound("account")
	}
	c.PasswordHash = hash
	r.db.t.credentials[sNumber] = c
	return nil
}
