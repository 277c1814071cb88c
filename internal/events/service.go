// Package events manages club events and their signups.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
	"clubhours/internal/store"
	"clubhours/internal/validate"
)

const (
	defaultColor = "#4287f5"
	listLimit    = 100
)

// Service coordinates events and attendees.
type Service struct {
	store store.Store
	log   *logrus.Entry
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(st store.Store, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: st, log: log, now: time.Now}
}

// Input is the editable part of an event.
type Input struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Location    string `json:"location" validate:"max=200"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"max=20"`
	EndTime     string `json:"end_time" validate:"max=20"`
	Capacity    int    `json:"capacity" validate:"gte=1,lte=10000"`
	Color       string `json:"color" validate:"max=20"`
}

func (in Input) event() model.Event {
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = defaultColor
	}
	return model.Event{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Location:    in.Location,
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Capacity:    in.Capacity,
		Color:       color,
	}
}

// Create adds an event.
func (s *Service) Create(ctx context.Context, in Input, createdBy string) (model.Event, error) {
	if err := validate.Struct(in); err != nil {
		return model.Event{}, err
	}
	e := in.event()
	e.CreatedBy = createdBy
	if e.CreatedBy == "" {
		e.CreatedBy = "admin"
	}
	out, err := s.store.Events().Create(ctx, e)
	if err != nil {
		return model.Event{}, err
	}
	out.Attendees = []model.EventAttendee{}
	s.log.WithField("event", out.ID).Info("event created")
	return out, nil
}

// Update replaces an event's details. Signups are kept.
func (s *Service) Update(ctx context.Context, id string, in Input) (model.Event, error) {
	if err := validate.Struct(in); err != nil {
		return model.Event{}, err
	}
	e := in.event()
	e.ID = id
	if _, err := s.store.Events().Update(ctx, e); err != nil {
		return model.Event{}, err
	}
	return s.Get(ctx, id)
}

// Get returns an event with its attendees.
func (s *Service) Get(ctx context.Context, id string) (model.Event, error) {
	e, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	attendees, err := s.store.Events().Attendees(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	e.Attendees = nonNil(attendees)
	return e, nil
}

// List returns events from the past year onwards, by date, with attendees.
func (s *Service) List(ctx context.Context) ([]model.Event, error) {
	from := s.now().AddDate(-1, 0, 0).Format("2006-01-02")
	evts, err := s.store.Events().List(ctx, from, listLimit)
	if err != nil || len(evts) == 0 {
		return []model.Event{}, err
	}
	ids := make([]string, len(evts))
	byID := make(map[string]int, len(evts))
	for i, e := range evts {
		ids[i] = e.ID
		byID[e.ID] = i
		evts[i].Attendees = []model.EventAttendee{}
	}
	attendees, err := s.store.Events().Attendees(ctx, ids...)
	if err != nil {
		s.log.WithError(err).Warn("listing events without attendees")
		return evts, nil
	}
	for _, a := range attendees {
		if i, ok := byID[a.EventID]; ok {
			evts[i].Attendees = append(evts[i].Attendees, a)
		}
	}
	return evts, nil
}

func nonNil(a []model.EventAttendee) []model.EventAttendee {
	if a == nil {
		return []model.EventAttendee{}
	}
	return a
}

// SignupInput registers someone for an event.
type SignupInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=200"`
	SNumber string `json:"s_number"`
}

// studentID resolves the account id a signup is linked to, if any.
func (s *Service) studentID(ctx context.Context, sNumber string) (string, error) {
	sNumber = strings.ToLower(strings.TrimSpace(sNumber))
	if sNumber == "" {
		return "", nil
	}
	cred, err := s.store.Credentials().Get(ctx, sNumber)
	if errors.Is(err, apperr.NotFound) {
		return "", nil
	}
	return cred.ID, err
}

// Signup adds someone to an event. It fails with AlreadyExists when the student
// or email is already on the list, NotFound for an unknown event and Full
// when the event is at capacity. Events with no capacity set never fill.
func (s *Service) Signup(ctx context.Context, eventID string, in SignupInput) (model.EventAttendee, error) {
	if err := validate.Struct(in); err != nil {
		return model.EventAttendee{}, err
	}
	studentID, err := s.studentID(ctx, in.SNumber)
	if err != nil {
		return model.EventAttendee{}, err
	}
	email := strings.TrimSpace(in.Email)

	var out model.EventAttendee
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		_, err := tx.Events().FindAttendee(ctx, eventID, studentID, email)
		if err == nil {
			return apperr.E(apperr.AlreadyExists, "you are already registered for this event")
		}
		if !errors.Is(err, apperr.NotFound) {
			return err
		}

		e, err := tx.Events().Lock(ctx, eventID)
		if err != nil {
			return err
		}
		if e.Capacity > 0 {
			current, err := tx.Events().Attendees(ctx, eventID)
			if err != nil {
				return err
			}
			if len(current) >= e.Capacity {
				return apperr.E(apperr.Full, "event is at full capacity")
			}
		}
		out, err = tx.Events().AddAttendee(ctx, model.EventAttendee{
			EventID:   eventID,
			StudentID: studentID,
			Name:      strings.TrimSpace(in.Name),
			Email:     email,
		})
		return err
	})
	if err != nil {
		return model.EventAttendee{}, err
	}
	s.log.WithField("event", eventID).Info("event signup")
	return out, nil
}

// Unregister removes a signup, matched by the student's account when an
// S-number resolves to one and by email otherwise.
func (s *Service) Unregister(ctx context.Context, eventID, email, sNumber string) error {
	studentID, err := s.studentID(ctx, sNumber)
	if err != nil {
		return err
	}
	if studentID != "" {
		email = ""
	}
	if studentID == "" && strings.TrimSpace(email) == "" {
		return apperr.E(apperr.InvalidInput, "email or S-number is required")
	}
	n, err := s.store.Events().RemoveAttendee(ctx, eventID, studentID, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.E(apperr.NotFound, "registration not found")
	}
	return nil
}

// Delete removes an event and its signups.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.Events().Lock(ctx, id); err != nil {
			return err
		}
		if err := tx.Events().DeleteAttendees(ctx, id); err != nil {
			return err
		}
		return tx.Events().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.WithField("event", id).Info("event deleted")
	return nil
}
