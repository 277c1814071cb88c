// Package hours runs the hour-request lifecycle: submission, review, deletion
// with balance compensation, and the manual adjustments admins make to
// student balances.
package hours

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clubhours/internal/apperr"
	"clubhours/internal/guard"
	"clubhours/internal/metrics"
	"clubhours/internal/model"
	"clubhours/internal/photo"
	"clubhours/internal/queue"
	"clubhours/internal/store"
	"clubhours/internal/validate"
)

const (
	maxPage           = 100
	defaultSearchPage = 50
)

// Publisher hands background jobs to the worker.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service coordinates hour requests and student balances.
type Service struct {
	store  store.Store
	photos *photo.Keeper
	jobs   Publisher
	guard  *guard.InFlight
	log    *logrus.Entry
	now    func() time.Time
}

// NewService wires the service. jobs and g may be nil.
func NewService(st store.Store, photos *photo.Keeper, jobs Publisher, g *guard.InFlight, log *logrus.Entry) *Service {
	if photos == nil {
		photos = photo.NewKeeper(nil, "", log)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:  st,
		photos: photos,
		jobs:   jobs,
		guard:  g,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) validate(v any) error {
	return validate.Struct(v)
}

func normalizeSNumber(sNumber string) string {
	return strings.ToLower(strings.TrimSpace(sNumber))
}

// Submission is a student's claim for hours.
type Submission struct {
	StudentSNumber string  `json:"student_s_number" validate:"required"`
	StudentName    string  `json:"student_name"`
	EventName      string  `json:"event_name" validate:"required,max=200"`
	EventDate      string  `json:"event_date" validate:"required,datetime=2006-01-02"`
	Hours          float64 `json:"hours" validate:"gt=0,lte=24"`
	Description    string  `json:"description" validate:"max=4000"`
	Type           string  `json:"type"`
	ImageData      string  `json:"image_data,omitempty"`
}

// Submit stores a new pending request. An attached photo is embedded in the
// description and copied to blob storage when possible.
func (s *Service) Submit(ctx context.Context, sub Submission) (model.HourRequest, error) {
	if err := s.validate(sub); err != nil {
		return model.HourRequest{}, err
	}
	bucket, ok := model.ParseBucket(sub.Type)
	if !ok {
		return model.HourRequest{}, apperr.E(apperr.InvalidInput, "type must be volunteering or social")
	}
	sNumber := normalizeSNumber(sub.StudentSNumber)
	st, err := s.store.Students().Get(ctx, sNumber)
	if err != nil {
		return model.HourRequest{}, err
	}
	name := strings.TrimSpace(sub.StudentName)
	if name == "" {
		name = st.Name
	}

	desc, imageName := s.photos.Attach(ctx, sub.Description, sub.ImageData, sNumber, sub.EventName)
	req, err := s.store.HourRequests().Insert(ctx, model.HourRequest{
		StudentSNumber: sNumber,
		StudentName:    name,
		EventName:      strings.TrimSpace(sub.EventName),
		EventDate:      sub.EventDate,
		HoursRequested: sub.Hours,
		Description:    desc,
		Type:           bucket,
		Status:         model.Pending,
		SubmittedAt:    s.now(),
		ImageName:      imageName,
	})
	if err != nil {
		return model.HourRequest{}, err
	}
	metrics.HourRequests.WithLabelValues("submitted").Inc()
	s.log.WithFields(logrus.Fields{"request": req.ID, "student": sNumber, "hours": sub.Hours}).Info("hour request submitted")
	return req, nil
}

func clampPage(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxPage {
		return maxPage
	}
	return limit
}

// ListPending returns pending requests oldest first. Pass the SubmittedAt of
// the last item seen as after to fetch the next page.
func (s *Service) ListPending(ctx context.Context, after time.Time, limit int) ([]model.HourRequest, error) {
	return s.store.HourRequests().List(ctx, store.HourFilter{
		Status:         model.Pending,
		SubmittedAfter: after,
		Limit:          clampPage(limit, maxPage),
	})
}

// ParseStatus reads a status filter. "all" disables filtering and empty
// means pending.
func ParseStatus(s string) (model.Status, error) {
	switch st := model.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return model.Pending, nil
	case "all":
		return "", nil
	case model.Pending, model.Approved, model.Rejected:
		return st, nil
	}
	return "", apperr.E(apperr.InvalidInput, "status must be pending, approved, rejected or all")
}

// Search matches term against student name, S-number, event name and
// description.
func (s *Service) Search(ctx context.Context, term, status string, limit int) ([]model.HourRequest, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.store.HourRequests().List(ctx, store.HourFilter{
		Status:      st,
		Search:      strings.TrimSpace(term),
		NewestFirst: st != model.Pending,
		Limit:       clampPage(limit, defaultSearchPage),
	})
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (model.HourRequest, error) {
	return s.store.HourRequests().Get(ctx, id)
}

// StudentHistory returns every request of a student, newest first.
func (s *Service) StudentHistory(ctx context.Context, sNumber string) ([]model.HourRequest, error) {
	return s.store.HourRequests().List(ctx, store.HourFilter{
		StudentSNumber: normalizeSNumber(sNumber),
		NewestFirst:    true,
	})
}

// Decision is an admin's verdict on a pending request.
type Decision struct {
	Status   string   `json:"status" validate:"required,oneof=approved rejected"`
	Notes    string   `json:"admin_notes" validate:"max=1000"`
	Reviewer string   `json:"-"`
	Hours    *float64 `json:"hours,omitempty"`
}

// Review approves or rejects a pending request. Approval credits the
// request's bucket with Hours (or the requested amount) in the same
// transaction as the status change.
func (s *Service) Review(ctx context.Context, id string, d Decision) (model.HourRequest, error) {
	if err := s.validate(d); err != nil {
		return model.HourRequest{}, err
	}
	release, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return model.HourRequest{}, err
	}
	defer release()

	status := model.Status(d.Status)
	reviewer := d.Reviewer
	if reviewer == "" {
		reviewer = defaultAdmin
	}
	log := s.log.WithField("request", id)

	var (
		out      model.HourRequest
		credited float64
	)
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		req, err := tx.HourRequests().Lock(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.Pending {
			return apperr.E(apperr.InvalidInput, "request has already been "+string(req.Status))
		}
		at := s.now()
		if out, err = tx.HourRequests().SetReview(ctx, id, status, at, reviewer, d.Notes); err != nil {
			return err
		}
		if status != model.Approved {
			return nil
		}

		amount := req.HoursRequested
		if d.Hours != nil {
			amount = *d.Hours
		}
		if amount <= 0 {
			log.WithField("hours", amount).Warn("approved without crediting: non-positive hours")
			out.HoursCredited = &credited
			return tx.HourRequests().SetCredited(ctx, id, 0)
		}
		st, err := tx.Students().Lock(ctx, req.StudentSNumber)
		if err != nil {
			return err
		}
		v, soc := st.VolunteeringHours, st.SocialHours
		if req.Bucket() == model.Social {
			soc += amount
		} else {
			v += amount
		}
		if _, err := tx.Students().SetBalance(ctx, st.SNumber, v, soc, at); err != nil {
			return err
		}
		if err := tx.HourRequests().SetCredited(ctx, id, amount); err != nil {
			return err
		}
		credited = amount
		out.HoursCredited = &credited
		return nil
	})
	if err != nil {
		return model.HourRequest{}, err
	}

	metrics.HourRequests.WithLabelValues(string(status)).Inc()
	if credited > 0 {
		metrics.HoursCredited.WithLabelValues(string(out.Bucket())).Add(credited)
	}
	log.WithFields(logrus.Fields{"status": status, "credited": credited}).Info("hour request reviewed")

	if status == model.Approved && photo.HasPhoto(out.Description) {
		s.enqueueMirror(out.ID)
	}
	return out, nil
}

// publishTimeout bounds the mirror enqueue after a review has committed.
const publishTimeout = 2 * time.Second

// enqueueMirror hands the request to the worker. The review is already
// committed, so the caller's context is not used and failures are only logged.
func (s *Service) enqueueMirror(id string) {
	if s.jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := s.jobs.Publish(ctx, queue.Message{Type: queue.TypeProofMirror, Body: id, EnqueuedAt: s.now()})
	metrics.QueueMessages.WithLabelValues(queue.TypeProofMirror+"_publish", metrics.Result(err)).Inc()
	if err != nil {
		s.log.WithError(err).WithField("request", id).Warn("could not enqueue proof mirror")
	}
}

// Delete removes a request. Deleting an approved request reverses its effect
// on the student's balance: credits are subtracted (never below zero) and
// recorded removals are added back.
func (s *Service) Delete(ctx context.Context, id string) error {
	release, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		req, err := tx.HourRequests().Lock(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == model.Approved && creditedHours(req) > 0 && req.StudentSNumber != "" {
			if err := s.compensate(ctx, tx, req); err != nil {
				return err
			}
		}
		return tx.HourRequests().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	metrics.HourRequests.WithLabelValues("deleted").Inc()
	s.log.WithField("request", id).Info("hour request deleted")
	return nil
}

func (s *Service) compensate(ctx context.Context, tx store.Store, req model.HourRequest) error {
	st, err := tx.Students().Lock(ctx, req.StudentSNumber)
	if apperr.KindOf(err) == apperr.NotFound {
		s.log.WithField("request", req.ID).Warn("student gone, deleting without compensation")
		return nil
	}
	if err != nil {
		return err
	}
	amount := creditedHours(req)
	delta := -amount
	if wasRemoval(req) {
		delta = amount
	}
	v, soc := st.VolunteeringHours, st.SocialHours
	if req.Bucket() == model.Social {
		soc = max(0, soc+delta)
	} else {
		v = max(0, v+delta)
	}
	_, err = tx.Students().SetBalance(ctx, st.SNumber, v, soc, s.now())
	return err
}

// creditedHours is what an approved request added to the balance. Rows
// without a recorded credit fall back to the requested amount.
func creditedHours(req model.HourRequest) float64 {
	if req.HoursCredited != nil {
		return *req.HoursCredited
	}
	return req.HoursRequested
}

// ChangeType moves a request to another bucket. Balances are untouched.
func (s *Service) ChangeType(ctx context.Context, id, bucket string) (model.HourRequest, error) {
	b, ok := model.ParseBucket(bucket)
	if !ok || strings.TrimSpace(bucket) == "" {
		return model.HourRequest{}, apperr.E(apperr.InvalidInput, "type must be volunteering or social")
	}
	return s.store.HourRequests().SetType(ctx, id, b)
}

// ChangeHours edits the requested amount. Balances are untouched.
func (s *Service) ChangeHours(ctx context.Context, id string, amount float64) (model.HourRequest, error) {
	if amount <= 0 {
		return model.HourRequest{}, apperr.E(apperr.InvalidInput, "hours must be greater than 0")
	}
	return s.store.HourRequests().SetHours(ctx, id, amount)
}
