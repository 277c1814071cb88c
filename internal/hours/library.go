package hours

import (
	"context"
	"strings"
	"time"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
	"clubhours/internal/photo"
	"clubhours/internal/store"
)

const (
	libraryWindowMonths = 6
	libraryLimit        = 150
)

// LibraryFilter narrows the proof photo library. Zero values match all.
type LibraryFilter struct {
	Status string
	Search string
	From   time.Time
	To     time.Time
}

// LibraryItem is one proof photo with the request it belongs to.
type LibraryItem struct {
	ID             string       `json:"id"`
	StudentName    string       `json:"student_name"`
	StudentNumber  string       `json:"student_number"`
	EventName      string       `json:"event_name"`
	EventDate      string       `json:"event_date"`
	Status         model.Status `json:"status"`
	SubmittedAt    time.Time    `json:"submitted_at"`
	ReviewedAt     *time.Time   `json:"reviewed_at,omitempty"`
	HoursRequested float64      `json:"hours_requested"`
	Notes          string       `json:"notes"`
	FileName       string       `json:"file_name"`
	MimeType       string       `json:"mime_type"`
	DataURL        string       `json:"data_url"`
}

// PhotoLibrary lists inline proof photos from the last six months, newest
// first.
func (s *Service) PhotoLibrary(ctx context.Context, f LibraryFilter) ([]LibraryItem, error) {
	status := model.Status("")
	if f.Status != "" {
		st, err := ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}
	reqs, err := s.store.HourRequests().List(ctx, store.HourFilter{
		Status:         status,
		SubmittedAfter: s.now().AddDate(0, -libraryWindowMonths, 0),
		NewestFirst:    true,
		Limit:          libraryLimit,
	})
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(f.Search))
	items := make([]LibraryItem, 0, len(reqs))
	for _, r := range reqs {
		if !f.From.IsZero() && r.SubmittedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && r.SubmittedAt.After(f.To) {
			continue
		}
		if term != "" && !matchesAny(term, r.StudentName, r.StudentSNumber, r.EventName, r.EventDate, string(r.Status)) {
			continue
		}
		p, ok := photo.Extract(r.Description, photo.DefaultMinRun)
		if !ok {
			continue
		}
		items = append(items, LibraryItem{
			ID:             r.ID,
			StudentName:    r.StudentName,
			StudentNumber:  r.StudentSNumber,
			EventName:      r.EventName,
			EventDate:      r.EventDate,
			Status:         r.Status,
			SubmittedAt:    r.SubmittedAt,
			ReviewedAt:     r.ReviewedAt,
			HoursRequested: r.HoursRequested,
			Notes:          photo.CleanDescription(r.Description),
			FileName:       libraryFileName(r, p.MimeType),
			MimeType:       p.MimeType,
			DataURL:        p.DataURL(),
		})
	}
	return items, nil
}

func matchesAny(term string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func libraryFileName(r model.HourRequest, mimeType string) string {
	if r.ImageName != "" {
		return r.ImageName
	}
	who := r.StudentName
	if who == "" {
		who = r.StudentSNumber
	}
	if who == "" {
		who = "student"
	}
	event := r.EventName
	if event == "" {
		event = "event"
	}
	return photo.FileName([]string{who, event, r.ID}, mimeType)
}

// Photo returns the attachment of a request. A request without one is
// reported as NotFound.
func (s *Service) Photo(ctx context.Context, id string) (model.HourRequest, photo.Attachment, error) {
	req, err := s.store.HourRequests().Get(ctx, id)
	if err != nil {
		return model.HourRequest{}, photo.Attachment{}, err
	}
	att := photo.FromDescription(req.Description)
	if att.Kind() == photo.None {
		return req, att, apperr.E(apperr.NotFound, "request has no proof photo")
	}
	return req, att, nil
}
