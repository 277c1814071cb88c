// Package announcements stores officer announcements.
package announcements

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clubhours/internal/model"
	"clubhours/internal/store"
	"clubhours/internal/validate"
)

// Service manages announcements.
type Service struct {
	repo store.Announcements
	log  *logrus.Entry
	now  func() time.Time
}

// NewService creates a service over the announcements repository.
func NewService(repo store.Announcements, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{repo: repo, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Input is a new announcement.
type Input struct {
	Title         string `json:"title" validate:"required,max=200"`
	Message       string `json:"message" validate:"required,max=5000"`
	ImageURL      string `json:"image_url" validate:"omitempty,url"`
	ImageFilename string `json:"image_filename" validate:"max=200"`
}

// List returns announcements, newest first.
func (s *Service) List(ctx context.Context) ([]model.Announcement, error) {
	out, err := s.repo.List(ctx)
	if out == nil && err == nil {
		out = []model.Announcement{}
	}
	return out, err
}

// Create posts an announcement.
func (s *Service) Create(ctx context.Context, in Input, createdBy string) (model.Announcement, error) {
	if err := validate.Struct(in); err != nil {
		return model.Announcement{}, err
	}
	a, err := s.repo.Create(ctx, model.Announcement{
		Title:         strings.TrimSpace(in.Title),
		Message:       in.Message,
		CreatedBy:     createdBy,
		Date:          s.now(),
		ImageURL:      in.ImageURL,
		ImageFilename: in.ImageFilename,
	})
	if err != nil {
		return model.Announcement{}, err
	}
	s.log.WithField("announcement", a.ID).Info("announcement posted")
	return a, nil
}

// Delete removes an announcement.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
