// Package store persists the club's entities. The Postgres implementation
// lives here; internal/store/memory provides an in-process one for tests and
// local development.
package store

import (
	"context"
	"time"

	"clubhours/internal/model"
)

// Store groups the repositories and runs multi-step writes atomically.
type Store interface {
	Students() Students
	Credentials() Credentials
	HourRequests() HourRequests
	Meetings() Meetings
	Attendance() Attendance
	Events() Events
	Announcements() Announcements

	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Students persists member rows and their balances.
type Students interface {
	Get(ctx context.Context, sNumber string) (model.Student, error)
	// Lock reads a student and holds a row lock until the transaction ends.
	Lock(ctx context.Context, sNumber string) (model.Student, error)
	Create(ctx context.Context, s model.Student) (model.Student, error)
	Search(ctx context.Context, term string, limit int) ([]model.Student, error)
	ListWithAccounts(ctx context.Context, limit int) ([]model.Student, error)
	// SetBalance writes both buckets and keeps total_hours equal to their sum.
	SetBalance(ctx context.Context, sNumber string, volunteering, social float64, at time.Time) (model.Student, error)
	Activate(ctx context.Context, sNumber, name, tshirtSize string, at time.Time) error
	TouchLogin(ctx context.Context, sNumber string, at time.Time) error
	SetTshirtSize(ctx context.Context, sNumber, size string) error
}

// Credentials persists password hashes.
type Credentials interface {
	Get(ctx context.Context, sNumber string) (model.Credential, error)
	Create(ctx context.Context, c model.Credential) (model.Credential, error)
	SetHash(ctx context.Context, sNumber, hash string) error
}

// HourFilter narrows HourRequests.List. Zero values disable a clause.
type HourFilter struct {
	Status         model.Status
	StudentSNumber string
	// Search matches student name, S-number, event name and description
	// case-insensitively.
	Search string
	// DescriptionContains is an exact substring match on the description.
	DescriptionContains string
	// DescriptionLacks excludes descriptions containing the substring.
	DescriptionLacks string
	SubmittedAfter   time.Time
	// AfterID breaks submitted_at ties when paging with SubmittedAfter.
	AfterID     string
	EventFrom   string
	EventTo     string
	NewestFirst bool
	Limit       int
}

// HourRequests persists hour requests and audit rows.
type HourRequests interface {
	Insert(ctx context.Context, r model.HourRequest) (model.HourRequest, error)
	Get(ctx context.Context, id string) (model.HourRequest, error)
	Lock(ctx context.Context, id string) (model.HourRequest, error)
	List(ctx context.Context, f HourFilter) ([]model.HourRequest, error)
	SetReview(ctx context.Context, id string, status model.Status, at time.Time, reviewedBy, notes string) (model.HourRequest, error)
	SetType(ctx context.Context, id string, b model.Bucket) (model.HourRequest, error)
	SetHours(ctx context.Context, id string, hours float64) (model.HourRequest, error)
	SetPhoto(ctx context.Context, id, description, imageName string) error
	// SetCredited records the amount an approval added to the balance.
	SetCredited(ctx context.Context, id string, hours float64) error
	Delete(ctx context.Context, id string) error
}

// Meetings persists meetings.
type Meetings interface {
	Create(ctx context.Context, m model.Meeting) (model.Meeting, error)
	Get(ctx context.Context, id string) (model.Meeting, error)
	FindByDate(ctx context.Context, date string) (model.Meeting, error)
	List(ctx context.Context) ([]model.Meeting, error)
	SetOpen(ctx context.Context, id string, open bool) (model.Meeting, error)
	SetCode(ctx context.Context, id, code string) (model.Meeting, error)
	Delete(ctx context.Context, id string) error
}

// Attendance persists meeting check-ins. Insert reports apperr.Duplicate when
// the (meeting, student) pair already exists.
type Attendance interface {
	Find(ctx context.Context, meetingID, sNumber string) (model.Attendance, error)
	Insert(ctx context.Context, a model.Attendance) (model.Attendance, error)
	ListByStudent(ctx context.Context, sNumber string) ([]model.Attendance, error)
	ListByMeeting(ctx context.Context, meetingID string) ([]model.Attendance, error)
	Delete(ctx context.Context, id string) error
	DeleteByMeeting(ctx context.Context, meetingID string) (int64, error)
}

// Events persists events and their signups.
type Events interface {
	Create(ctx context.Context, e model.Event) (model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	Lock(ctx context.Context, id string) (model.Event, error)
	List(ctx context.Context, fromDate string, limit int) ([]model.Event, error)
	Update(ctx context.Context, e model.Event) (model.Event, error)
	Delete(ctx context.Context, id string) error

	Attendees(ctx context.Context, eventIDs ...string) ([]model.EventAttendee, error)
	FindAttendee(ctx context.Context, eventID, studentID, email string) (model.EventAttendee, error)
	AddAttendee(ctx context.Context, a model.EventAttendee) (model.EventAttendee, error)
	RemoveAttendee(ctx context.Context, eventID, studentID, email string) (int64, error)
	DeleteAttendees(ctx context.Context, eventID string) error
}

// Announcements persists announcements.
type Announcements interface {
	List(ctx context.Context) ([]model.Announcement, error)
	Create(ctx context.Context, a model.Announcement) (model.Announcement, error)
	Delete(ctx context.Context, id string) error
}
