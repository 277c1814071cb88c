// Package model holds the club's persisted entities.
package model

import (
	"strings"
	"time"
)

// Bucket is one of the two independent hour balances a student carries.
type Bucket string

const (
	Volunteering Bucket = "volunteering"
	Social       Bucket = "social"
)

// ParseBucket accepts the stored spellings of a bucket. Empty values are
// legacy rows and count as volunteering.
func ParseBucket(s string) (Bucket, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "volunteering":
		return Volunteering, true
	case "social":
		return Social, true
	}
	return "", false
}

// Label is the wording used in audit rows.
func (b Bucket) Label() string {
	if b == Social {
		return "social credits"
	}
	return "volunteering hours"
}

// Status of an hour request.
type Status string

const (
	Pending  Status = "pending"
	Approved Status = "approved"
	Rejected Status = "rejected"
)

// SessionType records which part of a meeting a student attended.
type SessionType string

const (
	Morning   SessionType = "morning"
	Afternoon SessionType = "afternoon"
	Both      SessionType = "both"
)

// ParseSessionType defaults empty input to Both.
func ParseSessionType(s string) (SessionType, bool) {
	switch SessionType(strings.ToLower(strings.TrimSpace(s))) {
	case "", Both:
		return Both, true
	case Morning:
		return Morning, true
	case Afternoon:
		return Afternoon, true
	}
	return "", false
}

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Student is a club member and the owner of both hour balances.
type Student struct {
	ID                string     `json:"id"`
	SNumber           string     `json:"s_number"`
	Name              string     `json:"name"`
	Email             string     `json:"email,omitempty"`
	Role              string     `json:"role"`
	VolunteeringHours float64    `json:"volunteering_hours"`
	SocialHours       float64    `json:"social_hours"`
	TotalHours        float64    `json:"total_hours"`
	TshirtSize        string     `json:"tshirt_size,omitempty"`
	AccountStatus     string     `json:"account_status,omitempty"`
	AccountCreated    *time.Time `json:"account_created,omitempty"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	LastHourUpdate    *time.Time `json:"last_hour_update,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IsAdmin reports whether the student holds the admin role.
func (s Student) IsAdmin() bool { return s.Role == RoleAdmin }

// Hours returns the balance of one bucket.
func (s Student) Hours(b Bucket) float64 {
	if b == Social {
		return s.SocialHours
	}
	return s.VolunteeringHours
}

// Credential is the auth_users row of a student.
type Credential struct {
	ID           string    `json:"id"`
	SNumber      string    `json:"s_number"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HourRequest is a student's claim for hours, or a synthesized audit row.
type HourRequest struct {
	ID             string     `json:"id"`
	StudentSNumber string     `json:"student_s_number"`
	StudentName    string     `json:"student_name"`
	EventName      string     `json:"event_name"`
	EventDate      string     `json:"event_date"`
	HoursRequested float64    `json:"hours_requested"`
	Description    string     `json:"description"`
	Type           Bucket     `json:"type"`
	Status         Status     `json:"status"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy     string     `json:"reviewed_by,omitempty"`
	AdminNotes     string     `json:"admin_notes,omitempty"`
	ImageName      string     `json:"image_name,omitempty"`
	// HoursCredited is what approval added to the balance. Nil on rows
	// approved before it was recorded and on audit rows.
	HoursCredited *float64 `json:"hours_credited,omitempty"`
}

// Bucket resolves the request type, treating legacy empty values as volunteering.
func (r HourRequest) Bucket() Bucket {
	b, ok := ParseBucket(string(r.Type))
	if !ok {
		return Volunteering
	}
	return b
}

// Meeting is a club meeting students check into with a code.
type Meeting struct {
	ID             string    `json:"id"`
	MeetingDate    string    `json:"meeting_date"`
	MeetingType    string    `json:"meeting_type"`
	Description    string    `json:"description,omitempty"`
	AttendanceCode string    `json:"attendance_code"`
	IsOpen         bool      `json:"is_open"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Attendance is a student's check-in to a meeting.
type Attendance struct {
	ID             string      `json:"id"`
	StudentSNumber string      `json:"student_s_number"`
	MeetingID      string      `json:"meeting_id"`
	AttendanceCode string      `json:"attendance_code"`
	SessionType    SessionType `json:"session_type"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	Meeting        *Meeting    `json:"meeting,omitempty"`
}

// Event is a scheduled club activity students sign up for.
type Event struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time,omitempty"`
	EndTime     string          `json:"end_time,omitempty"`
	Capacity    int             `json:"capacity"`
	Color       string          `json:"color"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Attendees   []EventAttendee `json:"attendees"`
}

// EventAttendee is a signup for an event.
type EventAttendee struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	StudentID    string    `json:"student_id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Announcement is a message posted by an officer.
type Announcement struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	CreatedBy     string    `json:"created_by"`
	Date          time.Time `json:"date"`
	ImageURL      string    `json:"image_url,omitempty"`
	ImageFilename string    `json:"image_filename,omitempty"`
}
