// Package meetings manages club meetings and code-based check-ins.
package meetings

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clubhours/internal/apperr"
	"clubhours/internal/metrics"
	"clubhours/internal/model"
	"clubhours/internal/store"
	"clubhours/internal/validate"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	importedMeetingType = "General Meeting"
	importedMeetingCode = "ATTEND"
	importedCheckinCode = "IMPORTED"
)

// GenerateCode returns a random 6 character code over A-Z and 0-9.
func GenerateCode() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// Service coordinates meetings and attendance.
type Service struct {
	store store.Store
	log   *logrus.Entry
	codes func() (string, error)
}

// NewService creates a service backed by a store.
func NewService(st store.Store, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: st, log: log, codes: GenerateCode}
}

// NewMeeting describes a meeting to schedule.
type NewMeeting struct {
	MeetingDate string `json:"meeting_date" validate:"required,datetime=2006-01-02"`
	MeetingType string `json:"meeting_type" validate:"max=100"`
	Description string `json:"description" validate:"max=1000"`
	IsOpen      bool   `json:"is_open"`
	CreatedBy   string `json:"-"`
}

// Create schedules a meeting with a fresh attendance code.
func (s *Service) Create(ctx context.Context, in NewMeeting) (model.Meeting, error) {
	if err := validate.Struct(in); err != nil {
		return model.Meeting{}, err
	}
	code, err := s.codes()
	if err != nil {
		return model.Meeting{}, err
	}
	kind := strings.TrimSpace(in.MeetingType)
	if kind == "" {
		kind = importedMeetingType
	}
	m, err := s.store.Meetings().Create(ctx, model.Meeting{
		MeetingDate:    in.MeetingDate,
		MeetingType:    kind,
		Description:    in.Description,
		AttendanceCode: code,
		IsOpen:         in.IsOpen,
		CreatedBy:      in.CreatedBy,
	})
	if err != nil {
		return model.Meeting{}, err
	}
	s.log.WithField("meeting", m.ID).WithField("date", m.MeetingDate).Info("meeting created")
	return m, nil
}

// List returns every meeting, newest first.
func (s *Service) List(ctx context.Context) ([]model.Meeting, error) {
	return s.store.Meetings().List(ctx)
}

// Get returns one meeting.
func (s *Service) Get(ctx context.Context, id string) (model.Meeting, error) {
	return s.store.Meetings().Get(ctx, id)
}

// Checkin is a student's attendance submission.
type Checkin struct {
	MeetingID string `json:"meeting_id" validate:"required"`
	SNumber   string `json:"student_s_number" validate:"required"`
	Code      string `json:"attendance_code" validate:"required"`
	Session   string `json:"session_type"`
}

const duplicateCheckin = "you have already submitted attendance for this meeting"

// SubmitAttendance records a check-in. Failures are reported in a fixed
// order: unknown meeting, closed meeting, wrong code, then a second
// check-in by the same student. The code comparison is case-sensitive.
func (s *Service) SubmitAttendance(ctx context.Context, in Checkin) (model.Attendance, error) {
	a, err := s.submit(ctx, in)
	metrics.AttendanceSubmissions.WithLabelValues(outcome(err)).Inc()
	return a, err
}

func (s *Service) submit(ctx context.Context, in Checkin) (model.Attendance, error) {
	if err := validate.Struct(in); err != nil {
		return model.Attendance{}, err
	}
	session, ok := model.ParseSessionType(in.Session)
	if !ok {
		return model.Attendance{}, apperr.E(apperr.InvalidInput, "session_type must be morning, afternoon or both")
	}
	sNumber := strings.ToLower(strings.TrimSpace(in.SNumber))

	m, err := s.store.Meetings().Get(ctx, in.MeetingID)
	if err != nil {
		return model.Attendance{}, err
	}
	if !m.IsOpen {
		return model.Attendance{}, apperr.E(apperr.Closed, "attendance submission is closed for this meeting")
	}
	if m.AttendanceCode != in.Code {
		return model.Attendance{}, apperr.E(apperr.InvalidCode, "invalid attendance code")
	}

	_, err = s.store.Attendance().Find(ctx, m.ID, sNumber)
	switch {
	case err == nil:
		return model.Attendance{}, apperr.E(apperr.Duplicate, duplicateCheckin)
	case !errors.Is(err, apperr.NotFound):
		return model.Attendance{}, err
	}

	a, err := s.store.Attendance().Insert(ctx, model.Attendance{
		StudentSNumber: sNumber,
		MeetingID:      m.ID,
		AttendanceCode: in.Code,
		SessionType:    session,
	})
	if errors.Is(err, apperr.Duplicate) {
		// Lost a race with a concurrent submission; the unique index held.
		return model.Attendance{}, apperr.Wrap(apperr.Duplicate, err, duplicateCheckin)
	}
	return a, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// SetOpen opens or closes check-in.
func (s *Service) SetOpen(ctx context.Context, id string, open bool) (model.Meeting, error) {
	return s.store.Meetings().SetOpen(ctx, id, open)
}

// RegenerateCode replaces a meeting's attendance code.
func (s *Service) RegenerateCode(ctx context.Context, id string) (model.Meeting, error) {
	code, err := s.codes()
	if err != nil {
		return model.Meeting{}, err
	}
	return s.store.Meetings().SetCode(ctx, id, code)
}

// Delete removes a meeting together with its attendance.
func (s *Service) Delete(ctx context.Context, id string) error {
	var removed int64
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.Meetings().Get(ctx, id); err != nil {
			return err
		}
		n, err := tx.Attendance().DeleteByMeeting(ctx, id)
		if err != nil {
			return err
		}
		removed = n
		return tx.Meetings().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"meeting": id, "attendance": removed}).Info("meeting deleted")
	return nil
}

// RevokeAttendance deletes a single check-in.
func (s *Service) RevokeAttendance(ctx context.Context, id string) error {
	return s.store.Attendance().Delete(ctx, id)
}

// StudentAttendance lists a student's check-ins with their meetings.
func (s *Service) StudentAttendance(ctx context.Context, sNumber string) ([]model.Attendance, error) {
	return s.store.Attendance().ListByStudent(ctx, strings.ToLower(strings.TrimSpace(sNumber)))
}

// MeetingAttendance lists the check-ins of a meeting.
func (s *Service) MeetingAttendance(ctx context.Context, meetingID string) ([]model.Attendance, error) {
	if _, err := s.store.Meetings().Get(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.store.Attendance().ListByMeeting(ctx, meetingID)
}

// ImportRow is one historical check-in.
type ImportRow struct {
	SNumber     string `json:"student_s_number"`
	MeetingDate string `json:"meeting_date"`
	Code        string `json:"attendance_code,omitempty"`
	Session     string `json:"session_type,omitempty"`
}

// ImportError explains a row that could not be imported.
type ImportError struct {
	Student string `json:"student"`
	Date    string `json:"date"`
	Error   string `json:"error"`
}

// ImportResult counts what BulkImport did.
type ImportResult struct {
	Success int           `json:"success"`
	Skipped int           `json:"skipped"`
	Errors  int           `json:"errors"`
	Details []ImportError `json:"error_details"`
}

func (r *ImportResult) fail(row ImportRow, msg string) {
	r.Errors++
	r.Details = append(r.Details, ImportError{Student: row.SNumber, Date: row.MeetingDate, Error: msg})
}

// BulkImport loads historical attendance. Each distinct date maps to the
// first meeting on that date, or a new closed one. Rows already present are
// skipped; bad rows are counted and do not stop the import.
func (s *Service) BulkImport(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	meetingIDs := map[string]string{}
	for _, row := range rows {
		date := strings.TrimSpace(row.MeetingDate)
		if _, seen := meetingIDs[date]; seen || !validDate(date) {
			continue
		}
		m, err := s.store.Meetings().FindByDate(ctx, date)
		if errors.Is(err, apperr.NotFound) {
			m, err = s.store.Meetings().Create(ctx, model.Meeting{
				MeetingDate:    date,
				MeetingType:    importedMeetingType,
				AttendanceCode: importedMeetingCode,
				CreatedBy:      "admin",
			})
		}
		if err != nil {
			return ImportResult{}, err
		}
		meetingIDs[date] = m.ID
	}

	var res ImportResult
	for _, row := range rows {
		sNumber := strings.ToLower(strings.TrimSpace(row.SNumber))
		meetingID, ok := meetingIDs[strings.TrimSpace(row.MeetingDate)]
		switch {
		case sNumber == "":
			res.fail(row, "missing student number")
			continue
		case !ok:
			res.fail(row, "no meeting found for date")
			continue
		}
		session, ok := model.ParseSessionType(row.Session)
		if !ok {
			res.fail(row, "invalid session type")
			continue
		}

		_, err := s.store.Attendance().Find(ctx, meetingID, sNumber)
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, apperr.NotFound) {
			res.fail(row, apperr.Message(err))
			continue
		}

		code := row.Code
		if code == "" {
			code = importedCheckinCode
		}
		_, err = s.store.Attendance().Insert(ctx, model.Attendance{
			StudentSNumber: sNumber,
			MeetingID:      meetingID,
			AttendanceCode: code,
			SessionType:    session,
		})
		switch {
		case errors.Is(err, apperr.Duplicate):
			res.Skipped++
		case err != nil:
			res.fail(row, apperr.Message(err))
		default:
			res.Success++
		}
	}
	s.log.WithFields(logrus.Fields{"success": res.Success, "skipped": res.Skipped, "errors": res.Errors}).Info("attendance import finished")
	return res, nil
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
