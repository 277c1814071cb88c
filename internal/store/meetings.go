package store

import (
	"context"

	"github.com/google/uuid"

	"clubhours/internal/model"
)

const meetingColumns = `m.id, m.meeting_date::text, COALESCE(m.meeting_type, ''), COALESCE(m.description, ''),
	m.attendance_code, m.is_open, COALESCE(m.created_by, ''), m.created_at`

type meetingRepo struct {
	q querier
}

func scanMeeting(row scanner) (model.Meeting, error) {
	var m model.Meeting
	err := row.Scan(&m.ID, &m.MeetingDate, &m.MeetingType, &m.Description,
		&m.AttendanceCode, &m.IsOpen, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

func (r meetingRepo) Create(ctx context.Context, m model.Meeting) (model.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO meetings (id, meeting_date, meeting_type, description, attendance_code, is_open, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, m.ID, m.MeetingDate, m.MeetingType, m.Description, m.AttendanceCode, m.IsOpen, m.CreatedBy).Scan(&m.CreatedAt)
	if err != nil {
		return model.Meeting{}, classify(err, "meeting")
	}
	return m, nil
}

func (r meetingRepo) Get(ctx context.Context, id string) (model.Meeting, error) {
	m, err := scanMeeting(r.q.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings m WHERE m.id = $1`, id))
	return m, classify(err, "meeting")
}

// FindByDate returns the earliest meeting created for a date.
func (r meetingRepo) FindByDate(ctx context.Context, date string) (model.Meeting, error) {
	m, err := scanMeeting(r.q.QueryRowContext(ctx, `
		SELECT `+meetingColumns+` FROM meetings m WHERE m.meeting_date = $1
		ORDER BY m.created_at LIMIT 1`, date))
	return m, classify(err, "meeting")
}

func (r meetingRepo) List(ctx context.Context) ([]model.Meeting, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings m ORDER BY m.meeting_date DESC, m.created_at DESC`)
	if err != nil {
		return nil, classify(err, "meeting")
	}
	defer rows.Close()
	var res []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, classify(err, "meeting")
		}
		res = append(res, m)
	}
	return res, classify(rows.Err(), "meeting")
}

func (r meetingRepo) SetOpen(ctx context.Context, id string, open bool) (model.Meeting, error) {
	m, err := scanMeeting(r.q.QueryRowContext(ctx, `
		UPDATE meetings m SET is_open = $2, updated_at = NOW() WHERE m.id = $1 RETURNING `+meetingColumns, id, open))
	return m, classify(err, "meeting")
}

func (r meetingRepo) SetCode(ctx context.Context, id, code string) (model.Meeting, error) {
	m, err := scanMeeting(r.q.QueryRowContext(ctx, `
		UPDATE meetings m SET attendance_code = $2, updated_at = NOW() WHERE m.id = $1 RETURNING `+meetingColumns, id, code))
	return m, classify(err, "meeting")
}

func (r meetingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	return expectRow(res, err, "meeting")
}

const attendanceColumns = `a.id, a.student_s_number, a.meeting_id, COALESCE(a.attendance_code, ''),
	COALESCE(a.session_type, 'both'), a.submitted_at`

type attendanceRepo struct {
	q querier
}

func scanAttendance(row scanner, extra ...any) (model.Attendance, error) {
	var (
		a       model.Attendance
		session string
	)
	dest := append([]any{&a.ID, &a.StudentSNumber, &a.MeetingID, &a.AttendanceCode, &session, &a.SubmittedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Attendance{}, err
	}
	a.SessionType = model.SessionType(session)
	return a, nil
}

// Find returns the check-in of a student for a meeting.
func (r attendanceRepo) Find(ctx context.Context, meetingID, sNumber string) (model.Attendance, error) {
	a, err := scanAttendance(r.q.QueryRowContext(ctx, `
		SELECT `+attendanceColumns+` FROM meeting_attendance a
		WHERE a.meeting_id = $1 AND a.student_s_number = $2`, meetingID, sNumber))
	return a, classify(err, "attendance")
}

// Insert records a check-in; the unique index on (meeting_id, student_s_number)
// surfaces as apperr.Duplicate.
func (r attendanceRepo) Insert(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO meeting_attendance (id, student_s_number, meeting_id, attendance_code, session_type)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING submitted_at
	`, a.ID, a.StudentSNumber, a.MeetingID, a.AttendanceCode, string(a.SessionType)).Scan(&a.SubmittedAt)
	if err != nil {
		return model.Attendance{}, classify(err, "attendance")
	}
	return a, nil
}

// ListByStudent returns a student's check-ins with their meetings, newest meeting first.
func (r attendanceRepo) ListByStudent(ctx context.Context, sNumber string) ([]model.Attendance, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+attendanceColumns+`, `+meetingColumns+`
		FROM meeting_attendance a JOIN meetings m ON m.id = a.meeting_id
		WHERE a.student_s_number = $1
		ORDER BY m.meeting_date DESC`, sNumber)
	if err != nil {
		return nil, classify(err, "attendance")
	}
	defer rows.Close()
	var res []model.Attendance
	for rows.Next() {
		var m model.Meeting
		a, err := scanAttendance(rows, &m.ID, &m.MeetingDate, &m.MeetingType, &m.Description,
			&m.AttendanceCode, &m.IsOpen, &m.CreatedBy, &m.CreatedAt)
		if err != nil {
			return nil, classify(err, "attendance")
		}
		a.Meeting = &m
		res = append(res, a)
	}
	return res, classify(rows.Err(), "attendance")
}

// ListByMeeting returns a meeting's check-ins in submission order.
func (r attendanceRepo) ListByMeeting(ctx context.Context, meetingID string) ([]model.Attendance, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM meeting_attendance a
		WHERE a.meeting_id = $1 ORDER BY a.submitted_at`, meetingID)
	if err != nil {
		return nil, classify(err, "attendance")
	}
	defer rows.Close()
	var res []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, classify(err, "attendance")
		}
		res = append(res, a)
	}
	return res, classify(rows.Err(), "attendance")
}

func (r attendanceRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM meeting_attendance WHERE id = $1`, id)
	return expectRow(res, err, "attendance")
}

func (r attendanceRepo) DeleteByMeeting(ctx context.Context, meetingID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM meeting_attendance WHERE meeting_id = $1`, meetingID)
	if err != nil {
		return 0, classify(err, "attendance")
	}
	n, err := res.RowsAffected()
	return n, classify(err, "attendance")
}
