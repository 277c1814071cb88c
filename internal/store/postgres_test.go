package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
)

var hourRowColumns = []string{"id", "student_s_number", "student_name", "event_name", "event_date", "hours_requested",
	"description", "type", "status", "submitted_at", "reviewed_at", "reviewed_by", "admin_notes", "image_name", "hours_credited"}

var studentRowColumns = []string{"id", "s_number", "name", "email", "role", "volunteering_hours", "social_hours",
	"total_hours", "tshirt_size", "account_status", "account_created", "last_login", "last_hour_update", "created_at"}

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestMigrateAppliesEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range schema {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHourListBuildsFilteredQuery(t *testing.T) {
	pg, mock := newMock(t)
	submitted := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(hourRowColumns).
		AddRow("r1", "s100", "Ada", "Beach Cleanup", "2026-01-31", 2.5, "notes", "social", "pending", submitted, nil, "", "", "", nil)
	mock.ExpectQuery(`FROM hour_requests WHERE status = \$1 AND \(student_name ILIKE \$2 OR student_s_number ILIKE \$2 OR event_name ILIKE \$2 OR description ILIKE \$2\) ORDER BY submitted_at ASC, id ASC LIMIT \$3`).
		WithArgs("pending", "%beach%", 10).
		WillReturnRows(rows)

	got, err := pg.HourRequests().List(context.Background(), HourFilter{Status: model.Pending, Search: "beach", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.Social, got[0].Type)
	assert.Equal(t, model.Pending, got[0].Status)
	assert.Nil(t, got[0].ReviewedAt)
	assert.Equal(t, 2.5, got[0].HoursRequested)
	assert.Nil(t, got[0].HoursCredited)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHourListPagesWithKeysetCursor(t *testing.T) {
	pg, mock := newMock(t)
	cursor := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(hourRowColumns).
		AddRow("r2", "s100", "Ada", "Park", "2026-01-31", 3.0, "[PHOTO_DATA:x]", "", "approved", cursor, nil, "", "", "", 2.5)
	mock.ExpectQuery(`FROM hour_requests WHERE strpos\(description, \$1\) > 0 AND strpos\(COALESCE\(description, ''\), \$2\) = 0 AND \(submitted_at, id\) > \(\$3, \$4\) ORDER BY submitted_at ASC, id ASC LIMIT \$5`).
		WithArgs("[PHOTO_DATA:", "[PHOTO_STORAGE:", cursor, "r1", 100).
		WillReturnRows(rows)

	got, err := pg.HourRequests().List(context.Background(), HourFilter{
		DescriptionContains: "[PHOTO_DATA:",
		DescriptionLacks:    "[PHOTO_STORAGE:",
		SubmittedAfter:      cursor,
		AfterID:             "r1",
		Limit:               100,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].HoursCredited)
	assert.Equal(t, 2.5, *got[0].HoursCredited)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCredited(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectExec(`UPDATE hour_requests SET hours_credited = \$2 WHERE id = \$1`).
		WithArgs("r1", 3.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.HourRequests().SetCredited(context.Background(), "r1", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHourListEscapesWildcards(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectQuery(`FROM hour_requests WHERE \(student_name ILIKE \$1`).
		WithArgs(`%100\%%`).
		WillReturnRows(sqlmock.NewRows(hourRowColumns))

	got, err := pg.HourRequests().List(context.Background(), HourFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRowIsNotFound(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectQuery(`FROM hour_requests WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(hourRowColumns))

	_, err := pg.HourRequests().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.NotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceUniqueViolationIsDuplicate(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO meeting_attendance`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := pg.Attendance().Insert(context.Background(), model.Attendance{
		MeetingID: "m1", StudentSNumber: "s100", SessionType: model.Both,
	})
	assert.ErrorIs(t, err, apperr.Duplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverFailureIsRemote(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM announcements`).WillReturnError(errors.New("connection reset"))

	err := pg.Announcements().Delete(context.Background(), "a1")
	assert.ErrorIs(t, err, apperr.Remote)
	assert.Equal(t, "database error", apperr.Message(err))
}

func TestDeleteNothingIsNotFound(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM meetings WHERE id = \$1`).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := pg.Meetings().Delete(context.Background(), "m1")
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestWithTxCommitsBalanceWrite(t *testing.T) {
	pg, mock := newMock(t)
	created := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM students s WHERE s.s_number = \$1 FOR UPDATE`).
		WithArgs("s100").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow("id1", "s100", "Ada", "", "student", 4.0, 1.0, 5.0, "M", "active", nil, nil, nil, created))
	mock.ExpectQuery(`UPDATE students s\s+SET volunteering_hours = \$2, social_hours = \$3, total_hours = \$4`).
		WithArgs("s100", 6.0, 1.0, 7.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow("id1", "s100", "Ada", "", "student", 6.0, 1.0, 7.0, "M", "active", nil, nil, created, created))
	mock.ExpectCommit()

	var out model.Student
	err := pg.WithTx(context.Background(), func(tx Store) error {
		st, err := tx.Students().Lock(context.Background(), "s100")
		if err != nil {
			return err
		}
		out, err = tx.Students().SetBalance(context.Background(), st.SNumber, st.VolunteeringHours+2, st.SocialHours, time.Now())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, out.TotalHours)
	require.NotNil(t, out.LastHourUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	pg, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM meeting_attendance WHERE meeting_id = \$1`).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM meetings WHERE id = \$1`).
		WithArgs("m1").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := pg.WithTx(context.Background(), func(tx Store) error {
		if _, err := tx.Attendance().DeleteByMeeting(context.Background(), "m1"); err != nil {
			return err
		}
		return tx.Meetings().Delete(context.Background(), "m1")
	})
	assert.ErrorIs(t, err, apperr.Remote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendeesExpandsPlaceholders(t *testing.T) {
	pg, mock := newMock(t)
	registered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM event_attendees\s+WHERE event_id IN \(\$1,\$2\)`).
		WithArgs("e1", "e2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "student_id", "name", "email", "registered_at"}).
			AddRow("a1", "e2", "id1", "Ada", "ada@example.com", registered))

	got, err := pg.Events().Attendees(context.Background(), "e1", "e2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].EventID)
}
