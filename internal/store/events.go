package store

import (
	"context"

	"github.com/google/uuid"

	"clubhours/internal/model"
)

const eventColumns = `id, title, COALESCE(description, ''), COALESCE(location, ''), event_date::text,
	COALESCE(start_time::text, ''), COALESCE(end_time::text, ''), COALESCE(capacity, 0),
	COALESCE(color, '#4287f5'), COALESCE(created_by, ''), created_at`

const attendeeColumns = `id, event_id, COALESCE(student_id::text, ''), COALESCE(name, ''), COALESCE(email, ''), registered_at`

type eventRepo struct {
	q querier
}

func scanEvent(row scanner) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Date,
		&e.StartTime, &e.EndTime, &e.Capacity, &e.Color, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func scanAttendee(row scanner) (model.EventAttendee, error) {
	var a model.EventAttendee
	err := row.Scan(&a.ID, &a.EventID, &a.StudentID, &a.Name, &a.Email, &a.RegisteredAt)
	return a, err
}

func (r eventRepo) Create(ctx context.Context, e model.Event) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO events (id, title, description, location, event_date, start_time, end_time, capacity, color, created_by)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),NULLIF($7, ''),$8,$9,$10)
		RETURNING created_at
	`, e.ID, e.Title, e.Description, e.Location, e.Date, e.StartTime, e.EndTime, e.Capacity, e.Color, e.CreatedBy).Scan(&e.CreatedAt)
	if err != nil {
		return model.Event{}, classify(err, "event")
	}
	return e, nil
}

func (r eventRepo) Get(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	return e, classify(err, "event")
}

// Lock holds the event row so concurrent signups serialize on capacity.
func (r eventRepo) Lock(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	return e, classify(err, "event")
}

// List returns events on or after fromDate in date order.
func (r eventRepo) List(ctx context.Context, fromDate string, limit int) ([]model.Event, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE event_date >= $1
		ORDER BY event_date ASC LIMIT $2`, fromDate, limit)
	if err != nil {
		return nil, classify(err, "event")
	}
	defer rows.Close()
	var res []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, classify(err, "event")
		}
		res = append(res, e)
	}
	return res, classify(rows.Err(), "event")
}

func (r eventRepo) Update(ctx context.Context, e model.Event) (model.Event, error) {
	out, err := scanEvent(r.q.QueryRowContext(ctx, `
		UPDATE events
		SET title = $2, description = $3, location = $4, event_date = $5,
			start_time = NULLIF($6, ''), end_time = NULLIF($7, ''), capacity = $8, color = $9
		WHERE id = $1
		RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.Location, e.Date, e.StartTime, e.EndTime, e.Capacity, e.Color))
	return out, classify(err, "event")
}

func (r eventRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	return expectRow(res, err, "event")
}

// Attendees returns the signups of the given events in registration order.
func (r eventRepo) Attendees(ctx context.Context, eventIDs ...string) ([]model.EventAttendee, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+attendeeColumns+` FROM event_attendees
		WHERE event_id IN (`+placeholders(1, len(eventIDs))+`)
		ORDER BY registered_at`, args...)
	if err != nil {
		return nil, classify(err, "attendee")
	}
	defer rows.Close()
	var res []model.EventAttendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, classify(err, "attendee")
		}
		res = append(res, a)
	}
	return res, classify(rows.Err(), "attendee")
}

// FindAttendee matches a signup by student id or, case-insensitively, email.
func (r eventRepo) FindAttendee(ctx context.Context, eventID, studentID, email string) (model.EventAttendee, error) {
	a, err := scanAttendee(r.q.QueryRowContext(ctx, `
		SELECT `+attendeeColumns+` FROM event_attendees
		WHERE event_id = $1
		  AND (($2 <> '' AND student_id::text = $2) OR ($3 <> '' AND lower(email) = lower($3)))
		LIMIT 1`, eventID, studentID, email))
	return a, classify(err, "attendee")
}

func (r eventRepo) AddAttendee(ctx context.Context, a model.EventAttendee) (model.EventAttendee, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO event_attendees (id, event_id, student_id, name, email)
		VALUES ($1,$2,NULLIF($3, ''),$4,$5)
		RETURNING registered_at
	`, a.ID, a.EventID, a.StudentID, a.Name, a.Email).Scan(&a.RegisteredAt)
	if err != nil {
		return model.EventAttendee{}, classify(err, "attendee")
	}
	return a, nil
}

func (r eventRepo) RemoveAttendee(ctx context.Context, eventID, studentID, email string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM event_attendees
		WHERE event_id = $1
		  AND (($2 <> '' AND student_id::text = $2) OR ($3 <> '' AND lower(email) = lower($3)))
	`, eventID, studentID, email)
	if err != nil {
		return 0, classify(err, "attendee")
	}
	n, err := res.RowsAffected()
	return n, classify(err, "attendee")
}

func (r eventRepo) DeleteAttendees(ctx context.Context, eventID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id = $1`, eventID)
	return classify(err, "attendee")
}

type announcementRepo struct {
	q querier
}

func (r announcementRepo) List(ctx context.Context) ([]model.Announcement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, title, message, COALESCE(created_by, ''), date, COALESCE(image_url, ''), COALESCE(image_filename, '')
		FROM announcements ORDER BY date DESC`)
	if err != nil {
		return nil, classify(err, "announcement")
	}
	defer rows.Close()
	var res []model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.CreatedBy, &a.Date, &a.ImageURL, &a.ImageFilename); err != nil {
			return nil, classify(err, "announcement")
		}
		res = append(res, a)
	}
	return res, classify(rows.Err(), "announcement")
}

func (r announcementRepo) Create(ctx context.Context, a model.Announcement) (model.Announcement, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO announcements (id, title, message, created_by, date, image_url, image_filename)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),NULLIF($7, ''))
	`, a.ID, a.Title, a.Message, a.CreatedBy, a.Date, a.ImageURL, a.ImageFilename)
	if err != nil {
		return model.Announcement{}, classify(err, "announcement")
	}
	return a, nil
}

func (r announcementRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	return expectRow(res, err, "announcement")
}
