package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"clubhours/internal/model"
)

const hourColumns = `id, student_s_number, COALESCE(student_name, ''), event_name, event_date::text, hours_requested,
	COALESCE(description, ''), COALESCE(type, ''), status, submitted_at, reviewed_at,
	COALESCE(reviewed_by, ''), COALESCE(admin_notes, ''), COALESCE(image_name, ''), hours_credited`

type hourRepo struct {
	q querier
}

func scanHourRequest(row scanner) (model.HourRequest, error) {
	var (
		r            model.HourRequest
		kind, status string
		reviewedAt   sql.NullTime
		credited     sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.StudentSNumber, &r.StudentName, &r.EventName, &r.EventDate, &r.HoursRequested,
		&r.Description, &kind, &status, &r.SubmittedAt, &reviewedAt,
		&r.ReviewedBy, &r.AdminNotes, &r.ImageName, &credited)
	if err != nil {
		return model.HourRequest{}, err
	}
	r.Type = model.Bucket(kind)
	r.Status = model.Status(status)
	r.ReviewedAt = nullTime(reviewedAt)
	if credited.Valid {
		r.HoursCredited = &credited.Float64
	}
	return r, nil
}

// Insert writes a request or audit row. Missing id and submitted_at are filled in.
func (h hourRepo) Insert(ctx context.Context, r model.HourRequest) (model.HourRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = model.Pending
	}
	_, err := h.q.ExecContext(ctx, `
		INSERT INTO hour_requests (id, student_s_number, student_name, event_name, event_date, hours_requested,
			description, type, status, submitted_at, reviewed_at, reviewed_by, admin_notes, image_name, hours_credited)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12, ''),NULLIF($13, ''),NULLIF($14, ''),$15)
	`, r.ID, r.StudentSNumber, r.StudentName, r.EventName, r.EventDate, r.HoursRequested,
		r.Description, string(r.Type), string(r.Status), r.SubmittedAt, r.ReviewedAt, r.ReviewedBy, r.AdminNotes, r.ImageName,
		r.HoursCredited)
	if err != nil {
		return model.HourRequest{}, classify(err, "hour request")
	}
	return r, nil
}

// Get returns one request.
func (h hourRepo) Get(ctx context.Context, id string) (model.HourRequest, error) {
	r, err := scanHourRequest(h.q.QueryRowContext(ctx, `SELECT `+hourColumns+` FROM hour_requests WHERE id = $1`, id))
	return r, classify(err, "hour request")
}

// Lock returns one request and holds the row until the transaction ends.
func (h hourRepo) Lock(ctx context.Context, id string) (model.HourRequest, error) {
	r, err := scanHourRequest(h.q.QueryRowContext(ctx, `SELECT `+hourColumns+` FROM hour_requests WHERE id = $1 FOR UPDATE`, id))
	return r, classify(err, "hour request")
}

// List returns requests matching f, oldest first unless NewestFirst is set.
func (h hourRepo) List(ctx context.Context, f HourFilter) ([]model.HourRequest, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.StudentSNumber != "" {
		w.add("student_s_number = ?", f.StudentSNumber)
	}
	if f.Search != "" {
		w.add("(student_name ILIKE ? OR student_s_number ILIKE ? OR event_name ILIKE ? OR description ILIKE ?)", likePattern(f.Search))
	}
	if f.DescriptionContains != "" {
		w.add("strpos(description, ?) > 0", f.DescriptionContains)
	}
	if f.DescriptionLacks != "" {
		w.add("strpos(COALESCE(description, ''), ?) = 0", f.DescriptionLacks)
	}
	switch {
	case !f.SubmittedAfter.IsZero() && f.AfterID != "":
		w.args = append(w.args, f.SubmittedAfter, f.AfterID)
		w.clauses = append(w.clauses, "(submitted_at, id) > ("+w.next(-1)+", "+w.next(0)+")")
	case !f.SubmittedAfter.IsZero():
		w.add("submitted_at > ?", f.SubmittedAfter)
	}
	if f.EventFrom != "" {
		w.add("event_date >= ?", f.EventFrom)
	}
	if f.EventTo != "" {
		w.add("event_date <= ?", f.EventTo)
	}

	query := `SELECT ` + hourColumns + ` FROM hour_requests` + w.String()
	if f.NewestFirst {
		query += " ORDER BY submitted_at DESC, id DESC"
	} else {
		query += " ORDER BY submitted_at ASC, id ASC"
	}
	args := w.args
	if f.Limit > 0 {
		query += " LIMIT " + w.next(1)
		args = append(args, f.Limit)
	}

	rows, err := h.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "hour request")
	}
	defer rows.Close()
	var res []model.HourRequest
	for rows.Next() {
		r, err := scanHourRequest(rows)
		if err != nil {
			return nil, classify(err, "hour request")
		}
		res = append(res, r)
	}
	return res, classify(rows.Err(), "hour request")
}

// SetReview records a review decision.
func (h hourRepo) SetReview(ctx context.Context, id string, status model.Status, at time.Time, reviewedBy, notes string) (model.HourRequest, error) {
	r, err := scanHourRequest(h.q.QueryRowContext(ctx, `
		UPDATE hour_requests
		SET status = $2, reviewed_at = $3, reviewed_by = $4, admin_notes = NULLIF($5, '')
		WHERE id = $1
		RETURNING `+hourColumns, id, string(status), at, reviewedBy, notes))
	return r, classify(err, "hour request")
}

// SetType changes the bucket a request counts toward.
func (h hourRepo) SetType(ctx context.Context, id string, b model.Bucket) (model.HourRequest, error) {
	r, err := scanHourRequest(h.q.QueryRowContext(ctx, `
		UPDATE hour_requests SET type = $2 WHERE id = $1 RETURNING `+hourColumns, id, string(b)))
	return r, classify(err, "hour request")
}

// SetHours changes the requested amount.
func (h hourRepo) SetHours(ctx context.Context, id string, hours float64) (model.HourRequest, error) {
	r, err := scanHourRequest(h.q.QueryRowContext(ctx, `
		UPDATE hour_requests SET hours_requested = $2 WHERE id = $1 RETURNING `+hourColumns, id, hours))
	return r, classify(err, "hour request")
}

// SetPhoto rewrites the description and stored image name after a photo migration.
func (h hourRepo) SetPhoto(ctx context.Context, id, description, imageName string) error {
	res, err := h.q.ExecContext(ctx, `
		UPDATE hour_requests SET description = $2, image_name = NULLIF($3, '') WHERE id = $1
	`, id, description, imageName)
	return expectRow(res, err, "hour request")
}

// SetCredited stores the hours an approval credited.
func (h hourRepo) SetCredited(ctx context.Context, id string, hours float64) error {
	res, err := h.q.ExecContext(ctx, `UPDATE hour_requests SET hours_credited = $2 WHERE id = $1`, id, hours)
	return expectRow(res, err, "hour request")
}

// Delete removes a request.
func (h hourRepo) Delete(ctx context.Context, id string) error {
	res, err := h.q.ExecContext(ctx, `DELETE FROM hour_requests WHERE id = $1`, id)
	return expectRow(res, err, "hour request")
}
