package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"clubhours/internal/model"
)

const studentColumns = `s.id, s.s_number, COALESCE(s.name, ''), COALESCE(s.email, ''), COALESCE(s.role, 'student'),
	COALESCE(s.volunteering_hours, 0), COALESCE(s.social_hours, 0), COALESCE(s.total_hours, 0),
	COALESCE(s.tshirt_size, ''), COALESCE(s.account_status, ''), s.account_created, s.last_login,
	s.last_hour_update, s.created_at`

type studentRepo struct {
	q querier
}

func scanStudent(row scanner) (model.Student, error) {
	var (
		s                                 model.Student
		created, lastLogin, lastHourWrite sql.NullTime
	)
	err := row.Scan(&s.ID, &s.SNumber, &s.Name, &s.Email, &s.Role,
		&s.VolunteeringHours, &s.SocialHours, &s.TotalHours,
		&s.TshirtSize, &s.AccountStatus, &created, &lastLogin, &lastHourWrite, &s.CreatedAt)
	if err != nil {
		return model.Student{}, err
	}
	s.AccountCreated = nullTime(created)
	s.LastLogin = nullTime(lastLogin)
	s.LastHourUpdate = nullTime(lastHourWrite)
	return s, nil
}

func (r studentRepo) list(ctx context.Context, query string, args ...any) ([]model.Student, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "student")
	}
	defer rows.Close()
	var res []model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, classify(err, "student")
		}
		res = append(res, s)
	}
	return res, classify(rows.Err(), "student")
}

// Get returns a student by S-number.
func (r studentRepo) Get(ctx context.Context, sNumber string) (model.Student, error) {
	s, err := scanStudent(r.q.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students s WHERE s.s_number = $1`, sNumber))
	return s, classify(err, "student")
}

// Lock returns a student and holds the row until the transaction ends.
func (r studentRepo) Lock(ctx context.Context, sNumber string) (model.Student, error) {
	s, err := scanStudent(r.q.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students s WHERE s.s_number = $1 FOR UPDATE`, sNumber))
	return s, classify(err, "student")
}

// Create inserts a new student with zero balances unless provided.
func (r studentRepo) Create(ctx context.Context, s model.Student) (model.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Role == "" {
		s.Role = model.RoleStudent
	}
	s.TotalHours = s.VolunteeringHours + s.SocialHours
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO students (id, s_number, name, email, role, volunteering_hours, social_hours, total_hours, tshirt_size, account_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, s.ID, s.SNumber, s.Name, s.Email, s.Role, s.VolunteeringHours, s.SocialHours, s.TotalHours, s.TshirtSize, s.AccountStatus)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return model.Student{}, classify(err, "student")
	}
	return s, nil
}

// Search matches S-number or name case-insensitively.
func (r studentRepo) Search(ctx context.Context, term string, limit int) ([]model.Student, error) {
	return r.list(ctx, `SELECT `+studentColumns+` FROM students s
		WHERE s.s_number ILIKE $1 OR s.name ILIKE $1
		ORDER BY s.name LIMIT $2`, likePattern(term), limit)
}

// ListWithAccounts returns students that have registered credentials.
func (r studentRepo) ListWithAccounts(ctx context.Context, limit int) ([]model.Student, error) {
	return r.list(ctx, `SELECT `+studentColumns+` FROM students s
		JOIN auth_users a ON a.s_number = s.s_number
		ORDER BY s.name LIMIT $1`, limit)
}

// SetBalance writes both buckets and the derived total.
func (r studentRepo) SetBalance(ctx context.Context, sNumber string, volunteering, social float64, at time.Time) (model.Student, error) {
	s, err := scanStudent(r.q.QueryRowContext(ctx, `
		UPDATE students s
		SET volunteering_hours = $2, social_hours = $3, total_hours = $4, last_hour_update = $5
		WHERE s.s_number = $1
		RETURNING `+studentColumns, sNumber, volunteering, social, volunteering+social, at))
	return s, classify(err, "student")
}

// Activate marks the account created, filling in profile fields when given.
func (r studentRepo) Activate(ctx context.Context, sNumber, name, tshirtSize string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE students
		SET account_status = 'active', account_created = $2,
			name = COALESCE(NULLIF($3, ''), name),
			tshirt_size = COALESCE(NULLIF($4, ''), tshirt_size)
		WHERE s_number = $1
	`, sNumber, at, name, tshirtSize)
	return expectRow(res, err, "student")
}

// TouchLogin stamps the last successful login.
func (r studentRepo) TouchLogin(ctx context.Context, sNumber string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE students SET last_login = $2 WHERE s_number = $1`, sNumber, at)
	return expectRow(res, err, "student")
}

// SetTshirtSize updates the recorded shirt size.
func (r studentRepo) SetTshirtSize(ctx context.Context, sNumber, size string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE students SET tshirt_size = $2 WHERE s_number = $1`, sNumber, size)
	return expectRow(res, err, "student")
}

type credentialRepo struct {
	q querier
}

func (r credentialRepo) Get(ctx context.Context, sNumber string) (model.Credential, error) {
	var c model.Credential
	err := r.q.QueryRowContext(ctx, `
		SELECT id, s_number, password_hash, created_at FROM auth_users WHERE s_number = $1
	`, sNumber).Scan(&c.ID, &c.SNumber, &c.PasswordHash, &c.CreatedAt)
	return c, classify(err, "account")
}

func (r credentialRepo) Create(ctx context.Context, c model.Credential) (model.Credential, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO auth_users (id, s_number, password_hash) VALUES ($1,$2,$3)
		RETURNING created_at
	`, c.ID, c.SNumber, c.PasswordHash).Scan(&c.CreatedAt)
	if err != nil {
		return model.Credential{}, classify(err, "account")
	}
	return c, nil
}

func (r credentialRepo) SetHash(ctx context.Context, sNumber, hash string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE auth_users SET password_hash = $2 WHERE s_number = $1`, sNumber, hash)
	return expectRow(res, err, "account")
}
