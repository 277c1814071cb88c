package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"clubhours/internal/apperr"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Postgres implements Store on database/sql with the pgx driver.
type Postgres struct {
	db *sql.DB
	q  querier
}

// NewPostgres builds a Store over an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

func (p *Postgres) Students() Students           { return studentRepo{q: p.q} }
func (p *Postgres) Credentials() Credentials     { return credentialRepo{q: p.q} }
func (p *Postgres) HourRequests() HourRequests   { return hourRepo{q: p.q} }
func (p *Postgres) Meetings() Meetings           { return meetingRepo{q: p.q} }
func (p *Postgres) Attendance() Attendance       { return attendanceRepo{q: p.q} }
func (p *Postgres) Events() Events               { return eventRepo{q: p.q} }
func (p *Postgres) Announcements() Announcements { return announcementRepo{q: p.q} }

// WithTx begins a transaction unless p is already bound to one, in which case
// fn joins it.
func (p *Postgres) WithTx(ctx context.Context, fn func(Store) error) error {
	if p.db == nil {
		return fn(p)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Remote, errors.Wrap(err, "begin tx"), "database unavailable")
	}
	if err := fn(&Postgres{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Remote, errors.Wrap(err, "commit tx"), "database unavailable")
	}
	return nil
}

// classify turns driver errors into apperr kinds. what names the entity for
// user-facing messages.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.E(apperr.NotFound, what+" not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Wrap(apperr.Duplicate, err, what+" already exists")
		case "23503":
			return apperr.Wrap(apperr.NotFound, err, "referenced record not found")
		}
	}
	return apperr.Wrap(apperr.Remote, errors.WithStack(err), "database error")
}

// expectRow reports NotFound when an UPDATE or DELETE matched nothing.
func expectRow(res sql.Result, err error, what string) error {
	if err != nil {
		return classify(err, what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, what)
	}
	if n == 0 {
		return apperr.E(apperr.NotFound, what+" not found")
	}
	return nil
}

// where accumulates AND-ed clauses; each ? in a clause is bound to the
// argument passed with it.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", w.next(0)))
}

func (w *where) next(offset int) string {
	return "$" + strconv.Itoa(len(w.args)+offset)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// likePattern builds an ILIKE substring pattern with wildcards in term escaped.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ",")
}
