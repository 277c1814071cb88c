// Package accounts handles registration, login sessions and the student
// roster admins manage.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clubhours/internal/apperr"
	"clubhours/internal/auth"
	"clubhours/internal/model"
	"clubhours/internal/store"
	"clubhours/internal/validate"
)

const (
	defaultSearchLimit = 50
	defaultListLimit   = 500
	maxListLimit       = 1000
)

// Service owns credentials and sessions.
type Service struct {
	store   store.Store
	tokens  *auth.Issuer
	revoked auth.Revocations
	log     *logrus.Entry
	now     func() time.Time
}

// NewService wires the service. revoked may be nil, in which case logout
// cannot end tokens early.
func NewService(st store.Store, tokens *auth.Issuer, revoked auth.Revocations, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: st, tokens: tokens, revoked: revoked, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizeSNumber lowercases and trims an S-number.
func NormalizeSNumber(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Registration creates a login for a student.
type Registration struct {
	SNumber    string `json:"s_number" validate:"required,max=32"`
	Password   string `json:"password" validate:"required,min=6,max=128"`
	Name       string `json:"name" validate:"max=100"`
	TshirtSize string `json:"tshirt_size" validate:"max=10"`
}

// Register creates the account, adding the student row first when the
// roster does not have it yet.
func (s *Service) Register(ctx context.Context, in Registration) (model.Student, error) {
	if err := validate.Struct(in); err != nil {
		return model.Student{}, err
	}
	sNumber := NormalizeSNumber(in.SNumber)
	if !strings.HasPrefix(sNumber, "s") {
		return model.Student{}, apperr.E(apperr.InvalidInput, "S-number must start with s")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.Student{}, err
	}
	name := strings.TrimSpace(in.Name)

	var out model.Student
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		st, err := tx.Students().Get(ctx, sNumber)
		if errors.Is(err, apperr.NotFound) {
			display := name
			if display == "" {
				display = sNumber
			}
			st, err = tx.Students().Create(ctx, model.Student{
				SNumber:    sNumber,
				Name:       display,
				Role:       model.RoleStudent,
				TshirtSize: in.TshirtSize,
			})
		}
		if err != nil {
			return err
		}

		_, err = tx.Credentials().Create(ctx, model.Credential{SNumber: sNumber, PasswordHash: hash})
		if errors.Is(err, apperr.Duplicate) {
			return apperr.E(apperr.AlreadyExists, "account already exists, please log in")
		}
		if err != nil {
			return err
		}
		if err := tx.Students().Activate(ctx, sNumber, name, in.TshirtSize, s.now()); err != nil {
			return err
		}
		out, err = tx.Students().Get(ctx, st.SNumber)
		return err
	})
	if err != nil {
		return model.Student{}, err
	}
	s.log.WithField("student", sNumber).Info("account registered")
	return out, nil
}

// Login is the result of a successful sign-in.
type Login struct {
	Session auth.Session   `json:"session"`
	Tokens  auth.TokenPair `json:"tokens"`
	Student model.Student  `json:"student"`
}

func sessionFor(st model.Student, lastLogin *time.Time) auth.Session {
	role := st.Role
	if role == "" {
		role = model.RoleStudent
	}
	return auth.Session{SNumber: st.SNumber, Name: st.Name, Role: role, LastLogin: lastLogin}
}

// Login checks a password and opens a session. The session carries the
// previous login time so the UI can highlight what is new.
func (s *Service) Login(ctx context.Context, sNumber, password string) (Login, error) {
	sNumber = NormalizeSNumber(sNumber)
	cred, err := s.store.Credentials().Get(ctx, sNumber)
	if errors.Is(err, apperr.NotFound) {
		return Login{}, apperr.E(apperr.NotFound, "no account found, please register first")
	}
	if err != nil {
		return Login{}, err
	}
	if !auth.VerifyPassword(password, cred.PasswordHash) {
		return Login{}, apperr.E(apperr.InvalidCredential, "incorrect password")
	}
	st, err := s.store.Students().Get(ctx, sNumber)
	if err != nil {
		return Login{}, err
	}

	previous := st.LastLogin
	at := s.now()
	if err := s.store.Students().TouchLogin(ctx, sNumber, at); err != nil {
		return Login{}, err
	}
	st.LastLogin = &at

	sess := sessionFor(st, previous)
	pair, err := s.tokens.Issue(sess)
	if err != nil {
		return Login{}, err
	}
	s.log.WithField("student", sNumber).Info("login")
	return Login{Session: sess, Tokens: pair, Student: st}, nil
}

// Refresh trades a refresh token for a new pair. Revoking the presented
// token is the gate: of two concurrent refreshes only one gets a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Login, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.KindRefresh)
	if err != nil {
		return Login{}, apperr.Wrap(apperr.InvalidCredential, err, "invalid refresh token")
	}
	old := auth.SessionFromClaims(claims)
	first, err := s.revoke(ctx, old)
	if err != nil {
		return Login{}, err
	}
	if !first {
		return Login{}, apperr.E(apperr.InvalidCredential, "session ended")
	}
	st, err := s.store.Students().Get(ctx, old.SNumber)
	if err != nil {
		return Login{}, err
	}
	sess := sessionFor(st, old.LastLogin)
	pair, err := s.tokens.Issue(sess)
	if err != nil {
		return Login{}, err
	}
	return Login{Session: sess, Tokens: pair, Student: st}, nil
}

// revoke denylists the session's token. It reports false when the token was
// already revoked; untracked tokens count as a first revocation.
func (s *Service) revoke(ctx context.Context, sess auth.Session) (bool, error) {
	if s.revoked == nil || sess.TokenID == "" {
		return true, nil
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return true, nil
	}
	first, err := s.revoked.Revoke(ctx, sess.TokenID, ttl)
	if err != nil {
		return false, apperr.Wrap(apperr.Remote, err, "session store unavailable")
	}
	return first, nil
}

// Logout ends the access token of sess and, when given, its refresh token.
func (s *Service) Logout(ctx context.Context, sess auth.Session, refreshToken string) error {
	if _, err := s.revoke(ctx, sess); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.Parse(refreshToken, auth.KindRefresh)
	if err != nil || claims.Subject != sess.SNumber {
		return nil
	}
	_, err = s.revoke(ctx, auth.SessionFromClaims(claims))
	return err
}

// ChangePassword replaces a password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, sNumber, current, next string) error {
	sNumber = NormalizeSNumber(sNumber)
	cred, err := s.store.Credentials().Get(ctx, sNumber)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(current, cred.PasswordHash) {
		return apperr.E(apperr.InvalidCredential, "current password is incorrect")
	}
	return s.setPassword(ctx, sNumber, next)
}

// ResetPassword sets a password without the old one. Admin only.
func (s *Service) ResetPassword(ctx context.Context, sNumber, next string) error {
	return s.setPassword(ctx, NormalizeSNumber(sNumber), next)
}

type passwordInput struct {
	Password string `json:"password" validate:"required,min=6,max=128"`
}

func (s *Service) setPassword(ctx context.Context, sNumber, password string) error {
	if err := validate.Struct(passwordInput{Password: password}); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.Credentials().SetHash(ctx, sNumber, hash); err != nil {
		return err
	}
	s.log.WithField("student", sNumber).Info("password changed")
	return nil
}

// Get returns a student.
func (s *Service) Get(ctx context.Context, sNumber string) (model.Student, error) {
	return s.store.Students().Get(ctx, NormalizeSNumber(sNumber))
}

// Search finds students by name or S-number.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]model.Student, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []model.Student{}, nil
	}
	return s.store.Students().Search(ctx, term, clamp(limit, defaultSearchLimit))
}

// List returns students that have registered, by name.
func (s *Service) List(ctx context.Context, limit int) ([]model.Student, error) {
	return s.store.Students().ListWithAccounts(ctx, clamp(limit, defaultListLimit))
}

func clamp(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxListLimit)
}

// TshirtUpdate sets one student's size.
type TshirtUpdate struct {
	SNumber    string `json:"s_number"`
	TshirtSize string `json:"tshirt_size"`
}

// TshirtFailure is an update that could not be applied.
type TshirtFailure struct {
	TshirtUpdate
	Error string `json:"error"`
}

// TshirtResult summarizes a bulk update.
type TshirtResult struct {
	Updated    []string        `json:"updated"`
	Failures   []TshirtFailure `json:"errors"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
}

// BulkUpdateTshirtSizes applies each update independently and reports the
// ones that failed.
func (s *Service) BulkUpdateTshirtSizes(ctx context.Context, updates []TshirtUpdate) TshirtResult {
	res := TshirtResult{Updated: []string{}, Failures: []TshirtFailure{}, Total: len(updates)}
	for _, u := range updates {
		sNumber := NormalizeSNumber(u.SNumber)
		size := strings.TrimSpace(u.TshirtSize)
		var err error
		switch {
		case sNumber == "":
			err = apperr.E(apperr.InvalidInput, "missing S-number")
		case len(size) > 10:
			err = apperr.E(apperr.InvalidInput, "t-shirt size is too long")
		default:
			err = s.store.Students().SetTshirtSize(ctx, sNumber, size)
		}
		if err != nil {
			res.Failures = append(res.Failures, TshirtFailure{TshirtUpdate: u, Error: apperr.Message(err)})
			continue
		}
		res.Updated = append(res.Updated, sNumber)
	}
	res.Successful = len(res.Updated)
	res.Failed = len(res.Failures)
	s.log.WithFields(logrus.Fields{"successful": res.Successful, "failed": res.Failed}).Info("t-shirt sizes updated")
	return res
}
