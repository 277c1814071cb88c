package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhours/internal/accounts"
	"clubhours/internal/announcements"
	"clubhours/internal/auth"
	"clubhours/internal/events"
	"clubhours/internal/guard"
	"clubhours/internal/hours"
	"clubhours/internal/meetings"
	"clubhours/internal/model"
	"clubhours/internal/photo"
	"clubhours/internal/store/memory"
)

type fakeBlobs struct {
	data map[string][]byte
}

func (f *fakeBlobs) Download(_ context.Context, bucket, path string) ([]byte, string, error) {
	d, ok := f.data[bucket+"/"+path]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return d, "image/png", nil
}

type env struct {
	t     *testing.T
	st    *memory.Store
	r     *gin.Engine
	blobs *fakeBlobs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memory.New()
	keys := guard.NewMemoryKeys()
	deny := guard.NewDenylist(keys)
	issuer := auth.NewIssuer("clubhours-test", "handler-test-key", 15*time.Minute, time.Hour)
	blobs := &fakeBlobs{data: map[string][]byte{}}

	h := New(Services{
		Accounts:      accounts.NewService(st, issuer, deny, nil),
		Hours:         hours.NewService(st, nil, nil, guard.NewInFlight(keys, time.Minute, nil), nil),
		Meetings:      meetings.NewService(st, nil),
		Events:        events.NewService(st, nil),
		Announcements: announcements.NewService(st.Announcements(), nil),
		Tokens:        issuer,
		Revoked:       deny,
		Blobs:         blobs,
	}, nil)
	r := gin.New()
	h.Register(r)
	return &env{t: t, st: st, r: r, blobs: blobs}
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// signup creates an account (admin when requested) and returns an access token.
func (e *env) signup(sNumber, name string, admin bool) string {
	e.t.Helper()
	role := model.RoleStudent
	if admin {
		role = model.RoleAdmin
	}
	_, err := e.st.Students().Create(context.Background(), model.Student{SNumber: sNumber, Name: name, Role: role})
	require.NoError(e.t, err)

	w := e.do(http.MethodPost, "/api/auth/register", "", gin.H{"s_number": sNumber, "password": "secret1"})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"s_number": sNumber, "password": "secret1"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Tokens.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	b := decode[map[string]string](t, w)
	return b["error"], b["kind"]
}

func TestLoginErrors(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{"s_number": "s404", "password": "whatever"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	msg, kind := errorBody(t, w)
	assert.Equal(t, "not_found", kind)
	assert.Contains(t, msg, "register")

	e.signup("s1", "Ada", false)
	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"s_number": "s1", "password": "wrong-pw"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/auth/register", "", gin.H{"s_number": "s1", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionRequired(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", "not-a-jwt", nil).Code)

	student := e.signup("s1", "Ada", false)
	w := e.do(http.MethodGet, "/api/me", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[struct {
		Session auth.Session  `json:"session"`
		Student model.Student `json:"student"`
	}](t, w)
	assert.Equal(t, "s1", me.Session.SNumber)
	assert.Equal(t, "Ada", me.Student.Name)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/hours", student, nil).Code)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	e := newEnv(t)
	token := e.signup("s1", "Ada", false)

	require.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/api/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", token, nil).Code)
}

func TestSubmitAndApproveHours(t *testing.T) {
	e := newEnv(t)
	admin := e.signup("s900", "Officer", true)
	student := e.signup("s1", "Ada", false)

	w := e.do(http.MethodPost, "/api/hours", student, gin.H{
		"student_s_number": "s2", // ignored for students
		"event_name":       "Food Bank",
		"event_date":       "2024-03-02",
		"hours":            3,
		"type":             "volunteering",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[model.HourRequest](t, w)
	assert.Equal(t, "s1", req.StudentSNumber)
	assert.Equal(t, "Ada", req.StudentName)

	w = e.do(http.MethodPost, "/api/hours", student, gin.H{"event_name": "X", "event_date": "2024-03-02", "hours": 25})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/admin/hours", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	queue := decode[struct {
		Requests []model.HourRequest `json:"requests"`
	}](t, w)
	require.Len(t, queue.Requests, 1)

	w = e.do(http.MethodPost, "/api/admin/hours/"+req.ID+"/review", admin, gin.H{"status": "approved", "admin_notes": "thanks"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reviewed := decode[model.HourRequest](t, w)
	assert.Equal(t, model.Approved, reviewed.Status)
	assert.Equal(t, "Officer", reviewed.ReviewedBy)

	w = e.do(http.MethodPost, "/api/admin/hours/"+req.ID+"/review", admin, gin.H{"status": "rejected"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	st, err := e.st.Students().Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, st.VolunteeringHours)
	assert.Equal(t, 3.0, st.TotalHours)

	w = e.do(http.MethodGet, "/api/me/hours", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), req.ID)
}

func TestBalanceEndpoints(t *testing.T) {
	e := newEnv(t)
	admin := e.signup("s900", "Officer", true)
	e.signup("s1", "Ada", false)

	w := e.do(http.MethodPut, "/api/admin/students/s1/bucket", admin, gin.H{"bucket": "social", "value": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 4.0, decode[model.Student](t, w).SocialHours)

	w = e.do(http.MethodPost, "/api/admin/students/s1/transfer", admin, gin.H{"amount": 1.5, "from": "social", "to": "volunteering", "reason": "moved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[model.Student](t, w)
	assert.Equal(t, 2.5, st.SocialHours)
	assert.Equal(t, 1.5, st.VolunteeringHours)

	w = e.do(http.MethodPost, "/api/admin/students/s1/transfer", admin, gin.H{"amount": 10, "from": "social", "to": "volunteering"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/admin/students/s1/adjust", admin, gin.H{"delta": -4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0.0, decode[model.Student](t, w).TotalHours)
}

func TestMeetingCheckin(t *testing.T) {
	e := newEnv(t)
	admin := e.signup("s900", "Officer", true)
	student := e.signup("s1", "Ada", false)

	w := e.do(http.MethodPost, "/api/admin/meetings", admin, gin.H{"meeting_date": "2024-09-10", "is_open": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decode[model.Meeting](t, w)
	require.Len(t, m.AttendanceCode, 6)

	w = e.do(http.MethodGet, "/api/meetings", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Meetings []model.Meeting `json:"meetings"`
	}](t, w)
	require.Len(t, listed.Meetings, 1)
	assert.Empty(t, listed.Meetings[0].AttendanceCode)

	path := "/api/meetings/" + m.ID + "/attendance"
	w = e.do(http.MethodPost, path, student, gin.H{"attendance_code": "WRONG1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, kind := errorBody(t, w)
	assert.Equal(t, "invalid_code", kind)

	w = e.do(http.MethodPost, path, student, gin.H{"attendance_code": m.AttendanceCode, "session_type": "morning"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, path, student, gin.H{"attendance_code": m.AttendanceCode})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPatch, "/api/admin/meetings/"+m.ID+"/open", admin, gin.H{"is_open": false})
	require.Equal(t, http.StatusOK, w.Code)
	other := e.signup("s2", "Grace", false)
	w = e.do(http.MethodPost, path, other, gin.H{"attendance_code": m.AttendanceCode})
	assert.Equal(t, http.StatusLocked, w.Code)

	w = e.do(http.MethodGet, "/api/admin/meetings/"+m.ID+"/attendance", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"student_s_number":"s1"`)
}

func TestRequestPhoto(t *testing.T) {
	e := newEnv(t)
	admin := e.signup("s900", "Officer", true)
	student := e.signup("s1", "Ada", false)
	other := e.signup("s2", "Grace", false)
	ctx := context.Background()

	raw := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte("png!"), 40)...)
	inline, err := e.st.HourRequests().Insert(ctx, model.HourRequest{
		StudentSNumber: "s1",
		EventName:      "Park",
		Description:    photo.Compose("notes", photo.InlineToken(base64.StdEncoding.EncodeToString(raw))),
		ImageName:      "s1_park.png",
	})
	require.NoError(t, err)

	w := e.do(http.MethodGet, "/api/hours/"+inline.ID+"/photo", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, raw, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "s1_park.png")

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/hours/"+inline.ID+"/photo", other, nil).Code)

	ref := photo.StorageRef{Bucket: "proof-photos", Path: "s1/park/1.png", MimeType: "image/png", FileName: "park.png"}
	e.blobs.data["proof-photos/s1/park/1.png"] = []byte("stored-bytes")
	stored, err := e.st.HourRequests().Insert(ctx, model.HourRequest{StudentSNumber: "s1", Description: photo.Compose("notes", ref.Token())})
	require.NoError(t, err)

	w = e.do(http.MethodGet, "/api/hours/"+stored.ID+"/photo", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "stored-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "park.png")

	none, err := e.st.HourRequests().Insert(ctx, model.HourRequest{StudentSNumber: "s1", Description: "no photo"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/hours/"+none.ID+"/photo", admin, nil).Code)
}

func TestEventSignupCapacity(t *testing.T) {
	e := newEnv(t)
	admin := e.signup("s900", "Officer", true)
	ada := e.signup("s1", "Ada", false)
	grace := e.signup("s2", "Grace", false)

	w := e.do(http.MethodPost, "/api/admin/events", admin, gin.H{"title": "Cleanup", "date": time.Now().Format(time.DateOnly), "capacity": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ev := decode[model.Event](t, w)

	path := "/api/events/" + ev.ID + "/signup"
	w = e.do(http.MethodPost, path, ada, gin.H{"email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, path, ada, gin.H{"email": "ada@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
	_, kind := errorBody(t, w)
	assert.Equal(t, "already_exists", kind)

	w = e.do(http.MethodPost, path, grace, gin.H{"email": "grace@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
	_, kind = errorBody(t, w)
	assert.Equal(t, "full", kind)

	require.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, path, ada, nil).Code)
	w = e.do(http.MethodPost, path, grace, gin.H{"email": "grace@example.com"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAnnouncements(t *testing.T) {
	e := newEnv(t)
	admin := e.signup("s900", "Officer", true)
	student := e.signup("s1", "Ada", false)

	w := e.do(http.MethodPost, "/api/admin/announcements", admin, gin.H{"title": "Welcome", "message": "First meeting Tuesday"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[model.Announcement](t, w)
	assert.Equal(t, "Officer", a.CreatedBy)

	w = e.do(http.MethodGet, "/api/announcements", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "First meeting Tuesday")

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/api/admin/announcements/"+a.ID, student, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/admin/announcements/"+a.ID, admin, nil).Code)
}

func TestBadBody(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, kind := errorBody(t, w)
	assert.Equal(t, "invalid_input", kind)
}
