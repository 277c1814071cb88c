package hours

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhours/internal/apperr"
	"clubhours/internal/guard"
	"clubhours/internal/model"
	"clubhours/internal/queue"
	"clubhours/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (r *recorder) Publish(_ context.Context, msg queue.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func newTestService(t *testing.T, students ...model.Student) (*Service, *memory.Store, *recorder) {
	t.Helper()
	st := memory.New()
	for _, s := range students {
		_, err := st.Students().Create(context.Background(), s)
		require.NoError(t, err)
	}
	jobs := &recorder{}
	svc := NewService(st, nil, jobs, guard.NewInFlight(guard.NewMemoryKeys(), time.Minute, nil), nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, st, jobs
}

func jpeg() string {
	raw := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte("proof"), 40)...)
	return base64.StdEncoding.EncodeToString(raw)
}

func submission(sNumber string, amount float64, bucket string) Submission {
	return Submission{
		StudentSNumber: sNumber,
		EventName:      "Beach cleanup",
		EventDate:      "2026-03-01",
		Hours:          amount,
		Description:    "Picked up litter",
		Type:           bucket,
	}
}

func TestSubmitHoursBoundaries(t *testing.T) {
	svc, _, _ := newTestService(t, model.Student{SNumber: "s100", Name: "Ada"})
	ctx := context.Background()

	for _, bad := range []float64{0, -1, 24.01} {
		_, err := svc.Submit(ctx, submission("s100", bad, ""))
		assert.ErrorIs(t, err, apperr.InvalidInput, "hours %v", bad)
	}

	req, err := svc.Submit(ctx, submission("S100", 24, ""))
	require.NoError(t, err)
	assert.Equal(t, model.Pending, req.Status)
	assert.Equal(t, "s100", req.StudentSNumber)
	assert.Equal(t, "Ada", req.StudentName)
	assert.Equal(t, model.Volunteering, req.Type)
	assert.Equal(t, fixedNow, req.SubmittedAt)
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestService(t, model.Student{SNumber: "s100"})
	ctx := context.Background()

	sub := submission("s100", 2, "")
	sub.EventDate = "March 1st"
	_, err := svc.Submit(ctx, sub)
	assert.ErrorIs(t, err, apperr.InvalidInput)

	_, err = svc.Submit(ctx, submission("s100", 2, "party"))
	assert.ErrorIs(t, err, apperr.InvalidInput)

	_, err = svc.Submit(ctx, submission("s999", 2, ""))
	assert.ErrorIs(t, err, apperr.NotFound)
}

// A 2.5 hour request with an inline JPEG approved with a 3 hour override
// credits exactly 3 hours.
func TestApproveWithOverride(t *testing.T) {
	svc, st, jobs := newTestService(t, model.Student{SNumber: "s100", VolunteeringHours: 10, SocialHours: 1})
	ctx := context.Background()

	sub := submission("s100", 2.5, "volunteering")
	sub.ImageData = jpeg()
	req, err := svc.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Contains(t, req.Description, "[PHOTO_DATA:/9j/")

	override := 3.0
	out, err := svc.Review(ctx, req.ID, Decision{Status: "approved", Notes: "great", Reviewer: "officer", Hours: &override})
	require.NoError(t, err)
	assert.Equal(t, model.Approved, out.Status)
	assert.Equal(t, "officer", out.ReviewedBy)
	assert.Equal(t, "great", out.AdminNotes)

	student, err := st.Students().Get(ctx, "s100")
	require.NoError(t, err)
	assert.Equal(t, 13.0, student.VolunteeringHours)
	assert.Equal(t, 1.0, student.SocialHours)
	assert.Equal(t, 14.0, student.TotalHours)

	require.Len(t, jobs.msgs, 1)
	assert.Equal(t, queue.Message{Type: queue.TypeProofMirror, Body: req.ID, EnqueuedAt: fixedNow}, jobs.msgs[0])
}

func TestApproveDoesNotWaitOnFullQueue(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	_, err := st.Students().Create(ctx, model.Student{SNumber: "s100"})
	require.NoError(t, err)
	q := queue.NewInMemory(1)
	svc := NewService(st, nil, q, nil, nil)

	for i := 0; i < 3; i++ {
		sub := submission("s100", 1, "volunteering")
		sub.ImageData = jpeg()
		req, err := svc.Submit(ctx, sub)
		require.NoError(t, err)

		start := time.Now()
		out, err := svc.Review(ctx, req.ID, Decision{Status: "approved"})
		require.NoError(t, err)
		assert.Equal(t, model.Approved, out.Status)
		assert.Less(t, time.Since(start), time.Second, "review %d waited on the queue", i)
	}

	student, err := st.Students().Get(ctx, "s100")
	require.NoError(t, err)
	assert.Equal(t, 3.0, student.VolunteeringHours)
}

func TestReviewOnlyOnce(t *testing.T) {
	svc, st, jobs := newTestService(t, model.Student{SNumber: "s100"})
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 2, "social"))
	require.NoError(t, err)

	_, err = svc.Review(ctx, req.ID, Decision{Status: "rejected"})
	require.NoError(t, err)

	_, err = svc.Review(ctx, req.ID, Decision{Status: "approved"})
	assert.ErrorIs(t, err, apperr.InvalidInput)

	_, err = svc.Review(ctx, req.ID, Decision{Status: "pending"})
	assert.ErrorIs(t, err, apperr.InvalidInput)

	student, _ := st.Students().Get(ctx, "s100")
	assert.Zero(t, student.SocialHours)
	assert.Empty(t, jobs.msgs)
}

func TestReviewNonPositiveOverrideSkipsBalance(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100", SocialHours: 2})
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 2, "social"))
	require.NoError(t, err)

	zero := 0.0
	out, err := svc.Review(ctx, req.ID, Decision{Status: "approved", Hours: &zero})
	require.NoError(t, err)
	assert.Equal(t, model.Approved, out.Status)

	student, _ := st.Students().Get(ctx, "s100")
	assert.Equal(t, 2.0, student.SocialHours)
}

func TestReviewUnknownRequest(t *testing.T) {
	svc, _, jobs := newTestService(t)
	_, err := svc.Review(context.Background(), "missing", Decision{Status: "approved"})
	assert.ErrorIs(t, err, apperr.NotFound)
	assert.Empty(t, jobs.msgs)
}

func TestReviewInFlightConflict(t *testing.T) {
	st := memory.New()
	_, err := st.Students().Create(context.Background(), model.Student{SNumber: "s100"})
	require.NoError(t, err)
	g := guard.NewInFlight(guard.NewMemoryKeys(), time.Minute, nil)
	svc := NewService(st, nil, nil, g, nil)
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 1, ""))
	require.NoError(t, err)

	release, err := g.Acquire(ctx, req.ID)
	require.NoError(t, err)
	_, err = svc.Review(ctx, req.ID, Decision{Status: "approved"})
	assert.ErrorIs(t, err, apperr.Conflict)
	assert.ErrorIs(t, svc.Delete(ctx, req.ID), apperr.Conflict)

	release()
	_, err = svc.Review(ctx, req.ID, Decision{Status: "approved"})
	assert.NoError(t, err)
}

// Deleting an approved 4 hour social request takes the 4 hours back,
// stopping at zero.
func TestDeleteApprovedCompensates(t *testing.T) {
	for _, tc := range []struct {
		name   string
		social float64
		want   float64
	}{
		{"enough", 10, 6},
		{"clamped", 1, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc, st, _ := newTestService(t, model.Student{SNumber: "s100", VolunteeringHours: 3})
			ctx := context.Background()

			req, err := svc.Submit(ctx, submission("s100", 4, "social"))
			require.NoError(t, err)
			_, err = svc.Review(ctx, req.ID, Decision{Status: "approved"})
			require.NoError(t, err)
			_, err = st.Students().SetBalance(ctx, "s100", 3, tc.social, fixedNow)
			require.NoError(t, err)

			require.NoError(t, svc.Delete(ctx, req.ID))

			student, _ := st.Students().Get(ctx, "s100")
			assert.Equal(t, tc.want, student.SocialHours)
			assert.Equal(t, 3.0, student.VolunteeringHours)
			_, err = svc.Get(ctx, req.ID)
			assert.ErrorIs(t, err, apperr.NotFound)
		})
	}
}

func TestDeleteReversesCreditedOverride(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100", VolunteeringHours: 10})
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 2.5, "volunteering"))
	require.NoError(t, err)
	override := 3.0
	out, err := svc.Review(ctx, req.ID, Decision{Status: "approved", Hours: &override})
	require.NoError(t, err)
	require.NotNil(t, out.HoursCredited)
	assert.Equal(t, 3.0, *out.HoursCredited)

	stored, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HoursCredited)
	assert.Equal(t, 2.5, stored.HoursRequested)

	require.NoError(t, svc.Delete(ctx, req.ID))
	student, _ := st.Students().Get(ctx, "s100")
	assert.Equal(t, 10.0, student.VolunteeringHours)
}

func TestDeleteAfterZeroCreditLeavesBalance(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100", SocialHours: 5})
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 2, "social"))
	require.NoError(t, err)
	zero := 0.0
	_, err = svc.Review(ctx, req.ID, Decision{Status: "approved", Hours: &zero})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, req.ID))
	student, _ := st.Students().Get(ctx, "s100")
	assert.Equal(t, 5.0, student.SocialHours)
}

func TestDeletePendingLeavesBalance(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100", VolunteeringHours: 5})
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 4, ""))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, req.ID))

	student, _ := st.Students().Get(ctx, "s100")
	assert.Equal(t, 5.0, student.VolunteeringHours)
	assert.ErrorIs(t, svc.Delete(ctx, req.ID), apperr.NotFound)
}

func TestDeleteRemovalAuditRestores(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100", Name: "Ada", VolunteeringHours: 5})
	ctx := context.Background()

	_, err := svc.AdjustTotal(ctx, Adjustment{SNumber: "s100", Delta: -2, Reason: "duplicate entry", Admin: "officer"})
	require.NoError(t, err)

	rows, err := svc.StudentHistory(ctx, "s100")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Manual Adjustment - Removed 2 volunteering hours", rows[0].EventName)

	require.NoError(t, svc.Delete(ctx, rows[0].ID))
	student, _ := st.Students().Get(ctx, "s100")
	assert.Equal(t, 5.0, student.VolunteeringHours)
}

func TestChangeTypeAndHours(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100"})
	ctx := context.Background()

	req, err := svc.Submit(ctx, submission("s100", 2, ""))
	require.NoError(t, err)

	out, err := svc.ChangeType(ctx, req.ID, "social")
	require.NoError(t, err)
	assert.Equal(t, model.Social, out.Type)
	_, err = svc.ChangeType(ctx, req.ID, "")
	assert.ErrorIs(t, err, apperr.InvalidInput)

	out, err = svc.ChangeHours(ctx, req.ID, 3.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, out.HoursRequested)
	_, err = svc.ChangeHours(ctx, req.ID, 0)
	assert.ErrorIs(t, err, apperr.InvalidInput)

	student, _ := st.Students().Get(ctx, "s100")
	assert.Zero(t, student.TotalHours)
}

func TestListPendingAndSearch(t *testing.T) {
	svc, _, _ := newTestService(t, model.Student{SNumber: "s100", Name: "Ada Lovelace"}, model.Student{SNumber: "s200", Name: "Grace"})
	ctx := context.Background()

	var ids []string
	for i, who := range []string{"s100", "s200", "s100"} {
		svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		sub := submission(who, 1, "")
		if i == 1 {
			sub.EventName = "Food bank"
		}
		req, err := svc.Submit(ctx, sub)
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	page, err := svc.ListPending(ctx, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[:2], []string{page[0].ID, page[1].ID})

	next, err := svc.ListPending(ctx, page[1].SubmittedAt, 0)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, ids[2], next[0].ID)

	found, err := svc.Search(ctx, "LOVELACE", "", 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = svc.Search(ctx, "food", "all", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids[1], found[0].ID)

	found, err = svc.Search(ctx, "food", "approved", 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = svc.Search(ctx, "food", "archived", 0)
	assert.ErrorIs(t, err, apperr.InvalidInput)
}

func TestPhotoLibrary(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s100", Name: "Ada"})
	ctx := context.Background()

	withPhoto := submission("s100", 1, "")
	withPhoto.ImageData = jpeg()
	req, err := svc.Submit(ctx, withPhoto)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, submission("s100", 1, ""))
	require.NoError(t, err)

	// Older than the library window.
	_, err = st.HourRequests().Insert(ctx, model.HourRequest{
		StudentSNumber: "s100",
		EventName:      "Old",
		Description:    "[PHOTO_DATA:" + jpeg() + "]",
		SubmittedAt:    fixedNow.AddDate(-1, 0, 0),
	})
	require.NoError(t, err)

	items, err := svc.PhotoLibrary(ctx, LibraryFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, req.ID, items[0].ID)
	assert.Equal(t, "image/jpeg", items[0].MimeType)
	assert.Equal(t, "ada_beach_cleanup_"+strings.ReplaceAll(req.ID, "-", "_")+".jpeg", items[0].FileName)
	assert.Equal(t, "Picked up litter", items[0].Notes)
	assert.Contains(t, items[0].DataURL, "data:image/jpeg;base64,/9j/")

	items, err = svc.PhotoLibrary(ctx, LibraryFilter{Search: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = svc.PhotoLibrary(ctx, LibraryFilter{Status: "approved"})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, att, err := svc.Photo(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", att.MimeType())
}
