package hours

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhours/internal/apperr"
	"clubhours/internal/model"
)

func TestRoundHalf(t *testing.T) {
	cases := map[float64]float64{
		0:     0,
		0.24:  0,
		0.25:  0.5,
		0.74:  0.5,
		0.75:  1,
		2.3:   2.5,
		-0.25: 0,
		-1.25: -1,
		-1.3:  -1.5,
	}
	for in, want := range cases {
		assert.Equal(t, want, RoundHalf(in), "RoundHalf(%v)", in)
	}
}

func TestSplitTotal(t *testing.T) {
	for _, tc := range []struct {
		name        string
		vol, social float64
		total       float64
		wantV       float64
		wantS       float64
	}{
		{"empty goes to volunteering", 0, 0, 3.2, 3, 0},
		{"keeps ratio", 6, 2, 12, 9, 3},
		{"drift lands on larger bucket", 1, 1, 1.5, 0.5, 1},
		{"never negative", 4, 1, -3, 0, 0},
		{"social larger", 1, 3, 2.5, 0.5, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, s := SplitTotal(tc.vol, tc.social, tc.total)
			assert.Equal(t, tc.wantV, v)
			assert.Equal(t, tc.wantS, s)
		})
	}
}

func isHalf(x float64) bool {
	return x*2 == math.Trunc(x*2)
}

func TestAdjustTotalRoundingLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		vol := math.Round(rng.Float64()*4000) / 100
		social := math.Round(rng.Float64()*2000) / 100
		delta := math.Round((rng.Float64()*60-30)*100) / 100
		if delta == 0 {
			delta = 0.1
		}

		svc, _, _ := newTestService(t, model.Student{SNumber: "s1", VolunteeringHours: vol, SocialHours: social})
		out, err := svc.AdjustTotal(ctx, Adjustment{SNumber: "s1", Delta: delta})
		require.NoError(t, err)

		want := math.Max(0, RoundHalf(vol+social+delta))
		assert.True(t, isHalf(out.VolunteeringHours), "volunteering %v from (%v,%v)%+v", out.VolunteeringHours, vol, social, delta)
		assert.True(t, isHalf(out.SocialHours), "social %v from (%v,%v)%+v", out.SocialHours, vol, social, delta)
		assert.Equal(t, want, out.VolunteeringHours+out.SocialHours, "sum from (%v,%v)%+v", vol, social, delta)
		assert.Equal(t, out.VolunteeringHours+out.SocialHours, out.TotalHours)
	}
}

func TestAdjustTotalWritesAuditRows(t *testing.T) {
	svc, _, _ := newTestService(t, model.Student{SNumber: "s1", Name: "Ada", VolunteeringHours: 6, SocialHours: 2})
	ctx := context.Background()

	out, err := svc.AdjustTotal(ctx, Adjustment{SNumber: "S1", Delta: 4, Reason: "camp weekend", Admin: "officer"})
	require.NoError(t, err)
	assert.Equal(t, 9.0, out.VolunteeringHours)
	assert.Equal(t, 3.0, out.SocialHours)

	rows, err := svc.StudentHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	names := []string{rows[0].EventName, rows[1].EventName}
	assert.ElementsMatch(t, []string{
		"Manual Adjustment - Added 3 volunteering hours",
		"Manual Adjustment - Added 1 social credits",
	}, names)
	for _, r := range rows {
		assert.Equal(t, model.Approved, r.Status)
		assert.Equal(t, "officer", r.ReviewedBy)
		assert.Equal(t, "camp weekend", r.AdminNotes)
		assert.Equal(t, "2026-03-14", r.EventDate)
		assert.Greater(t, r.HoursRequested, 0.0)
	}

	_, err = svc.AdjustTotal(ctx, Adjustment{SNumber: "s1"})
	assert.ErrorIs(t, err, apperr.InvalidInput)
	_, err = svc.AdjustTotal(ctx, Adjustment{SNumber: "s404", Delta: 1})
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestSetBucket(t *testing.T) {
	svc, _, _ := newTestService(t, model.Student{SNumber: "s1", VolunteeringHours: 6, SocialHours: 2})
	ctx := context.Background()

	out, err := svc.SetBucket(ctx, BucketSet{SNumber: "s1", Bucket: "social", Value: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.SocialHours)
	assert.Equal(t, 6.0, out.VolunteeringHours)
	assert.Equal(t, 6.5, out.TotalHours)

	rows, _ := svc.StudentHistory(ctx, "s1")
	require.Len(t, rows, 1)
	assert.Equal(t, "Manual Adjustment - Removed 1.5 social credits", rows[0].EventName)
	assert.Equal(t, model.Social, rows[0].Type)
	assert.Contains(t, rows[0].Description, "Original social credits: 2, New social credits: 0.5, Adjustment: -1.5")

	_, err = svc.SetBucket(ctx, BucketSet{SNumber: "s1", Bucket: "service", Value: 1})
	assert.ErrorIs(t, err, apperr.InvalidInput)
	_, err = svc.SetBucket(ctx, BucketSet{SNumber: "s1", Bucket: "social", Value: -1})
	assert.ErrorIs(t, err, apperr.InvalidInput)
}

// Moving 1.5 hours from 5 volunteering to 2 social leaves 3.5 and 3.5 and
// one audit row that spells out both sides.
func TestTransfer(t *testing.T) {
	svc, _, _ := newTestService(t, model.Student{SNumber: "s1", Name: "Ada", VolunteeringHours: 5, SocialHours: 2})
	ctx := context.Background()

	out, err := svc.Transfer(ctx, TransferInput{SNumber: "s1", Amount: 1.5, From: "volunteering", To: "social", Reason: "misfiled", Admin: "officer"})
	require.NoError(t, err)
	assert.Equal(t, 3.5, out.VolunteeringHours)
	assert.Equal(t, 3.5, out.SocialHours)
	assert.Equal(t, 7.0, out.TotalHours)

	rows, err := svc.StudentHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	audit := rows[0]
	assert.Equal(t, "Hour Transfer - 1.5 hours from volunteering to social", audit.EventName)
	assert.Equal(t, "Hour transfer by admin. Reason: misfiled. Transferred 1.5 hours from volunteering to social. "+
		"Before: Volunteering: 5, Social: 2. After: Volunteering: 3.5, Social: 3.5.", audit.Description)
	assert.Equal(t, model.Social, audit.Type)
	assert.Equal(t, 1.5, audit.HoursRequested)
	assert.Equal(t, model.Approved, audit.Status)
}

func TestTransferRejects(t *testing.T) {
	svc, st, _ := newTestService(t, model.Student{SNumber: "s1", VolunteeringHours: 1, SocialHours: 2})
	ctx := context.Background()

	for name, in := range map[string]TransferInput{
		"same bucket":  {SNumber: "s1", Amount: 1, From: "social", To: "social"},
		"too much":     {SNumber: "s1", Amount: 1.5, From: "volunteering", To: "social"},
		"zero":         {SNumber: "s1", Amount: 0, From: "social", To: "volunteering"},
		"rounds to 0":  {SNumber: "s1", Amount: 0.2, From: "social", To: "volunteering"},
		"unknown kind": {SNumber: "s1", Amount: 1, From: "social", To: "fun"},
	} {
		_, err := svc.Transfer(ctx, in)
		assert.ErrorIs(t, err, apperr.InvalidInput, name)
	}

	student, _ := st.Students().Get(ctx, "s1")
	assert.Equal(t, 1.0, student.VolunteeringHours)
	assert.Equal(t, 2.0, student.SocialHours)
	rows, _ := svc.StudentHistory(ctx, "s1")
	assert.Empty(t, rows)
}
