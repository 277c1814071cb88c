package hours

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"clubhours/internal/model"
)

const defaultAdmin = "Admin"

// num prints a float the way the web client did: no trailing zeros.
func num(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func signed(x float64) string {
	if x > 0 {
		return "+" + num(x)
	}
	return num(x)
}

func auditBase(st model.Student, admin, reason string, at time.Time) model.HourRequest {
	if admin == "" {
		admin = defaultAdmin
	}
	notes := reason
	if notes == "" {
		notes = "Admin adjustment"
	}
	name := st.Name
	if name == "" {
		name = "Unknown"
	}
	reviewed := at
	return model.HourRequest{
		StudentSNumber: st.SNumber,
		StudentName:    name,
		EventDate:      at.UTC().Format("2006-01-02"),
		Status:         model.Approved,
		SubmittedAt:    at,
		ReviewedAt:     &reviewed,
		ReviewedBy:     admin,
		AdminNotes:     notes,
	}
}

// adjustmentRecord documents a manual change to one bucket. scope is the
// kind of adjustment the admin made ("total", "volunteering" or "social").
func adjustmentRecord(st model.Student, scope string, b model.Bucket, before, after float64, reason, admin string, at time.Time) model.HourRequest {
	delta := after - before
	verb := "Added"
	if delta < 0 {
		verb = "Removed"
	}
	if reason == "" {
		reason = "No reason provided"
	}
	label := b.Label()

	rec := auditBase(st, admin, reason, at)
	rec.Type = b
	rec.HoursRequested = math.Abs(delta)
	rec.EventName = fmt.Sprintf("Manual Adjustment - %s %s %s", verb, num(math.Abs(delta)), label)
	rec.Description = fmt.Sprintf("Manual %s hour adjustment by admin. %s. Original %s: %s, New %s: %s, Adjustment: %s",
		scope, reason, label, num(before), label, num(after), signed(delta))
	return rec
}

func plural(amount float64) string {
	if amount == 1 {
		return "hour"
	}
	return "hours"
}

// transferRecord documents a move between buckets. The row is typed as the
// receiving bucket.
func transferRecord(before, after model.Student, amount float64, from, to model.Bucket, reason, admin string, at time.Time) model.HourRequest {
	rec := auditBase(before, admin, reason, at)
	rec.Type = to
	rec.HoursRequested = amount
	moved := fmt.Sprintf("%s %s from %s to %s", num(amount), plural(amount), from, to)
	rec.EventName = "Hour Transfer - " + moved

	var b strings.Builder
	b.WriteString("Hour transfer by admin. ")
	if reason != "" {
		fmt.Fprintf(&b, "Reason: %s. ", reason)
	}
	fmt.Fprintf(&b, "Transferred %s. Before: Volunteering: %s, Social: %s. After: Volunteering: %s, Social: %s.",
		moved, num(before.VolunteeringHours), num(before.SocialHours), num(after.VolunteeringHours), num(after.SocialHours))
	rec.Description = b.String()
	return rec
}

// wasRemoval reports whether an approved row recorded hours being taken
// away, in which case deleting it gives them back.
func wasRemoval(r model.HourRequest) bool {
	event := strings.ToLower(r.EventName)
	desc := strings.ToLower(r.Description)
	return strings.Contains(event, "removed") || strings.Contains(event, "deleted") ||
		strings.Contains(desc, "removed") || strings.Contains(desc, "deleted") ||
		strings.Contains(desc, "subtracted")
}
