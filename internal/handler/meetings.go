package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhours/internal/auth"
	"clubhours/internal/meetings"
	"clubhours/internal/model"
)

// ListMeetings shows students the open meetings, without their codes.
func (h *Handler) ListMeetings(c *gin.Context) {
	all, err := h.Meetings.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	open := make([]model.Meeting, 0, len(all))
	for _, m := range all {
		if m.IsOpen {
			m.AttendanceCode = ""
			open = append(open, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"meetings": open})
}

func (h *Handler) AdminListMeetings(c *gin.Context) {
	all, err := h.Meetings.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": nonNil(all)})
}

func (h *Handler) GetMeeting(c *gin.Context) {
	m, err := h.Meetings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMeeting(c *gin.Context) {
	var in meetings.NewMeeting
	if !h.bind(c, &in) {
		return
	}
	in.CreatedBy = actor(auth.CurrentSession(c))
	m, err := h.Meetings.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) SetMeetingOpen(c *gin.Context) {
	var in struct {
		IsOpen bool `json:"is_open"`
	}
	if !h.bind(c, &in) {
		return
	}
	m, err := h.Meetings.SetOpen(c.Request.Context(), c.Param("id"), in.IsOpen)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) RegenerateCode(c *gin.Context) {
	m, err := h.Meetings.RegenerateCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMeeting(c *gin.Context) {
	if err := h.Meetings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitAttendance checks the caller into a meeting with its code.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var in meetings.Checkin
	if !h.bind(c, &in) {
		return
	}
	in.MeetingID = c.Param("id")
	in.SNumber = auth.CurrentSession(c).SNumber
	a, err := h.Meetings.SubmitAttendance(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) MyAttendance(c *gin.Context) {
	rows, err := h.Meetings.StudentAttendance(c.Request.Context(), auth.CurrentSession(c).SNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": nonNil(rows)})
}

func (h *Handler) StudentAttendance(c *gin.Context) {
	rows, err := h.Meetings.StudentAttendance(c.Request.Context(), c.Param("sNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": nonNil(rows)})
}

func (h *Handler) MeetingAttendance(c *gin.Context) {
	rows, err := h.Meetings.MeetingAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": nonNil(rows)})
}

func (h *Handler) RevokeAttendance(c *gin.Context) {
	if err := h.Meetings.RevokeAttendance(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ImportAttendance(c *gin.Context) {
	var in struct {
		Rows []meetings.ImportRow `json:"rows"`
	}
	if !h.bind(c, &in) {
		return
	}
	res, err := h.Meetings.BulkImport(c.Request.Context(), in.Rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
