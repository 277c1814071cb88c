package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clubhours/internal/apperr"
	"clubhours/internal/auth"
	"clubhours/internal/hours"
	"clubhours/internal/model"
	"clubhours/internal/photo"
)

// SubmitHours files a request for the caller. Admins may file on behalf of
// another student.
func (h *Handler) SubmitHours(c *gin.Context) {
	var in hours.Submission
	if !h.bind(c, &in) {
		return
	}
	sess := auth.CurrentSession(c)
	if !sess.IsAdmin() || in.StudentSNumber == "" {
		in.StudentSNumber = sess.SNumber
		if in.StudentName == "" {
			in.StudentName = sess.Name
		}
	}
	req, err := h.Hours.Submit(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) MyHours(c *gin.Context) {
	reqs, err := h.Hours.StudentHistory(c.Request.Context(), auth.CurrentSession(c).SNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": nonNil(reqs)})
}

func (h *Handler) StudentHours(c *gin.Context) {
	reqs, err := h.Hours.StudentHistory(c.Request.Context(), c.Param("sNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": nonNil(reqs)})
}

// ListHourRequests serves the review queue. Without a search term and with
// the default status it pages pending requests by ?after=<RFC3339>.
func (h *Handler) ListHourRequests(c *gin.Context) {
	ctx := c.Request.Context()
	status, term := c.Query("status"), c.Query("q")

	var (
		reqs []model.HourRequest
		err  error
	)
	if term == "" && (status == "" || status == string(model.Pending)) {
		var after time.Time
		if v := c.Query("after"); v != "" {
			if after, err = time.Parse(time.RFC3339Nano, v); err != nil {
				h.fail(c, apperr.E(apperr.InvalidInput, "after must be an RFC3339 timestamp"))
				return
			}
		}
		reqs, err = h.Hours.ListPending(ctx, after, queryInt(c, "limit"))
	} else {
		reqs, err = h.Hours.Search(ctx, term, status, queryInt(c, "limit"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": nonNil(reqs)})
}

func (h *Handler) GetHourRequest(c *gin.Context) {
	req, err := h.Hours.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) ReviewHours(c *gin.Context) {
	var d hours.Decision
	if !h.bind(c, &d) {
		return
	}
	d.Reviewer = actor(auth.CurrentSession(c))
	req, err := h.Hours.Review(c.Request.Context(), c.Param("id"), d)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type hourEdit struct {
	Type  *string  `json:"type"`
	Hours *float64 `json:"hours"`
}

// EditHourRequest changes the bucket and/or requested hours of a request.
func (h *Handler) EditHourRequest(c *gin.Context) {
	var in hourEdit
	if !h.bind(c, &in) {
		return
	}
	if in.Type == nil && in.Hours == nil {
		h.fail(c, apperr.E(apperr.InvalidInput, "nothing to change"))
		return
	}
	ctx, id := c.Request.Context(), c.Param("id")
	var (
		req model.HourRequest
		err error
	)
	if in.Type != nil {
		if req, err = h.Hours.ChangeType(ctx, id, *in.Type); err != nil {
			h.fail(c, err)
			return
		}
	}
	if in.Hours != nil {
		if req, err = h.Hours.ChangeHours(ctx, id, *in.Hours); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) DeleteHourRequest(c *gin.Context) {
	if err := h.Hours.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AdjustTotal(c *gin.Context) {
	var in hours.Adjustment
	if !h.bind(c, &in) {
		return
	}
	in.SNumber = c.Param("sNumber")
	in.Admin = actor(auth.CurrentSession(c))
	st, err := h.Hours.AdjustTotal(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) SetBucket(c *gin.Context) {
	var in hours.BucketSet
	if !h.bind(c, &in) {
		return
	}
	in.SNumber = c.Param("sNumber")
	in.Admin = actor(auth.CurrentSession(c))
	st, err := h.Hours.SetBucket(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) TransferHours(c *gin.Context) {
	var in hours.TransferInput
	if !h.bind(c, &in) {
		return
	}
	in.SNumber = c.Param("sNumber")
	in.Admin = actor(auth.CurrentSession(c))
	st, err := h.Hours.Transfer(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// PhotoLibrary lists recent proof photos. Dates are YYYY-MM-DD and ?to is
// inclusive.
func (h *Handler) PhotoLibrary(c *gin.Context) {
	f := hours.LibraryFilter{Status: c.Query("status"), Search: c.Query("q")}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			h.fail(c, apperr.E(apperr.InvalidInput, "from must be YYYY-MM-DD"))
			return
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			h.fail(c, apperr.E(apperr.InvalidInput, "to must be YYYY-MM-DD"))
			return
		}
		f.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	items, err := h.Hours.PhotoLibrary(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": items})
}

// RequestPhoto streams the proof photo of a request. Students only see their
// own.
func (h *Handler) RequestPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	req, att, err := h.Hours.Photo(ctx, c.Param("id"))
	sess := auth.CurrentSession(c)
	if err == nil && !sess.IsAdmin() && req.StudentSNumber != sess.SNumber {
		err = apperr.E(apperr.NotFound, "hour request not found")
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	var (
		data     []byte
		mimeType = att.MimeType()
		name     = req.ImageName
	)
	switch att.Kind() {
	case photo.Inline:
		if data, err = att.Inline.Bytes(); err != nil {
			h.fail(c, apperr.Wrap(apperr.InvalidInput, err, "stored photo is corrupt"))
			return
		}
	case photo.Stored:
		if h.Blobs == nil {
			h.fail(c, apperr.E(apperr.Remote, "photo storage not configured"))
			return
		}
		var ct string
		data, ct, err = h.Blobs.Download(ctx, att.Stored.Bucket, att.Stored.Path)
		if err != nil {
			h.fail(c, apperr.Wrap(apperr.Remote, err, "could not load photo"))
			return
		}
		if ct != "" {
			mimeType = ct
		}
		if name == "" {
			name = att.Stored.FileName
		}
	}
	if name == "" {
		name = photo.FileName([]string{req.StudentSNumber, req.EventName, req.ID}, mimeType)
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, mimeType, data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
