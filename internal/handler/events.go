package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhours/internal/announcements"
	"clubhours/internal/auth"
	"clubhours/internal/events"
)

func (h *Handler) ListEvents(c *gin.Context) {
	list, err := h.Events.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": nonNil(list)})
}

func (h *Handler) GetEvent(c *gin.Context) {
	e, err := h.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var in events.Input
	if !h.bind(c, &in) {
		return
	}
	e, err := h.Events.Create(c.Request.Context(), in, actor(auth.CurrentSession(c)))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) UpdateEvent(c *gin.Context) {
	var in events.Input
	if !h.bind(c, &in) {
		return
	}
	e, err := h.Events.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	if err := h.Events.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EventSignup registers the caller for an event.
func (h *Handler) EventSignup(c *gin.Context) {
	var in events.SignupInput
	if !h.bind(c, &in) {
		return
	}
	sess := auth.CurrentSession(c)
	in.SNumber = sess.SNumber
	if in.Name == "" {
		in.Name = sess.Name
	}
	a, err := h.Events.Signup(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// EventUnregister cancels the caller's signup. ?email= matches signups made
// before the student had an account.
func (h *Handler) EventUnregister(c *gin.Context) {
	err := h.Events.Unregister(c.Request.Context(), c.Param("id"), c.Query("email"), auth.CurrentSession(c).SNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListAnnouncements(c *gin.Context) {
	list, err := h.Announcements.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": list})
}

func (h *Handler) CreateAnnouncement(c *gin.Context) {
	var in announcements.Input
	if !h.bind(c, &in) {
		return
	}
	a, err := h.Announcements.Create(c.Request.Context(), in, actor(auth.CurrentSession(c)))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) DeleteAnnouncement(c *gin.Context) {
	if err := h.Announcements.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
