package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhours/internal/accounts"
	"clubhours/internal/auth"
)

// RegisterAccount creates a login for a student.
func (h *Handler) RegisterAccount(c *gin.Context) {
	var in accounts.Registration
	if !h.bind(c, &in) {
		return
	}
	st, err := h.Accounts.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

type loginRequest struct {
	SNumber  string `json:"s_number"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var in loginRequest
	if !h.bind(c, &in) {
		return
	}
	out, err := h.Accounts.Login(c.Request.Context(), in.SNumber, in.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var in refreshRequest
	if !h.bind(c, &in) {
		return
	}
	out, err := h.Accounts.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Logout ends the caller's session. The refresh token is optional.
func (h *Handler) Logout(c *gin.Context) {
	var in refreshRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &in) {
		return
	}
	if err := h.Accounts.Logout(c.Request.Context(), auth.CurrentSession(c), in.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	sess := auth.CurrentSession(c)
	st, err := h.Accounts.Get(c.Request.Context(), sess.SNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "student": st})
}

type passwordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var in passwordChange
	if !h.bind(c, &in) {
		return
	}
	err := h.Accounts.ChangePassword(c.Request.Context(), auth.CurrentSession(c).SNumber, in.Current, in.New)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var in struct {
		Password string `json:"password"`
	}
	if !h.bind(c, &in) {
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), c.Param("sNumber"), in.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListStudents searches by ?q= or lists students with accounts.
func (h *Handler) ListStudents(c *gin.Context) {
	var (
		out any
		err error
	)
	if q := c.Query("q"); q != "" {
		out, err = h.Accounts.Search(c.Request.Context(), q, queryInt(c, "limit"))
	} else {
		out, err = h.Accounts.List(c.Request.Context(), queryInt(c, "limit"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": out})
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.Accounts.Get(c.Request.Context(), c.Param("sNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) BulkTshirts(c *gin.Context) {
	var in struct {
		Updates []accounts.TshirtUpdate `json:"updates"`
	}
	if !h.bind(c, &in) {
		return
	}
	c.JSON(http.StatusOK, h.Accounts.BulkUpdateTshirtSizes(c.Request.Context(), in.Updates))
}
