// Package handler exposes the club services over HTTP/JSON.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clubhours/internal/accounts"
	"clubhours/internal/announcements"
	"clubhours/internal/apperr"
	"clubhours/internal/auth"
	"clubhours/internal/events"
	"clubhours/internal/hours"
	"clubhours/internal/meetings"
)

// Downloader reads a stored object back from blob storage.
type Downloader interface {
	Download(ctx context.Context, bucket, path string) ([]byte, string, error)
}

// Services are the dependencies of the HTTP layer. Blobs may be nil.
type Services struct {
	Accounts      *accounts.Service
	Hours         *hours.Service
	Meetings      *meetings.Service
	Events        *events.Service
	Announcements *announcements.Service
	Tokens        *auth.Issuer
	Revoked       auth.Revocations
	Blobs         Downloader
}

type Handler struct {
	Services
	log *logrus.Entry
}

func New(s Services, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{Services: s, log: log}
}

// Register mounts every route under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/auth/register", h.RegisterAccount)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)

	user := api.Group("", auth.RequireSession(h.Tokens, h.Revoked))
	{
		user.POST("/auth/logout", h.Logout)
		user.GET("/me", h.Me)
		user.PUT("/me/password", h.ChangePassword)
		user.GET("/me/hours", h.MyHours)
		user.GET("/me/attendance", h.MyAttendance)

		user.POST("/hours", h.SubmitHours)
		user.GET("/hours/:id/photo", h.RequestPhoto)

		user.GET("/meetings", h.ListMeetings)
		user.POST("/meetings/:id/attendance", h.SubmitAttendance)

		user.GET("/events", h.ListEvents)
		user.GET("/events/:id", h.GetEvent)
		user.POST("/events/:id/signup", h.EventSignup)
		user.DELETE("/events/:id/signup", h.EventUnregister)

		user.GET("/announcements", h.ListAnnouncements)
	}

	admin := user.Group("/admin", auth.RequireAdmin())
	{
		admin.GET("/hours", h.ListHourRequests)
		admin.GET("/hours/:id", h.GetHourRequest)
		admin.POST("/hours/:id/review", h.ReviewHours)
		admin.PATCH("/hours/:id", h.EditHourRequest)
		admin.DELETE("/hours/:id", h.DeleteHourRequest)
		admin.GET("/photos", h.PhotoLibrary)

		admin.GET("/students", h.ListStudents)
		admin.GET("/students/:sNumber", h.GetStudent)
		admin.GET("/students/:sNumber/hours", h.StudentHours)
		admin.GET("/students/:sNumber/attendance", h.StudentAttendance)
		admin.POST("/students/:sNumber/adjust", h.AdjustTotal)
		admin.PUT("/students/:sNumber/bucket", h.SetBucket)
		admin.POST("/students/:sNumber/transfer", h.TransferHours)
		admin.PUT("/students/:sNumber/password", h.ResetPassword)
		admin.POST("/students/tshirts", h.BulkTshirts)

		admin.GET("/meetings", h.AdminListMeetings)
		admin.POST("/meetings", h.CreateMeeting)
		admin.GET("/meetings/:id", h.GetMeeting)
		admin.PATCH("/meetings/:id/open", h.SetMeetingOpen)
		admin.POST("/meetings/:id/code", h.RegenerateCode)
		admin.DELETE("/meetings/:id", h.DeleteMeeting)
		admin.GET("/meetings/:id/attendance", h.MeetingAttendance)
		admin.DELETE("/attendance/:id", h.RevokeAttendance)
		admin.POST("/attendance/import", h.ImportAttendance)

		admin.POST("/events", h.CreateEvent)
		admin.PUT("/events/:id", h.UpdateEvent)
		admin.DELETE("/events/:id", h.DeleteEvent)

		admin.POST("/announcements", h.CreateAnnouncement)
		admin.DELETE("/announcements/:id", h.DeleteAnnouncement)
	}
}

// fail writes err as {"error", "kind"} with the status its kind maps to.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	kind := string(apperr.KindOf(err))
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		if kind == "" {
			kind, msg = "internal", "internal error"
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": kind})
}

// bind decodes a JSON body. Field rules are checked by the services.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.Wrap(apperr.InvalidInput, err, "invalid request body"))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// actor names the admin in audit rows.
func actor(s auth.Session) string {
	if s.Name != "" {
		return s.Name
	}
	return s.SNumber
}
