// Package handler exposes the attendance store and the recognition
// simulator over HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/camera"
	"classroll/internal/cloudinary"
	"classroll/internal/export"
	"classroll/internal/model"
	"classroll/internal/notify"
	"classroll/internal/recognition"
)

var errPhotoRequired = errors.New("please capture a face image")

// PhotoStore keeps registration photos somewhere other than the roster.
type PhotoStore interface {
	UploadDataURL(ctx context.Context, dataURL string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// Deps are the collaborators the routes need. Photos and Push may be nil.
type Deps struct {
	Store      *attendance.Store
	Simulator  *recognition.Simulator
	Feed       *notify.Feed
	Notifier   notify.Notifier
	Photos     PhotoStore
	Push       *camera.PushCamera
	Issuer     *auth.Issuer
	EnrollHash string
	MaxUpload  int64

	// DeviceLimit, when set, runs after DeviceAuth on device routes.
	DeviceLimit gin.HandlerFunc
}

// Handler serves the JSON API.
type Handler struct {
	Deps
}

// New returns a Handler; a nil Notifier discards messages.
func New(d Deps) *Handler {
	if d.Notifier == nil {
		d.Notifier = notify.Discard
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = camera.MaxFrameBytes
	}
	return &Handler{Deps: d}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	dev := r.Group("/v1")
	dev.POST("/devices/register", h.registerDevice)
	dev.POST("/devices/refresh", h.refreshDevice)
	frames := []gin.HandlerFunc{auth.DeviceAuth(h.Issuer)}
	if h.DeviceLimit != nil {
		frames = append(frames, h.DeviceLimit)
	}
	dev.POST("/frames", append(frames, h.pushFrame)...)

	api := r.Group("/api")
	api.GET("/students", h.listStudents)
	api.POST("/students", h.addStudent)
	api.GET("/students/:id", h.getStudent)
	api.DELETE("/students/:id", h.removeStudent)

	api.GET("/attendance", h.listAttendance)
	api.POST("/attendance", h.markAttendance)
	api.DELETE("/attendance", h.deleteAttendance)
	api.DELETE("/attendance/today", h.deleteToday)
	api.GET("/summary", h.summary)
	api.GET("/dashboard", h.dashboard)
	api.GET("/report", h.report)
	api.GET("/export", h.exportCSV)

	api.POST("/recognition/start", h.startRecognition)
	api.POST("/recognition/stop", h.stopRecognition)
	api.GET("/recognition/status", h.recognitionStatus)
	api.POST("/recognition/upload", h.uploadRecognition)
	api.POST("/camera/on", h.cameraOn)
	api.POST("/camera/off", h.cameraOff)
	api.GET("/camera/snapshot", h.snapshot)

	api.GET("/notifications", h.notifications)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	storageOK := h.Store.Healthy(ctx)
	status := http.StatusOK
	if !storageOK {
		status = http.StatusServiceUnavailable
	}
	rs := h.Simulator.Status()
	c.JSON(status, gin.H{
		"status":      http.StatusText(status),
		"storage":     storageOK,
		"camera":      rs.CameraOn,
		"recognition": rs.State,
	})
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	var ve *attendance.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Err.Error(), "fields": ve.Fields})
	case errors.Is(err, camera.ErrUnreadableImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrDuplicateRoll):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, export.ErrEmptySelection),
		errors.Is(err, recognition.ErrNoFace),
		errors.Is(err, recognition.ErrAllRecognized):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, camera.ErrPermissionDenied),
		errors.Is(err, camera.ErrUnavailable),
		errors.Is(err, camera.ErrNoFrame),
		errors.Is(err, camera.ErrClosed),
		errors.Is(err, recognition.ErrCameraOff):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrEnrollRefused):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongType):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	default:
		log.Printf("request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// dateParam reads an optional YYYY-MM-DD query parameter.
func dateParam(c *gin.Context, name string) (string, bool) {
	v := c.Query(name)
	if v == "" {
		return "", true
	}
	if _, err := time.Parse(model.DateLayout, v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be YYYY-MM-DD"})
		return "", false
	}
	return v, true
}
