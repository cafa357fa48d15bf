package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
	"classroll/internal/export"
	"classroll/internal/metrics"
	"classroll/internal/notify"
)

func (h *Handler) listAttendance(c *gin.Context) {
	var f attendance.Filter
	var ok bool
	if f.Date, ok = dateParam(c, "date"); !ok {
		return
	}
	if f.From, ok = dateParam(c, "from"); !ok {
		return
	}
	if f.To, ok = dateParam(c, "to"); !ok {
		return
	}
	f.StudentID = c.Query("student_id")
	c.JSON(http.StatusOK, gin.H{"records": h.Store.Records(f)})
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Present   *bool  `json:"present"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	present := true
	if req.Present != nil {
		present = *req.Present
	}
	rec, ok, err := h.Store.UpsertAttendance(c.Request.Context(), req.StudentID, present)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, attendance.ErrStudentNotFound)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteAttendance(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	removed, err := h.Store.DeleteRecordsForDate(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "deleted": removed})
}

func (h *Handler) deleteToday(c *gin.Context) {
	removed, err := h.Store.DeleteToday(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": h.Store.Today(), "deleted": removed})
}

func (h *Handler) summary(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	if date == "" {
		c.JSON(http.StatusOK, gin.H{"summaries": h.Store.Summaries()})
		return
	}
	sum, found := h.Store.Summary(date)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance recorded on " + date})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Dashboard())
}

func (h *Handler) report(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	if date == "" {
		date = h.Store.Today()
	}
	c.JSON(http.StatusOK, h.Store.Report(date))
}

func (h *Handler) exportCSV(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	f, err := h.Store.Export(date)
	if err != nil {
		metrics.Exports.WithLabelValues("empty").Inc()
		notify.Send(ctx, h.Notifier, notify.Error, "No attendance records to export")
		writeError(c, err)
		return
	}
	metrics.Exports.WithLabelValues("ok").Inc()
	notify.Send(ctx, h.Notifier, notify.Success, "Attendance exported successfully")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.Data(http.StatusOK, export.ContentType, f.Body)
}
