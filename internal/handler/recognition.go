package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classroll/internal/camera"
	"classroll/internal/notify"
)

func (h *Handler) startRecognition(c *gin.Context) {
	if err := h.Simulator.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Simulator.Status())
}

func (h *Handler) stopRecognition(c *gin.Context) {
	h.Simulator.Stop()
	c.JSON(http.StatusOK, h.Simulator.Status())
}

func (h *Handler) recognitionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Simulator.Status())
}

func (h *Handler) cameraOn(c *gin.Context) {
	if err := h.Simulator.CameraOn(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Simulator.Status())
}

func (h *Handler) cameraOff(c *gin.Context) {
	if err := h.Simulator.CameraOff(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Simulator.Status())
}

// uploadRecognition runs recognition once on a multipart "image" file.
func (h *Handler) uploadRecognition(c *gin.Context) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUpload+1<<20)
	fh, err := c.FormFile("image")
	if err != nil {
		notify.Send(ctx, h.Notifier, notify.Error, "Failed to read file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file field required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		notify.Send(ctx, h.Notifier, notify.Error, "Failed to read file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image failed"})
		return
	}
	defer f.Close()

	res, err := h.Simulator.RecognizeUpload(ctx, f, fh.Filename)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// snapshot captures the current frame as a PNG data URL for registration.
func (h *Handler) snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	img, err := h.Simulator.Capture(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	url, err := camera.PNGDataURL(img)
	if err != nil {
		writeError(c, err)
		return
	}
	notify.Send(ctx, h.Notifier, notify.Success, "Image captured successfully")
	c.JSON(http.StatusOK, gin.H{"photo": url})
}

func (h *Handler) notifications(c *gin.Context) {
	var after uint64
	if v := c.Query("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a sequence number"})
			return
		}
		after = parsed
	}
	c.JSON(http.StatusOK, gin.H{"notifications": h.Feed.Since(after)})
}
