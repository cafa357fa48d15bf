package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/auth"
	"classroll/internal/camera"
)

// registerDevice enrolls a kiosk that knows the shared enrollment key.
func (h *Handler) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID  string `json:"device_id" binding:"required"`
		EnrollKey string `json:"enroll_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := auth.VerifyEnrollKey(h.EnrollHash, req.EnrollKey); err != nil {
		writeError(c, err)
		return
	}
	tokens, err := h.Issuer.Issue(req.DeviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// pushFrame feeds a kiosk's camera frame to the push camera. The body is
// the raw image.
func (h *Handler) pushFrame(c *gin.Context) {
	if h.Push == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "server is not using a push camera"})
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUpload)
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "frame too large"})
		return
	}
	img, _, err := camera.Decode(&buf, c.Query("filename"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Push.Push(auth.DeviceID(c), img); err != nil {
		if errors.Is(err, camera.ErrClosed) {
			c.JSON(http.StatusConflict, gin.H{"error": "camera is off"})
			return
		}
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
