package handler

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
	"classroll/internal/camera"
	"classroll/internal/notify"
)

func (h *Handler) listStudents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"students": h.Store.SearchStudents(c.Query("q"))})
}

func (h *Handler) getStudent(c *gin.Context) {
	st, ok := h.Store.Student(c.Param("id"))
	if !ok {
		writeError(c, attendance.ErrStudentNotFound)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) removeStudent(c *gin.Context) {
	if err := h.Store.RemoveStudent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// addStudent accepts either JSON {name, rollNumber, photo} with photo as a
// data URL, or a multipart form with a "photo" file.
func (h *Handler) addStudent(c *gin.Context) {
	ctx := c.Request.Context()
	var reg attendance.Registration

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUpload+1<<20)
		reg.Name = c.PostForm("name")
		reg.RollNumber = c.PostForm("rollNumber")
		if fh, err := c.FormFile("photo"); err == nil && reg.Name != "" && reg.RollNumber != "" {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "read photo failed"})
				return
			}
			defer f.Close()
			reg.Photo, err = h.storeUploadedPhoto(c, f, fh.Filename)
			if err != nil {
				return
			}
		}
	} else {
		if err := c.ShouldBindJSON(&reg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"name\", \"rollNumber\", \"photo\"}"})
			return
		}
		if reg.Photo != "" && strings.HasPrefix(reg.Photo, "data:") {
			if _, err := camera.DecodeDataURL(reg.Photo); err != nil {
				writeError(c, err)
				return
			}
			if h.Photos != nil {
				res, err := h.Photos.UploadDataURL(ctx, reg.Photo)
				if err != nil {
					h.photoUploadFailed(c, err)
					return
				}
				reg.Photo = res.SecureURL
			}
		}
	}

	if strings.TrimSpace(reg.Name) != "" && strings.TrimSpace(reg.RollNumber) != "" && reg.Photo == "" {
		notify.Send(ctx, h.Notifier, notify.Error, "Please capture a face image")
		writeError(c, attendance.NewValidationError(errPhotoRequired, attendance.FieldError{Field: "Photo", Error: "required"}))
		return
	}

	st, err := h.Store.AddStudent(ctx, reg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

// storeUploadedPhoto checks the file is an image and returns the value to
// keep as the student's imageUrl. It writes the error response itself.
func (h *Handler) storeUploadedPhoto(c *gin.Context, r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, h.MaxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read photo failed"})
		return "", err
	}
	img, _, err := camera.Decode(bytes.NewReader(data), filename)
	if err != nil {
		writeError(c, err)
		return "", err
	}
	if h.Photos != nil {
		res, err := h.Photos.UploadBytes(c.Request.Context(), data, filename)
		if err != nil {
			h.photoUploadFailed(c, err)
			return "", err
		}
		return res.SecureURL, nil
	}
	url, err := camera.PNGDataURL(img)
	if err != nil {
		writeError(c, err)
		return "", err
	}
	return url, nil
}

func (h *Handler) photoUploadFailed(c *gin.Context, err error) {
	log.Printf("photo upload failed: %v", err)
	notify.Send(c.Request.Context(), h.Notifier, notify.Error, "Failed to upload photo")
	c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
}
