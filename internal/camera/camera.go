// Package camera provides the frame sources the recognition loop samples:
// a network camera with a snapshot endpoint, and a buffer fed by kiosk
// devices pushing frames over HTTP.
package camera

import (
	"context"
	"errors"
	"image"
	"sync"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrUnavailable      = errors.New("camera unavailable")
	ErrNoFrame          = errors.New("no frame available yet")
	ErrClosed           = errors.New("camera not open")
)

// Source is a camera that must be opened before use and closed afterwards.
type Source interface {
	Open(ctx context.Context) error
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// PushCamera holds the latest frame pushed by a device.
type PushCamera struct {
	mu     sync.Mutex
	open   bool
	latest image.Image
	device string
}

// NewPushCamera returns a closed PushCamera.
func NewPushCamera() *PushCamera {
	return &PushCamera{}
}

// Open starts accepting frames.
func (c *PushCamera) Open(context.Context) error {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return nil
}

// Push replaces the buffered frame. Frames pushed while closed are dropped
// and reported as ErrClosed.
func (c *PushCamera) Push(deviceID string, img image.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosed
	}
	c.latest = img
	c.device = deviceID
	return nil
}

// Snapshot returns the most recent frame.
func (c *PushCamera) Snapshot(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrClosed
	}
	if c.latest == nil {
		return nil, ErrNoFrame
	}
	return c.latest, nil
}

// Device returns the id of the device that pushed the current frame.
func (c *PushCamera) Device() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Close stops accepting frames and drops the buffer.
func (c *PushCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.latest = nil
	c.device = ""
	c.mu.Unlock()
	return nil
}
