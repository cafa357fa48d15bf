package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HTTPCamera pulls JPEG snapshots from a network camera.
type HTTPCamera struct {
	BaseURL string
	Width   int
	Height  int
	HTTP    *http.Client

	mu   sync.Mutex
	open bool
}

// NewHTTPCamera creates a client asking for width x height frames.
func NewHTTPCamera(baseURL string, width, height int) *HTTPCamera {
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	return &HTTPCamera{
		BaseURL: baseURL,
		Width:   width,
		Height:  height,
		HTTP: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Open probes the camera's health endpoint.
func (c *HTTPCamera) Open(ctx context.Context) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: no camera url configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return nil
}

// Snapshot fetches and decodes one frame.
func (c *HTTPCamera) Snapshot(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return nil, ErrClosed
	}

	url := c.BaseURL + "/snapshot?width=" + strconv.Itoa(c.Width) + "&height=" + strconv.Itoa(c.Height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoFrame
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	img, _, err := Decode(bytes.NewReader(data), "snapshot")
	return img, err
}

// Close marks the camera released. The device itself keeps no session.
func (c *HTTPCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, resp.Status)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrUnavailable, resp.Status, string(body))
	}
	return nil
}
