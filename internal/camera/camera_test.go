package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chai2010/webp"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPushCamera(t *testing.T) {
	ctx := context.Background()
	c := NewPushCamera()

	if err := c.Push("kiosk-1", solid(2, 2, color.White)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Push while closed = %v", err)
	}
	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Snapshot while closed = %v", err)
	}

	_ = c.Open(ctx)
	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Snapshot before any frame = %v", err)
	}
	frame := solid(4, 3, color.Black)
	if err := c.Push("kiosk-1", frame); err != nil {
		t.Fatal(err)
	}
	got, err := c.Snapshot(ctx)
	if err != nil || got.Bounds().Dx() != 4 {
		t.Fatalf("Snapshot = %v, %v", got, err)
	}
	if c.Device() != "kiosk-1" {
		t.Errorf("Device = %q", c.Device())
	}

	_ = c.Close()
	_ = c.Open(ctx)
	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrNoFrame) {
		t.Fatal("Close must drop the buffered frame")
	}
}

func TestDecode(t *testing.T) {
	src := solid(8, 6, color.NRGBA{R: 200, G: 150, B: 100, A: 255})

	var wbuf bytes.Buffer
	if err := webp.Encode(&wbuf, src, &webp.Options{Lossless: true}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		data     []byte
		filename string
		format   string
		wantErr  bool
	}{
		{"png", pngBytes(t, src), "a.png", "png", false},
		{"webp", wbuf.Bytes(), "a.webp", "webp", false},
		{"empty", nil, "a.png", "", true},
		{"garbage", []byte("definitely not an image"), "a.jpg", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := Decode(bytes.NewReader(tt.data), tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrUnreadableImage) {
					t.Fatalf("err = %v, want ErrUnreadableImage", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if format != tt.format || img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
				t.Fatalf("format=%s bounds=%v", format, img.Bounds())
			}
		})
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	url, err := PNGDataURL(solid(3, 3, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("url = %.40s", url)
	}
	img, err := DecodeDataURL(url)
	if err != nil || img.Bounds().Dx() != 3 {
		t.Fatalf("DecodeDataURL = %v, %v", img, err)
	}

	bare := base64.StdEncoding.EncodeToString(pngBytes(t, solid(2, 2, color.Black)))
	if _, err := DecodeDataURL(bare); err != nil {
		t.Fatalf("bare base64: %v", err)
	}
	if _, err := DecodeDataURL("data:image/png;base64,@@@"); !errors.Is(err, ErrUnreadableImage) {
		t.Fatalf("bad base64: %v", err)
	}
}

func TestFit(t *testing.T) {
	small := solid(10, 10, color.White)
	if Fit(small, 20, 20) != image.Image(small) {
		t.Error("small image should be returned as is")
	}
	big := Fit(solid(200, 100, color.White), 50, 50)
	if b := big.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("Fit bounds = %v, want 50x25", b)
	}
}

func TestHTTPCamera(t *testing.T) {
	frame := pngBytes(t, solid(16, 9, color.White))
	var served bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/snapshot":
			if r.URL.Query().Get("width") != "320" || r.URL.Query().Get("height") != "180" {
				http.Error(w, "bad size", http.StatusBadRequest)
				return
			}
			if !served {
				served = true
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(frame)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewHTTPCamera(srv.URL, 320, 180)
	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Snapshot before Open = %v", err)
	}
	if err := c.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Snapshot(ctx); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("204 should mean no frame, got %v", err)
	}
	img, err := c.Snapshot(ctx)
	if err != nil || img.Bounds().Dx() != 16 {
		t.Fatalf("Snapshot = %v, %v", img, err)
	}
}

func TestHTTPCameraOpenErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"forbidden", http.StatusForbidden, ErrPermissionDenied},
		{"unauthorized", http.StatusUnauthorized, ErrPermissionDenied},
		{"broken", http.StatusInternalServerError, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			if err := NewHTTPCamera(srv.URL, 0, 0).Open(context.Background()); !errors.Is(err, tt.want) {
				t.Fatalf("Open = %v, want %v", err, tt.want)
			}
		})
	}

	if err := NewHTTPCamera("", 0, 0).Open(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("no url: %v", err)
	}
}
