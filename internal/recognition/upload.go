package recognition

import (
	"context"
	"fmt"
	"io"
	"log"

	"classroll/internal/camera"
	"classroll/internal/metrics"
	"classroll/internal/model"
	"classroll/internal/notify"
)

// reference frame size for the "how many faces could this image hold" guess
const (
	refWidth  = 1280
	refHeight = 720
)

// UploadResult lists the students recognized in an uploaded image.
type UploadResult struct {
	Detection  Detection       `json:"detection"`
	Recognized []model.Student `json:"recognized"`
}

// RecognizeUpload evaluates a single still image. When a face is found it
// marks a random-sized batch of not yet recognized students present, larger
// images allowing larger batches.
func (s *Simulator) RecognizeUpload(ctx context.Context, r io.Reader, filename string) (UploadResult, error) {
	res := UploadResult{Recognized: []model.Student{}}

	img, _, err := camera.Decode(r, filename)
	if err != nil {
		notify.Send(ctx, s.notifier, notify.Error, "Failed to read image")
		return res, err
	}

	frame := camera.Fit(img, s.cfg.EvalWidth, s.cfg.EvalHeight)
	var det Detection
	if still, ok := s.eval.(StillEvaluator); ok {
		det, err = still.EvaluateOnce(ctx, frame)
	} else {
		det, err = s.eval.Evaluate(ctx, frame)
	}
	if err != nil {
		log.Printf("face detection error: %v", err)
		notify.Send(ctx, s.notifier, notify.Error, "Error processing image")
		return res, fmt.Errorf("evaluate upload: %w", err)
	}
	res.Detection = det
	if !det.Detected {
		notify.Send(ctx, s.notifier, notify.Error, "No faces detected in the uploaded image")
		return res, ErrNoFace
	}

	s.mu.Lock()
	gen := s.gen
	exclude := s.excludeLocked()
	s.mu.Unlock()

	remaining := s.marker.Unrecognized(exclude)
	b := img.Bounds()
	sizeScore := min(1, float64(b.Dx()*b.Dy())/float64(refWidth*refHeight))
	maxDetections := min(int(sizeScore*3)+1, len(remaining))
	if maxDetections <= 0 {
		notify.Send(ctx, s.notifier, notify.Info, "All students have already been recognized")
		return res, ErrAllRecognized
	}

	count := max(1, int(s.rnd.Float64()*float64(maxDetections)))
	for _, st := range remaining[:count] {
		if s.mark(ctx, gen, st) {
			res.Recognized = append(res.Recognized, st)
			metrics.Recognitions.WithLabelValues("upload").Inc()
		}
	}
	notify.Send(ctx, s.notifier, notify.Success, fmt.Sprintf("Recognized %d student(s) in the image", len(res.Recognized)))
	return res, nil
}
