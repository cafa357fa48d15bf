// Package recognition simulates face recognition: it polls a camera,
// decides whether a face is in view and, now and then, marks a not yet
// recognized student present.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"classroll/internal/camera"
	"classroll/internal/metrics"
	"classroll/internal/model"
	"classroll/internal/notify"
)

// State of a recognition session.
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateDetected    State = "detected"
	StateNotDetected State = "not-detected"
)

// Marker is the slice of the attendance store the simulator needs.
type Marker interface {
	Unrecognized(exclude map[string]bool) []model.Student
	UpsertAttendance(ctx context.Context, studentID string, present bool) (model.AttendanceRecord, bool, error)
}

// Config tunes the polling loop.
type Config struct {
	Interval             time.Duration // time between samples
	SustainFrames        int           // consecutive detections before a recognition may fire
	MinDwell             time.Duration // minimum gap between two recognitions
	RecognizeProbability float64       // chance a sustained detection recognizes someone
	BannerTTL            time.Duration // how long LastRecognized stays in Status
	EvalWidth            int           // frames are downscaled to fit EvalWidth x EvalHeight
	EvalHeight           int
}

// DefaultConfig returns the tuning used by the API server.
func DefaultConfig() Config {
	return Config{
		Interval:             500 * time.Millisecond,
		SustainFrames:        2,
		MinDwell:             1500 * time.Millisecond,
		RecognizeProbability: 0.3,
		BannerTTL:            3 * time.Second,
		EvalWidth:            640,
		EvalHeight:           480,
	}
}

// Status is a point-in-time view of the simulator.
type Status struct {
	State            State      `json:"state"`
	Active           bool       `json:"active"`
	CameraOn         bool       `json:"cameraOn"`
	FaceDetected     bool       `json:"faceDetected"`
	Recognized       []string   `json:"recognized"`
	LastRecognized   string     `json:"lastRecognized,omitempty"`
	LastRecognizedAt *time.Time `json:"lastRecognizedAt,omitempty"`
}

var (
	ErrNoFace        = errors.New("no faces detected in the image")
	ErrAllRecognized = errors.New("all students have already been recognized")
	ErrCameraOff     = errors.New("camera is off")
)

// Simulator runs at most one recognition session at a time.
type Simulator struct {
	cfg      Config
	cam      camera.Source
	eval     FrameEvaluator
	marker   Marker
	notifier notify.Notifier
	rnd      Rand
	now      func() time.Time

	mu         sync.Mutex
	cameraOn   bool
	ownsCamera bool // camera was opened by Start and is released by Stop
	active     bool
	gen        uint64
	state      State
	face       bool
	streak     int
	recognized []string
	seen       map[string]bool
	lastMark   time.Time
	lastName   string
	lastAt     time.Time
	cancel     context.CancelFunc
	done       chan struct{}

	inFlight atomic.Bool
	evals    sync.WaitGroup
}

// New wires a simulator. Zero Config fields fall back to DefaultConfig.
func New(cfg Config, cam camera.Source, eval FrameEvaluator, marker Marker, notifier notify.Notifier, rnd Rand) *Simulator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.SustainFrames <= 0 {
		cfg.SustainFrames = def.SustainFrames
	}
	if cfg.BannerTTL <= 0 {
		cfg.BannerTTL = def.BannerTTL
	}
	if cfg.EvalWidth <= 0 || cfg.EvalHeight <= 0 {
		cfg.EvalWidth, cfg.EvalHeight = def.EvalWidth, def.EvalHeight
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	if rnd == nil {
		rnd = NewRand()
	}
	return &Simulator{
		cfg:      cfg,
		cam:      cam,
		eval:     eval,
		marker:   marker,
		notifier: notifier,
		rnd:      rnd,
		now:      time.Now,
		state:    StateIdle,
		seen:     make(map[string]bool),
	}
}

// CameraOn acquires the camera without starting recognition.
func (s *Simulator) CameraOn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cameraOn {
		s.ownsCamera = false
		return nil
	}
	if err := s.openCameraLocked(ctx); err != nil {
		return err
	}
	notify.Send(ctx, s.notifier, notify.Success, "Camera connected successfully")
	return nil
}

func (s *Simulator) openCameraLocked(ctx context.Context) error {
	if err := s.cam.Open(ctx); err != nil {
		log.Printf("error accessing camera: %v", err)
		notify.Send(ctx, s.notifier, notify.Error, "Failed to access camera. Please check permissions.")
		return fmt.Errorf("open camera: %w", err)
	}
	s.cameraOn = true
	return nil
}

// CameraOff stops any running session and releases the camera.
func (s *Simulator) CameraOff() error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cameraOn {
		return nil
	}
	s.cameraOn = false
	s.ownsCamera = false
	return s.cam.Close()
}

// Start begins a recognition session, opening the camera when needed.
// A camera failure leaves the simulator idle.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}
	if !s.cameraOn {
		if err := s.openCameraLocked(ctx); err != nil {
			s.state = StateIdle
			return err
		}
		s.ownsCamera = true
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.active = true
	s.gen++
	s.state = StateScanning
	s.streak = 0
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	metrics.SessionActive.Set(1)
	notify.Send(ctx, s.notifier, notify.Info, "Face recognition started")
	return nil
}

// Stop ends the session: the loop exits, any in-flight evaluation is
// awaited, the recognized set is cleared and a camera opened by Start is
// released.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.active = false
	s.gen++
	s.state = StateIdle
	s.face = false
	s.streak = 0
	s.recognized = nil
	s.seen = make(map[string]bool)
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	s.evals.Wait()

	if r, ok := s.eval.(Resetter); ok {
		r.Reset()
	}
	metrics.SessionActive.Set(0)

	s.mu.Lock()
	if s.ownsCamera && !s.active {
		s.ownsCamera = false
		s.cameraOn = false
		if err := s.cam.Close(); err != nil {
			log.Printf("release camera: %v", err)
		}
	}
	s.mu.Unlock()
	notify.Send(context.Background(), s.notifier, notify.Info, "Face recognition stopped")
}

// Close releases everything; used on shutdown.
func (s *Simulator) Close() error {
	return s.CameraOff()
}

func (s *Simulator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

// tick starts an evaluation unless the previous one is still running.
func (s *Simulator) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		metrics.FramesSkipped.WithLabelValues("busy").Inc()
		return
	}
	s.evals.Add(1)
	go func() {
		defer s.evals.Done()
		defer s.inFlight.Store(false)
		s.sample(ctx)
	}()
}

func (s *Simulator) sample(ctx context.Context) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	img, err := s.cam.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrNoFrame) {
			metrics.FramesSkipped.WithLabelValues("no_frame").Inc()
			return
		}
		if ctx.Err() == nil {
			log.Printf("camera snapshot failed: %v", err)
			metrics.FramesSkipped.WithLabelValues("error").Inc()
		}
		return
	}
	metrics.FramesSampled.Inc()

	s.mu.Lock()
	if s.active && s.gen == gen {
		s.state = StateScanning
	}
	s.mu.Unlock()

	det, err := s.eval.Evaluate(ctx, camera.Fit(img, s.cfg.EvalWidth, s.cfg.EvalHeight))
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("error in face detection: %v", err)
			notify.Send(ctx, s.notifier, notify.Error, "Error processing video frame")
		}
		return
	}

	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		return
	}
	if !det.Detected {
		s.state = StateNotDetected
		s.face = false
		s.streak = 0
		s.mu.Unlock()
		metrics.Detections.WithLabelValues("not_detected").Inc()
		return
	}
	metrics.Detections.WithLabelValues("detected").Inc()
	s.state = StateDetected
	s.face = true
	s.streak++
	now := s.now()
	sustained := s.streak >= s.cfg.SustainFrames &&
		(s.lastMark.IsZero() || now.Sub(s.lastMark) >= s.cfg.MinDwell)
	if !sustained || s.rnd.Float64() >= s.cfg.RecognizeProbability {
		s.mu.Unlock()
		return
	}
	exclude := s.excludeLocked()
	s.mu.Unlock()

	candidates := s.marker.Unrecognized(exclude)
	if len(candidates) == 0 {
		return
	}
	pick := candidates[s.rnd.Intn(len(candidates))]
	if s.mark(ctx, gen, pick) {
		metrics.Recognitions.WithLabelValues("camera").Inc()
	}
}

func (s *Simulator) excludeLocked() map[string]bool {
	out := make(map[string]bool, len(s.seen))
	for id := range s.seen {
		out[id] = true
	}
	return out
}

// mark records st as present and adds it to the session set if the session
// that picked it is still the current one.
func (s *Simulator) mark(ctx context.Context, gen uint64, st model.Student) bool {
	_, ok, err := s.marker.UpsertAttendance(ctx, st.ID, true)
	if err != nil || !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lastMark = now
	s.lastName = st.Name
	s.lastAt = now
	if s.gen == gen && !s.seen[st.ID] {
		s.seen[st.ID] = true
		s.recognized = append(s.recognized, st.ID)
	}
	return true
}

// Capture returns the current camera frame, for registration photos.
func (s *Simulator) Capture(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	on := s.cameraOn
	s.mu.Unlock()
	if !on {
		return nil, ErrCameraOff
	}
	return s.cam.Snapshot(ctx)
}

// Status returns a snapshot of the session.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:        s.state,
		Active:       s.active,
		CameraOn:     s.cameraOn,
		FaceDetected: s.face,
		Recognized:   append([]string{}, s.recognized...),
	}
	if s.lastName != "" && s.now().Sub(s.lastAt) < s.cfg.BannerTTL {
		at := s.lastAt
		st.LastRecognized = s.lastName
		st.LastRecognizedAt = &at
	}
	return st
}
