package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"classroll/internal/attendance"
	"classroll/internal/camera"
	"classroll/internal/store"
)

type fakeCamera struct {
	mu      sync.Mutex
	openErr error
	open    bool
	opens   int
	closes  int
}

func (c *fakeCamera) Open(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.open = true
	c.opens++
	return nil
}

func (c *fakeCamera) Snapshot(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, camera.ErrClosed
	}
	return solid(8, 8, skinTone), nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closes++
	return nil
}

func (c *fakeCamera) counts() (opens, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens, c.closes
}

func newRoster(t *testing.T, names ...string) *attendance.Store {
	t.Helper()
	s, err := attendance.Open(context.Background(), store.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range names {
		_, err := s.AddStudent(context.Background(), attendance.Registration{
			Name:       name,
			RollNumber: string(rune('A' + i)),
			Photo:      "data:image/png;base64,AAAA",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func fastConfig() Config {
	return Config{
		Interval:             2 * time.Millisecond,
		SustainFrames:        2,
		RecognizeProbability: 0.3,
		BannerTTL:            time.Minute,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func alwaysDetect(n int) *ScriptedEvaluator {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return NewScriptedEvaluator(out...)
}

func TestStartCameraFailureStaysIdle(t *testing.T) {
	cam := &fakeCamera{openErr: camera.ErrPermissionDenied}
	sim := New(fastConfig(), cam, NewScriptedEvaluator(), newRoster(t, "A"), nil, FixedRand(0, 0))

	err := sim.Start(context.Background())
	if !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("Start = %v", err)
	}
	st := sim.Status()
	if st.Active || st.CameraOn || st.State != StateIdle {
		t.Fatalf("status after failed start = %+v", st)
	}
}

func TestSessionRecognizesEachStudentOnce(t *testing.T) {
	roster := newRoster(t, "Alice", "Bob", "Carol")
	cam := &fakeCamera{}
	sim := New(fastConfig(), cam, alwaysDetect(1000), roster, nil, FixedRand(0, 0))

	if err := sim.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "all three recognized", func() bool { return len(sim.Status().Recognized) == 3 })
	// keep sampling with nobody left to recognize
	time.Sleep(20 * time.Millisecond)

	st := sim.Status()
	if !st.Active || !st.FaceDetected || st.LastRecognized == "" {
		t.Fatalf("status = %+v", st)
	}
	seen := map[string]bool{}
	for _, id := range st.Recognized {
		if seen[id] {
			t.Fatalf("%s recognized twice", id)
		}
		seen[id] = true
	}
	if n := len(roster.Records(attendance.Filter{})); n != 3 {
		t.Fatalf("%d records, want 3", n)
	}

	sim.Stop()
	st = sim.Status()
	if st.Active || st.CameraOn || st.State != StateIdle || len(st.Recognized) != 0 {
		t.Fatalf("status after stop = %+v", st)
	}
	if _, closes := cam.counts(); closes != 1 {
		t.Fatalf("camera closed %d times, want 1", closes)
	}

	// a new session starts with an empty set; records stay one per student per day
	if err := sim.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second session", func() bool { return len(sim.Status().Recognized) == 3 })
	sim.Stop()
	if n := len(roster.Records(attendance.Filter{})); n != 3 {
		t.Fatalf("%d records after second session, want 3", n)
	}
}

func TestSustainRequiredBeforeRecognition(t *testing.T) {
	roster := newRoster(t, "Alice")
	// detections never come twice in a row
	eval := NewScriptedEvaluator(true, false, true, false, true, false)
	sim := New(fastConfig(), &fakeCamera{}, eval, roster, nil, FixedRand(0, 0))

	if err := sim.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "script consumed", func() bool { return eval.Calls() >= 8 })
	st := sim.Status()
	sim.Stop()

	if len(st.Recognized) != 0 {
		t.Fatalf("isolated detections recognized %v", st.Recognized)
	}
	if st.FaceDetected {
		t.Fatalf("status = %+v", st)
	}
}

func TestRecognitionProbabilityGate(t *testing.T) {
	roster := newRoster(t, "Alice")
	eval := alwaysDetect(1000)
	sim := New(fastConfig(), &fakeCamera{}, eval, roster, nil, FixedRand(0.5, 0))

	if err := sim.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "several frames", func() bool { return eval.Calls() >= 10 })
	st := sim.Status()
	sim.Stop()
	if len(st.Recognized) != 0 || !st.FaceDetected {
		t.Fatalf("draw above probability must not recognize: %+v", st)
	}
}

func TestMinDwellBetweenRecognitions(t *testing.T) {
	roster := newRoster(t, "Alice", "Bob")
	cfg := fastConfig()
	cfg.MinDwell = time.Hour
	eval := alwaysDetect(1000)
	sim := New(cfg, &fakeCamera{}, eval, roster, nil, FixedRand(0, 0))

	if err := sim.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first recognition", func() bool { return len(sim.Status().Recognized) == 1 })
	calls := eval.Calls()
	waitFor(t, "more frames", func() bool { return eval.Calls() >= calls+10 })
	st := sim.Status()
	sim.Stop()
	if len(st.Recognized) != 1 {
		t.Fatalf("dwell should block a second recognition, got %v", st.Recognized)
	}
}

// overlapEvaluator blocks until released and records how many evaluations
// ever ran at the same time.
type overlapEvaluator struct {
	release chan struct{}
	active  atomic.Int32
	max     atomic.Int32
	started atomic.Int32
}

func (e *overlapEvaluator) Evaluate(ctx context.Context, _ image.Image) (Detection, error) {
	e.started.Add(1)
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.max.Load()
		if n <= m || e.max.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case <-e.release:
	case <-ctx.Done():
		return Detection{}, ctx.Err()
	}
	return Detection{}, nil
}

func TestBusyTicksAreSkipped(t *testing.T) {
	eval := &overlapEvaluator{release: make(chan struct{})}
	sim := New(fastConfig(), &fakeCamera{}, eval, newRoster(t, "Alice"), nil, FixedRand(0, 0))

	if err := sim.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first evaluation", func() bool { return eval.started.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	if got := eval.started.Load(); got != 1 {
		t.Fatalf("%d evaluations started while one was in flight", got)
	}
	eval.release <- struct{}{}
	waitFor(t, "next evaluation", func() bool { return eval.started.Load() >= 2 })

	sim.Stop()
	if eval.max.Load() != 1 {
		t.Fatalf("max concurrent evaluations = %d", eval.max.Load())
	}
}

func TestCameraOnSurvivesStop(t *testing.T) {
	cam := &fakeCamera{}
	sim := New(fastConfig(), cam, NewScriptedEvaluator(), newRoster(t, "Alice"), nil, FixedRand(0, 0))
	ctx := context.Background()

	if _, err := sim.Capture(ctx); !errors.Is(err, ErrCameraOff) {
		t.Fatalf("Capture with camera off = %v", err)
	}
	if err := sim.CameraOn(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sim.Start(ctx); err != nil {
		t.Fatal(err)
	}
	sim.Stop()
	if !sim.Status().CameraOn {
		t.Fatal("explicitly opened camera should stay on after Stop")
	}
	if img, err := sim.Capture(ctx); err != nil || img == nil {
		t.Fatalf("Capture = %v, %v", img, err)
	}

	if err := sim.CameraOff(); err != nil {
		t.Fatal(err)
	}
	opens, closes := cam.counts()
	if opens != 1 || closes != 1 || sim.Status().CameraOn {
		t.Fatalf("opens=%d closes=%d status=%+v", opens, closes, sim.Status())
	}
}

func TestStatusBannerExpires(t *testing.T) {
	roster := newRoster(t, "Alice")
	sim := New(fastConfig(), &fakeCamera{}, NewScriptedEvaluator(true), roster, nil, FixedRand(0, 0))
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	sim.now = func() time.Time { return now }

	st := roster.Students()[0]
	if !sim.mark(context.Background(), 0, st) {
		t.Fatal("mark failed")
	}
	if got := sim.Status().LastRecognized; got != "Alice" {
		t.Fatalf("LastRecognized = %q", got)
	}
	now = now.Add(2 * time.Minute)
	if got := sim.Status().LastRecognized; got != "" {
		t.Fatalf("banner should expire, got %q", got)
	}
}

func pngReader(t *testing.T, w, h int) *bytes.Reader {
	t.Helper()
	return pngOf(t, w, h, color.White)
}

func pngOf(t *testing.T, w, h int, c color.Color) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h, c)); err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestRecognizeUpload(t *testing.T) {
	ctx := context.Background()
	roster := newRoster(t, "Alice", "Bob")
	sim := New(fastConfig(), &fakeCamera{}, alwaysDetect(10), roster, nil, FixedRand(0.99, 0))

	// a small image allows a single recognition, taken in roster order
	for _, want := range []string{"Alice", "Bob"} {
		res, err := sim.RecognizeUpload(ctx, pngReader(t, 64, 64), "class.png")
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Recognized) != 1 || res.Recognized[0].Name != want {
			t.Fatalf("recognized %+v, want %s", res.Recognized, want)
		}
	}

	if _, err := sim.RecognizeUpload(ctx, pngReader(t, 64, 64), "class.png"); !errors.Is(err, ErrAllRecognized) {
		t.Fatalf("third upload = %v", err)
	}
	if n := len(roster.Records(attendance.Filter{})); n != 2 {
		t.Fatalf("%d records, want 2", n)
	}
}

func TestRecognizeUploadBatchSize(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E"}
	roster := newRoster(t, names...)
	sim := New(fastConfig(), &fakeCamera{}, alwaysDetect(1), roster, nil, FixedRand(0.99, 0))

	// full reference size: up to 4 faces, 0.99 of that rounds down to 3
	res, err := sim.RecognizeUpload(context.Background(), pngReader(t, 1280, 720), "big.png")
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, 0, len(res.Recognized))
	for _, st := range res.Recognized {
		got = append(got, st.Name)
	}
	if len(got) != 3 || got[0] != "A" || got[2] != "C" {
		t.Fatalf("recognized %v, want [A B C]", got)
	}
}

func TestRecognizeUploadIgnoresLiveHistory(t *testing.T) {
	ctx := context.Background()
	roster := newRoster(t, "Alice")
	eval := NewHeuristicEvaluator(DefaultHeuristicConfig(), FixedRand(0.5, 0))
	sim := New(fastConfig(), &fakeCamera{}, eval, roster, nil, FixedRand(0.99, 0))

	// a run of dark live frames pushes the live pass chance to its floor
	dark := solid(64, 64, darkGrey)
	for i := 0; i < 6; i++ {
		_, _ = eval.Evaluate(ctx, dark)
	}

	res, err := sim.RecognizeUpload(ctx, pngOf(t, 64, 64, skinTone), "face.png")
	if err != nil {
		t.Fatalf("upload = %v (detection %+v)", err, res.Detection)
	}
	if res.Detection.PassChance != 0.8 || len(res.Recognized) != 1 {
		t.Fatalf("upload result = %+v", res)
	}
	if d, _ := eval.Evaluate(ctx, dark); math.Abs(d.PassChance-0.2) > 1e-9 {
		t.Fatalf("upload changed the live history: pass chance %v", d.PassChance)
	}
}

func TestRecognizeUploadFailures(t *testing.T) {
	ctx := context.Background()
	roster := newRoster(t, "Alice")

	sim := New(fastConfig(), &fakeCamera{}, NewScriptedEvaluator(false), roster, nil, FixedRand(0, 0))
	if _, err := sim.RecognizeUpload(ctx, pngReader(t, 32, 32), "x.png"); !errors.Is(err, ErrNoFace) {
		t.Fatalf("no face: %v", err)
	}
	if _, err := sim.RecognizeUpload(ctx, bytes.NewReader([]byte("nope")), "x.png"); !errors.Is(err, camera.ErrUnreadableImage) {
		t.Fatalf("unreadable: %v", err)
	}

	failing := NewScriptedEvaluator()
	failing.Err = errors.New("model crashed")
	sim = New(fastConfig(), &fakeCamera{}, failing, roster, nil, FixedRand(0, 0))
	if _, err := sim.RecognizeUpload(ctx, pngReader(t, 32, 32), "x.png"); err == nil || errors.Is(err, ErrNoFace) {
		t.Fatalf("evaluator error: %v", err)
	}
	if len(roster.Records(attendance.Filter{})) != 0 {
		t.Fatal("failed uploads must not mark anyone")
	}
}

var _ Marker = (*attendance.Store)(nil)
