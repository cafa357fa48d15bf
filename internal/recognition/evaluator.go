package recognition

import (
	"context"
	"image"
	"math/rand"
	"sync"
	"time"
)

// Detection is the outcome of evaluating one frame.
type Detection struct {
	Detected   bool    `json:"detected"`
	Brightness float64 `json:"brightness"`
	SkinRatio  float64 `json:"skinRatio"`
	Threshold  float64 `json:"threshold"`
	PassChance float64 `json:"passChance"`
}

// FrameEvaluator decides whether a frame shows a face.
type FrameEvaluator interface {
	Evaluate(ctx context.Context, frame image.Image) (Detection, error)
}

// StillEvaluator is implemented by evaluators whose live judgement depends
// on earlier frames. EvaluateOnce judges a single image on its own.
type StillEvaluator interface {
	EvaluateOnce(ctx context.Context, frame image.Image) (Detection, error)
}

// Resetter is implemented by evaluators that carry state across frames.
type Resetter interface {
	Reset()
}

// Rand is the randomness the simulator draws from.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// NewRand returns a goroutine-safe Rand seeded from the clock.
func NewRand() Rand {
	return &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// ScriptedEvaluator replays a fixed list of outcomes, then reports no face.
type ScriptedEvaluator struct {
	mu       sync.Mutex
	outcomes []bool
	calls    int
	Err      error
	// Block, when non-nil, is received from before every evaluation.
	Block chan struct{}
}

// NewScriptedEvaluator replays outcomes in order.
func NewScriptedEvaluator(outcomes ...bool) *ScriptedEvaluator {
	return &ScriptedEvaluator{outcomes: outcomes}
}

func (s *ScriptedEvaluator) Evaluate(ctx context.Context, _ image.Image) (Detection, error) {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return Detection{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Detection{}, s.Err
	}
	i := s.calls
	s.calls++
	if i < len(s.outcomes) {
		return Detection{Detected: s.outcomes[i]}, nil
	}
	return Detection{}, nil
}

// Calls reports how many frames were evaluated.
func (s *ScriptedEvaluator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fixedRand returns the same values every time.
type fixedRand struct {
	f float64
	i int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int {
	if r.i >= n {
		return n - 1
	}
	return r.i
}

// FixedRand is a deterministic Rand: Float64 always returns f and Intn
// returns i clamped to n-1.
func FixedRand(f float64, i int) Rand { return fixedRand{f: f, i: i} }
