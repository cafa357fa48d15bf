package recognition

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// HeuristicConfig tunes HeuristicEvaluator.
type HeuristicConfig struct {
	MinBrightness     float64 // frames darker than this never detect
	SkinThreshold     float64 // skin ratio needed at jitter factor 1
	JitterBase        float64 // threshold factor = JitterBase + JitterAmplitude*sin(t/JitterPeriod)
	JitterAmplitude   float64
	JitterPeriod      time.Duration
	BasePass          float64 // chance a qualifying frame is reported detected
	SustainPass       float64 // chance right after a detected frame
	MissesBeforeDecay int     // consecutive misses before BasePass starts decaying
	DecayFactor       float64 // multiplier per miss beyond MissesBeforeDecay
	MinPass           float64 // decay floor
}

// DefaultHeuristicConfig mirrors the tuning the UI was calibrated against.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		MinBrightness:     20,
		SkinThreshold:     0.04,
		JitterBase:        0.8,
		JitterAmplitude:   0.15,
		JitterPeriod:      time.Second,
		BasePass:          0.8,
		SustainPass:       0.95,
		MissesBeforeDecay: 3,
		DecayFactor:       0.7,
		MinPass:           0.2,
	}
}

// Measurement holds the raw frame statistics.
type Measurement struct {
	Brightness float64
	SkinRatio  float64
}

// Measure computes mean brightness over the whole frame and the ratio of
// skin-toned pixels in the centre region, sampled every 5 pixels.
func Measure(img image.Image) Measurement {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	if w == 0 || h == 0 {
		return Measurement{}
	}

	var total float64
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			total += (float64(row[x]) + float64(row[x+1]) + float64(row[x+2])) / 3
		}
	}

	x0, y0 := w/4, h/10
	rw, rh := w/2, h*8/10
	var skin, sampled int
	for y := y0; y < y0+rh; y += 5 {
		for x := x0; x < x0+rw; x += 5 {
			i := y*nrgba.Stride + x*4
			r, g, b := int(nrgba.Pix[i]), int(nrgba.Pix[i+1]), int(nrgba.Pix[i+2])
			if isSkin(r, g, b) {
				skin++
			}
			sampled++
		}
	}

	m := Measurement{Brightness: total / float64(w*h)}
	if sampled > 0 {
		m.SkinRatio = float64(skin) / float64(sampled)
	}
	return m
}

func isSkin(r, g, b int) bool {
	return r > 60 && g > 40 && b > 20 &&
		r > g && g > b &&
		r-g > 15 && g-b > 15
}

// HeuristicEvaluator turns Measure into a flicker-resistant yes/no. A
// positive frame makes the next one likely to stay positive; a run of
// misses makes a positive progressively less likely.
type HeuristicEvaluator struct {
	cfg HeuristicConfig
	rnd Rand
	now func() time.Time

	mu           sync.Mutex
	lastDetected bool
	misses       int
}

// NewHeuristicEvaluator builds an evaluator; nil rnd uses NewRand.
func NewHeuristicEvaluator(cfg HeuristicConfig, rnd Rand) *HeuristicEvaluator {
	if rnd == nil {
		rnd = NewRand()
	}
	return &HeuristicEvaluator{cfg: cfg, rnd: rnd, now: time.Now}
}

// Threshold is the skin ratio required at time t.
func (e *HeuristicEvaluator) Threshold(t time.Time) float64 {
	period := e.cfg.JitterPeriod
	if period <= 0 {
		period = time.Second
	}
	phase := float64(t.UnixNano()) / float64(period)
	return e.cfg.SkinThreshold * (math.Sin(phase)*e.cfg.JitterAmplitude + e.cfg.JitterBase)
}

// passChance must be called with mu held.
func (e *HeuristicEvaluator) passChance() float64 {
	if e.lastDetected {
		return e.cfg.SustainPass
	}
	if e.misses < e.cfg.MissesBeforeDecay {
		return e.cfg.BasePass
	}
	p := e.cfg.BasePass * math.Pow(e.cfg.DecayFactor, float64(e.misses-e.cfg.MissesBeforeDecay+1))
	return math.Max(p, e.cfg.MinPass)
}

func (e *HeuristicEvaluator) Evaluate(ctx context.Context, frame image.Image) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	m := Measure(frame)
	threshold := e.Threshold(e.now())

	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.decide(m, threshold, e.passChance())
	if d.Detected {
		e.lastDetected = true
		e.misses = 0
	} else {
		e.lastDetected = false
		e.misses++
	}
	return d, nil
}

// EvaluateOnce judges a still image at BasePass. The live detection
// history is neither read nor changed.
func (e *HeuristicEvaluator) EvaluateOnce(ctx context.Context, frame image.Image) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	return e.decide(Measure(frame), e.Threshold(e.now()), e.cfg.BasePass), nil
}

func (e *HeuristicEvaluator) decide(m Measurement, threshold, chance float64) Detection {
	d := Detection{
		Brightness: m.Brightness,
		SkinRatio:  m.SkinRatio,
		Threshold:  threshold,
		PassChance: chance,
	}
	if m.Brightness >= e.cfg.MinBrightness && m.SkinRatio > threshold {
		d.Detected = e.rnd.Float64() < chance
	}
	return d
}

// Reset forgets the detection history.
func (e *HeuristicEvaluator) Reset() {
	e.mu.Lock()
	e.lastDetected = false
	e.misses = 0
	e.mu.Unlock()
}
