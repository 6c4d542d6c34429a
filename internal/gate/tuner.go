package gate

import (
	"sync"
	"time"
)

// TunerConfig bounds and thresholds for the adaptive limit.
type TunerConfig struct {
	Min int
	Max int

	// Evaluate after this many completed attempts.
	Window int

	// ErrRateHigh narrows the gate when exceeded; half of it is the
	// comfort zone for widening.
	ErrRateHigh float64

	// LatencyHigh narrows the gate when the window's average attempt
	// latency exceeds it; half of it is the comfort zone for widening.
	LatencyHigh time.Duration

	// Peak clamp: between PeakStart (inclusive) and PeakEnd (exclusive),
	// the effective ceiling is PeakLimit. Zero PeakLimit disables the
	// clamp.
	PeakStart time.Duration // offset from midnight, local time
	PeakEnd   time.Duration
	PeakLimit int
}

// Tuner adjusts a Gate's limit from completed-attempt observations.
// Adjustment is one step per window: narrow by one on a bad window,
// widen by one on a comfortable one.
type Tuner struct {
	mu   sync.Mutex
	gate *Gate
	cfg  TunerConfig
	now  func() time.Time

	count    int
	errors   int
	totalLat time.Duration
}

// NewTuner creates a tuner for the gate. now is injectable for tests;
// pass nil for time.Now.
func NewTuner(g *Gate, cfg TunerConfig, now func() time.Time) *Tuner {
	if cfg.Min < 1 {
		cfg.Min = 1
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	if cfg.Window < 1 {
		cfg.Window = 16
	}
	if now == nil {
		now = time.Now
	}
	return &Tuner{gate: g, cfg: cfg, now: now}
}

// Record feeds one completed attempt into the window and re-evaluates the
// limit when the window fills.
func (t *Tuner) Record(failed bool, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	if failed {
		t.errors++
	}
	t.totalLat += latency

	if t.count < t.cfg.Window {
		t.clampLocked()
		return
	}

	errRate := float64(t.errors) / float64(t.count)
	avgLat := t.totalLat / time.Duration(t.count)
	t.count, t.errors, t.totalLat = 0, 0, 0

	limit := t.gate.Limit()
	ceiling := t.ceiling()

	switch {
	case errRate > t.cfg.ErrRateHigh || (t.cfg.LatencyHigh > 0 && avgLat > t.cfg.LatencyHigh):
		if limit > t.cfg.Min {
			t.gate.SetLimit(limit - 1)
		}
	case errRate < t.cfg.ErrRateHigh/2 && (t.cfg.LatencyHigh == 0 || avgLat < t.cfg.LatencyHigh/2):
		if limit < ceiling {
			t.gate.SetLimit(limit + 1)
		}
	}
	t.clampLocked()
}

// ceiling returns the effective maximum, honoring the peak-window clamp.
func (t *Tuner) ceiling() int {
	if t.cfg.PeakLimit > 0 && t.inPeakWindow() {
		if t.cfg.PeakLimit < t.cfg.Min {
			return t.cfg.Min
		}
		return t.cfg.PeakLimit
	}
	return t.cfg.Max
}

func (t *Tuner) inPeakWindow() bool {
	now := t.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := now.Sub(midnight)
	return offset >= t.cfg.PeakStart && offset < t.cfg.PeakEnd
}

func (t *Tuner) clampLocked() {
	if ceiling := t.ceiling(); t.gate.Limit() > ceiling {
		t.gate.SetLimit(ceiling)
	}
}
