package gate

import (
	"testing"
	"time"
)

func testConfig() TunerConfig {
	return TunerConfig{
		Min:         1,
		Max:         8,
		Window:      4,
		ErrRateHigh: 0.5,
		LatencyHigh: time.Second,
	}
}

func fixedClock(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
	}
}

func TestTunerNarrowsOnHighErrorRate(t *testing.T) {
	g := New(4)
	tuner := NewTuner(g, testConfig(), fixedClock(9, 0))

	for i := 0; i < 4; i++ {
		tuner.Record(true, 100*time.Millisecond)
	}
	if got := g.Limit(); got != 3 {
		t.Errorf("Limit = %d after bad window, want 3", got)
	}
}

func TestTunerNarrowsOnHighLatency(t *testing.T) {
	g := New(4)
	tuner := NewTuner(g, testConfig(), fixedClock(9, 0))

	for i := 0; i < 4; i++ {
		tuner.Record(false, 3*time.Second)
	}
	if got := g.Limit(); got != 3 {
		t.Errorf("Limit = %d after slow window, want 3", got)
	}
}

func TestTunerWidensOnComfortableWindow(t *testing.T) {
	g := New(4)
	tuner := NewTuner(g, testConfig(), fixedClock(9, 0))

	for i := 0; i < 4; i++ {
		tuner.Record(false, 100*time.Millisecond)
	}
	if got := g.Limit(); got != 5 {
		t.Errorf("Limit = %d after comfortable window, want 5", got)
	}
}

func TestTunerHoldsInTheMiddle(t *testing.T) {
	g := New(4)
	tuner := NewTuner(g, testConfig(), fixedClock(9, 0))

	// 25% errors: above the comfort zone, below the high threshold.
	tuner.Record(true, 100*time.Millisecond)
	for i := 0; i < 3; i++ {
		tuner.Record(false, 100*time.Millisecond)
	}
	if got := g.Limit(); got != 4 {
		t.Errorf("Limit = %d after mixed window, want unchanged 4", got)
	}
}

func TestTunerRespectsFloorAndCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Min = 2
	cfg.Max = 3

	g := New(2)
	tuner := NewTuner(g, cfg, fixedClock(9, 0))
	for i := 0; i < 4; i++ {
		tuner.Record(true, 100*time.Millisecond)
	}
	if got := g.Limit(); got != 2 {
		t.Errorf("Limit = %d, must not drop below floor 2", got)
	}

	g = New(3)
	tuner = NewTuner(g, cfg, fixedClock(9, 0))
	for i := 0; i < 4; i++ {
		tuner.Record(false, 100*time.Millisecond)
	}
	if got := g.Limit(); got != 3 {
		t.Errorf("Limit = %d, must not exceed ceiling 3", got)
	}
}

func TestTunerPeakClamp(t *testing.T) {
	cfg := testConfig()
	cfg.PeakStart = 15 * time.Hour
	cfg.PeakEnd = 15*time.Hour + 2*time.Minute
	cfg.PeakLimit = 2

	g := New(6)
	tuner := NewTuner(g, cfg, fixedClock(15, 1))
	tuner.Record(false, 100*time.Millisecond)
	if got := g.Limit(); got != 2 {
		t.Errorf("Limit = %d inside peak window, want clamped to 2", got)
	}

	// Outside the window the ceiling is Max again and the limit may grow.
	g = New(6)
	tuner = NewTuner(g, cfg, fixedClock(16, 0))
	for i := 0; i < 4; i++ {
		tuner.Record(false, 100*time.Millisecond)
	}
	if got := g.Limit(); got != 7 {
		t.Errorf("Limit = %d outside peak window, want 7", got)
	}
}
