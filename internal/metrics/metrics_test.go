package metrics

import (
	"testing"
	"time"
)

func TestBatchCounters(t *testing.T) {
	b := NewBatch(64)

	b.RecordAttempt("success", true, 100*time.Millisecond)
	b.RecordAttempt("remote_rejected", false, 200*time.Millisecond)
	b.RecordAttempt("transport_failure", false, 300*time.Millisecond)

	snap := b.Snapshot()
	if snap.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", snap.TotalAttempts)
	}
	if snap.SuccessCount != 1 || snap.FailureCount != 2 {
		t.Errorf("Success/Failure = %d/%d, want 1/2", snap.SuccessCount, snap.FailureCount)
	}
	if snap.ByOutcome["remote_rejected"] != 1 {
		t.Errorf("ByOutcome[remote_rejected] = %d, want 1", snap.ByOutcome["remote_rejected"])
	}
}

func TestLatencyQuantiles(t *testing.T) {
	b := NewBatch(128)
	for i := 1; i <= 100; i++ {
		b.RecordAttempt("success", true, time.Duration(i)*time.Millisecond)
	}

	p50, p95 := b.LatencyQuantiles()
	if p50 < 45*time.Millisecond || p50 > 55*time.Millisecond {
		t.Errorf("p50 = %v, want around 50ms", p50)
	}
	if p95 < 90*time.Millisecond || p95 > 100*time.Millisecond {
		t.Errorf("p95 = %v, want around 95ms", p95)
	}
}

func TestLatencyWindowIsBounded(t *testing.T) {
	b := NewBatch(16)
	// Old samples fall out of the ring: after 16 fast samples following a
	// slow burst, the quantiles reflect only the fast ones.
	for i := 0; i < 16; i++ {
		b.RecordAttempt("success", true, 5*time.Second)
	}
	for i := 0; i < 16; i++ {
		b.RecordAttempt("success", true, 10*time.Millisecond)
	}

	_, p95 := b.LatencyQuantiles()
	if p95 > 100*time.Millisecond {
		t.Errorf("p95 = %v, old samples should have been evicted", p95)
	}
}

func TestEmptyQuantiles(t *testing.T) {
	b := NewBatch(16)
	p50, p95 := b.LatencyQuantiles()
	if p50 != 0 || p95 != 0 {
		t.Errorf("quantiles of empty window = %v/%v, want 0/0", p50, p95)
	}
}
