package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/batchreg/internal/core/backoff"
	"github.com/example/batchreg/internal/core/classify"
	"github.com/example/batchreg/internal/gate"
	"github.com/example/batchreg/internal/metrics"
	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/primary"
	"github.com/example/batchreg/internal/ports/secondary"
)

// mockResultRepository implements secondary.ResultRepository in memory.
type mockResultRepository struct {
	mu      sync.Mutex
	saved   []*secondary.ResultRecord
	flushes int
	saveErr error
}

func (m *mockResultRepository) SaveResults(ctx context.Context, results []*secondary.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.flushes++
	m.saved = append(m.saved, results...)
	return nil
}

func (m *mockResultRepository) List(ctx context.Context, filters secondary.ResultFilters) ([]*secondary.ResultRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*secondary.ResultRecord{}, m.saved...), nil
}

func (m *mockResultRepository) Runs(ctx context.Context) ([]string, error) {
	return nil, nil
}

// gateProbeFormClient records the peak number of concurrent Submit calls.
type gateProbeFormClient struct {
	mu       sync.Mutex
	inflight int
	peak     int
	body     string
}

func (m *gateProbeFormClient) Submit(ctx context.Context, sub secondary.FormSubmission) (*secondary.SubmitResult, error) {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.peak {
		m.peak = m.inflight
	}
	m.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
	return &secondary.SubmitResult{Body: m.body, StatusCode: 200}, nil
}

func testService(form secondary.FormClient, repo secondary.ResultRepository, limit, workers, flushThreshold int) *BatchService {
	g := gate.New(limit)
	tuner := gate.NewTuner(g, gate.TunerConfig{Min: 1, Max: limit, Window: 1 << 20}, nil)
	batch := metrics.NewBatch(64)
	orch := &Orchestrator{
		Form:           form,
		Sessions:       &mockSessionSource{},
		Rules:          classify.DefaultRules(),
		Policy:         backoff.Default(3),
		AttemptTimeout: time.Second,
		Sleep:          noSleep,
		Rand:           func() float64 { return 0 },
	}
	return NewBatchService(orch, g, tuner, batch, repo, flushThreshold, workers, nil)
}

func records(ids ...string) []models.Record {
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Record{ID: id, Name: "Name " + id, Phone: "0812" + id})
	}
	return out
}

func TestRunBatchDeduplicatesByIdentifier(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{}
	svc := testService(form, repo, 4, 4, 100)

	in := records("123456", "789012")
	in = append(in, models.Record{ID: "123-456", Name: "Duplicate", Phone: "0899"})

	report, err := svc.RunBatch(context.Background(), primary.RunBatchRequest{Records: in})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if report.Total != 2 {
		t.Fatalf("Total = %d, want 2 (one per unique identifier)", report.Total)
	}
	if report.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", report.Duplicates)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	seen := map[string]int{}
	for _, r := range repo.saved {
		seen[r.RecordID]++
	}
	if seen["123456"] != 1 {
		t.Errorf("identifier 123456 has %d stored results, want exactly 1", seen["123456"])
	}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{}
	svc := testService(form, repo, 3, 8, 100)

	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("32%06d", i)
	}
	_, err := svc.RunBatch(context.Background(), primary.RunBatchRequest{Records: records(ids...)})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if form.peak > 3 {
		t.Errorf("peak concurrent submissions = %d, want <= gate limit 3", form.peak)
	}
}

func TestRunBatchReportsRejectedRows(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{}
	svc := testService(form, repo, 2, 2, 100)

	in := records("123456")
	in = append(in, models.Record{ID: "", Name: "No ID", Phone: "0899"})

	report, err := svc.RunBatch(context.Background(), primary.RunBatchRequest{Records: in})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if len(report.Rejected) != 1 {
		t.Fatalf("Rejected = %d, want 1", len(report.Rejected))
	}
	if report.Rejected[0].Reason != "identifier is required" {
		t.Errorf("rejection reason = %q", report.Rejected[0].Reason)
	}
	if report.Total != 1 {
		t.Errorf("Total = %d, rejected rows must not be processed", report.Total)
	}
}

func TestRunBatchFlushesAtThresholdAndAtEnd(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{}
	svc := testService(form, repo, 2, 2, 2)

	_, err := svc.RunBatch(context.Background(), primary.RunBatchRequest{Records: records("111111", "222222", "333333")})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.saved) != 3 {
		t.Errorf("saved = %d results, want all 3", len(repo.saved))
	}
	if repo.flushes < 2 {
		t.Errorf("flushes = %d, want at least 2 (threshold flush plus final flush)", repo.flushes)
	}
	for _, r := range repo.saved {
		if r.FinalStatus != models.StatusSucceeded {
			t.Errorf("result %s status = %s, want succeeded", r.RecordID, r.FinalStatus)
		}
		if r.CompletedAt == "" {
			t.Error("CompletedAt must be set on stored results")
		}
	}
}

func TestRunBatchCancelledMarksRemainingInterrupted(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{}
	svc := testService(form, repo, 1, 1, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.RunBatch(ctx, primary.RunBatchRequest{Records: records("111111", "222222")})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if report.Total != 2 {
		t.Fatalf("Total = %d, want 2 (every record gets a terminal state)", report.Total)
	}
	if report.Interrupted != 2 {
		t.Errorf("Interrupted = %d, want 2", report.Interrupted)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, r := range repo.saved {
		if r.FinalStatus != models.StatusInterrupted {
			t.Errorf("record %s stored status = %s, want interrupted", r.RecordID, r.FinalStatus)
		}
	}
}

// recordingSink captures event notifications for assertions.
type recordingSink struct {
	mu        sync.Mutex
	attempts  int
	terminals int
	flushErrs []error
}

func (s *recordingSink) Attempt(recordID string, rec models.AttemptRecord) {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
}

func (s *recordingSink) Terminal(state *models.SubmissionState) {
	s.mu.Lock()
	s.terminals++
	s.mu.Unlock()
}

func (s *recordingSink) FlushError(err error) {
	s.mu.Lock()
	s.flushErrs = append(s.flushErrs, err)
	s.mu.Unlock()
}

func TestRunBatchSignalsMidRunFlushFailures(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{saveErr: errors.New("disk full")}
	sink := &recordingSink{}

	svc := testService(form, repo, 1, 1, 1)
	svc.events = sink

	_, err := svc.RunBatch(context.Background(), primary.RunBatchRequest{Records: records("111111", "222222")})
	if err == nil {
		t.Fatal("RunBatch should surface the final flush failure")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.flushErrs) == 0 {
		t.Error("mid-run flush failures must reach the event sink")
	}
	if sink.terminals != 2 {
		t.Errorf("terminals = %d, want 2 (outcomes still reported)", sink.terminals)
	}
}

func TestValidateBatchDoesNotTouchNetwork(t *testing.T) {
	form := &gateProbeFormClient{body: successBody}
	repo := &mockResultRepository{}
	svc := testService(form, repo, 2, 2, 100)

	in := records("123456", "123456", "789012")
	report, err := svc.ValidateBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}

	if len(report.Accepted) != 2 || report.Duplicates != 1 {
		t.Errorf("Accepted/Duplicates = %d/%d, want 2/1", len(report.Accepted), report.Duplicates)
	}
	form.mu.Lock()
	defer form.mu.Unlock()
	if form.peak != 0 {
		t.Error("validation must not submit anything")
	}
}
