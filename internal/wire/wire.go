// Package wire provides dependency injection for the batchreg
// application. The result repository is a lazy singleton over the shared
// database; the run stack is rebuilt per batch from the loaded config.
package wire

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/example/batchreg/internal/adapters/httpform"
	"github.com/example/batchreg/internal/adapters/sqlite"
	"github.com/example/batchreg/internal/app"
	"github.com/example/batchreg/internal/config"
	"github.com/example/batchreg/internal/core/backoff"
	"github.com/example/batchreg/internal/core/classify"
	"github.com/example/batchreg/internal/db"
	"github.com/example/batchreg/internal/gate"
	"github.com/example/batchreg/internal/metrics"
	"github.com/example/batchreg/internal/ports/secondary"
	"github.com/example/batchreg/internal/session"
)

var (
	resultRepo secondary.ResultRepository
	once       sync.Once
)

// ResultRepository returns the singleton ResultRepository instance.
func ResultRepository() secondary.ResultRepository {
	once.Do(initRepositories)
	return resultRepo
}

// initRepositories initializes the database-backed repositories.
// This is called once via sync.Once.
func initRepositories() {
	database, err := db.GetDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	resultRepo = sqlite.NewResultRepository(database)
}

// RunStack is the fully wired object graph for one batch run.
type RunStack struct {
	Service *app.BatchService
	Gate    *gate.Gate
	Tuner   *gate.Tuner
	Metrics *metrics.Batch
	Form    *httpform.Client
}

// BuildRunStack assembles the batch service and its collaborators from
// the loaded configuration. events may be nil.
func BuildRunStack(cfg *config.Config, events app.EventSink) *RunStack {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = httpform.DefaultUserAgent
	}

	form := httpform.New(cfg.Endpoint, userAgent, nil)

	var fallback secondary.FallbackChecker
	if cfg.FallbackEndpoint != "" {
		fallback = httpform.NewFallback(cfg.FallbackEndpoint, userAgent, &http.Client{
			Timeout: cfg.AttemptTimeout(),
		})
	}

	sessions := session.NewManager(form, session.Config{
		FreshPerRecord: cfg.FreshSessionPerRecord,
		PoolCapacity:   cfg.SessionPoolCapacity,
		UserAgent:      userAgent,
	})

	g := gate.New(cfg.InitialConcurrency)
	tuner := gate.NewTuner(g, gate.TunerConfig{
		Min:         cfg.MinConcurrency,
		Max:         cfg.MaxConcurrency,
		Window:      20,
		ErrRateHigh: 0.5,
		LatencyHigh: 8 * time.Second,
		PeakStart:   time.Duration(cfg.PeakStartHour) * time.Hour,
		PeakEnd:     time.Duration(cfg.PeakEndHour) * time.Hour,
		PeakLimit:   cfg.PeakLimit,
	}, nil)

	batch := metrics.NewBatch(256)

	orch := &app.Orchestrator{
		Form:           form,
		Fallback:       fallback,
		Sessions:       sessions,
		Rules:          classifyRules(cfg),
		Policy:         backoffPolicy(cfg),
		AttemptTimeout: cfg.AttemptTimeout(),
		FallbackGrace:  2 * time.Second,
	}

	service := app.NewBatchService(
		orch, g, tuner, batch, ResultRepository(),
		cfg.FlushThreshold, cfg.MaxConcurrency, events,
	)

	return &RunStack{
		Service: service,
		Gate:    g,
		Tuner:   tuner,
		Metrics: batch,
		Form:    form,
	}
}

// classifyRules applies the config pattern overrides on top of the
// defaults. An empty override list keeps the default patterns.
func classifyRules(cfg *config.Config) classify.Rules {
	rules := classify.DefaultRules()
	if len(cfg.SuccessPatterns) > 0 {
		rules.SuccessPatterns = cfg.SuccessPatterns
	}
	if len(cfg.RejectionPatterns) > 0 {
		rules.RejectionPatterns = cfg.RejectionPatterns
	}
	if len(cfg.SessionExpiredPatterns) > 0 {
		rules.SessionExpiredPatterns = cfg.SessionExpiredPatterns
	}
	return rules
}

func backoffPolicy(cfg *config.Config) backoff.Policy {
	policy := backoff.Default(cfg.MaxAttempts)
	policy.BaseDelay = cfg.BaseDelay()
	policy.MaxDelay = cfg.MaxDelay()
	policy.Multiplier = cfg.Multiplier
	return policy
}
